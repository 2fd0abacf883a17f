//go:build integration
// +build integration

package record

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/activecm/rita-pdns/config"
	"github.com/activecm/rita-pdns/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMongoRepo connects to the MongoDB instance named by PDNS_TEST_MONGODB
func newTestMongoRepo(t *testing.T) Repository {
	uri := os.Getenv("PDNS_TEST_MONGODB")
	if uri == "" {
		t.Skip("PDNS_TEST_MONGODB is required to run MongoDB integration tests")
	}

	conf, err := config.LoadTestingConfig(config.StoreMongoDB, uri)
	require.Nil(t, err)
	conf.S.Store.Database = "pdns-test"

	db, err := database.NewDB(conf, testLogger())
	require.Nil(t, err)
	require.Nil(t, db.Session.DB(conf.S.Store.Database).DropDatabase())

	repo := NewMongoRepository(db, conf.T.DNS.DNSTable, conf.T.DNS.FileTable, conf.T.DNS.TxnTable, testLogger())
	require.Nil(t, repo.CreateIndexes())
	t.Cleanup(func() {
		db.Session.DB(conf.S.Store.Database).DropDatabase()
		repo.Close()
	})
	return repo
}

func TestMongoUpsertCreatesThenMerges(t *testing.T) {
	repo := newTestMongoRepo(t)
	ctx := context.Background()
	t1 := time.Date(2016, 4, 1, 0, 3, 3, 743000000, time.UTC)
	t2 := t1.Add(time.Hour)

	res, err := repo.UpsertChunk(ctx, []*Delta{delta("example.com", "A", "1.2.3.4", 1, ttl(300), t1)})
	require.Nil(t, err)
	assert.Equal(t, uint64(1), res.Inserted)

	res, err = repo.UpsertChunk(ctx, []*Delta{
		delta("example.com", "A", "1.2.3.4", 1, ttl(600), t2),
		delta("example.com", "AAAA", "::1", 1, nil, t2),
	})
	require.Nil(t, err)
	assert.Equal(t, uint64(1), res.Inserted)
	assert.Equal(t, uint64(1), res.Updated)

	records, err := repo.Find(ctx, "1.2.3.4")
	require.Nil(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, uint64(2), records[0].Count)
	assert.Equal(t, ttl(600), records[0].TTL)
	assert.True(t, t1.Equal(records[0].FirstSeen))
	assert.True(t, t2.Equal(records[0].LastSeen))

	records, err = repo.Like(ctx, "ample.c")
	require.Nil(t, err)
	assert.Len(t, records, 2)
}

func TestMongoLogIndexed(t *testing.T) {
	repo := newTestMongoRepo(t)
	ctx := context.Background()
	path := "/var/log/zeek/dns.log"

	indexed, err := repo.IsLogIndexed(ctx, path)
	require.Nil(t, err)
	assert.False(t, indexed)

	file := LogFile{Path: path, RunID: "first", IndexedAt: time.Now()}
	require.Nil(t, repo.SetLogIndexed(ctx, file))
	file.RunID = "second"
	require.Nil(t, repo.SetLogIndexed(ctx, file))

	indexed, err = repo.IsLogIndexed(ctx, path)
	require.Nil(t, err)
	assert.True(t, indexed)
}
