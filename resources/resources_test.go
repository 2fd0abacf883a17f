package resources

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/activecm/rita-pdns/config"
	"github.com/activecm/rita-pdns/pkg/record"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerLevels(t *testing.T) {
	levels := map[int]log.Level{
		0: log.ErrorLevel,
		1: log.WarnLevel,
		2: log.InfoLevel,
		3: log.DebugLevel,
	}
	for setting, level := range levels {
		logger := initLogger(&config.LogStaticCfg{LogLevel: setting})
		assert.Equal(t, level, logger.Level)
	}
}

func TestAddFileLogger(t *testing.T) {
	logger := initLogger(&config.LogStaticCfg{LogLevel: 2})
	require.Nil(t, addFileLogger(logger, t.TempDir()))
	assert.NotEmpty(t, logger.Hooks[log.InfoLevel])
}

func TestNewResourcesSQLite(t *testing.T) {
	res := InitTestResources(t)
	require.NotNil(t, res.Store)
	require.NotNil(t, res.Metrics)

	ts := time.Date(2016, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err := res.Store.UpsertChunk(context.Background(), []*record.Delta{{
		Key:       record.Key{Query: "example.com", Type: "A", Answer: "1.2.3.4"},
		Count:     1,
		Timestamp: ts,
	}})
	require.Nil(t, err)

	found, err := res.Store.Find(context.Background(), "example.com")
	require.Nil(t, err)
	assert.Len(t, found, 1)
}

func TestNewResourcesUnknownStore(t *testing.T) {
	conf, err := config.LoadTestingConfig("cassandra", filepath.Join(t.TempDir(), "pdns.sqlite"))
	require.Nil(t, err)

	_, err = NewResources(conf)
	assert.NotNil(t, err)
}
