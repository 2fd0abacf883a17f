package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/activecm/rita-pdns/pkg/metrics"
	"github.com/activecm/rita-pdns/pkg/record"
	"github.com/activecm/rita-pdns/pkg/search"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryFinder struct {
	records []record.Record
	err     error
}

func (m *memoryFinder) Find(ctx context.Context, term string) ([]record.Record, error) {
	var found []record.Record
	for _, rec := range m.records {
		if rec.Query == term || rec.Answer == term {
			found = append(found, rec)
		}
	}
	return found, m.err
}

func (m *memoryFinder) Like(ctx context.Context, term string) ([]record.Record, error) {
	var found []record.Record
	for _, rec := range m.records {
		if strings.Contains(rec.Query, term) || strings.Contains(rec.Answer, term) {
			found = append(found, rec)
		}
	}
	return found, m.err
}

func testLogger() *log.Logger {
	logger := log.New()
	logger.Out = io.Discard
	return logger
}

func testServer(finder search.Finder) (*Server, *metrics.Metrics) {
	m := metrics.NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		panic(err)
	}
	svc := search.NewService(finder, testLogger(), m)
	return NewServer(":0", svc, reg, testLogger()), m
}

func testRecords() []record.Record {
	first := time.Date(2016, 4, 1, 0, 0, 0, 0, time.UTC)
	last := first.Add(time.Hour)
	ttl := int64(600)
	return []record.Record{
		{Key: record.Key{Query: "example.com", Type: "A", Answer: "1.2.3.4"}, Count: 2, TTL: &ttl, FirstSeen: first, LastSeen: last},
		{Key: record.Key{Query: "www.example.com", Type: "CNAME", Answer: "example.com"}, Count: 1, FirstSeen: first, LastSeen: first},
	}
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, SearchResponse) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp SearchResponse
	if rec.Code == http.StatusOK && strings.HasPrefix(path, "/dns/") {
		require.Nil(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestSearchExact(t *testing.T) {
	srv, _ := testServer(&memoryFinder{records: testRecords()})

	rec, resp := get(t, srv, "/dns/1.2.3.4")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "example.com", resp.Records[0].Query)
	assert.Equal(t, uint64(2), resp.Records[0].Count)
	require.NotNil(t, resp.Records[0].TTL)
	assert.Equal(t, int64(600), *resp.Records[0].TTL)
	assert.Equal(t, "2016-04-01T00:00:00Z", resp.Records[0].FirstSeen)
	assert.Equal(t, "2016-04-01T01:00:00Z", resp.Records[0].LastSeen)

	// exact hits on the answer column do not pull in substring matches
	_, resp = get(t, srv, "/dns/example.com")
	assert.Len(t, resp.Records, 2)
}

func TestSearchFallback(t *testing.T) {
	srv, _ := testServer(&memoryFinder{records: testRecords()})

	_, resp := get(t, srv, "/dns/www")
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "www.example.com", resp.Records[0].Query)
	assert.Nil(t, resp.Records[0].TTL)

	rec, resp := get(t, srv, "/dns/nothing.test")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, resp.Records)
	assert.Empty(t, resp.Records)
	assert.Contains(t, rec.Body.String(), `"records":[]`)
}

func TestSearchFull(t *testing.T) {
	srv, _ := testServer(&memoryFinder{records: testRecords()})

	_, resp := get(t, srv, "/dns/full/example.com")
	assert.Len(t, resp.Records, 2)
}

func TestSearchStoreFailure(t *testing.T) {
	srv, _ := testServer(&memoryFinder{err: errors.New("store down")})

	rec, _ := get(t, srv, "/dns/example.com")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "store down")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(&memoryFinder{records: testRecords()})
	get(t, srv, "/dns/example.com")

	rec, _ := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pdns_search_requests_total{mode="exact"} 1`)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	srv, _ := testServer(&memoryFinder{})
	srv.listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.Nil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
