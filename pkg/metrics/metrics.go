package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for ingestion and search.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FilesProcessed prometheus.Counter
	FilesFailed    prometheus.Counter
	RecordsParsed  prometheus.Counter
	RecordsSkipped prometheus.Counter

	RowsUpserted  *prometheus.CounterVec
	ChunkDuration prometheus.Histogram
	ChunksFailed  prometheus.Counter

	SearchRequests *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdns_files_processed_total",
			Help: "Total number of log files fully written to the store",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdns_files_failed_total",
			Help: "Total number of log files which could not be ingested",
		}),
		RecordsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdns_records_parsed_total",
			Help: "Total number of dns log records read",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdns_records_skipped_total",
			Help: "Total number of dns log records skipped as incomplete or invalid",
		}),

		RowsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdns_rows_upserted_total",
			Help: "Total number of store rows written",
		}, []string{"operation"}),
		ChunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdns_chunk_upsert_duration_seconds",
			Help:    "Time taken to commit one chunk of deltas",
			Buckets: prometheus.DefBuckets,
		}),
		ChunksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdns_chunks_failed_total",
			Help: "Total number of chunks rolled back",
		}),

		SearchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdns_search_requests_total",
			Help: "Total number of search requests",
		}, []string{"mode"}),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.FilesProcessed.Describe(ch)
	m.FilesFailed.Describe(ch)
	m.RecordsParsed.Describe(ch)
	m.RecordsSkipped.Describe(ch)
	m.RowsUpserted.Describe(ch)
	m.ChunkDuration.Describe(ch)
	m.ChunksFailed.Describe(ch)
	m.SearchRequests.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.FilesProcessed.Collect(ch)
	m.FilesFailed.Collect(ch)
	m.RecordsParsed.Collect(ch)
	m.RecordsSkipped.Collect(ch)
	m.RowsUpserted.Collect(ch)
	m.ChunkDuration.Collect(ch)
	m.ChunksFailed.Collect(ch)
	m.SearchRequests.Collect(ch)
}

// Register registers all metrics with the given registerer
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m)
}

// ObserveFile records the outcome of ingesting one file
func (m *Metrics) ObserveFile(parsed, skipped uint64, err error) {
	if m == nil {
		return
	}
	m.RecordsParsed.Add(float64(parsed))
	m.RecordsSkipped.Add(float64(skipped))
	if err != nil {
		m.FilesFailed.Inc()
		return
	}
	m.FilesProcessed.Inc()
}

// ObserveChunk records the outcome of committing one chunk
func (m *Metrics) ObserveChunk(inserted, updated uint64, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.ChunkDuration.Observe(took.Seconds())
	if err != nil {
		m.ChunksFailed.Inc()
		return
	}
	m.RowsUpserted.WithLabelValues("insert").Add(float64(inserted))
	m.RowsUpserted.WithLabelValues("update").Add(float64(updated))
}

// ObserveSearch counts a search request of the given mode
func (m *Metrics) ObserveSearch(mode string) {
	if m == nil {
		return
	}
	m.SearchRequests.WithLabelValues(mode).Inc()
}
