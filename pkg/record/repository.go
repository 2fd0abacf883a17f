package record

import (
	"context"
	"time"
)

// Repository for the aggregated passive dns collection
type Repository interface {
	CreateIndexes() error
	// UpsertChunk merges every delta of the chunk into the store inside a
	// single transaction. Either all deltas are applied or none are.
	UpsertChunk(ctx context.Context, chunk []*Delta) (UpdateResult, error)
	Find(ctx context.Context, term string) ([]Record, error)
	Like(ctx context.Context, term string) ([]Record, error)
	// IsLogIndexed reports whether a log file was already ingested
	IsLogIndexed(ctx context.Context, path string) (bool, error)
	// SetLogIndexed records a log file as ingested, replacing any earlier
	// entry for the same path
	SetLogIndexed(ctx context.Context, file LogFile) error
	Close() error
}

// LogFile describes an ingested log file
type LogFile struct {
	Path           string
	RunID          string
	TotalRecords   uint64
	SkippedRecords uint64
	Tuples         uint64
	Inserted       uint64
	Updated        uint64
	IndexedAt      time.Time
}

// Key identifies one aggregated passive dns tuple
type Key struct {
	Query  string
	Type   string
	Answer string
}

// Delta holds the changes observed for a single Key while reading one file
type Delta struct {
	Key       Key
	Count     uint64
	TTL       *int64
	Timestamp time.Time
}

// Record is a passive dns tuple as persisted in the store
type Record struct {
	Key
	Count     uint64
	TTL       *int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// UpdateResult summarizes the effect of applying deltas to the store
type UpdateResult struct {
	Inserted uint64
	Updated  uint64
	Duration time.Duration
}

// Processed returns the number of deltas applied to the store
func (u UpdateResult) Processed() uint64 {
	return u.Inserted + u.Updated
}

// Add accumulates another result into this one
func (u *UpdateResult) Add(other UpdateResult) {
	u.Inserted += other.Inserted
	u.Updated += other.Updated
	u.Duration += other.Duration
}
