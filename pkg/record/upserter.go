package record

import (
	"context"
	"time"

	"github.com/activecm/rita-pdns/pkg/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BatchUpserter applies the deltas of one file to a Repository in
// bounded chunks spread over a bounded number of workers
type BatchUpserter struct {
	repo      Repository
	chunkSize int
	threads   int
	log       *log.Logger
	metrics   *metrics.Metrics
}

// ChunkCallback is invoked with the size of every chunk which commits
type ChunkCallback func(applied int)

//NewBatchUpserter creates a BatchUpserter. A chunk size or thread count
//below one is raised to one.
func NewBatchUpserter(repo Repository, chunkSize, threads int, logger *log.Logger, m *metrics.Metrics) *BatchUpserter {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if threads < 1 {
		threads = 1
	}
	return &BatchUpserter{
		repo:      repo,
		chunkSize: chunkSize,
		threads:   threads,
		log:       logger,
		metrics:   m,
	}
}

//Upsert splits the deltas into chunks and commits each chunk in its own
//transaction. It blocks until every chunk has finished. The first failing
//chunk cancels the chunks which have not started yet; chunks which already
//committed stay committed and are included in the returned result.
func (b *BatchUpserter) Upsert(ctx context.Context, deltas []*Delta, onChunk ChunkCallback) (UpdateResult, error) {
	start := time.Now()
	chunks := Chunk(deltas, b.chunkSize)
	results := make([]UpdateResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.threads)

	for i := range chunks {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := b.repo.UpsertChunk(gctx, chunks[i])
			b.metrics.ObserveChunk(res.Inserted, res.Updated, res.Duration, err)
			if err != nil {
				b.log.WithFields(log.Fields{
					"error": err.Error(),
					"chunk": i,
					"size":  len(chunks[i]),
				}).Error("Chunk rolled back")
				return errors.Wrapf(err, "chunk %d of %d", i+1, len(chunks))
			}

			results[i] = res
			if onChunk != nil {
				onChunk(len(chunks[i]))
			}
			return nil
		})
	}

	err := g.Wait()

	var total UpdateResult
	for _, res := range results {
		total.Add(res)
	}
	total.Duration = time.Since(start)
	return total, err
}

//Chunk partitions deltas into consecutive slices of at most size elements
func Chunk(deltas []*Delta, size int) [][]*Delta {
	if size < 1 {
		size = 1
	}
	chunks := make([][]*Delta, 0, (len(deltas)+size-1)/size)
	for start := 0; start < len(deltas); start += size {
		end := start + size
		if end > len(deltas) {
			end = len(deltas)
		}
		chunks = append(chunks, deltas[start:end:end])
	}
	return chunks
}
