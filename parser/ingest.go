package parser

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/activecm/rita-pdns/config"
	"github.com/activecm/rita-pdns/parser/files"
	"github.com/activecm/rita-pdns/pkg/metrics"
	"github.com/activecm/rita-pdns/pkg/record"
	"github.com/activecm/rita-pdns/resources"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb"
	"github.com/vbauerster/mpb/decor"
)

type (
	//Ingester runs log files through parsing, aggregation, and the store
	Ingester struct {
		format       Format
		maxValueLen  int
		repo         record.Repository
		upserter     *record.BatchUpserter
		log          *log.Logger
		metrics      *metrics.Metrics
		showProgress bool
	}

	//FileResult summarizes the ingestion of one log file
	FileResult struct {
		Path           string
		RunID          string
		TotalRecords   uint64
		SkippedRecords uint64
		Tuples         int
		Store          record.UpdateResult
		Duration       time.Duration
	}
)

//NewIngester creates an Ingester writing to the store held by res
func NewIngester(res *resources.Resources) (*Ingester, error) {
	return newIngester(res.Store, &res.Config.S.Ingest, res.Log, res.Metrics)
}

func newIngester(repo record.Repository, conf *config.IngestStaticCfg, logger *log.Logger, m *metrics.Metrics) (*Ingester, error) {
	format, err := ParseFormat(conf.Format)
	if err != nil {
		return nil, err
	}
	return &Ingester{
		format:      format,
		maxValueLen: conf.MaxValueLength,
		repo:        repo,
		upserter:    record.NewBatchUpserter(repo, conf.ChunkSize, conf.Threads, logger, m),
		log:         logger,
		metrics:     m,
	}, nil
}

//ShowProgress toggles a progress bar on stdout while chunks are written
func (i *Ingester) ShowProgress(show bool) {
	i.showProgress = show
}

//IsIndexed reports whether the file at path was already ingested
func (i *Ingester) IsIndexed(ctx context.Context, path string) (bool, error) {
	key, err := indexKey(path)
	if err != nil {
		return false, err
	}
	return i.repo.IsLogIndexed(ctx, key)
}

//ProcessFile ingests a single, possibly gzipped, log file and records it as
//indexed. The returned error is nil only if every chunk of the file was
//committed and the file was recorded.
func (i *Ingester) ProcessFile(ctx context.Context, path string) (FileResult, error) {
	key, err := indexKey(path)
	if err != nil {
		return FileResult{Path: path}, err
	}

	reader, closer, err := files.OpenLogFile(path)
	if err != nil {
		i.metrics.ObserveFile(0, 0, err)
		return FileResult{Path: path}, errors.Wrapf(err, "could not open %s", path)
	}

	result, err := i.ProcessReader(ctx, reader, path)

	if closeErr := closer(); closeErr != nil {
		i.log.WithFields(log.Fields{
			"file":  path,
			"error": closeErr.Error(),
		}).Warn("Problem closing log file")
	}
	if err != nil {
		return result, err
	}

	err = i.repo.SetLogIndexed(ctx, record.LogFile{
		Path:           key,
		RunID:          result.RunID,
		TotalRecords:   result.TotalRecords,
		SkippedRecords: result.SkippedRecords,
		Tuples:         uint64(result.Tuples),
		Inserted:       result.Store.Inserted,
		Updated:        result.Store.Updated,
		IndexedAt:      time.Now(),
	})
	if err != nil {
		i.log.WithFields(log.Fields{
			"file":   path,
			"run_id": result.RunID,
			"error":  err.Error(),
		}).Error("Records were stored but the file could not be marked as indexed")
		return result, err
	}
	return result, nil
}

// indexKey is the absolute form of path under which a file is indexed
func indexKey(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve %s", path)
	}
	return abs, nil
}

//ProcessReader ingests a log stream. name is used in logs only.
func (i *Ingester) ProcessReader(ctx context.Context, r io.Reader, name string) (FileResult, error) {
	start := time.Now()
	result := FileResult{Path: name, RunID: uuid.New().String()}
	logger := i.log.WithFields(log.Fields{
		"file":   name,
		"run_id": result.RunID,
	})

	fail := func(err error) (FileResult, error) {
		result.Duration = time.Since(start)
		i.metrics.ObserveFile(result.TotalRecords, result.SkippedRecords, err)
		logger.WithFields(log.Fields{
			"error": err.Error(),
		}).Error("Could not ingest log file")
		return result, err
	}

	src, err := NewSource(r, i.format, i.maxValueLen, i.log)
	if err != nil {
		return fail(err)
	}

	agg, err := Aggregate(src)
	if err != nil {
		result.TotalRecords, result.SkippedRecords = src.Counts()
		return fail(err)
	}
	result.TotalRecords = agg.TotalRecords
	result.SkippedRecords = agg.SkippedRecords
	result.Tuples = len(agg.Deltas)

	logger.WithFields(log.Fields{
		"duration": agg.Duration,
		"total":    agg.TotalRecords,
		"skipped":  agg.SkippedRecords,
		"tuples":   result.Tuples,
	}).Info("Aggregated log file")

	deltas := agg.Ordered()
	var onChunk record.ChunkCallback
	var progress *mpb.Progress
	var bar *mpb.Bar
	if i.showProgress && len(deltas) > 0 {
		progress = mpb.New(mpb.WithWidth(20))
		bar = progress.AddBar(int64(len(deltas)),
			mpb.PrependDecorators(
				decor.Name("\t[-] Storing Tuples:", decor.WC{W: 30, C: decor.DidentRight}),
				decor.CountersNoUnit(" %d / %d ", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
		onChunk = func(applied int) { bar.IncrBy(applied) }
	}

	stored, err := i.upserter.Upsert(ctx, deltas, onChunk)
	result.Store = stored

	if progress != nil {
		// complete the bar on failure so Wait returns
		if remaining := len(deltas) - int(stored.Processed()); remaining > 0 {
			bar.IncrBy(remaining)
		}
		progress.Wait()
	}

	if err != nil {
		return fail(err)
	}

	result.Duration = time.Since(start)
	i.metrics.ObserveFile(result.TotalRecords, result.SkippedRecords, nil)
	logger.WithFields(log.Fields{
		"duration": stored.Duration,
		"inserted": stored.Inserted,
		"updated":  stored.Updated,
	}).Info("Stored log file")
	return result, nil
}
