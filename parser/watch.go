package parser

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/activecm/rita-pdns/config"
	"github.com/mattn/go-zglob"
	log "github.com/sirupsen/logrus"
)

type (
	//FileProcessor ingests a single log file
	FileProcessor interface {
		ProcessFile(ctx context.Context, path string) (FileResult, error)
	}

	//Watcher polls a glob pattern and ingests, then deletes, every file
	//which has stopped growing
	Watcher struct {
		pattern        string
		processor      FileProcessor
		settleDelay    time.Duration
		sampleInterval time.Duration
		samples        int
		idleInterval   time.Duration
		log            *log.Logger

		// failed holds files which could not be ingested. They are retried
		// only once their size or modification time changes.
		failed map[string]fileSignature

		sleep  func(context.Context, time.Duration) error
		stat   func(string) (os.FileInfo, error)
		remove func(string) error
	}

	fileSignature struct {
		size    int64
		modTime int64
	}
)

//NewWatcher creates a Watcher for the given glob pattern. "**" matches
//any number of directories.
func NewWatcher(pattern string, processor FileProcessor, conf *config.IngestStaticCfg, logger *log.Logger) *Watcher {
	samples := conf.StabilitySamples
	if samples < 1 {
		samples = 1
	}
	return &Watcher{
		pattern:        pattern,
		processor:      processor,
		settleDelay:    conf.SettleDelay,
		sampleInterval: conf.SampleInterval,
		samples:        samples,
		idleInterval:   conf.IdleInterval,
		log:            logger,
		failed:         make(map[string]fileSignature),
		sleep:          sleepContext,
		stat:           os.Stat,
		remove:         os.Remove,
	}
}

//Run polls until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	w.log.WithFields(log.Fields{
		"pattern": w.pattern,
	}).Info("Watching for dns logs")

	for ctx.Err() == nil {
		matches, err := zglob.Glob(w.pattern)
		if err != nil && !os.IsNotExist(err) {
			w.log.WithFields(log.Fields{
				"pattern": w.pattern,
				"error":   err.Error(),
			}).Error("Could not expand watch pattern")
		}

		w.scan(ctx, matches)
		if len(matches) == 0 {
			if err := w.sleep(ctx, w.idleInterval); err != nil {
				break
			}
		}
	}

	w.log.WithFields(log.Fields{
		"pattern": w.pattern,
	}).Info("Stopped watching")
	return nil
}

// scan ingests every stable file in matches and returns how many were
// ingested and deleted
func (w *Watcher) scan(ctx context.Context, matches []string) int {
	sort.Strings(matches)
	ingested := 0

	for _, path := range matches {
		if ctx.Err() != nil {
			return ingested
		}

		sig, growing, err := w.sample(ctx, path)
		if err != nil {
			if ctx.Err() == nil {
				w.log.WithFields(log.Fields{
					"file":  path,
					"error": err.Error(),
				}).Warn("Skipping file")
			}
			continue
		}
		if growing {
			w.log.WithFields(log.Fields{
				"file": path,
			}).Debug("File is still being written")
			continue
		}
		if prev, ok := w.failed[path]; ok && prev == sig {
			continue
		}

		res, err := w.processor.ProcessFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return ingested
			}
			w.failed[path] = sig
			w.log.WithFields(log.Fields{
				"file":  path,
				"error": err.Error(),
			}).Error("Ingest failed, keeping file")
			continue
		}

		if err := w.remove(path); err != nil {
			w.failed[path] = sig
			w.log.WithFields(log.Fields{
				"file":  path,
				"error": err.Error(),
			}).Error("Could not delete ingested file")
			continue
		}
		delete(w.failed, path)
		ingested++

		w.log.WithFields(log.Fields{
			"file":     path,
			"run_id":   res.RunID,
			"total":    res.TotalRecords,
			"skipped":  res.SkippedRecords,
			"inserted": res.Store.Inserted,
			"updated":  res.Store.Updated,
		}).Info("Ingested and deleted file")
	}
	return ingested
}

//IsGrowing samples the size of a file over the configured window. A file
//whose size changes between samples is growing.
func (w *Watcher) IsGrowing(ctx context.Context, path string) (bool, error) {
	_, growing, err := w.sample(ctx, path)
	return growing, err
}

func (w *Watcher) sample(ctx context.Context, path string) (fileSignature, bool, error) {
	info, err := w.stat(path)
	if err != nil {
		return fileSignature{}, false, err
	}
	if info.IsDir() {
		return fileSignature{}, false, &os.PathError{Op: "watch", Path: path, Err: os.ErrInvalid}
	}
	initial := info.Size()

	if err := w.sleep(ctx, w.settleDelay); err != nil {
		return fileSignature{}, false, err
	}

	for i := 0; i < w.samples; i++ {
		if err := w.sleep(ctx, w.sampleInterval); err != nil {
			return fileSignature{}, false, err
		}
		info, err = w.stat(path)
		if err != nil {
			return fileSignature{}, false, err
		}
		if info.Size() != initial {
			return fileSignature{}, true, nil
		}
	}
	return fileSignature{size: info.Size(), modTime: info.ModTime().UnixNano()}, false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
