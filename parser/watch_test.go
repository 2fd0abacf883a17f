package parser

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/activecm/rita-pdns/config"
	"github.com/activecm/rita-pdns/resources"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (s *stubProcessor) ProcessFile(ctx context.Context, path string) (FileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, filepath.Base(path))
	if s.fail[filepath.Base(path)] {
		return FileResult{Path: path}, errors.New("chunk rolled back")
	}
	return FileResult{Path: path, RunID: "test"}, nil
}

func testWatchConfig() *config.IngestStaticCfg {
	return &config.IngestStaticCfg{
		SettleDelay:      time.Millisecond,
		SampleInterval:   time.Millisecond,
		StabilitySamples: 3,
		IdleInterval:     time.Millisecond,
	}
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func TestIsGrowing(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "dns.log", "stable")

	w := NewWatcher(filepath.Join(dir, "*.log"), &stubProcessor{}, testWatchConfig(), testLogger())
	w.sleep = noSleep

	growing, err := w.IsGrowing(context.Background(), path)
	require.Nil(t, err)
	assert.False(t, growing)

	// append during the settle delay
	w.sleep = func(ctx context.Context, d time.Duration) error {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		require.Nil(t, err)
		_, err = f.WriteString("more")
		require.Nil(t, err)
		return f.Close()
	}
	growing, err = w.IsGrowing(context.Background(), path)
	require.Nil(t, err)
	assert.True(t, growing)

	_, err = w.IsGrowing(context.Background(), filepath.Join(dir, "gone.log"))
	assert.NotNil(t, err)
}

func TestIsGrowingSampleCount(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "dns.log", "stable")

	conf := testWatchConfig()
	conf.StabilitySamples = 5
	w := NewWatcher(filepath.Join(dir, "*.log"), &stubProcessor{}, conf, testLogger())

	var slept []time.Duration
	w.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	stats := 0
	w.stat = func(name string) (os.FileInfo, error) {
		stats++
		return os.Stat(name)
	}

	growing, err := w.IsGrowing(context.Background(), path)
	require.Nil(t, err)
	assert.False(t, growing)
	assert.Equal(t, 6, stats)
	require.Len(t, slept, 6)
	assert.Equal(t, conf.SettleDelay, slept[0])
	for _, d := range slept[1:] {
		assert.Equal(t, conf.SampleInterval, d)
	}
}

func TestScanDeletesOnlyIngestedFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeLog(t, dir, "dns.good.log", "a")
	bad := writeLog(t, dir, "dns.bad.log", "b")

	proc := &stubProcessor{fail: map[string]bool{"dns.bad.log": true}}
	w := NewWatcher(filepath.Join(dir, "*.log"), proc, testWatchConfig(), testLogger())
	w.sleep = noSleep

	ingested := w.scan(context.Background(), []string{good, bad})
	assert.Equal(t, 1, ingested)
	assert.NoFileExists(t, good)
	assert.FileExists(t, bad)

	// an unchanged failed file is not retried
	ingested = w.scan(context.Background(), []string{bad})
	assert.Equal(t, 0, ingested)
	assert.Equal(t, []string{"dns.bad.log", "dns.good.log"}, proc.calls)

	// a changed failed file is retried
	require.Nil(t, os.WriteFile(bad, []byte("bigger"), 0644))
	proc.fail = nil
	ingested = w.scan(context.Background(), []string{bad})
	assert.Equal(t, 1, ingested)
	assert.NoFileExists(t, bad)
}

func TestScanSkipsVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	proc := &stubProcessor{}
	w := NewWatcher(filepath.Join(dir, "*.log"), proc, testWatchConfig(), testLogger())
	w.sleep = noSleep

	assert.Equal(t, 0, w.scan(context.Background(), []string{filepath.Join(dir, "gone.log")}))
	assert.Empty(t, proc.calls)
}

func TestWatcherRunIngestsRecursively(t *testing.T) {
	res := resources.InitTestResources(t)
	ingester, err := NewIngester(res)
	require.Nil(t, err)

	dir := t.TempDir()
	nested := filepath.Join(dir, "2016-04-01")
	require.Nil(t, os.MkdirAll(nested, 0755))
	path := writeLog(t, nested, "dns.00:00:00-01:00:00.log.gz",
		tsvHeader+"1459468983.0\tC1\texample.com\tA\t1.2.3.4\t300.0\n")

	w := NewWatcher(filepath.Join(dir, "**", "dns*.log.gz"), ingester, &res.Config.S.Ingest, res.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.Nil(t, <-done)

	found, err := res.Store.Find(context.Background(), "1.2.3.4")
	require.Nil(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, uint64(1), found[0].Count)
}

func TestWatcherRunStopsWhenIdle(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "*.log"), &stubProcessor{}, testWatchConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	idle := 0
	w.sleep = func(c context.Context, d time.Duration) error {
		idle++
		if idle == 3 {
			cancel()
		}
		return c.Err()
	}
	assert.Nil(t, w.Run(ctx))
	assert.Equal(t, 3, idle)
}

func TestWatcherRunNoIdleWhileFilesMatch(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "dns.bad.log", "bad")

	conf := testWatchConfig()
	conf.IdleInterval = time.Hour
	proc := &stubProcessor{fail: map[string]bool{"dns.bad.log": true}}
	w := NewWatcher(filepath.Join(dir, "*.log"), proc, conf, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	sleeps, idle := 0, 0
	w.sleep = func(c context.Context, d time.Duration) error {
		sleeps++
		if d == conf.IdleInterval {
			idle++
		}
		if sleeps == 30 {
			cancel()
		}
		return c.Err()
	}
	assert.Nil(t, w.Run(ctx))
	assert.Equal(t, 0, idle)
	assert.Equal(t, []string{"dns.bad.log"}, proc.calls)
}
