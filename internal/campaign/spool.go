package campaign

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"memlab/internal/logging"
	"memlab/internal/registry"
	"memlab/internal/sweep"
)

// Ingest applies one externally acquired sweep as a device's quick-test
// result. Unknown devices are registered first; devices past pending are
// left alone, since their screening already happened. Ingested devices
// stop at quick_done: the graduated tiers need the bench, so a later Run
// picks them up from there.
func (o *Orchestrator) Ingest(s sweep.RawSweep) error {
	if s.Device == "" {
		return fmt.Errorf("campaign: ingested sweep %s has no device id", s.ID)
	}
	if err := o.reg.Register(s.Device); err != nil {
		return err
	}
	d, _ := o.reg.Get(s.Device)
	if d.Stage != registry.StagePending {
		logging.Spool("device %s is %s, ignoring ingested sweep %s", s.Device, d.Stage, s.ID)
		return nil
	}

	testName := s.TestName
	if testName == "" {
		testName = o.policy.QuickTest.CustomSweepName
	}
	res := o.evaluate(s)
	if _, err := o.reg.AppendClassification(s.Device, res, testName); err != nil {
		return err
	}
	if err := o.reg.AdvanceStage(s.Device, registry.StageQuickDone); err != nil {
		return err
	}
	o.saveSnapshot()
	logging.Spool("device %s: ingested %s scored %s %.1f", s.Device, testName, res.Label, res.Score)
	return nil
}

// SpoolHandler consumes one decoded sweep; errors are logged by the
// watcher, not fatal to it.
type SpoolHandler func(sweep.RawSweep) error

// SpoolWatcher ingests sweep files dropped into a directory by external
// acquisition. Files are decoded once their events settle past the
// debounce window; spool files are write-once, so a path is never
// ingested twice.
type SpoolWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	handler     SpoolHandler
	pending     map[string]time.Time
	processed   map[string]bool
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewSpoolWatcher builds a watcher over dir delivering decoded sweeps to
// handler.
func NewSpoolWatcher(dir string, handler SpoolHandler) (*SpoolWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("spool: create watcher: %w", err)
	}
	return &SpoolWatcher{
		watcher:     w,
		dir:         dir,
		handler:     handler,
		pending:     make(map[string]time.Time),
		processed:   make(map[string]bool),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start creates the spool directory if needed, ingests files already
// present, and begins watching. Non-blocking; Stop or ctx cancellation
// ends the loop.
func (w *SpoolWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("spool: create dir %s: %w", w.dir, err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("spool: watch %s: %w", w.dir, err)
	}
	logging.Spool("watching %s", w.dir)

	w.scanExisting()
	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and waits for it to drain.
func (w *SpoolWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategorySpool).Error("error closing watcher: %v", err)
	}
	logging.Spool("stopped")
}

func (w *SpoolWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	settle := time.NewTicker(100 * time.Millisecond)
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategorySpool).Error("watch error: %v", err)
		case <-settle.C:
			w.processSettled()
		}
	}
}

func (w *SpoolWatcher) handleEvent(ev fsnotify.Event) {
	if !sweepFile(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	w.mu.Lock()
	if !w.processed[ev.Name] {
		w.pending[ev.Name] = time.Now()
	}
	w.mu.Unlock()
}

// processSettled ingests files whose last event is older than the
// debounce window, so half-written drops are not decoded.
func (w *SpoolWatcher) processSettled() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.pending, path)
			w.processed[path] = true
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.ingest(path)
	}
}

// scanExisting ingests files already sitting in the spool at startup.
func (w *SpoolWatcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.Get(logging.CategorySpool).Error("failed to scan %s: %v", w.dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if !sweepFile(path) {
			continue
		}
		w.mu.Lock()
		seen := w.processed[path]
		w.processed[path] = true
		w.mu.Unlock()
		if !seen {
			w.ingest(path)
		}
	}
}

func (w *SpoolWatcher) ingest(path string) {
	s, err := sweep.DecodeFile(path)
	if err != nil {
		logging.Get(logging.CategorySpool).Warn("skipping %s: %v", filepath.Base(path), err)
		return
	}
	if err := w.handler(s); err != nil {
		logging.Get(logging.CategorySpool).Error("ingest %s: %v", filepath.Base(path), err)
	}
}

func sweepFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".csv":
		return true
	}
	return false
}
