package campaign

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlab/internal/bench"
	"memlab/internal/classify"
	"memlab/internal/registry"
	"memlab/internal/sweep"
)

func TestIngestQuickResult(t *testing.T) {
	reg := registry.New()
	o := newTestOrchestrator(t, newScriptBench(), reg, nil)

	s := modelTrace(t, bench.NewMemristor())
	s.Device = "W1"
	s.TestName = "iv-offline"
	require.NoError(t, o.Ingest(s))

	d, ok := reg.Get("W1")
	require.True(t, ok, "unknown devices are registered on ingest")
	assert.Equal(t, registry.StageQuickDone, d.Stage)
	require.Len(t, d.History, 1)
	assert.Equal(t, "iv-offline", d.History[0].TestName)
	assert.Equal(t, classify.LabelMemristive, d.History[0].Result.Label)
}

func TestIngestRejectsAnonymousSweep(t *testing.T) {
	o := newTestOrchestrator(t, newScriptBench(), registry.New(), nil)
	s := modelTrace(t, bench.NewMemristor())
	s.Device = ""
	assert.Error(t, o.Ingest(s))
}

func TestIngestIgnoresNonPendingDevice(t *testing.T) {
	reg := registry.New()
	o := newTestOrchestrator(t, newScriptBench(), reg, nil)

	s := modelTrace(t, bench.NewMemristor())
	s.Device = "W1"
	require.NoError(t, o.Ingest(s))
	require.NoError(t, o.Ingest(s), "a repeat drop is ignored, not an error")

	d, _ := reg.Get("W1")
	assert.Len(t, d.History, 1, "screening already happened; the second sweep must not append")
	assert.Equal(t, registry.StageQuickDone, d.Stage)
}

func TestIngestTestNameFallback(t *testing.T) {
	reg := registry.New()
	o := newTestOrchestrator(t, newScriptBench(), reg, nil)

	s := modelTrace(t, bench.NewMemristor())
	s.Device = "W2"
	s.TestName = ""
	require.NoError(t, o.Ingest(s))

	d, _ := reg.Get("W2")
	require.Len(t, d.History, 1)
	assert.Equal(t, "iv-quick", d.History[0].TestName)
}

func writeSweepJSON(t *testing.T, dir, name string, s sweep.RawSweep) {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
}

func TestSpoolWatcherIngestsExistingAndDropped(t *testing.T) {
	reg := registry.New()
	o := newTestOrchestrator(t, newScriptBench(), reg, nil)
	dir := t.TempDir()

	// already sitting in the spool before the watcher starts
	pre := modelTrace(t, bench.NewMemristor())
	pre.Device = "P1"
	writeSweepJSON(t, dir, "p1.json", pre)

	w, err := NewSpoolWatcher(dir, o.Ingest)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// dropped while watching, plus noise the watcher must survive
	post := modelTrace(t, bench.NewMemristor())
	post.Device = "P2"
	writeSweepJSON(t, dir, "p2.json", post)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644))

	require.Eventually(t, func() bool {
		p1, ok1 := reg.Get("P1")
		p2, ok2 := reg.Get("P2")
		return ok1 && ok2 &&
			p1.Stage == registry.StageQuickDone &&
			p2.Stage == registry.StageQuickDone
	}, 3*time.Second, 50*time.Millisecond)

	assert.Equal(t, 2, reg.Len(), "malformed and non-sweep files must not create devices")
}

func TestSpoolWatcherParsesCSVStem(t *testing.T) {
	var (
		mu  sync.Mutex
		got []sweep.RawSweep
	)
	dir := t.TempDir()
	w, err := NewSpoolWatcher(dir, func(s sweep.RawSweep) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	csv := "voltage,current\n-1.0,-1e-4\n-0.5,-5e-5\n0,0\n0.5,5e-5\n1.0,1e-4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "C1__iv-quick.csv"), []byte(csv), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 3*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "C1", got[0].Device)
	assert.Equal(t, "iv-quick", got[0].TestName)
	assert.Len(t, got[0].Voltage, 5)
}

func TestSpoolWatcherStartIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewSpoolWatcher(dir, func(sweep.RawSweep) error { return nil })
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx), "second start is a no-op")
	w.Stop()
	w.Stop() // second stop is a no-op too
}
