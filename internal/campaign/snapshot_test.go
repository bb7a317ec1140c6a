package campaign

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlab/internal/classify"
	"memlab/internal/config"
	"memlab/internal/registry"
)

func TestLoadSnapshotMissing(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestEmptyCampaignCompletes(t *testing.T) {
	o := newTestOrchestrator(t, newScriptBench(), registry.New(), nil)
	snap, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Zero(t, snap.TotalDevices)
}

func TestLatestSnapshotPicksNewest(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Campaign.DataDir = dataDir

	runAt := func(at time.Time) string {
		o := New(cfg, classify.DefaultWeights(), newScriptBench(), registry.New())
		o.now = func() time.Time { return at }
		_, err := o.Run(context.Background())
		require.NoError(t, err)
		return o.ID()
	}

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	runAt(base)
	newest := runAt(base.Add(2 * time.Hour))
	runAt(base.Add(time.Hour))

	snap, err := LatestSnapshot(dataDir)
	require.NoError(t, err)
	assert.Equal(t, newest, snap.ID)
}

func TestLatestSnapshotSkipsUnreadable(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Campaign.DataDir = dataDir

	o := New(cfg, classify.DefaultWeights(), newScriptBench(), registry.New())
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	dir := filepath.Join(dataDir, "campaigns")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("{"), 0644))

	snap, err := LatestSnapshot(dataDir)
	require.NoError(t, err)
	assert.Equal(t, o.ID(), snap.ID)
}

func TestLatestSnapshotNoCampaigns(t *testing.T) {
	_, err := LatestSnapshot(t.TempDir())
	assert.Error(t, err)
}
