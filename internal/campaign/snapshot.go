package campaign

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"memlab/internal/logging"
)

// buildSnapshot assembles the campaign state from the registry.
func (o *Orchestrator) buildSnapshot() Snapshot {
	devices := o.reg.List()
	snap := Snapshot{
		ID:           o.id,
		Name:         o.name,
		StartedAt:    o.started,
		UpdatedAt:    o.now(),
		Devices:      make([]Outcome, 0, len(devices)),
		TotalDevices: len(devices),
	}
	for _, d := range devices {
		snap.Devices = append(snap.Devices, outcomeFromRecord(d))
		if d.Stage.Terminal() {
			snap.TerminalDevices++
		}
	}
	if len(o.halted) > 0 {
		snap.Halted = o.Halted()
	}

	switch {
	case o.aborted.Load():
		snap.Status = StatusAborted
	case snap.TerminalDevices == snap.TotalDevices:
		snap.Status = StatusCompleted
	default:
		snap.Status = StatusRunning
	}
	return snap
}

// saveSnapshot persists the snapshot after a transition. Persistence
// failures are logged and swallowed; the in-memory registry stays the
// source of truth.
func (o *Orchestrator) saveSnapshot() {
	snap := o.buildSnapshot()

	dir := filepath.Join(o.dataDir, "campaigns")
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryCampaign).Error("failed to create campaigns directory: %v", err)
		return
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		logging.Get(logging.CategoryCampaign).Error("failed to marshal snapshot: %v", err)
		return
	}
	path := filepath.Join(dir, o.id+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		logging.Get(logging.CategoryCampaign).Error("failed to write snapshot: %v", err)
		return
	}
	logging.CampaignDebug("snapshot saved: %s (%d bytes)", path, len(data))
}

// SnapshotPath returns where this run's snapshot is written.
func (o *Orchestrator) SnapshotPath() string {
	return filepath.Join(o.dataDir, "campaigns", o.id+".json")
}

// LoadSnapshot reads one persisted campaign snapshot.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return snap, nil
}

// LatestSnapshot finds the most recently updated snapshot under the
// data directory, for commands that inspect a campaign by directory
// rather than by id.
func LatestSnapshot(dataDir string) (Snapshot, error) {
	dir := filepath.Join(dataDir, "campaigns")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read campaigns directory: %w", err)
	}

	var snaps []Snapshot
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		snap, err := LoadSnapshot(filepath.Join(dir, e.Name()))
		if err != nil {
			logging.Get(logging.CategoryCampaign).Warn("skipping unreadable snapshot %s: %v", e.Name(), err)
			continue
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return Snapshot{}, fmt.Errorf("no snapshots under %s", dir)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].UpdatedAt.After(snaps[j].UpdatedAt) })
	return snaps[0], nil
}
