package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"memlab/internal/classify"
	"memlab/internal/logging"
)

// HistoryEntry is one classification appended to a device's audit log.
// Entries are never mutated after insertion.
type HistoryEntry struct {
	Result    classify.Result `json:"result"`
	TestName  string          `json:"test_name"`
	Timestamp time.Time       `json:"timestamp"`
}

// DeviceRecord is the registry's view of one device.
type DeviceRecord struct {
	DeviceID         string         `json:"device_id"`
	Stage            Stage          `json:"stage"`
	History          []HistoryEntry `json:"classification_history"`
	SelectedForFinal bool           `json:"selected_for_final"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// BestScore returns the highest winner score across the device's full
// history, not just the last result.
func (d DeviceRecord) BestScore() float64 {
	var best float64
	for _, e := range d.History {
		if e.Result.Score > best {
			best = e.Result.Score
		}
	}
	return best
}

// Store persists registry mutations. Implementations append history rows
// and upsert device state; they never rewrite existing history.
type Store interface {
	SaveDevice(DeviceRecord) error
	AppendHistory(deviceID string, e HistoryEntry) error
	LoadAll() ([]DeviceRecord, error)
	Close() error
}

// Registry is the in-memory device map, optionally written through to a
// Store. One mutex guards mutation; readers may be concurrent.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*DeviceRecord
	store   Store
	now     func() time.Time
}

// New returns an empty in-memory registry.
func New() *Registry {
	return &Registry{
		devices: make(map[string]*DeviceRecord),
		now:     time.Now,
	}
}

// Open returns a registry backed by the given store, preloaded with
// whatever state the store already holds, so an interrupted campaign can
// resume.
func Open(store Store) (*Registry, error) {
	r := New()
	r.store = store

	existing, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("registry: load store: %w", err)
	}
	for i := range existing {
		d := existing[i]
		r.devices[d.DeviceID] = &d
	}
	if len(existing) > 0 {
		logging.Registry("restored %d devices from store", len(existing))
	}
	return r, nil
}

// Register adds a device in the pending stage. Registering an existing
// device is a no-op.
func (r *Registry) Register(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("registry: empty device id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; ok {
		return nil
	}
	now := r.now()
	d := &DeviceRecord{
		DeviceID:  deviceID,
		Stage:     StagePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.devices[deviceID] = d
	if r.store != nil {
		if err := r.store.SaveDevice(*d); err != nil {
			return fmt.Errorf("registry: persist device %s: %w", deviceID, err)
		}
	}
	logging.Registry("registered device %s", deviceID)
	return nil
}

// AppendClassification adds a result to the device's history. This is the
// sole mutator for history; the log is append-only.
func (r *Registry) AppendClassification(deviceID string, res classify.Result, testName string) (HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return HistoryEntry{}, fmt.Errorf("registry: %w: %s", ErrUnknownDevice, deviceID)
	}
	e := HistoryEntry{
		Result:    res,
		TestName:  testName,
		Timestamp: r.now(),
	}
	d.History = append(d.History, e)
	d.UpdatedAt = e.Timestamp
	if r.store != nil {
		if err := r.store.AppendHistory(deviceID, e); err != nil {
			return HistoryEntry{}, fmt.Errorf("registry: persist history for %s: %w", deviceID, err)
		}
		if err := r.store.SaveDevice(*d); err != nil {
			return HistoryEntry{}, fmt.Errorf("registry: persist device %s: %w", deviceID, err)
		}
	}
	logging.Registry("device %s: %s scored %s %.1f", deviceID, testName, res.Label, res.Score)
	return e, nil
}

// AdvanceStage moves a device along a legal workflow edge; anything else
// fails with *IllegalStageTransitionError rather than silently
// overwriting. Entering StageFinalSelected marks the device selected.
func (r *Registry) AdvanceStage(deviceID string, to Stage) error {
	if !to.Valid() {
		return fmt.Errorf("registry: invalid stage %q", to)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return fmt.Errorf("registry: %w: %s", ErrUnknownDevice, deviceID)
	}
	if !CanTransition(d.Stage, to) {
		return &IllegalStageTransitionError{DeviceID: deviceID, From: d.Stage, To: to}
	}
	from := d.Stage
	d.Stage = to
	d.UpdatedAt = r.now()
	if to == StageFinalSelected {
		d.SelectedForFinal = true
	}
	if r.store != nil {
		if err := r.store.SaveDevice(*d); err != nil {
			return fmt.Errorf("registry: persist device %s: %w", deviceID, err)
		}
	}
	logging.Registry("device %s: %s -> %s", deviceID, from, to)
	return nil
}

// Get returns a deep copy of the device record, so callers cannot reach
// back into the live history slice.
func (r *Registry) Get(deviceID string) (DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return DeviceRecord{}, false
	}
	return copyRecord(d), true
}

// List returns deep copies of all records, sorted by device ID for
// deterministic iteration.
func (r *Registry) List() []DeviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]DeviceRecord, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, copyRecord(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// BestScore returns the device's best score across its history.
func (r *Registry) BestScore(deviceID string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return 0, false
	}
	return d.BestScore(), true
}

func copyRecord(d *DeviceRecord) DeviceRecord {
	out := *d
	out.History = make([]HistoryEntry, len(d.History))
	copy(out.History, d.History)
	return out
}
