package bench

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"memlab/internal/logging"
	"memlab/internal/sweep"
)

// Waveform describes the sinusoidal drive one test applies: Amplitude
// volts peak, Points samples per cycle, Cycles full loops, PeriodS
// seconds per cycle.
type Waveform struct {
	Amplitude float64
	Points    int
	Cycles    int
	PeriodS   float64
}

// DefaultWaveform is the drive used for any test name without an
// explicit override: two 1 V loops at 256 samples each.
func DefaultWaveform() Waveform {
	return Waveform{Amplitude: 1.0, Points: 256, Cycles: 2, PeriodS: 1.0}
}

// SimBench is an in-process Bench over synthetic device models. Traces
// are deterministic for a given model configuration; an optional fixed
// delay stands in for instrument latency so timeout paths can be
// exercised.
type SimBench struct {
	mu        sync.Mutex
	models    map[string]Model
	waveforms map[string]Waveform
	delay     time.Duration
	now       func() time.Time

	// runMu serializes acquisitions; models are stateful and the bench
	// contract is one test at a time.
	runMu sync.Mutex
}

// NewSimBench returns an empty simulated bench.
func NewSimBench() *SimBench {
	return &SimBench{
		models:    make(map[string]Model),
		waveforms: make(map[string]Waveform),
		now:       time.Now,
	}
}

// AddDevice connects a model under the given device id, replacing any
// previous model for that id.
func (b *SimBench) AddDevice(deviceID string, m Model) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.models[deviceID] = m
}

// SetWaveform overrides the drive for one test name.
func (b *SimBench) SetWaveform(testName string, w Waveform) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waveforms[testName] = w
}

// SetDelay makes every RunTest block for d before acquiring, honoring
// context cancellation while blocked.
func (b *SimBench) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// Devices lists connected device ids in stable order.
func (b *SimBench) Devices() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.models))
	for id := range b.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RunTest drives the device's model with the test's waveform and
// returns the acquired trace.
func (b *SimBench) RunTest(ctx context.Context, deviceID, testName string) (sweep.RawSweep, error) {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	b.mu.Lock()
	model, ok := b.models[deviceID]
	wf, hasWF := b.waveforms[testName]
	delay := b.delay
	now := b.now
	b.mu.Unlock()

	if !ok {
		return sweep.RawSweep{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	if !hasWF {
		wf = DefaultWaveform()
	}
	if err := ctx.Err(); err != nil {
		return sweep.RawSweep{}, err
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return sweep.RawSweep{}, ctx.Err()
		}
	}

	logging.Get(logging.CategoryBench).Debug("running %s on %s (%d samples)",
		testName, deviceID, wf.Points*wf.Cycles)

	model.Reset()
	n := wf.Points * wf.Cycles
	dt := wf.PeriodS / float64(wf.Points)
	v := make([]float64, n)
	i := make([]float64, n)
	ts := make([]float64, n)
	for k := 0; k < n; k++ {
		t := float64(k) * dt
		v[k] = wf.Amplitude * math.Sin(2*math.Pi*t/wf.PeriodS)
		i[k] = model.Step(v[k], dt)
		ts[k] = t
	}

	s := sweep.RawSweep{
		ID:         sweep.NewID(),
		Device:     deviceID,
		TestName:   testName,
		Voltage:    v,
		Current:    i,
		Time:       ts,
		AC:         true,
		AcquiredAt: now().UTC(),
	}
	if err := s.Validate(); err != nil {
		return sweep.RawSweep{}, fmt.Errorf("simulated trace invalid: %w", err)
	}
	return s, nil
}
