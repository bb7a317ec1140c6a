package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"memlab/internal/bench"
	"memlab/internal/classify"
	"memlab/internal/config"
	"memlab/internal/features"
	"memlab/internal/logging"
	"memlab/internal/registry"
	"memlab/internal/sweep"
)

// FlagQuickTimeout marks a device whose quick test exceeded the
// configured bound.
const FlagQuickTimeout = "quick-test-timeout"

// Orchestrator drives the per-device workflow over one bench. All
// registry mutation happens on the goroutine that calls Run or Ingest;
// Abort may be called from anywhere.
type Orchestrator struct {
	id           string
	name         string
	policy       config.PolicyConfig
	weights      classify.Weights
	bench        bench.Bench
	reg          *registry.Registry
	extractor    *features.Extractor
	dataDir      string
	quickTimeout time.Duration

	aborted atomic.Bool
	halted  map[string]string
	started time.Time
	now     func() time.Time
}

// New builds an orchestrator over an already-validated configuration.
// The registry should be preloaded (registry.Open) when resuming.
func New(cfg *config.Config, w classify.Weights, b bench.Bench, reg *registry.Registry) *Orchestrator {
	return &Orchestrator{
		id:           uuid.New().String(),
		name:         cfg.Campaign.Name,
		policy:       cfg.Policy,
		weights:      w,
		bench:        b,
		reg:          reg,
		extractor:    features.NewExtractor(features.DefaultConfig()),
		dataDir:      cfg.Campaign.DataDir,
		quickTimeout: cfg.QuickTestTimeout(),
		halted:       make(map[string]string),
		now:          time.Now,
	}
}

// ID returns the campaign run identifier.
func (o *Orchestrator) ID() string { return o.id }

// Abort requests a stop. The current acquisition finishes; no new stage
// transition begins once the flag is observed.
func (o *Orchestrator) Abort() {
	o.aborted.Store(true)
	logging.Campaign("abort requested for campaign %s", o.id)
}

// Aborted reports whether an abort was requested.
func (o *Orchestrator) Aborted() bool { return o.aborted.Load() }

// Run walks every registered device to a terminal stage, or until abort
// or context cancellation. The returned snapshot reflects the final
// state; it is also persisted under <data_dir>/campaigns.
func (o *Orchestrator) Run(ctx context.Context) (Snapshot, error) {
	o.started = o.now()
	logging.Campaign("campaign %s (%s) starting: %d devices", o.id, o.name, o.reg.Len())

	for _, d := range o.reg.List() {
		if o.aborted.Load() || ctx.Err() != nil {
			break
		}
		if _, frozen := o.halted[d.DeviceID]; frozen {
			continue
		}
		if err := o.runDevice(ctx, d.DeviceID); err != nil {
			if ctx.Err() != nil {
				break
			}
			return o.finish(), err
		}
	}

	snap := o.finish()
	logging.Campaign("campaign %s %s: %d/%d devices terminal",
		o.id, snap.Status, snap.TerminalDevices, snap.TotalDevices)
	return snap, nil
}

// runDevice advances one device until it parks in a resting stage, a
// halt, an abort, or cancellation. The basic_done gate is deterministic
// over history, so revisiting it on resume is harmless. Errors other
// than illegal transitions bubble up; illegal transitions freeze the
// device and let the campaign continue.
func (o *Orchestrator) runDevice(ctx context.Context, id string) error {
	for {
		if o.aborted.Load() || ctx.Err() != nil {
			return nil
		}
		d, ok := o.reg.Get(id)
		if !ok {
			return fmt.Errorf("campaign: device %s disappeared from registry", id)
		}

		var err error
		advanced := true
		switch d.Stage {
		case registry.StagePending:
			err = o.runQuick(ctx, id)
		case registry.StageQuickDone:
			err = o.branchAfterQuick(id)
		case registry.StageBasicRunning:
			err = o.runTier(ctx, id, o.policy.Tests.BasicMemristive.CustomSweepName, registry.StageBasicDone)
		case registry.StageBasicDone:
			advanced, err = o.promoteHighQuality(id)
		case registry.StageHighQualityRunning:
			err = o.runTier(ctx, id, o.policy.Tests.HighQuality.CustomSweepName, registry.StageHighQualityDone)
		default:
			// skipped, high_quality_done, final_selected, final_done:
			// nothing left for the orchestrator here.
			return nil
		}

		if err != nil {
			var ist *registry.IllegalStageTransitionError
			if errors.As(err, &ist) {
				o.haltDevice(id, err)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		o.saveSnapshot()
		if !advanced {
			return nil
		}
	}
}

// runQuick executes the screening sweep. A timeout skips the device
// with the quick-test-timeout flag; any other acquisition or analysis
// failure degrades to an uncertain score and lets the thresholds sort
// the device out.
func (o *Orchestrator) runQuick(ctx context.Context, id string) error {
	testName := o.policy.QuickTest.CustomSweepName

	qctx := ctx
	cancel := context.CancelFunc(func() {})
	if o.quickTimeout > 0 {
		qctx, cancel = context.WithTimeout(ctx, o.quickTimeout)
	}
	s, err := o.bench.RunTest(qctx, id, testName)
	cancel()

	if err != nil {
		if qctx.Err() != nil && ctx.Err() == nil {
			logging.Campaign("device %s: quick test timed out after %s", id, o.quickTimeout)
			if _, aerr := o.reg.AppendClassification(id, classify.Uncertain(FlagQuickTimeout), testName); aerr != nil {
				return aerr
			}
			return o.reg.AdvanceStage(id, registry.StageSkipped)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Get(logging.CategoryCampaign).Warn("device %s: quick test failed: %v", id, err)
		if _, aerr := o.reg.AppendClassification(id, classify.Uncertain(), testName); aerr != nil {
			return aerr
		}
		return o.reg.AdvanceStage(id, registry.StageQuickDone)
	}

	res := o.evaluate(s)
	if _, err := o.reg.AppendClassification(id, res, testName); err != nil {
		return err
	}
	return o.reg.AdvanceStage(id, registry.StageQuickDone)
}

// branchAfterQuick applies the screening threshold: eligible devices
// enter the basic tier, everything else is skipped.
func (o *Orchestrator) branchAfterQuick(id string) error {
	last, ok := o.latest(id)
	if !ok {
		return fmt.Errorf("campaign: device %s reached quick_done with no history", id)
	}
	score := last.Result.EligibleScore(o.policy.IncludeMemcapacitive)
	if o.eligibleWinner(last.Result.Label) && score >= o.policy.Thresholds.BasicMemristive {
		logging.Campaign("device %s: quick score %.1f (%s) >= %.1f, running basic test",
			id, score, last.Result.Label, o.policy.Thresholds.BasicMemristive)
		return o.reg.AdvanceStage(id, registry.StageBasicRunning)
	}
	logging.Campaign("device %s: quick score %.1f (%s) below %.1f, skipping",
		id, score, last.Result.Label, o.policy.Thresholds.BasicMemristive)
	return o.reg.AdvanceStage(id, registry.StageSkipped)
}

// runTier executes one non-quick test stage: acquire, classify, append,
// advance. Acquisition and analysis failures degrade to uncertain.
func (o *Orchestrator) runTier(ctx context.Context, id, testName string, done registry.Stage) error {
	s, err := o.bench.RunTest(ctx, id, testName)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Get(logging.CategoryCampaign).Warn("device %s: %s failed: %v", id, testName, err)
		if _, aerr := o.reg.AppendClassification(id, classify.Uncertain(), testName); aerr != nil {
			return aerr
		}
		return o.reg.AdvanceStage(id, done)
	}
	res := o.evaluate(s)
	if _, err := o.reg.AppendClassification(id, res, testName); err != nil {
		return err
	}
	return o.reg.AdvanceStage(id, done)
}

// promoteHighQuality decides the basic_done gate. With re-evaluation
// enabled it reads the latest (basic) score; otherwise the device only
// proceeds if its original quick score already cleared the bar. Returns
// false when the device rests at basic_done.
func (o *Orchestrator) promoteHighQuality(id string) (bool, error) {
	d, ok := o.reg.Get(id)
	if !ok || len(d.History) == 0 {
		return false, fmt.Errorf("campaign: device %s reached basic_done with no history", id)
	}

	gate := d.History[len(d.History)-1].Result
	if !o.policy.ReEvaluate.Enabled {
		gate = d.History[0].Result
	}
	score := gate.EligibleScore(o.policy.IncludeMemcapacitive)
	if o.eligibleWinner(gate.Label) && score >= o.policy.Thresholds.HighQuality {
		logging.Campaign("device %s: gate score %.1f >= %.1f, running high-quality test",
			id, score, o.policy.Thresholds.HighQuality)
		return true, o.reg.AdvanceStage(id, registry.StageHighQualityRunning)
	}
	logging.Campaign("device %s: gate score %.1f below %.1f, resting at basic_done",
		id, score, o.policy.Thresholds.HighQuality)
	return false, nil
}

// evaluate runs extraction and classification, degrading to an
// uncertain result on either typed failure so the campaign never stops
// over one bad sweep.
func (o *Orchestrator) evaluate(s sweep.RawSweep) classify.Result {
	rec, err := o.extractor.Extract(s)
	if err != nil {
		var ide *sweep.InsufficientDataError
		if errors.As(err, &ide) {
			logging.Get(logging.CategoryCampaign).Warn("device %s: %v, classifying as uncertain", s.Device, err)
		} else {
			logging.Get(logging.CategoryCampaign).Warn("device %s: extraction failed: %v", s.Device, err)
		}
		return classify.Uncertain()
	}
	res, err := classify.Classify(rec, o.weights)
	if err != nil {
		logging.Get(logging.CategoryCampaign).Warn("device %s: classification failed: %v", s.Device, err)
		return classify.Uncertain()
	}
	return res
}

// eligibleWinner reports whether a winning label counts toward the
// memristive graduation thresholds.
func (o *Orchestrator) eligibleWinner(l classify.Label) bool {
	if l == classify.LabelMemristive {
		return true
	}
	return o.policy.IncludeMemcapacitive && l == classify.LabelMemcapacitive
}

func (o *Orchestrator) latest(id string) (registry.HistoryEntry, bool) {
	d, ok := o.reg.Get(id)
	if !ok || len(d.History) == 0 {
		return registry.HistoryEntry{}, false
	}
	return d.History[len(d.History)-1], true
}

// haltDevice freezes a device after an illegal transition. The stage
// stays where it was; the error is surfaced in the snapshot and report.
func (o *Orchestrator) haltDevice(id string, err error) {
	logging.Get(logging.CategoryCampaign).Error("device %s halted: %v", id, err)
	o.halted[id] = err.Error()
	o.saveSnapshot()
}

// Halted returns the devices frozen by illegal transitions.
func (o *Orchestrator) Halted() map[string]string {
	out := make(map[string]string, len(o.halted))
	for k, v := range o.halted {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) finish() Snapshot {
	snap := o.buildSnapshot()
	o.saveSnapshot()
	return snap
}
