package selector

import (
	"context"
	"fmt"

	"memlab/internal/bench"
	"memlab/internal/classify"
	"memlab/internal/features"
	"memlab/internal/logging"
	"memlab/internal/registry"
	"memlab/internal/sweep"
)

// Executor runs the confirmed final test over a plan's selected devices,
// sequentially, on the shared bench.
type Executor struct {
	bench     bench.Bench
	reg       *registry.Registry
	extractor *features.Extractor
	weights   classify.Weights
}

// NewExecutor builds an executor over the campaign's bench and registry.
func NewExecutor(b bench.Bench, reg *registry.Registry, w classify.Weights) *Executor {
	return &Executor{
		bench:     b,
		reg:       reg,
		extractor: features.NewExtractor(features.DefaultConfig()),
		weights:   w,
	}
}

// Execute runs the final test on every selected device in plan order.
// Callers gate this behind explicit operator confirmation; nothing in
// this package calls it implicitly. Devices already final_done are
// skipped, so re-running an interrupted execution completes the
// remainder. Acquisition failures degrade to an uncertain result; the
// device still reaches final_done because the destructive test has
// already been spent on it.
func (e *Executor) Execute(ctx context.Context, plan Plan) error {
	log := logging.Get(logging.CategorySelector)
	log.Info("executing final test %q on %d devices", plan.TestName, len(plan.Selected))

	for _, id := range plan.Selected {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, ok := e.reg.Get(id)
		if !ok {
			return fmt.Errorf("selector: planned device %s missing from registry", id)
		}

		switch d.Stage {
		case registry.StageFinalDone:
			log.Info("device %s already final_done, skipping", id)
			continue
		case registry.StageFinalSelected:
			// resuming: marked in a previous execution
		default:
			if err := e.reg.AdvanceStage(id, registry.StageFinalSelected); err != nil {
				return err
			}
		}

		s, err := e.bench.RunTest(ctx, id, plan.TestName)
		res := classify.Uncertain()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("device %s: final test failed: %v", id, err)
		} else {
			res = e.evaluate(s)
		}

		if _, err := e.reg.AppendClassification(id, res, plan.TestName); err != nil {
			return err
		}
		if err := e.reg.AdvanceStage(id, registry.StageFinalDone); err != nil {
			return err
		}
		log.Info("device %s: final test scored %s %.1f", id, res.Label, res.Score)
	}
	return nil
}

func (e *Executor) evaluate(s sweep.RawSweep) classify.Result {
	rec, err := e.extractor.Extract(s)
	if err != nil {
		logging.Get(logging.CategorySelector).Warn("device %s: extraction failed: %v", s.Device, err)
		return classify.Uncertain()
	}
	res, err := classify.Classify(rec, e.weights)
	if err != nil {
		logging.Get(logging.CategorySelector).Warn("device %s: classification failed: %v", s.Device, err)
		return classify.Uncertain()
	}
	return res
}
