// Package selector ranks a finished campaign population and picks the
// devices that get the final test. The final test is destructive, so
// this package only ever produces a reviewable Plan; running it is a
// separate, explicitly confirmed Execute step.
package selector

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"memlab/internal/classify"
	"memlab/internal/config"
	"memlab/internal/logging"
	"memlab/internal/registry"
)

// ErrFinalTestDisabled is returned when the policy does not enable the
// final test.
var ErrFinalTestDisabled = errors.New("selector: final test disabled by policy")

// CampaignIncompleteError reports a device that has not finished its
// per-device workflow. Selection is population-wide and runs only after
// every device rests.
type CampaignIncompleteError struct {
	DeviceID string
	Stage    registry.Stage
}

func (e *CampaignIncompleteError) Error() string {
	return fmt.Sprintf("selector: device %s is still %s; selection requires every device terminal", e.DeviceID, e.Stage)
}

// Candidate is one ranked device.
type Candidate struct {
	DeviceID  string         `json:"device_id"`
	BestScore float64        `json:"best_score"`
	Stage     registry.Stage `json:"stage"`
	Selected  bool           `json:"selected"`
}

// Plan is the full ranking plus the subset that cleared the policy, in
// rank order. It is what the CLI shows the operator before asking for
// confirmation.
type Plan struct {
	Mode       string      `json:"mode"`
	Threshold  float64     `json:"threshold"`
	TestName   string      `json:"test_name"`
	Candidates []Candidate `json:"candidates"`
	Selected   []string    `json:"selected"`
	CreatedAt  time.Time   `json:"created_at"`
}

// BuildPlan ranks every resting device by its best eligible score,
// descending, ties by device id ascending, then applies the selection
// mode. Skipped devices are never candidates: they were screened out
// before the graduated tiers and a destructive test on them wastes a
// sample. Devices already selected (or done) from an interrupted
// execution rank normally, so re-planning after a crash converges.
func BuildPlan(reg *registry.Registry, pol config.PolicyConfig) (Plan, error) {
	if !pol.FinalTest.Enabled {
		return Plan{}, ErrFinalTestDisabled
	}

	plan := Plan{
		Mode:      pol.FinalTest.SelectionMode,
		Threshold: pol.FinalTest.MinScoreThreshold,
		TestName:  pol.FinalTest.CustomSweepName,
		CreatedAt: time.Now().UTC(),
	}

	for _, d := range reg.List() {
		if !d.Stage.Terminal() {
			return Plan{}, &CampaignIncompleteError{DeviceID: d.DeviceID, Stage: d.Stage}
		}
		if d.Stage == registry.StageSkipped {
			continue
		}
		plan.Candidates = append(plan.Candidates, Candidate{
			DeviceID:  d.DeviceID,
			BestScore: bestEligibleScore(d, pol.IncludeMemcapacitive),
			Stage:     d.Stage,
		})
	}

	sort.Slice(plan.Candidates, func(i, j int) bool {
		a, b := plan.Candidates[i], plan.Candidates[j]
		if a.BestScore != b.BestScore {
			return a.BestScore > b.BestScore
		}
		return a.DeviceID < b.DeviceID
	})

	for idx := range plan.Candidates {
		c := &plan.Candidates[idx]
		if c.BestScore < plan.Threshold {
			continue
		}
		if plan.Mode == config.SelectTopX && len(plan.Selected) >= pol.FinalTest.TopXCount {
			break
		}
		c.Selected = true
		plan.Selected = append(plan.Selected, c.DeviceID)
	}

	logging.Get(logging.CategorySelector).Info("plan: %d candidates, %d selected (%s, threshold %.1f)",
		len(plan.Candidates), len(plan.Selected), plan.Mode, plan.Threshold)
	return plan, nil
}

// bestEligibleScore is the device's best score among results whose
// winner counts toward the memristive workflow. A high ohmic score must
// not route a device into an endurance test meant for switches.
func bestEligibleScore(d registry.DeviceRecord, includeMemcapacitive bool) float64 {
	var best float64
	for _, e := range d.History {
		if !eligible(e.Result.Label, includeMemcapacitive) {
			continue
		}
		if e.Result.Score > best {
			best = e.Result.Score
		}
	}
	return best
}

func eligible(l classify.Label, includeMemcapacitive bool) bool {
	if l == classify.LabelMemristive {
		return true
	}
	return includeMemcapacitive && l == classify.LabelMemcapacitive
}
