package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Selection modes for the final test.
const (
	SelectTopX          = "top_x"
	SelectAllAboveScore = "all_above_score"
)

// PolicyConfig drives the conditional workflow: which sweeps to run, when
// a device graduates to the next test tier, and how the final destructive
// test is gated.
type PolicyConfig struct {
	QuickTest            QuickTestPolicy  `yaml:"quick_test"`
	Thresholds           ThresholdsPolicy `yaml:"thresholds"`
	ReEvaluate           ReEvaluatePolicy `yaml:"re_evaluate_during_test"`
	IncludeMemcapacitive bool             `yaml:"include_memcapacitive"`
	Tests                TestsPolicy      `yaml:"tests"`
	FinalTest            FinalTestPolicy  `yaml:"final_test"`
}

// QuickTestPolicy configures the cheap screening sweep every device gets.
type QuickTestPolicy struct {
	CustomSweepName string  `yaml:"custom_sweep_name"`
	TimeoutS        float64 `yaml:"timeout_s"`
}

// ThresholdsPolicy holds the stage-graduation scores.
type ThresholdsPolicy struct {
	BasicMemristive float64 `yaml:"basic_memristive"`
	HighQuality     float64 `yaml:"high_quality"`
}

// ReEvaluatePolicy controls whether the high-quality gate reads the
// latest (Basic) score or falls back to the original quick-test score.
type ReEvaluatePolicy struct {
	Enabled bool `yaml:"enabled"`
}

// TestsPolicy names the sweeps for the graduated tiers.
type TestsPolicy struct {
	BasicMemristive TestSpec `yaml:"basic_memristive"`
	HighQuality     TestSpec `yaml:"high_quality"`
}

// TestSpec names one configured sweep.
type TestSpec struct {
	CustomSweepName string `yaml:"custom_sweep_name"`
}

// FinalTestPolicy gates the destructive final test. The selector only
// produces the candidate list; execution always needs explicit
// confirmation.
type FinalTestPolicy struct {
	Enabled           bool    `yaml:"enabled"`
	SelectionMode     string  `yaml:"selection_mode"` // top_x, all_above_score
	TopXCount         int     `yaml:"top_x_count"`
	MinScoreThreshold float64 `yaml:"min_score_threshold"`
	CustomSweepName   string  `yaml:"custom_sweep_name"`
}

// DefaultPolicy returns the documented policy defaults.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		QuickTest: QuickTestPolicy{
			CustomSweepName: "iv-quick",
			TimeoutS:        30,
		},
		Thresholds: ThresholdsPolicy{
			BasicMemristive: 60.0,
			HighQuality:     80.0,
		},
		ReEvaluate: ReEvaluatePolicy{Enabled: true},
		Tests: TestsPolicy{
			BasicMemristive: TestSpec{CustomSweepName: "iv-basic"},
			HighQuality:     TestSpec{CustomSweepName: "iv-high-quality"},
		},
		FinalTest: FinalTestPolicy{
			SelectionMode:     SelectTopX,
			TopXCount:         3,
			MinScoreThreshold: 80.0,
			CustomSweepName:   "endurance-final",
		},
	}
}

// LoadPolicy reads a standalone policy file overlaid onto the defaults,
// for campaigns driven by a policy document rather than a full config.
func LoadPolicy(path string) (PolicyConfig, error) {
	p := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate rejects policies that cannot drive the workflow, naming the
// offending field.
func (p *PolicyConfig) Validate() error {
	if p.QuickTest.TimeoutS < 0 {
		return fmt.Errorf("policy: quick_test.timeout_s must be >= 0, got %g", p.QuickTest.TimeoutS)
	}
	if p.Thresholds.BasicMemristive < 0 {
		return fmt.Errorf("policy: thresholds.basic_memristive must be >= 0, got %g", p.Thresholds.BasicMemristive)
	}
	if p.Thresholds.HighQuality < p.Thresholds.BasicMemristive {
		return fmt.Errorf("policy: thresholds.high_quality (%g) must be >= thresholds.basic_memristive (%g)",
			p.Thresholds.HighQuality, p.Thresholds.BasicMemristive)
	}
	switch p.FinalTest.SelectionMode {
	case SelectTopX, SelectAllAboveScore:
	default:
		return fmt.Errorf("policy: final_test.selection_mode must be %q or %q, got %q",
			SelectTopX, SelectAllAboveScore, p.FinalTest.SelectionMode)
	}
	if p.FinalTest.SelectionMode == SelectTopX && p.FinalTest.TopXCount < 1 {
		return fmt.Errorf("policy: final_test.top_x_count must be >= 1 in top_x mode, got %d", p.FinalTest.TopXCount)
	}
	if p.FinalTest.MinScoreThreshold < 0 {
		return fmt.Errorf("policy: final_test.min_score_threshold must be >= 0, got %g", p.FinalTest.MinScoreThreshold)
	}
	return nil
}
