package classify

import "fmt"

// Weights holds every tunable of the scoring engine: per-class term
// weights, the hysteresis interpretation policy, and the decision floor.
// A Weights value is loaded once at campaign start and treated as
// immutable from then on.
type Weights struct {
	Hysteresis  HysteresisPolicy `yaml:"hysteresis"`
	WinnerFloor float64          `yaml:"winner_floor"`

	Memristive    MemristiveWeights    `yaml:"memristive"`
	Capacitive    CapacitiveWeights    `yaml:"capacitive"`
	Memcapacitive MemcapacitiveWeights `yaml:"memcapacitive"`
	Conductive    ConductiveWeights    `yaml:"conductive"`
	Ohmic         OhmicWeights         `yaml:"ohmic"`
}

// HysteresisPolicy is the three-tier loop-area interpretation. Below
// NoiseFloor a loop is noise; between NoiseFloor and RealThreshold it is
// borderline and needs corroboration (switching, or an ON/OFF ratio above
// CorroborateMinOnOff); at or above RealThreshold it is real. NoiseFloor
// doubles as the minimum-area floor under which a reported pinch is
// suppressed as an artifact.
type HysteresisPolicy struct {
	NoiseFloor          float64 `yaml:"noise_floor"`
	RealThreshold       float64 `yaml:"real_threshold"`
	CorroborateMinOnOff float64 `yaml:"corroborate_min_on_off"`
}

// MemristiveWeights scores the resistive-switching class. Penalty fields
// are applied as negative contributions.
type MemristiveWeights struct {
	Hysteresis float64 `yaml:"hysteresis"`
	Pinched    float64 `yaml:"pinched"`
	Switching  float64 `yaml:"switching"`
	Nonlinear  float64 `yaml:"nonlinear"`
	Polarity   float64 `yaml:"polarity"`
	// PenaltyLinear applies when the trace fits a straight line.
	PenaltyLinear float64 `yaml:"penalty_linear"`
	// PenaltyOhmicDominant applies when the ohmic tier reaches at least
	// the with-artifact grade.
	PenaltyOhmicDominant float64 `yaml:"penalty_ohmic_dominant"`
	// PenaltyNoSwitching applies when a loop is visible (raw area at or
	// above the noise floor) without an observed state change. A true
	// memristive mechanism requires the state change, not just loop
	// shape.
	PenaltyNoSwitching float64 `yaml:"penalty_no_switching"`
}

type CapacitiveWeights struct {
	NonPinchedHysteresis float64 `yaml:"non_pinched_hysteresis"`
	PhaseShift           float64 `yaml:"phase_shift"`
	MinPhaseDeg          float64 `yaml:"min_phase_deg"`
	Elliptical           float64 `yaml:"elliptical"`
}

type MemcapacitiveWeights struct {
	NonPinchedHysteresis float64 `yaml:"non_pinched_hysteresis"`
	Switching            float64 `yaml:"switching"`
	Nonlinear            float64 `yaml:"nonlinear"`
	PhaseShift           float64 `yaml:"phase_shift"`
	MinPhaseDeg          float64 `yaml:"min_phase_deg"`
	PenaltyPinched       float64 `yaml:"penalty_pinched"`
}

type ConductiveWeights struct {
	NoHysteresis         float64 `yaml:"no_hysteresis"`
	NonlinearNoSwitching float64 `yaml:"nonlinear_no_switching"`
	AdvancedFit          float64 `yaml:"advanced_fit"`
	MinFitQuality        float64 `yaml:"min_fit_quality"`
}

// OhmicWeights grades the linear class in four mutually exclusive tiers;
// the highest applicable tier is the score.
type OhmicWeights struct {
	Strong       float64 `yaml:"strong"`
	Clear        float64 `yaml:"clear"`
	WithArtifact float64 `yaml:"with_artifact"`
	Weak         float64 `yaml:"weak"`
	// StrongR2 is the fit quality needed for the strong tier; WeakR2 the
	// one for the weak tier when the linearity flag itself is off.
	StrongR2 float64 `yaml:"strong_r2"`
	WeakR2   float64 `yaml:"weak_r2"`
}

// DefaultWeights returns the built-in scoring table. Loading a weights
// file overlays onto this value, so absent keys keep these defaults.
func DefaultWeights() Weights {
	return Weights{
		Hysteresis: HysteresisPolicy{
			NoiseFloor:          1e-4,
			RealThreshold:       1e-3,
			CorroborateMinOnOff: 1.5,
		},
		WinnerFloor: 30,
		Memristive: MemristiveWeights{
			Hysteresis:           25,
			Pinched:              30,
			Switching:            25,
			Nonlinear:            10,
			Polarity:             10,
			PenaltyLinear:        20,
			PenaltyOhmicDominant: 30,
			PenaltyNoSwitching:   40,
		},
		Capacitive: CapacitiveWeights{
			NonPinchedHysteresis: 40,
			PhaseShift:           40,
			MinPhaseDeg:          45,
			Elliptical:           20,
		},
		Memcapacitive: MemcapacitiveWeights{
			NonPinchedHysteresis: 40,
			Switching:            30,
			Nonlinear:            20,
			PhaseShift:           20,
			MinPhaseDeg:          30,
			PenaltyPinched:       20,
		},
		Conductive: ConductiveWeights{
			NoHysteresis:         30,
			NonlinearNoSwitching: 40,
			AdvancedFit:          30,
			MinFitQuality:        0.9,
		},
		Ohmic: OhmicWeights{
			Strong:       80,
			Clear:        70,
			WithArtifact: 60,
			Weak:         40,
			StrongR2:     0.995,
			WeakR2:       0.90,
		},
	}
}

// Validate rejects weight tables that would make the decision rule
// meaningless, naming the offending field.
func (w Weights) Validate() error {
	if w.Hysteresis.NoiseFloor <= 0 {
		return fmt.Errorf("weights: hysteresis.noise_floor must be > 0, got %g", w.Hysteresis.NoiseFloor)
	}
	if w.Hysteresis.RealThreshold <= w.Hysteresis.NoiseFloor {
		return fmt.Errorf("weights: hysteresis.real_threshold must exceed noise_floor %g, got %g",
			w.Hysteresis.NoiseFloor, w.Hysteresis.RealThreshold)
	}
	if w.Hysteresis.CorroborateMinOnOff < 1 {
		return fmt.Errorf("weights: hysteresis.corroborate_min_on_off must be >= 1, got %g", w.Hysteresis.CorroborateMinOnOff)
	}
	if w.WinnerFloor < 0 {
		return fmt.Errorf("weights: winner_floor must be >= 0, got %g", w.WinnerFloor)
	}
	if w.Capacitive.MinPhaseDeg < 0 || w.Capacitive.MinPhaseDeg > 180 {
		return fmt.Errorf("weights: capacitive.min_phase_deg must be in [0,180], got %g", w.Capacitive.MinPhaseDeg)
	}
	if w.Memcapacitive.MinPhaseDeg < 0 || w.Memcapacitive.MinPhaseDeg > 180 {
		return fmt.Errorf("weights: memcapacitive.min_phase_deg must be in [0,180], got %g", w.Memcapacitive.MinPhaseDeg)
	}
	if w.Conductive.MinFitQuality <= 0 || w.Conductive.MinFitQuality > 1 {
		return fmt.Errorf("weights: conductive.min_fit_quality must be in (0,1], got %g", w.Conductive.MinFitQuality)
	}
	if w.Ohmic.StrongR2 <= 0 || w.Ohmic.StrongR2 > 1 {
		return fmt.Errorf("weights: ohmic.strong_r2 must be in (0,1], got %g", w.Ohmic.StrongR2)
	}
	if w.Ohmic.WeakR2 <= 0 || w.Ohmic.WeakR2 > 1 {
		return fmt.Errorf("weights: ohmic.weak_r2 must be in (0,1], got %g", w.Ohmic.WeakR2)
	}
	return nil
}
