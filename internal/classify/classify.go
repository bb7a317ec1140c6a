package classify

import (
	"math"

	"memlab/internal/features"
)

// Artifact flag values attached to classification results.
const (
	// FlagPinchSuppressed marks a reported origin pinch ignored because
	// the loop area sits under the minimum-area floor.
	FlagPinchSuppressed = "pinched-loop-artifact-suppressed"
	// FlagBorderlineHysteresis marks a loop in the borderline band that
	// no corroborating feature backed up.
	FlagBorderlineHysteresis = "borderline-hysteresis-uncorroborated"
)

// Ohmic tier names, most to least confident.
const (
	TierStrong       = "strong"
	TierClear        = "clear"
	TierWithArtifact = "with_artifact"
	TierWeak         = "weak"
)

// Classify scores one feature record against all five classes and picks
// the winner. Same record and weights always produce an identical result.
// A malformed record fails with *InvalidFeatureRecordError.
func Classify(rec features.Record, w Weights) (Result, error) {
	if err := validateRecord(rec); err != nil {
		return Result{}, err
	}

	d := derive(rec, w)

	raw := map[Label]float64{
		LabelMemristive:    scoreMemristive(rec, d, w),
		LabelCapacitive:    scoreCapacitive(rec, d, w),
		LabelMemcapacitive: scoreMemcapacitive(rec, d, w),
		LabelConductive:    scoreConductive(rec, d, w),
		LabelOhmic:         d.ohmicScore,
	}

	clamped := make(map[Label]float64, len(raw))
	for l, s := range raw {
		if s < 0 {
			s = 0
		}
		clamped[l] = s
	}

	// strictly-greater keeps the earlier, more conservative label on ties
	winner := classOrder[0]
	for _, l := range classOrder[1:] {
		if clamped[l] > clamped[winner] {
			winner = l
		}
	}

	res := Result{
		Label:      winner,
		Score:      clamped[winner],
		Confidence: clamped[winner] / 100,
		Scores:     clamped,
		Raw:        raw,
		OhmicTier:  d.ohmicTier,
	}
	if d.pinchSuppressed {
		res.Flags = append(res.Flags, FlagPinchSuppressed)
	}
	if d.rawLoop && !d.hysteresis {
		res.Flags = append(res.Flags, FlagBorderlineHysteresis)
	}
	if res.Score < w.WinnerFloor {
		res.Label = LabelUncertain
		res.Score = 0
	}
	return res, nil
}

// derived holds the policy-level reinterpretation of a record: honored
// hysteresis, honored pinch, and the ohmic tier, all shared across the
// per-class scorers.
type derived struct {
	rawLoop         bool
	hysteresis      bool
	pinch           bool
	pinchSuppressed bool
	ohmicScore      float64
	ohmicTier       string
}

func derive(rec features.Record, w Weights) derived {
	var d derived
	p := w.Hysteresis

	d.rawLoop = rec.HysteresisArea >= p.NoiseFloor
	corroborated := rec.SwitchingPresent || rec.OnOffRatio > p.CorroborateMinOnOff
	d.hysteresis = rec.HysteresisArea >= p.RealThreshold || (d.rawLoop && corroborated)

	d.pinch = rec.PinchedAtOrigin && d.rawLoop
	d.pinchSuppressed = rec.PinchedAtOrigin && !d.rawLoop

	artifact := d.pinchSuppressed || (d.rawLoop && !d.hysteresis)
	switch {
	case rec.SwitchingPresent || d.hysteresis:
		// a state change or honored loop rules the linear tiers out
	case rec.IsLinear && rec.LinearFitQuality >= w.Ohmic.StrongR2 && !artifact:
		d.ohmicScore, d.ohmicTier = w.Ohmic.Strong, TierStrong
	case rec.IsLinear && !artifact:
		d.ohmicScore, d.ohmicTier = w.Ohmic.Clear, TierClear
	case rec.IsLinear:
		d.ohmicScore, d.ohmicTier = w.Ohmic.WithArtifact, TierWithArtifact
	case rec.LinearFitQuality >= w.Ohmic.WeakR2:
		d.ohmicScore, d.ohmicTier = w.Ohmic.Weak, TierWeak
	}
	return d
}

func scoreMemristive(rec features.Record, d derived, w Weights) float64 {
	var s float64
	if d.hysteresis {
		s += w.Memristive.Hysteresis
	}
	if d.pinch {
		s += w.Memristive.Pinched
	}
	if rec.SwitchingPresent {
		s += w.Memristive.Switching
	}
	if !rec.IsLinear {
		s += w.Memristive.Nonlinear
	}
	if rec.PolarityDependent {
		s += w.Memristive.Polarity
	}
	if rec.IsLinear {
		s -= w.Memristive.PenaltyLinear
	}
	if ohmicDominant(d.ohmicTier) {
		s -= w.Memristive.PenaltyOhmicDominant
	}
	if d.rawLoop && !rec.SwitchingPresent {
		s -= w.Memristive.PenaltyNoSwitching
	}
	return s
}

// ohmicDominant reports whether the linear explanation is strong enough
// to penalize a memristive reading: any tier from with_artifact up.
func ohmicDominant(tier string) bool {
	return tier == TierStrong || tier == TierClear || tier == TierWithArtifact
}

func scoreCapacitive(rec features.Record, d derived, w Weights) float64 {
	var s float64
	if d.hysteresis && !d.pinch {
		s += w.Capacitive.NonPinchedHysteresis
	}
	if rec.PhaseShiftDeg != nil && *rec.PhaseShiftDeg > w.Capacitive.MinPhaseDeg {
		s += w.Capacitive.PhaseShift
	}
	if rec.EllipticalLoop {
		s += w.Capacitive.Elliptical
	}
	return s
}

func scoreMemcapacitive(rec features.Record, d derived, w Weights) float64 {
	var s float64
	if d.hysteresis && !d.pinch {
		s += w.Memcapacitive.NonPinchedHysteresis
	}
	if rec.SwitchingPresent {
		s += w.Memcapacitive.Switching
	}
	if !rec.IsLinear {
		s += w.Memcapacitive.Nonlinear
	}
	if rec.PhaseShiftDeg != nil && *rec.PhaseShiftDeg > w.Memcapacitive.MinPhaseDeg {
		s += w.Memcapacitive.PhaseShift
	}
	if d.pinch {
		s -= w.Memcapacitive.PenaltyPinched
	}
	return s
}

func scoreConductive(rec features.Record, d derived, w Weights) float64 {
	var s float64
	if !d.hysteresis {
		s += w.Conductive.NoHysteresis
	}
	if !rec.IsLinear && !rec.SwitchingPresent {
		s += w.Conductive.NonlinearNoSwitching
	}
	if rec.AdvancedConductionFit > w.Conductive.MinFitQuality {
		s += w.Conductive.AdvancedFit
	}
	return s
}

func validateRecord(rec features.Record) error {
	checks := []struct {
		field string
		value float64
		min   float64
		max   float64
	}{
		{"hysteresis_area", rec.HysteresisArea, 0, math.Inf(1)},
		{"linear_fit_quality", rec.LinearFitQuality, 0, 1},
		{"on_off_ratio", rec.OnOffRatio, 1, math.Inf(1)},
		{"advanced_conduction_fit_quality", rec.AdvancedConductionFit, 0, 1},
	}
	if !rec.Finite() {
		for _, c := range checks {
			if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
				return &InvalidFeatureRecordError{Field: c.field, Reason: "is not finite"}
			}
		}
		// Finite covers exactly the checked fields plus the phase, so the
		// offender must be the phase.
		return &InvalidFeatureRecordError{Field: "phase_shift_deg", Reason: "is not finite"}
	}
	for _, c := range checks {
		if c.value < c.min || c.value > c.max {
			return &InvalidFeatureRecordError{Field: c.field, Reason: "is out of range"}
		}
	}
	if p := rec.PhaseShiftDeg; p != nil && (*p < 0 || *p > 180) {
		return &InvalidFeatureRecordError{Field: "phase_shift_deg", Reason: "is out of range"}
	}
	return nil
}
