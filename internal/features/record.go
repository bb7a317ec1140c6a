// Package features turns a raw I–V sweep into the fixed feature record the
// classifier consumes: loop area, pinch, switching, linearity, ON/OFF
// ratio, phase shift, and conduction-model fit quality. Extraction is
// deterministic; identical input arrays always produce an identical record.
package features

import (
	"math"
)

// Record is the extracted feature set for one sweep. It is immutable once
// produced; downstream code re-derives anything it does not trust.
type Record struct {
	// HysteresisArea is the loop area normalized by the curve's bounding
	// box, dimensionless and >= 0.
	HysteresisArea float64 `json:"hysteresis_area"`
	// HysteresisPresent is the extractor's reading of the area against the
	// noise floor. The classifier re-derives presence with its own
	// three-tier rule; this field serves reporting.
	HysteresisPresent bool `json:"hysteresis_present"`
	// PinchedAtOrigin marks forward and reverse branches crossing near
	// (0V, 0A). Only meaningful when the loop area clears the noise floor.
	PinchedAtOrigin bool `json:"pinched_at_origin"`
	// SwitchingPresent marks an abrupt, retained conductance change.
	SwitchingPresent bool `json:"switching_present"`
	// LinearFitQuality is the R² of a straight-line I–V fit, in [0,1].
	LinearFitQuality float64 `json:"linear_fit_quality"`
	IsLinear         bool    `json:"is_linear"`
	// OnOffRatio is high-state over low-state current magnitude at the
	// read voltage, >= 1.
	OnOffRatio float64 `json:"on_off_ratio"`
	// PhaseShiftDeg is the V-to-I phase difference for AC sweeps; nil for
	// DC sweeps.
	PhaseShiftDeg *float64 `json:"phase_shift_deg,omitempty"`
	// AdvancedConductionFit is the best R²-derived quality among the
	// non-ohmic conduction models, in [0,1].
	AdvancedConductionFit float64 `json:"advanced_conduction_fit_quality"`
	// PolarityDependent marks asymmetric response between bias polarities.
	PolarityDependent bool `json:"polarity_dependent"`
	// EllipticalLoop marks a loop shape consistent with a phase-shifted
	// (capacitive) response rather than a pinched one.
	EllipticalLoop bool `json:"elliptical_loop"`
}

// Finite reports whether every numeric field holds a finite value. The
// classifier rejects records that fail this.
func (r *Record) Finite() bool {
	vals := []float64{r.HysteresisArea, r.LinearFitQuality, r.OnOffRatio, r.AdvancedConductionFit}
	if r.PhaseShiftDeg != nil {
		vals = append(vals, *r.PhaseShiftDeg)
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
