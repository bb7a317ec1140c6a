package classify

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memlab/internal/features"
)

func deg(d float64) *float64 { return &d }

func memristorRecord() features.Record {
	return features.Record{
		HysteresisArea:    0.13,
		HysteresisPresent: true,
		PinchedAtOrigin:   true,
		SwitchingPresent:  true,
		LinearFitQuality:  0.62,
		OnOffRatio:        10,
	}
}

func TestClassifyMemristor(t *testing.T) {
	res, err := Classify(memristorRecord(), DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, LabelMemristive, res.Label)
	// 25 hysteresis + 30 pinch + 25 switching + 10 nonlinear
	assert.Equal(t, 90.0, res.Score)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Empty(t, res.Flags)
}

func TestClassifyCapacitor(t *testing.T) {
	rec := features.Record{
		HysteresisArea:    0.78,
		HysteresisPresent: true,
		EllipticalLoop:    true,
		PhaseShiftDeg:     deg(88),
		OnOffRatio:        2.3,
		LinearFitQuality:  0.05,
	}
	res, err := Classify(rec, DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, LabelCapacitive, res.Label)
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, 1.0, res.Confidence)
	// no switching: memcapacitive stays behind
	assert.Equal(t, 80.0, res.Scores[LabelMemcapacitive])
}

func TestClassifyMemcapacitor(t *testing.T) {
	rec := features.Record{
		HysteresisArea:    0.4,
		HysteresisPresent: true,
		EllipticalLoop:    true,
		SwitchingPresent:  true,
		PhaseShiftDeg:     deg(55),
		OnOffRatio:        4,
		LinearFitQuality:  0.1,
	}
	res, err := Classify(rec, DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, LabelMemcapacitive, res.Label)
	// 40 + 30 switching + 20 nonlinear + 20 phase
	assert.Equal(t, 110.0, res.Score)
	assert.Equal(t, 1.1, res.Confidence)
}

func TestClassifyStrongOhmic(t *testing.T) {
	rec := features.Record{
		IsLinear:         true,
		LinearFitQuality: 0.9993,
		OnOffRatio:       1,
	}
	res, err := Classify(rec, DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, LabelOhmic, res.Label)
	assert.Equal(t, 80.0, res.Score)
	assert.Equal(t, TierStrong, res.OhmicTier)
	// linear + ohmic-dominant penalties drive memristive negative
	assert.Negative(t, res.Raw[LabelMemristive])
	assert.Zero(t, res.Scores[LabelMemristive])
}

func TestClassifyOhmicWithSuppressedArtifact(t *testing.T) {
	// a genuinely ohmic device whose noisy trace closed a small loop:
	// borderline area, no corroboration
	rec := features.Record{
		HysteresisArea:   1.2e-4,
		IsLinear:         true,
		LinearFitQuality: 0.985,
		OnOffRatio:       1.1,
	}
	res, err := Classify(rec, DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, LabelOhmic, res.Label)
	assert.Equal(t, 60.0, res.Score)
	assert.Equal(t, TierWithArtifact, res.OhmicTier)
	assert.True(t, res.HasFlag(FlagBorderlineHysteresis))
	// -40 no-switching, -20 linear, -30 ohmic-dominant
	assert.Equal(t, -90.0, res.Raw[LabelMemristive])
	assert.Zero(t, res.Scores[LabelMemristive])
}

func TestClassifyConductive(t *testing.T) {
	rec := features.Record{
		LinearFitQuality:      0.55,
		AdvancedConductionFit: 0.96,
		OnOffRatio:            1,
	}
	res, err := Classify(rec, DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, LabelConductive, res.Label)
	// 30 no-hysteresis + 40 nonlinear-no-switching + 30 advanced fit
	assert.Equal(t, 100.0, res.Score)
}

func TestHysteresisAreaTiers(t *testing.T) {
	tests := []struct {
		name           string
		area           float64
		switching      bool
		onOff          float64
		wantMemristive float64
		wantBorderline bool
	}{
		{
			// under the noise floor the loop is ignored outright:
			// switching alone scores, no pinch, no hysteresis term
			name: "noise", area: 9.9e-5, switching: true, onOff: 3,
			wantMemristive: 25 + 10, wantBorderline: false,
		},
		{
			// borderline without corroboration: not honored, and the
			// visible loop without switching draws the -40 penalty
			name: "borderline uncorroborated", area: 1.1e-4, switching: false, onOff: 1.0,
			wantMemristive: -40 + 10, wantBorderline: true,
		},
		{
			// borderline with an ON/OFF ratio above 1.5: honored
			name: "borderline corroborated", area: 1.1e-4, switching: false, onOff: 2.0,
			wantMemristive: 25 - 40 + 10, wantBorderline: false,
		},
		{
			// clearly real: honored even without corroboration
			name: "real", area: 2e-3, switching: false, onOff: 1.0,
			wantMemristive: 25 - 40 + 10, wantBorderline: false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := features.Record{
				HysteresisArea:   tc.area,
				SwitchingPresent: tc.switching,
				OnOffRatio:       tc.onOff,
				LinearFitQuality: 0.3,
			}
			res, err := Classify(rec, DefaultWeights())
			require.NoError(t, err)
			assert.Equal(t, tc.wantMemristive, res.Raw[LabelMemristive])
			assert.Equal(t, tc.wantBorderline, res.HasFlag(FlagBorderlineHysteresis))
		})
	}
}

func TestPinchSuppressedUnderAreaFloor(t *testing.T) {
	rec := features.Record{
		HysteresisArea:   9.9e-5,
		PinchedAtOrigin:  true,
		SwitchingPresent: true,
		OnOffRatio:       3,
		LinearFitQuality: 0.4,
	}
	res, err := Classify(rec, DefaultWeights())
	require.NoError(t, err)

	assert.True(t, res.HasFlag(FlagPinchSuppressed))
	// the +30 pinch term must not fire: 25 switching + 10 nonlinear only
	assert.Equal(t, 35.0, res.Raw[LabelMemristive])
}

func TestClassifyDeterministic(t *testing.T) {
	recs := []features.Record{
		memristorRecord(),
		{HysteresisArea: 1.1e-4, PinchedAtOrigin: true, OnOffRatio: 1, LinearFitQuality: 0.97},
		{IsLinear: true, LinearFitQuality: 0.999, OnOffRatio: 1, PhaseShiftDeg: deg(12)},
	}
	w := DefaultWeights()
	for _, rec := range recs {
		a, err := Classify(rec, w)
		require.NoError(t, err)
		b, err := Classify(rec, w)
		require.NoError(t, err)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("classification not deterministic (-first +second):\n%s", diff)
		}
	}
}

func TestConfidenceTracksMaxScore(t *testing.T) {
	res, err := Classify(memristorRecord(), DefaultWeights())
	require.NoError(t, err)
	require.NotEqual(t, LabelUncertain, res.Label)
	assert.Equal(t, res.Scores[LabelMemristive]/100, res.Confidence)
}

func TestUncertainBelowFloor(t *testing.T) {
	// a contradictory trace: honored pinched loop over a linear fit with
	// no state change; every class explanation loses a term
	rec := features.Record{
		HysteresisArea:   2e-3,
		PinchedAtOrigin:  true,
		IsLinear:         true,
		LinearFitQuality: 0.985,
		OnOffRatio:       1,
	}
	res, err := Classify(rec, DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, LabelUncertain, res.Label)
	assert.Zero(t, res.Score)
	for l, s := range res.Scores {
		assert.Lessf(t, s, 30.0, "score for %s", l)
	}
}

func TestWinnerAtExactFloor(t *testing.T) {
	// a flat featureless trace scores conductive 30 exactly; the floor is
	// inclusive
	rec := features.Record{LinearFitQuality: 0.5, OnOffRatio: 1, IsLinear: false}
	res, err := Classify(rec, DefaultWeights())
	require.NoError(t, err)

	assert.Equal(t, 70.0, res.Scores[LabelConductive])
	assert.Equal(t, LabelConductive, res.Label)

	w := DefaultWeights()
	w.Conductive.NonlinearNoSwitching = 0
	res, err = Classify(rec, w)
	require.NoError(t, err)
	assert.Equal(t, 30.0, res.Scores[LabelConductive])
	assert.Equal(t, LabelConductive, res.Label)

	w.WinnerFloor = 30.5
	res, err = Classify(rec, w)
	require.NoError(t, err)
	assert.Equal(t, LabelUncertain, res.Label)
}

func TestTieBreakPrefersConservativeClass(t *testing.T) {
	rec := features.Record{
		IsLinear:         true,
		LinearFitQuality: 0.985,
		OnOffRatio:       1,
	}
	w := DefaultWeights()
	w.Conductive.NoHysteresis = 70 // force a 70/70 tie with the clear tier
	res, err := Classify(rec, w)
	require.NoError(t, err)

	require.Equal(t, res.Scores[LabelOhmic], res.Scores[LabelConductive])
	assert.Equal(t, LabelOhmic, res.Label)
}

func TestClassifyInvalidRecord(t *testing.T) {
	tests := []struct {
		name  string
		rec   features.Record
		field string
	}{
		{"nan area", features.Record{HysteresisArea: math.NaN()}, "hysteresis_area"},
		{"negative ratio", features.Record{OnOffRatio: -2}, "on_off_ratio"},
		{"ratio below one", features.Record{OnOffRatio: 0.5}, "on_off_ratio"},
		{"fit above one", features.Record{LinearFitQuality: 1.2}, "linear_fit_quality"},
		{"phase out of range", features.Record{OnOffRatio: 1, PhaseShiftDeg: deg(200)}, "phase_shift_deg"},
		{"infinite conduction fit", features.Record{OnOffRatio: 1, AdvancedConductionFit: math.Inf(1)}, "advanced_conduction_fit_quality"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Classify(tc.rec, DefaultWeights())
			require.Error(t, err)
			var ifr *InvalidFeatureRecordError
			require.True(t, errors.As(err, &ifr))
			assert.Equal(t, tc.field, ifr.Field)
		})
	}
}

func TestEligibleScore(t *testing.T) {
	res := Result{Scores: map[Label]float64{
		LabelMemristive:    55,
		LabelMemcapacitive: 70,
	}}
	assert.Equal(t, 55.0, res.EligibleScore(false))
	assert.Equal(t, 70.0, res.EligibleScore(true))
}

func TestUncertainResult(t *testing.T) {
	res := Uncertain("quick-test-timeout")
	assert.Equal(t, LabelUncertain, res.Label)
	assert.Zero(t, res.Score)
	assert.Zero(t, res.Confidence)
	assert.True(t, res.HasFlag("quick-test-timeout"))
	assert.Zero(t, res.Scores[LabelMemristive])
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Weights)
		wantErr string
	}{
		{"defaults pass", func(w *Weights) {}, ""},
		{"noise floor", func(w *Weights) { w.Hysteresis.NoiseFloor = 0 }, "noise_floor"},
		{"band inverted", func(w *Weights) { w.Hysteresis.RealThreshold = 5e-5 }, "real_threshold"},
		{"on/off floor", func(w *Weights) { w.Hysteresis.CorroborateMinOnOff = 0.5 }, "corroborate_min_on_off"},
		{"winner floor", func(w *Weights) { w.WinnerFloor = -1 }, "winner_floor"},
		{"phase degrees", func(w *Weights) { w.Capacitive.MinPhaseDeg = 270 }, "min_phase_deg"},
		{"fit quality", func(w *Weights) { w.Conductive.MinFitQuality = 0 }, "min_fit_quality"},
		{"strong r2", func(w *Weights) { w.Ohmic.StrongR2 = 1.5 }, "strong_r2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := DefaultWeights()
			tc.mutate(&w)
			err := w.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
