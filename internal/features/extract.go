package features

import (
	"fmt"
	"math"
	"sort"

	"memlab/internal/sweep"
)

// MinFitPoints is the fewest positive-branch samples a conduction-model
// fit is attempted on.
const MinFitPoints = 4

// Config holds the extraction thresholds. All values are fixed for the
// lifetime of an Extractor so extraction stays deterministic.
type Config struct {
	// NoiseAreaFloor and RealAreaThreshold bound the borderline band of
	// the hysteresis interpretation. They mirror the classifier's bounds.
	NoiseAreaFloor    float64
	RealAreaThreshold float64
	// CorroborateOnOff is the ON/OFF ratio that lets a borderline loop
	// count as present.
	CorroborateOnOff float64
	// PinchVoltageFrac/PinchCurrentFrac define "near the origin": samples
	// with |V| within the voltage fraction of Vmax whose |I| stays within
	// the current fraction of Imax.
	PinchVoltageFrac float64
	PinchCurrentFrac float64
	// EllipticalCurrentFrac is the origin-current fraction above which a
	// loop reads as elliptical rather than pinched.
	EllipticalCurrentFrac float64
	// SwitchRetention is the conductance ratio between read-window visits
	// that counts as a retained state change.
	SwitchRetention float64
	// LinearR2Threshold is the IsLinear cut.
	LinearR2Threshold float64
	// ReadVoltageFrac places the read voltage for the ON/OFF ratio;
	// ReadToleranceFrac is the matching window, both as fractions of Vmax.
	ReadVoltageFrac   float64
	ReadToleranceFrac float64
	// PolarityAsymmetry is the branch current ratio that marks a
	// polarity-dependent response.
	PolarityAsymmetry float64
}

// DefaultConfig returns the extraction thresholds used across a campaign.
func DefaultConfig() Config {
	return Config{
		NoiseAreaFloor:        1e-4,
		RealAreaThreshold:     1e-3,
		CorroborateOnOff:      1.5,
		PinchVoltageFrac:      0.05,
		PinchCurrentFrac:      0.10,
		EllipticalCurrentFrac: 0.30,
		SwitchRetention:       2.0,
		LinearR2Threshold:     0.98,
		ReadVoltageFrac:       0.5,
		ReadToleranceFrac:     0.15,
		PolarityAsymmetry:     1.5,
	}
}

// Extractor converts raw sweeps into feature records.
type Extractor struct {
	cfg Config
}

// NewExtractor builds an extractor; zero-valued config fields fall back to
// defaults so a partially filled Config stays usable.
func NewExtractor(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.NoiseAreaFloor <= 0 {
		cfg.NoiseAreaFloor = def.NoiseAreaFloor
	}
	if cfg.RealAreaThreshold <= 0 {
		cfg.RealAreaThreshold = def.RealAreaThreshold
	}
	if cfg.CorroborateOnOff <= 0 {
		cfg.CorroborateOnOff = def.CorroborateOnOff
	}
	if cfg.PinchVoltageFrac <= 0 {
		cfg.PinchVoltageFrac = def.PinchVoltageFrac
	}
	if cfg.PinchCurrentFrac <= 0 {
		cfg.PinchCurrentFrac = def.PinchCurrentFrac
	}
	if cfg.EllipticalCurrentFrac <= 0 {
		cfg.EllipticalCurrentFrac = def.EllipticalCurrentFrac
	}
	if cfg.SwitchRetention <= 0 {
		cfg.SwitchRetention = def.SwitchRetention
	}
	if cfg.LinearR2Threshold <= 0 {
		cfg.LinearR2Threshold = def.LinearR2Threshold
	}
	if cfg.ReadVoltageFrac <= 0 {
		cfg.ReadVoltageFrac = def.ReadVoltageFrac
	}
	if cfg.ReadToleranceFrac <= 0 {
		cfg.ReadToleranceFrac = def.ReadToleranceFrac
	}
	if cfg.PolarityAsymmetry <= 0 {
		cfg.PolarityAsymmetry = def.PolarityAsymmetry
	}
	return &Extractor{cfg: cfg}
}

// Extract computes the feature record for one sweep. It returns
// *sweep.InsufficientDataError (wrapped) when the trace is too short.
func (e *Extractor) Extract(s sweep.RawSweep) (Record, error) {
	if err := s.Validate(); err != nil {
		return Record{}, fmt.Errorf("extract %s: %w", s.ID, err)
	}

	v, i := s.Voltage, s.Current
	vmax := maxAbs(v)
	imax := maxAbs(i)

	var rec Record
	rec.HysteresisArea = normalizedLoopArea(v, i)
	rec.SwitchingPresent = e.detectSwitching(v, i, vmax)

	_, _, r2 := linearFit(v, i)
	rec.LinearFitQuality = r2
	rec.IsLinear = r2 >= e.cfg.LinearR2Threshold

	rec.OnOffRatio = e.onOffRatio(v, i, vmax, imax)
	rec.PolarityDependent = e.polarityDependent(v, i)
	rec.AdvancedConductionFit = conductionFit(v, i)

	pinched, elliptical := e.originShape(v, i, vmax, imax)
	rec.PinchedAtOrigin = pinched
	rec.EllipticalLoop = elliptical && rec.HysteresisArea >= e.cfg.NoiseAreaFloor

	corroborated := rec.SwitchingPresent || rec.OnOffRatio > e.cfg.CorroborateOnOff
	rec.HysteresisPresent = rec.HysteresisArea >= e.cfg.RealAreaThreshold ||
		(rec.HysteresisArea >= e.cfg.NoiseAreaFloor && corroborated)

	if s.AC && len(s.Time) > 0 {
		deg := phaseShiftDeg(v, i)
		rec.PhaseShiftDeg = &deg
	}
	return rec, nil
}

// normalizedLoopArea sums the enclosed area of the I–V trajectory and
// normalizes by the bounding box so traces with different current scales
// compare. The trajectory is split at V=0 and each half integrated
// separately; a pinched figure-eight has lobes of opposite orientation
// whose signed areas would otherwise cancel.
func normalizedLoopArea(v, i []float64) float64 {
	var posV, posI, negV, negI []float64
	for k := range v {
		if v[k] >= 0 {
			posV = append(posV, v[k])
			posI = append(posI, i[k])
		} else {
			negV = append(negV, v[k])
			negI = append(negI, i[k])
		}
	}
	area := math.Abs(shoelace(posV, posI)) + math.Abs(shoelace(negV, negI))

	box := span(v) * span(i)
	if box == 0 {
		return 0
	}
	return area / box
}

// shoelace returns the signed area of the closed polygon through the
// given vertices in order.
func shoelace(x, y []float64) float64 {
	n := len(x)
	if n < 3 {
		return 0
	}
	var area float64
	for k := 0; k < n; k++ {
		next := (k + 1) % n
		area += x[k]*y[next] - x[next]*y[k]
	}
	return area / 2
}

// originShape inspects the samples near zero bias. A pinched loop keeps
// its current small through the origin on both sweep directions; an
// elliptical loop carries substantial current there.
func (e *Extractor) originShape(v, i []float64, vmax, imax float64) (pinched, elliptical bool) {
	if vmax == 0 || imax == 0 {
		return false, false
	}
	vWin := e.cfg.PinchVoltageFrac * vmax
	iCeil := e.cfg.PinchCurrentFrac * imax
	iFat := e.cfg.EllipticalCurrentFrac * imax

	dirs := sweepDirections(v)
	seenDirs := map[int]bool{}
	nearOrigin := 0
	maxNearI := 0.0
	for k := range v {
		if math.Abs(v[k]) > vWin {
			continue
		}
		nearOrigin++
		seenDirs[dirs[k]] = true
		if a := math.Abs(i[k]); a > maxNearI {
			maxNearI = a
		}
	}
	if nearOrigin == 0 {
		return false, false
	}
	crossesBothWays := seenDirs[1] && seenDirs[-1]
	pinched = crossesBothWays && maxNearI <= iCeil
	elliptical = maxNearI >= iFat
	return pinched, elliptical
}

// sweepDirections labels each sample with the sign of the local voltage
// slope (+1 rising, -1 falling, carrying the previous label through flat
// segments).
func sweepDirections(v []float64) []int {
	dirs := make([]int, len(v))
	last := 1
	for k := 1; k < len(v); k++ {
		switch {
		case v[k] > v[k-1]:
			last = 1
		case v[k] < v[k-1]:
			last = -1
		}
		dirs[k] = last
	}
	if len(v) > 1 {
		dirs[0] = dirs[1]
	}
	return dirs
}

// detectSwitching measures state retention at the positive read voltage.
// The trace visits the read window on the way up and on the way back;
// each visit's median conductance is one state estimate. A retained state
// change shows up as a conductance ratio between visits at or above
// SwitchRetention, while smooth reactive current and mere polarity
// asymmetry give every visit the same magnitude.
func (e *Extractor) detectSwitching(v, i []float64, vmax float64) bool {
	if vmax == 0 {
		return false
	}
	read := e.cfg.ReadVoltageFrac * vmax
	tol := e.cfg.ReadToleranceFrac * vmax

	var visits []float64
	var current []float64
	prev := -2 // forces a new visit on the first match
	for k := range v {
		if v[k] <= 0 || math.Abs(v[k]-read) > tol {
			continue
		}
		if k != prev+1 && len(current) > 0 {
			visits = append(visits, median(current))
			current = current[:0]
		}
		current = append(current, math.Abs(i[k]/v[k]))
		prev = k
	}
	if len(current) > 0 {
		visits = append(visits, median(current))
	}
	if len(visits) < 2 {
		return false
	}
	lo, hi := visits[0], visits[0]
	for _, g := range visits[1:] {
		if g < lo {
			lo = g
		}
		if g > hi {
			hi = g
		}
	}
	if lo <= 0 {
		return hi > 0
	}
	return hi/lo >= e.cfg.SwitchRetention
}

// onOffRatio compares conductance magnitudes at the positive read voltage
// across the whole trace, so neither the window width nor polarity
// asymmetry leaks into the ratio. Devices without distinct states come
// out at 1.
func (e *Extractor) onOffRatio(v, i []float64, vmax, imax float64) float64 {
	if vmax == 0 || imax == 0 {
		return 1
	}
	read := e.cfg.ReadVoltageFrac * vmax
	tol := e.cfg.ReadToleranceFrac * vmax
	floor := imax / vmax * 1e-9

	var lo, hi float64
	lo = math.Inf(1)
	matched := false
	for k := range v {
		if v[k] <= 0 || math.Abs(v[k]-read) > tol {
			continue
		}
		matched = true
		g := math.Abs(i[k] / v[k])
		if g < floor {
			g = floor
		}
		if g < lo {
			lo = g
		}
		if g > hi {
			hi = g
		}
	}
	if !matched || lo == 0 {
		return 1
	}
	ratio := hi / lo
	if ratio < 1 {
		ratio = 1
	}
	return ratio
}

// polarityDependent compares peak current magnitude between bias
// polarities. A unipolar sweep cannot establish polarity dependence.
func (e *Extractor) polarityDependent(v, i []float64) bool {
	var posPeak, negPeak float64
	hasPos, hasNeg := false, false
	for k := range v {
		a := math.Abs(i[k])
		switch {
		case v[k] > 0:
			hasPos = true
			if a > posPeak {
				posPeak = a
			}
		case v[k] < 0:
			hasNeg = true
			if a > negPeak {
				negPeak = a
			}
		}
	}
	if !hasPos || !hasNeg {
		return false
	}
	lo, hi := posPeak, negPeak
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == 0 {
		return hi > 0
	}
	return hi/lo >= e.cfg.PolarityAsymmetry
}

func maxAbs(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

func span(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return hi - lo
}

func median(xs []float64) float64 {
	tmp := make([]float64, len(xs))
	copy(tmp, xs)
	sort.Float64s(tmp)
	n := len(tmp)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return tmp[n/2]
	}
	return (tmp[n/2-1] + tmp[n/2]) / 2
}
