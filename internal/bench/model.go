package bench

import (
	"math"
	"math/rand"
)

// Model is a synthetic two-terminal device. Step applies one voltage
// sample and returns the device current; dt is the time since the
// previous sample. Models keep internal state between steps, so Reset
// must return them to the pristine state before a new acquisition.
type Model interface {
	Step(v, dt float64) float64
	Reset()
}

// Memristor is a bipolar resistive switch: conductance snaps from GOff
// to GOn when the applied voltage crosses VSet and back when it crosses
// VReset. The pristine state is OFF.
type Memristor struct {
	GOff   float64
	GOn    float64
	VSet   float64
	VReset float64

	on bool
}

// NewMemristor returns a switch with an off/on conductance contrast of
// 10x and thresholds at ±0.75 V.
func NewMemristor() *Memristor {
	return &Memristor{GOff: 1e-5, GOn: 1e-4, VSet: 0.75, VReset: -0.75}
}

func (m *Memristor) Step(v, dt float64) float64 {
	if v >= m.VSet {
		m.on = true
	} else if v <= m.VReset {
		m.on = false
	}
	g := m.GOff
	if m.on {
		g = m.GOn
	}
	return g * v
}

func (m *Memristor) Reset() { m.on = false }

// Capacitor conducts the displacement current C·dV/dt, discretized
// against the previous sample.
type Capacitor struct {
	C float64

	vPrev float64
}

// NewCapacitor returns a 10 µF linear capacitor.
func NewCapacitor() *Capacitor {
	return &Capacitor{C: 1e-5}
}

func (c *Capacitor) Step(v, dt float64) float64 {
	if dt <= 0 {
		c.vPrev = v
		return 0
	}
	i := c.C * (v - c.vPrev) / dt
	c.vPrev = v
	return i
}

func (c *Capacitor) Reset() { c.vPrev = 0 }

// Memcapacitor is a capacitor whose capacitance switches between COff
// and COn at the same voltage thresholds a memristor uses. The current
// is still purely displacement, so the loop does not pinch at the
// origin even though the device switches.
type Memcapacitor struct {
	COff   float64
	COn    float64
	VSet   float64
	VReset float64

	on    bool
	vPrev float64
}

// NewMemcapacitor returns a 1/10 µF switchable capacitor with
// thresholds at ±0.75 V.
func NewMemcapacitor() *Memcapacitor {
	return &Memcapacitor{COff: 1e-6, COn: 1e-5, VSet: 0.75, VReset: -0.75}
}

func (m *Memcapacitor) Step(v, dt float64) float64 {
	if v >= m.VSet {
		m.on = true
	} else if v <= m.VReset {
		m.on = false
	}
	c := m.COff
	if m.on {
		c = m.COn
	}
	if dt <= 0 {
		m.vPrev = v
		return 0
	}
	i := c * (v - m.vPrev) / dt
	m.vPrev = v
	return i
}

func (m *Memcapacitor) Reset() {
	m.on = false
	m.vPrev = 0
}

// Resistor is a linear conductor with optional multiplicative
// measurement noise. A nil rng means a noiseless trace.
type Resistor struct {
	R         float64
	NoiseFrac float64

	rng *rand.Rand
}

// NewResistor returns a noiseless resistor of the given resistance.
func NewResistor(r float64) *Resistor {
	return &Resistor{R: r}
}

// NewNoisyResistor adds zero-mean gaussian noise of the given fraction
// of the instantaneous current, drawn from rng.
func NewNoisyResistor(r, noiseFrac float64, rng *rand.Rand) *Resistor {
	return &Resistor{R: r, NoiseFrac: noiseFrac, rng: rng}
}

func (r *Resistor) Step(v, dt float64) float64 {
	i := v / r.R
	if r.rng != nil && r.NoiseFrac > 0 {
		i *= 1 + r.NoiseFrac*r.rng.NormFloat64()
	}
	return i
}

func (r *Resistor) Reset() {}

// QuadraticConductor follows I = K·V·|V|, the trap-free square law.
// It is nonlinear but history-free: forward and reverse branches
// retrace, so it shows no hysteresis and no switching.
type QuadraticConductor struct {
	K float64
}

// NewQuadraticConductor returns a conductor passing 0.1 mA at 1 V.
func NewQuadraticConductor() *QuadraticConductor {
	return &QuadraticConductor{K: 1e-4}
}

func (q *QuadraticConductor) Step(v, dt float64) float64 {
	return q.K * v * math.Abs(v)
}

func (q *QuadraticConductor) Reset() {}
