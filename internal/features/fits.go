package features

import "math"

// linearFit computes a least-squares line y = a·x + b and its R².
// A constant y (zero variance) fits perfectly iff residuals vanish.
func linearFit(x, y []float64) (slope, intercept, r2 float64) {
	n := float64(len(x))
	if n < 2 {
		return 0, 0, 0
	}
	var sx, sy, sxx, sxy float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxx += x[i] * x[i]
		sxy += x[i] * y[i]
	}
	det := n*sxx - sx*sx
	if det == 0 {
		return 0, sy / n, 0
	}
	slope = (n*sxy - sx*sy) / det
	intercept = (sy - slope*sx) / n

	meanY := sy / n
	var ssRes, ssTot float64
	for i := range x {
		d := y[i] - (slope*x[i] + intercept)
		ssRes += d * d
		t := y[i] - meanY
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return slope, intercept, 1
		}
		return slope, intercept, 0
	}
	r2 = 1 - ssRes/ssTot
	if r2 < 0 {
		r2 = 0
	}
	return slope, intercept, r2
}

// conductionFit scores how well the positive-bias branch matches the
// classic non-ohmic conduction models and returns the best quality:
//
//	SCLC            ln I vs ln V, slope ≈ 2
//	Schottky        ln I vs √V
//	Poole–Frenkel   ln(I/V) vs √V
//
// Each quality is the fit R², and the SCLC one is additionally discounted
// by the slope's distance from 2 so an ohmic line (slope 1) cannot pass
// as space-charge-limited.
func conductionFit(voltage, current []float64) float64 {
	var lnV, lnI, sqrtV, lnIoverV, schottkyLnI []float64
	for i := range voltage {
		v, c := voltage[i], current[i]
		if v <= 0 || c <= 0 {
			continue
		}
		lnV = append(lnV, math.Log(v))
		lnI = append(lnI, math.Log(c))
		sqrtV = append(sqrtV, math.Sqrt(v))
		schottkyLnI = append(schottkyLnI, math.Log(c))
		lnIoverV = append(lnIoverV, math.Log(c/v))
	}
	if len(lnV) < MinFitPoints {
		return 0
	}

	best := 0.0

	slope, _, r2 := linearFit(lnV, lnI)
	sclc := r2 * math.Max(0, 1-math.Abs(slope-2)/2)
	if sclc > best {
		best = sclc
	}

	_, _, r2 = linearFit(sqrtV, schottkyLnI)
	if r2 > best {
		best = r2
	}

	_, _, r2 = linearFit(sqrtV, lnIoverV)
	if r2 > best {
		best = r2
	}

	if best > 1 {
		best = 1
	}
	return best
}

// phaseShiftDeg estimates the phase angle between two mean-removed
// periodic signals via their normalized inner product. The result is the
// unsigned angle in [0, 180].
func phaseShiftDeg(v, i []float64) float64 {
	n := len(v)
	if n == 0 || n != len(i) {
		return 0
	}
	var mv, mi float64
	for k := 0; k < n; k++ {
		mv += v[k]
		mi += i[k]
	}
	mv /= float64(n)
	mi /= float64(n)

	var dot, nv, ni float64
	for k := 0; k < n; k++ {
		a := v[k] - mv
		b := i[k] - mi
		dot += a * b
		nv += a * a
		ni += b * b
	}
	if nv == 0 || ni == 0 {
		return 0
	}
	cos := dot / math.Sqrt(nv*ni)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}
