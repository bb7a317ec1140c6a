// Package classify scores feature records against the five device-class
// models and picks a winner. Classification is a pure function of the
// record and the weights: no I/O, no shared state, safe to call
// concurrently for different devices.
package classify

// Label identifies a device class. The zero value is LabelUncertain.
type Label string

const (
	// LabelUncertain is assigned when no class score reaches the winner
	// floor, and on degraded inputs.
	LabelUncertain Label = "uncertain"
	// LabelMemristive marks resistive switching with a pinched loop.
	LabelMemristive Label = "memristive"
	// LabelCapacitive marks a non-pinched elliptical loop with a large
	// phase shift and no state change.
	LabelCapacitive Label = "capacitive"
	// LabelMemcapacitive marks capacitive response whose magnitude
	// switches between sweep passes.
	LabelMemcapacitive Label = "memcapacitive"
	// LabelConductive marks non-ohmic conduction without memory.
	LabelConductive Label = "conductive"
	// LabelOhmic marks a plain resistor.
	LabelOhmic Label = "ohmic"
)

// classOrder is the ranking priority. On a score tie the earlier label
// wins, favoring the simpler explanation.
var classOrder = []Label{
	LabelOhmic,
	LabelConductive,
	LabelMemristive,
	LabelMemcapacitive,
	LabelCapacitive,
}

// Classes returns the scored labels in tie-break priority order.
func Classes() []Label {
	out := make([]Label, len(classOrder))
	copy(out, classOrder)
	return out
}

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	switch l {
	case LabelUncertain, LabelMemristive, LabelCapacitive,
		LabelMemcapacitive, LabelConductive, LabelOhmic:
		return true
	}
	return false
}

func (l Label) String() string { return string(l) }
