package classify

// Result is the outcome of scoring one feature record. It carries both
// the clamped per-class scores used for ranking and the raw signed totals
// for diagnostics; a negative total never wins but is worth seeing when
// tuning weights.
type Result struct {
	Label      Label   `json:"label"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`

	Scores map[Label]float64 `json:"scores"`
	Raw    map[Label]float64 `json:"raw_scores"`

	// OhmicTier names the graduated linear tier that applied, if any:
	// strong, clear, with_artifact or weak.
	OhmicTier string `json:"ohmic_tier,omitempty"`

	Flags []string `json:"artifact_flags,omitempty"`
}

// Uncertain builds the degraded result used when a sweep or record cannot
// be scored at all. The flag names the reason.
func Uncertain(flags ...string) Result {
	return Result{
		Label:  LabelUncertain,
		Scores: emptyScores(),
		Raw:    emptyScores(),
		Flags:  flags,
	}
}

func emptyScores() map[Label]float64 {
	m := make(map[Label]float64, len(classOrder))
	for _, l := range classOrder {
		m[l] = 0
	}
	return m
}

// EligibleScore is the score the workflow branching reads: the best of
// the memristive score and, when enabled, the memcapacitive score.
func (r Result) EligibleScore(includeMemcapacitive bool) float64 {
	s := r.Scores[LabelMemristive]
	if includeMemcapacitive {
		if m := r.Scores[LabelMemcapacitive]; m > s {
			s = m
		}
	}
	return s
}

// HasFlag reports whether the result carries the named artifact flag.
func (r Result) HasFlag(name string) bool {
	for _, f := range r.Flags {
		if f == name {
			return true
		}
	}
	return false
}
