// Package registry tracks per-device workflow state and classification
// history for a campaign. Single-writer discipline: only the orchestrator
// mutates; the selector and reporting read.
package registry

// Stage is a device's position in the conditional test workflow.
type Stage string

const (
	// StagePending means no test has completed yet.
	StagePending Stage = "pending"
	// StageQuickDone means the screening sweep is classified.
	StageQuickDone Stage = "quick_done"
	// StageBasicRunning and StageBasicDone bracket the Basic tier.
	StageBasicRunning Stage = "basic_running"
	StageBasicDone    Stage = "basic_done"
	// StageHighQualityRunning and StageHighQualityDone bracket the
	// High-Quality tier.
	StageHighQualityRunning Stage = "high_quality_running"
	StageHighQualityDone    Stage = "high_quality_done"
	// StageSkipped means the device fell out of the workflow: screening
	// score below threshold, or its quick test timed out.
	StageSkipped Stage = "skipped"
	// StageFinalSelected and StageFinalDone bracket the destructive
	// final test; entered only through the selector.
	StageFinalSelected Stage = "final_selected"
	StageFinalDone     Stage = "final_done"
)

// legalTransitions is the workflow state machine. Anything not listed
// fails with *IllegalStageTransitionError.
var legalTransitions = map[Stage][]Stage{
	StagePending:            {StageQuickDone, StageSkipped},
	StageQuickDone:          {StageBasicRunning, StageSkipped},
	StageBasicRunning:       {StageBasicDone},
	StageBasicDone:          {StageHighQualityRunning, StageFinalSelected},
	StageHighQualityRunning: {StageHighQualityDone},
	StageHighQualityDone:    {StageFinalSelected},
	StageFinalSelected:      {StageFinalDone},
}

// CanTransition reports whether from -> to is a legal workflow step.
func CanTransition(from, to Stage) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the per-device workflow is finished as far as
// the orchestrator is concerned; only the selector moves a device past a
// terminal stage.
func (s Stage) Terminal() bool {
	switch s {
	case StageSkipped, StageBasicDone, StageHighQualityDone,
		StageFinalSelected, StageFinalDone:
		return true
	}
	return false
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StagePending, StageQuickDone, StageBasicRunning, StageBasicDone,
		StageHighQualityRunning, StageHighQualityDone, StageSkipped,
		StageFinalSelected, StageFinalDone:
		return true
	}
	return false
}

func (s Stage) String() string { return string(s) }
