// Package campaign implements the conditional test orchestrator: it
// walks every registered device through the staged workflow, using
// classification results to decide which increasingly expensive test
// each device earns next.
//
// One controller loop owns all stage transitions. The bench is called
// sequentially; classification is pure and may fan out, but results are
// always applied to the registry from the controller. An abort flag is
// honored between devices and between stages, never mid-acquisition.
package campaign

import (
	"time"

	"memlab/internal/classify"
	"memlab/internal/registry"
)

// Status is the campaign lifecycle state recorded in snapshots.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed" // every device reached a terminal stage
	StatusAborted   Status = "aborted"   // operator abort; devices keep their stages
)

// ScoreEntry is one classification in a device's outcome record.
type ScoreEntry struct {
	Class         classify.Label `json:"class"`
	Score         float64        `json:"score"`
	Confidence    float64        `json:"confidence"`
	ArtifactFlags []string       `json:"artifact_flags,omitempty"`
	TestName      string         `json:"test_name"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Outcome is the per-device record a campaign emits: where the device
// ended up and every score it collected on the way.
type Outcome struct {
	DeviceID         string         `json:"device_id"`
	FinalStage       registry.Stage `json:"final_stage"`
	ScoreHistory     []ScoreEntry   `json:"score_history"`
	SelectedForFinal bool           `json:"selected_for_final"`
}

// Snapshot is the persisted campaign state, written after every device
// transition so an interrupted run can be inspected and resumed.
type Snapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Devices []Outcome `json:"devices"`

	// Halted records devices frozen by an illegal stage transition,
	// keyed by device id with the offending error text.
	Halted map[string]string `json:"halted,omitempty"`

	TotalDevices    int `json:"total_devices"`
	TerminalDevices int `json:"terminal_devices"`
}

// outcomeFromRecord flattens a registry record into its outcome form.
func outcomeFromRecord(d registry.DeviceRecord) Outcome {
	out := Outcome{
		DeviceID:         d.DeviceID,
		FinalStage:       d.Stage,
		SelectedForFinal: d.SelectedForFinal,
		ScoreHistory:     make([]ScoreEntry, 0, len(d.History)),
	}
	for _, e := range d.History {
		out.ScoreHistory = append(out.ScoreHistory, ScoreEntry{
			Class:         e.Result.Label,
			Score:         e.Result.Score,
			Confidence:    e.Result.Confidence,
			ArtifactFlags: e.Result.Flags,
			TestName:      e.TestName,
			Timestamp:     e.Timestamp,
		})
	}
	return out
}
