// Package progress defines the lifecycle events emitted while a conversion
// job moves through the pipeline, and the hub that fans them out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes where in its lifecycle a conversion job currently is.
type Stage string

// Job lifecycle stages, in order of occurrence. Failed may follow any of
// the non-terminal stages.
const (
	StageValidating     Stage = "VALIDATING"
	StageGateWaiting    Stage = "GATE_WAITING"
	StageRunning        Stage = "RUNNING"
	StagePostprocessing Stage = "POSTPROCESSING"
	StageDone           Stage = "DONE"
	StageFailed         Stage = "FAILED"
)

// Event captures a single job lifecycle transition.
type Event struct {
	// JobID identifies the job; the API layer uses the request ID.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage is the lifecycle milestone that was reached.
	Stage Stage
	// Dur is the elapsed time since the job entered the pipeline; only
	// meaningful for terminal stages.
	Dur time.Duration
	// Note carries low-volume context such as failure reasons.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageValidating, StageGateWaiting, StageRunning, StagePostprocessing, StageDone, StageFailed:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
