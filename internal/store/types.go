package store

import "time"

// RunEvent is one row of the append-only run history log.
type RunEvent struct {
	RunID     string
	StepID    string
	Type      string
	Detail    map[string]any
	Timestamp time.Time
	Sequence  int64
}

// RunSummary is the per-run view derived from the event log.
type RunSummary struct {
	RunID       string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	StepEvents  int
}

// StepState is the per-step view reconstructed by replaying a run's events.
type StepState struct {
	StepID      string
	Status      string
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMs  int64
	Error       string
}

// Step status values used by replay.
const (
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
	StepStatusSkipped   = "skipped"
)
