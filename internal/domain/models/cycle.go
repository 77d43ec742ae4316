package models

import "time"

// CycleState is the scheduler state machine position.
type CycleState string

const (
	CycleIdle      CycleState = "idle"
	CycleRunning   CycleState = "running"
	CycleCompleted CycleState = "completed"
	CycleAborted   CycleState = "aborted"
)

// UnitKind distinguishes the two kinds of work in a cycle.
type UnitKind string

const (
	UnitSignal   UnitKind = "signal"
	UnitPosition UnitKind = "position"
)

// UnitFailure records why a unit failed or was skipped.
type UnitFailure struct {
	Unit    string      `json:"unit"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Skipped bool        `json:"skipped,omitempty"`
}

// CycleReport summarizes one scheduler cycle. Attempted = Succeeded + Failed.
// Skipped counts the failed position units that produced no snapshot.
type CycleReport struct {
	CycleID    string        `json:"cycle_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	State      CycleState    `json:"state"`
	Attempted  int           `json:"attempted"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Candidates int           `json:"candidates"`
	Failures   []UnitFailure `json:"failures,omitempty"`
}

// SchedulerStatus is returned by the operational status query.
type SchedulerStatus struct {
	State      CycleState   `json:"state"`
	Periodic   bool         `json:"periodic"`
	Interval   string       `json:"interval"`
	NextRunAt  *time.Time   `json:"next_run_at,omitempty"`
	LastReport *CycleReport `json:"last_report,omitempty"`
}
