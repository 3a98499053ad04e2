package executor

import (
	"time"

	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/planner"
)

// Status is the final state of one step.
type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusUpdated       Status = "UPDATED"
	StatusSkipped       Status = "SKIPPED"
	StatusConflict      Status = "CONFLICT"
	StatusFailed        Status = "FAILED"
	StatusFailedBlocked Status = "FAILED-BLOCKED"
)

// Statuses lists every status in report order.
var Statuses = []Status{StatusCreated, StatusUpdated, StatusSkipped, StatusConflict, StatusFailed, StatusFailedBlocked}

// IsFailure reports whether the status blocks dependents.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusFailedBlocked
}

// ReasonCancelled is the reason of steps that never started because the
// run was cancelled.
const ReasonCancelled = "cancelled before start"

// Outcome is the result of one plan step.
type Outcome struct {
	Index  int            `json:"index"`
	Key    model.Key      `json:"key"`
	Ref    model.Ref      `json:"ref"`
	Action planner.Action `json:"action"`
	Status Status         `json:"status"`

	DestinationID string `json:"destination_id,omitempty"`
	// Placeholder is true when DestinationID was invented by a dry run.
	Placeholder bool   `json:"placeholder,omitempty"`
	Reason      string `json:"reason,omitempty"`
	// Attempts counts write calls, retries included.
	Attempts int `json:"attempts,omitempty"`
}

// Report is the ExecutionReport of one run. Outcomes are in plan order.
type Report struct {
	RunID      string    `json:"run_id"`
	DryRun     bool      `json:"dry_run"`
	Cancelled  bool      `json:"cancelled"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Summary is a count of outcomes per status.
type Summary map[Status]int

// Summary counts outcomes per status.
func (r *Report) Summary() Summary {
	s := Summary{}
	for _, o := range r.Outcomes {
		s[o.Status]++
	}
	return s
}

// Failed reports whether any step FAILED or was FAILED-BLOCKED.
func (r *Report) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status.IsFailure() {
			return true
		}
	}
	return false
}

// Clean reports whether every step succeeded or was skipped.
func (r *Report) Clean() bool {
	for _, o := range r.Outcomes {
		if o.Status.IsFailure() || o.Status == StatusConflict {
			return false
		}
	}
	return true
}

// Outcome returns the outcome for a source key.
func (r *Report) Outcome(key model.Key) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Key == key {
			return o, true
		}
	}
	return Outcome{}, false
}
