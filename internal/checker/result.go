package checker

import (
	"encoding/json"
	"time"

	"github.com/hazz-dev/shipcheck/internal/fault"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusError Status = "ERROR"
)

// FaultKind returns the error class a non-passing status belongs to, or ""
// for PASS.
func (s Status) FaultKind() fault.Kind {
	switch s {
	case StatusFail:
		return fault.CheckFail
	case StatusError:
		return fault.CheckError
	default:
		return ""
	}
}

// Details carries check-specific structured evidence. Values must be JSON
// serializable.
type Details map[string]any

// CheckResult is the outcome of one checker invocation. Checkers return it by
// value and nothing modifies it afterwards.
type CheckResult struct {
	Name      string
	Status    Status
	Summary   string
	Timestamp time.Time
	Duration  time.Duration
	Details   Details
}

// DurationMs returns the duration in fractional milliseconds.
func (r CheckResult) DurationMs() float64 {
	return float64(r.Duration.Microseconds()) / 1000
}

// Record is the persisted form of a CheckResult. RunID is set when the
// result is written as part of a run.
type Record struct {
	RunID      string  `json:"run_id,omitempty"`
	Name       string  `json:"check_name"`
	Status     Status  `json:"status"`
	Summary    string  `json:"summary"`
	Timestamp  string  `json:"timestamp"`
	DurationMs float64 `json:"duration_ms"`
	Details    Details `json:"details"`
}

// Record returns the persisted form of r for runID.
func (r CheckResult) Record(runID string) Record {
	return Record{
		RunID:      runID,
		Name:       r.Name,
		Status:     r.Status,
		Summary:    r.Summary,
		Timestamp:  r.Timestamp.Format(time.RFC3339Nano),
		DurationMs: r.DurationMs(),
		Details:    r.Details,
	}
}

func (r CheckResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Record(""))
}
