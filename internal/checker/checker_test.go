package checker_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hazz-dev/shipcheck/internal/checker"
	"github.com/hazz-dev/shipcheck/internal/config"
	"github.com/hazz-dev/shipcheck/internal/fault"
)

func TestAll_FixedOrder(t *testing.T) {
	checkers := checker.All(config.Default())
	want := []string{checker.NameFileStructure, checker.NameDatabaseSchema, checker.NameAPIEndpoints}
	if len(checkers) != len(want) {
		t.Fatalf("expected %d checkers, got %d", len(want), len(checkers))
	}
	for i, c := range checkers {
		if c.Name() != want[i] {
			t.Errorf("checker %d: expected %q, got %q", i, want[i], c.Name())
		}
	}
}

func TestStatusConstants(t *testing.T) {
	if checker.StatusPass != "PASS" || checker.StatusFail != "FAIL" || checker.StatusError != "ERROR" {
		t.Errorf("unexpected status values %q %q %q", checker.StatusPass, checker.StatusFail, checker.StatusError)
	}
}

func TestStatus_FaultKind(t *testing.T) {
	tests := []struct {
		status checker.Status
		want   fault.Kind
	}{
		{checker.StatusPass, ""},
		{checker.StatusFail, fault.CheckFail},
		{checker.StatusError, fault.CheckError},
	}
	for _, tt := range tests {
		if got := tt.status.FaultKind(); got != tt.want {
			t.Errorf("%s: expected kind %q, got %q", tt.status, tt.want, got)
		}
	}
}

func TestCheckResult_JSON(t *testing.T) {
	ts := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)
	r := checker.CheckResult{
		Name:      checker.NameAPIEndpoints,
		Status:    checker.StatusFail,
		Summary:   "1 endpoints failed",
		Timestamp: ts,
		Duration:  1500 * time.Microsecond,
		Details:   checker.Details{"failed_count": 1},
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["check_name"] != "api_endpoints" || got["status"] != "FAIL" {
		t.Errorf("unexpected identity fields: %v", got)
	}
	if got["timestamp"] != "2026-10-19T08:30:00Z" {
		t.Errorf("expected RFC 3339 timestamp, got %v", got["timestamp"])
	}
	if got["duration_ms"] != 1.5 {
		t.Errorf("expected duration_ms 1.5, got %v", got["duration_ms"])
	}
	if _, ok := got["run_id"]; ok {
		t.Errorf("run_id must be omitted outside a run: %v", got)
	}

	rec := r.Record("20261019_083000")
	if rec.RunID != "20261019_083000" || rec.Name != r.Name || rec.Timestamp != "2026-10-19T08:30:00Z" || rec.DurationMs != 1.5 {
		t.Errorf("unexpected record %+v", rec)
	}
}
