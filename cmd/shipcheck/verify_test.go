package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/shipcheck/internal/checker"
	"github.com/hazz-dev/shipcheck/internal/evidence"
	"github.com/hazz-dev/shipcheck/internal/verify"
)

type mockRunner struct {
	run    *verify.Run
	phases []string
}

func (m *mockRunner) Run(_ context.Context, phase string) *verify.Run {
	m.phases = append(m.phases, phase)
	return m.run
}

func makeRun(overall checker.Status, results ...checker.CheckResult) *verify.Run {
	run := &verify.Run{ID: "20261019_083000", Results: results, Overall: overall}
	for _, r := range results {
		run.Artifacts = append(run.Artifacts, evidence.Artifact{
			Name: r.Name,
			Path: "verification_evidence/" + evidence.ResultFileName(r.Name, run.ID),
		})
	}
	run.Artifacts = append(run.Artifacts, evidence.Artifact{
		Name: "report",
		Path: "verification_evidence/" + evidence.ReportFileName(run.ID),
	})
	return run
}

func TestExecuteVerify_Pass(t *testing.T) {
	r := &mockRunner{run: makeRun(checker.StatusPass,
		checker.CheckResult{Name: checker.NameFileStructure, Status: checker.StatusPass, Summary: "All 4 files and 4 directories found", Duration: 2 * time.Millisecond},
		checker.CheckResult{Name: checker.NameDatabaseSchema, Status: checker.StatusPass, Summary: "All 3 required tables found"},
		checker.CheckResult{Name: checker.NameAPIEndpoints, Status: checker.StatusPass, Summary: "All 3 endpoints accessible"},
	)}
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	if err := executeVerify(cmd, r, "phase2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"CHECK", "STATUS", "DURATION", "DETAIL",
		"file_structure", "database_schema", "api_endpoints",
		"All 3 endpoints accessible",
		"verification_evidence/verification_report_20261019_083000.txt",
		"OVERALL STATUS: PASS (3/3 checks passed, run 20261019_083000)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Failures:") {
		t.Errorf("unexpected failures section:\n%s", output)
	}
	if len(r.phases) != 1 || r.phases[0] != "phase2" {
		t.Errorf("expected one run for phase2, got %v", r.phases)
	}
}

func TestExecuteVerify_FailListsSubChecks(t *testing.T) {
	r := &mockRunner{run: makeRun(checker.StatusFail,
		checker.CheckResult{Name: checker.NameFileStructure, Status: checker.StatusFail, Summary: "Missing 1 files and 0 directories",
			Details: checker.Details{"missing_files": []string{"main.py"}}},
		checker.CheckResult{Name: checker.NameDatabaseSchema, Status: checker.StatusError, Summary: "cannot connect to database",
			Details: checker.Details{"error": "database is locked"}},
		checker.CheckResult{Name: checker.NameAPIEndpoints, Status: checker.StatusPass, Summary: "All 3 endpoints accessible"},
	)}
	r.run.Artifacts[2].Err = errors.New("disk full")

	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	err := executeVerify(cmd, r, "")
	if !errors.Is(err, errVerificationFailed) {
		t.Fatalf("expected errVerificationFailed, got %v", err)
	}
	if exitCode(err) != exitFail {
		t.Errorf("expected exit code %d, got %d", exitFail, exitCode(err))
	}

	output := buf.String()
	for _, want := range []string{
		"Failures:",
		"file_structure: missing file: main.py",
		"database_schema: error: database is locked",
		"api_endpoints: not written (disk full)",
		"OVERALL STATUS: FAIL (1/3 checks passed",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}
