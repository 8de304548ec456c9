package verify

import (
	"fmt"
	"strings"
	"time"

	"github.com/hazz-dev/shipcheck/internal/checker"
)

const ruleWidth = 60

// Render formats run as the plain-text report stored in the evidence
// directory and sent to chat.
func Render(run *Run) string {
	var b strings.Builder
	rule := strings.Repeat("=", ruleWidth)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "VERIFICATION REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Run ID:    %s\n", run.ID)
	fmt.Fprintf(&b, "Timestamp: %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Project:   %s\n", run.Project)
	if run.Phase != "" {
		fmt.Fprintf(&b, "Phase:     %s\n", run.Phase)
	}
	fmt.Fprintln(&b)

	for i, res := range run.Results {
		fmt.Fprintf(&b, "[%s] %s\n", res.Status, res.Name)
		fmt.Fprintf(&b, "   Details: %s\n", res.Summary)
		for _, line := range Problems(res) {
			fmt.Fprintf(&b, "   - %s\n", line)
		}
		if i < len(run.Artifacts) {
			art := run.Artifacts[i]
			if art.Err != nil {
				fmt.Fprintf(&b, "   Evidence: not written (%v)\n", art.Err)
			} else {
				fmt.Fprintf(&b, "   Evidence: %s\n", art.Path)
			}
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "SUMMARY: %d/%d checks passed\n", run.Passed(), len(run.Results))
	fmt.Fprintf(&b, "OVERALL STATUS: %s\n", run.Overall)
	fmt.Fprintln(&b, rule)
	return b.String()
}

// Summary is a one-line outcome suitable for logs and chat acknowledgements.
func Summary(run *Run) string {
	return fmt.Sprintf("%s: %d/%d checks passed (run %s)", run.Overall, run.Passed(), len(run.Results), run.ID)
}

// Problems lists the failing sub-checks of res, one line each.
func Problems(res checker.CheckResult) []string {
	if res.Status == checker.StatusPass {
		return nil
	}
	var lines []string
	if msg, ok := res.Details["error"].(string); ok && msg != "" {
		lines = append(lines, "error: "+msg)
	}
	for _, f := range stringsAt(res.Details, "missing_files") {
		lines = append(lines, "missing file: "+f)
	}
	for _, d := range stringsAt(res.Details, "missing_dirs") {
		lines = append(lines, "missing directory: "+d)
	}
	for _, t := range stringsAt(res.Details, "missing_tables") {
		lines = append(lines, "missing table: "+t)
	}
	if eps, ok := res.Details["endpoints"].([]checker.EndpointResult); ok {
		for _, ep := range eps {
			if !ep.Reachable {
				lines = append(lines, fmt.Sprintf("endpoint %s: %s", ep.Endpoint, ep.Error))
			}
		}
	}
	return lines
}

func stringsAt(d checker.Details, key string) []string {
	v, _ := d[key].([]string)
	return v
}
