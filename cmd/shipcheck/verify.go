package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/shipcheck/internal/verify"
)

// errVerificationFailed is returned when the overall status is FAIL.
var errVerificationFailed = errors.New("verification failed")

type runner interface {
	Run(ctx context.Context, phase string) *verify.Run
}

func verifyCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Run all checks once and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, f)
		},
	}
}

func runVerify(cmd *cobra.Command, f *flags) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	return executeVerify(cmd, a.runner, cfg.Phase)
}

func executeVerify(cmd *cobra.Command, r runner, phase string) error {
	run := r.Run(cmdContext(cmd), phase)
	printRun(cmd.OutOrStdout(), run)
	if !run.OK() {
		return fmt.Errorf("%w: %d/%d checks passed", errVerificationFailed, run.Passed(), len(run.Results))
	}
	return nil
}

func printRun(out io.Writer, run *verify.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDURATION\tDETAIL")
	for _, res := range run.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			res.Name,
			res.Status,
			res.Duration.Round(time.Millisecond),
			res.Summary,
		)
	}
	w.Flush()

	var problems bool
	for _, res := range run.Results {
		lines := verify.Problems(res)
		if len(lines) == 0 {
			continue
		}
		if !problems {
			fmt.Fprintln(out, "\nFailures:")
			problems = true
		}
		for _, line := range lines {
			fmt.Fprintf(out, "  %s: %s\n", res.Name, line)
		}
	}

	fmt.Fprintln(out, "\nEvidence:")
	for _, a := range run.Artifacts {
		switch {
		case a.Err != nil:
			fmt.Fprintf(out, "  %s: not written (%v)\n", a.Name, a.Err)
		case a.MirrorErr != nil:
			fmt.Fprintf(out, "  %s (mirror failed: %v)\n", a.Path, a.MirrorErr)
		default:
			fmt.Fprintf(out, "  %s\n", a.Path)
		}
	}

	fmt.Fprintf(out, "\nOVERALL STATUS: %s (%d/%d checks passed, run %s)\n",
		run.Overall, run.Passed(), len(run.Results), run.ID)
}
