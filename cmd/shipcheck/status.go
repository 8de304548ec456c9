package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/shipcheck/internal/evidence"
)

type reportSource interface {
	LatestReport() (path, text string, err error)
}

func statusCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest verification report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return executeStatus(cmd, evidence.NewWriter(cfg.Evidence.Dir, nil, nil))
		},
	}
}

func executeStatus(cmd *cobra.Command, reports reportSource) error {
	out := cmd.OutOrStdout()
	path, text, err := reports.LatestReport()
	if errors.Is(err, evidence.ErrNoReport) {
		fmt.Fprintln(out, "No verification report yet. Run 'shipcheck verify' first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading latest report: %w", err)
	}

	fmt.Fprintf(out, "Report: %s\n\n", path)
	fmt.Fprint(out, text)
	return nil
}
