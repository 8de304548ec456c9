package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/shipcheck/internal/config"
	"github.com/hazz-dev/shipcheck/internal/fault"
)

func initConfigCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return executeInitConfig(cmd, f.configPath)
		},
	}
}

func executeInitConfig(cmd *cobra.Command, path string) error {
	if err := config.Write(config.Default(), path); err != nil {
		return fault.Wrap(fault.Config, "init-config", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
	return nil
}
