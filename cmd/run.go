package cmd

import (
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Plan and capture in a single process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runPlanCommand(cmd, args); err != nil {
				return err
			}
			return runCaptureCommand(cmd, args)
		},
	}
}
