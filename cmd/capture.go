package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCaptureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capture",
		Short: "Capture every planned card against the running site",
		Long: `Reads the planned job batch once and captures each card in order with a
fresh headless browser. A failed card is logged and the run moves on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			warnUnsharedCache(cmd)
			return runCaptureCommand(cmd, args)
		},
	}
}

func runCaptureCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	report, err := appInstance.Capture(cmd.Context())
	if err != nil {
		return fmt.Errorf("capture social cards: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
	return nil
}
