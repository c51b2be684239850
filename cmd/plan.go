package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Plan card jobs for pages without a card image",
		Long: `Runs the content query, drops every page whose card image already exists,
registers a card page for the rest and stores the job batch in the cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			warnUnsharedCache(cmd)
			return runPlanCommand(cmd, args)
		},
	}
}

func runPlanCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	batch, err := appInstance.Plan(cmd.Context())
	if err != nil {
		return fmt.Errorf("plan social cards: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "planned %d social cards\n", len(batch))
	return nil
}
