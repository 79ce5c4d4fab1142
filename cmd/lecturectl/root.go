package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(open opener) *cobra.Command {
	var asFlag string
	var jsonFlag bool

	ctx := newCommandContext(open, &asFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "lecturectl",
		Short:         "Inspect and repair the lecture processing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&asFlag, "as", "", "Email of the admin or staff account to act as")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Write JSON instead of tables")

	rootCmd.AddCommand(newTasksCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newResetCommand(ctx, "reprocess", "Clear an enrichment step so it runs again"))
	rootCmd.AddCommand(newResetCommand(ctx, "retry", "Reset a failed or stalled task for retry"))
	rootCmd.AddCommand(newTransferCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newMetricsCommand(ctx))
	rootCmd.AddCommand(newAuditCommand(ctx))

	return rootCmd
}
