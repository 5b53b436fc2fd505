package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newReconcileCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [session-id]",
		Short: "Recompute stored session totals from their results",
		Long: "Replays every section result of a session and rewrites the stored aggregate\n" +
			"when it drifted. Without an argument every session is checked.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if len(args) == 1 {
				report, err := a.svc.ReconcileSession(ctx, args[0])
				if err != nil {
					return err
				}
				return enc.Encode(report)
			}
			summary, err := a.svc.ReconcileAll(ctx)
			if err != nil {
				return err
			}
			return enc.Encode(summary)
		},
	}
}
