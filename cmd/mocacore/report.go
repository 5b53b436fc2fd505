package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

func newScoreReportCmd(root *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "score-report [session-id]",
		Short: "Print a session report, or a user's history with --user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (userID != "") {
				return errors.New("pass exactly one of a session id or --user")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if userID != "" {
				history, err := a.svc.UserHistory(ctx, userID)
				if err != nil {
					return err
				}
				return enc.Encode(history)
			}
			report, err := a.svc.Report(ctx, args[0])
			if err != nil {
				return err
			}
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "print the history of this user instead")
	return cmd
}
