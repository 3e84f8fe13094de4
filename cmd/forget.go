package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var forgetCmd = &cobra.Command{
	Use:   "forget <user_id>",
	Short: "Delete the user's index",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}

func runForget(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	svc, cleanup, err := newInitializedService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Forget(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Vector store for user %s deleted\n", args[0])
	return nil
}
