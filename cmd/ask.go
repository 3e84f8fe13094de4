package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <user_id> <question>",
	Short: "Ask a question about the user's indexed presentation",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	userID := args[0]
	question := strings.Join(args[1:], " ")

	svc, cleanup, err := newInitializedService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	stream, err := svc.Ask(ctx, userID, question)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	red := color.New(color.FgRed).SprintFunc()

	var streamErr error
	for fragment := range stream {
		if fragment.Err != nil {
			fmt.Fprintln(out)
			fmt.Fprintln(out, red(fragment.Text))
			streamErr = fragment.Err
			continue
		}
		fmt.Fprint(out, fragment.Text)
	}
	fmt.Fprintln(out)
	return streamErr
}
