package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"deckrag/src/core/deckchat"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <user_id> <file.pptx>",
	Short: "Index a presentation for a user and print suggested questions",
	Args:  cobra.ExactArgs(2),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	userID, filePath := args[0], args[1]

	svc, cleanup, err := newInitializedService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Embedding chunks"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	result, err := svc.Ingest(ctx, userID, filePath, deckchatProgress(bar))
	bar.Finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Indexed %s as document %d (%d chunks)\n", filePath, result.DocumentID, result.ChunkCount)
	if len(result.Questions) > 0 {
		fmt.Fprintln(out, "\nTry asking:")
		for _, q := range result.Questions {
			fmt.Fprintf(out, "  - %s\n", q)
		}
	}
	return nil
}

func deckchatProgress(bar *progressbar.ProgressBar) deckchat.IngestOption {
	return deckchat.WithIngestProgress(func(done, total int) {
		bar.ChangeMax(total)
		bar.Set(done)
	})
}
