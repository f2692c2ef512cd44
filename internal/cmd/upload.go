package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inercia/carechat/internal/logging"
	"github.com/inercia/carechat/internal/upload"
)

var (
	uploadIdentity string
	uploadWatch    bool
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload a discharge note",
	Long: `Upload a discharge note for a patient without opening a conversation.

The server forwards the note to connected experts and uses it as context
for the automated assistant.

With --watch the note is uploaded again every time the file changes,
until interrupted:
  carechat upload --id patient7 --watch note.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().StringVar(&uploadIdentity, "id", "", "Identity the note belongs to")
	uploadCmd.Flags().BoolVarP(&uploadWatch, "watch", "w", false, "Upload again whenever the file changes")
	_ = uploadCmd.MarkFlagRequired("id")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := upload.FromConfig(cfg)
	out := cmd.OutOrStdout()
	path := args[0]

	doc, err := upload.ReadDocument(path)
	if err != nil {
		return err
	}
	if err := uploadOnce(ctx, out, c, uploadIdentity, doc); err != nil && !uploadWatch {
		return err
	}
	if !uploadWatch {
		return nil
	}

	fmt.Fprintf(out, "Watching %s for changes (Ctrl+C to stop)\n", path)
	err = upload.Watch(ctx, path, upload.WatchOptions{Logger: logging.Upload()}, func(doc *upload.Document) {
		// Failures are reported and the watch goes on.
		_ = uploadOnce(ctx, out, c, uploadIdentity, doc)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// uploadOnce submits doc and prints the outcome.
func uploadOnce(ctx context.Context, out io.Writer, c *upload.Client, identity string, doc *upload.Document) error {
	ack, err := c.Upload(ctx, identity, doc)
	if err != nil {
		fmt.Fprintf(out, "%s (%v)\n", upload.FailureNotice, err)
		return err
	}
	fmt.Fprintln(out, ack.Message)
	return nil
}
