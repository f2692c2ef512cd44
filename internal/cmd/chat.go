package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inercia/carechat/internal/client"
	"github.com/inercia/carechat/internal/conversation"
	"github.com/inercia/carechat/internal/logging"
	"github.com/inercia/carechat/internal/session"
)

var (
	// chat-specific flags
	chatRole     string
	chatIdentity string
	chatMode     string
	oncePrompt   string
	onceWait     time.Duration
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with an expert, the automated assistant, or a patient",
	Long: `Log in and start an interactive conversation.

Patients are routed to a human expert or to the automated assistant.
Without --mode the route is picked from the identity: identities whose
trailing number is 6 or more go to the assistant.

Use --once to send a single message, print the first reply and exit:
  carechat chat --role patient --id patient7 --once "Can I shower?"

Commands (interactive mode only):
  /mode expert|automated  - Switch conversation partner (patients only)
  /upload PATH            - Upload a discharge note
  /note                   - Show the current discharge note
  /save [FILE]            - Export the conversation (HTML, or JSON for .json)
  /status                 - Show connection details
  /reconnect              - Reconnect after the connection was lost
  /quit, /exit            - Log out and exit
  /help                   - Show available commands`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatRole, "role", string(session.RolePatient), "Who you are: patient or expert")
	chatCmd.Flags().StringVar(&chatIdentity, "id", "", "Your identity (e.g. patient3)")
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "Patient conversation partner: expert or automated (default: derived from --id)")
	chatCmd.Flags().StringVar(&oncePrompt, "once", "", "Send a single message and exit after the first reply (non-interactive mode)")
	chatCmd.Flags().DurationVar(&onceWait, "wait", 30*time.Second, "How long --once waits for the connection and the reply")
	_ = chatCmd.MarkFlagRequired("id")
}

func runChat(cmd *cobra.Command, args []string) error {
	role, err := session.ParseRole(chatRole)
	if err != nil {
		return err
	}

	var opts []client.Option
	if chatMode != "" {
		mode, err := session.ParseMode(chatMode)
		if err != nil {
			return err
		}
		if role == session.RoleExpert {
			return fmt.Errorf("--mode: %w", session.ErrModeNotSupported)
		}
		opts = append(opts, client.WithMode(mode))
	}

	isOnceMode := oncePrompt != ""
	logger := logging.CLI()
	opts = append(opts, client.WithCallbacks(client.Callbacks{
		OnTransportError: func(err *session.TransportError) {
			if err.Retrying {
				logger.Warn("connection problem, reconnecting", "error", err)
			} else {
				logger.Error("connection problem", "error", err)
			}
		},
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Login(ctx, cfg, role, chatIdentity, opts...)
	if err != nil {
		return err
	}
	defer c.Logout()

	out := cmd.OutOrStdout()
	if isOnceMode {
		return runOnceMode(ctx, out, c, oncePrompt, onceWait)
	}

	st := c.State()
	fmt.Fprintf(out, "Logged in as %s %s", st.Role, st.Identity)
	if st.Mode != "" {
		fmt.Fprintf(out, " (talking to the %s)", partnerName(st))
	}
	fmt.Fprintln(out)

	sh := newShell(c, out)
	defer sh.close()
	return sh.run(ctx)
}

// runOnceMode sends a single message and prints the first reply.
func runOnceMode(ctx context.Context, out io.Writer, c *client.Client, text string, wait time.Duration) error {
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	if err := c.WaitConnected(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("not connected within %s", wait)
		}
		return fmt.Errorf("connect: %w", err)
	}
	reply, err := c.SendAndWait(ctx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no reply within %s", wait)
		}
		return err
	}

	fmt.Fprintln(out, conversation.RenderPlain(reply.Text))
	return nil
}

// partnerName names who the user is talking to.
func partnerName(st client.ConversationState) string {
	if st.Role == session.RoleExpert {
		return "patients"
	}
	if st.Mode == session.ModeAutomated {
		return "assistant"
	}
	return "expert"
}
