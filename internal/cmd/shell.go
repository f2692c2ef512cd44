package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/reeflective/readline"

	"github.com/inercia/carechat/internal/appdir"
	"github.com/inercia/carechat/internal/client"
	"github.com/inercia/carechat/internal/conversation"
	"github.com/inercia/carechat/internal/session"
	"github.com/inercia/carechat/internal/transcript"
	"github.com/inercia/carechat/internal/upload"
)

// slashCommands defines the available slash commands with their descriptions.
var slashCommands = []struct {
	name        string
	description string
}{
	{"/help", "Show available commands"},
	{"/h", "Show available commands (alias)"},
	{"/?", "Show available commands (alias)"},
	{"/mode", "Switch to the expert or the automated assistant"},
	{"/upload", "Upload a discharge note"},
	{"/note", "Show the current discharge note"},
	{"/save", "Export the conversation as HTML"},
	{"/status", "Show connection details"},
	{"/reconnect", "Reconnect after the connection was lost"},
	{"/quit", "Log out and exit"},
	{"/exit", "Log out and exit (alias)"},
	{"/q", "Log out and exit (alias)"},
}

// parseCommand splits a slash command line into its lower-cased name and
// the remaining argument. ok is false for lines that are not commands.
func parseCommand(line string) (name, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	fields := strings.SplitN(strings.TrimPrefix(line, "/"), " ", 2)
	name = strings.ToLower(fields[0])
	if name == "" {
		return "", "", false
	}
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}
	return name, arg, true
}

// shell is the interactive conversation view. Messages from the peer and
// the system are printed as they arrive; the user's own lines are already
// on screen.
type shell struct {
	client *client.Client
	now    func() time.Time

	mu          sync.Mutex
	out         io.Writer
	mode        session.Mode
	lastSeq     int64
	note        *conversation.DocumentNote
	connection  session.State
	unsubscribe func()
}

func newShell(c *client.Client, out io.Writer) *shell {
	st := c.State()
	s := &shell{
		client:     c,
		now:        time.Now,
		out:        out,
		mode:       st.Mode,
		connection: st.Connection,
	}
	s.unsubscribe = c.OnStateChange(s.onState)
	return s
}

func (s *shell) close() {
	s.unsubscribe()
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

// onState prints whatever changed since the last state it saw.
func (s *shell) onState(st client.ConversationState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A mode switch starts a fresh conversation with its own numbering.
	if st.Mode != s.mode {
		s.mode = st.Mode
		s.lastSeq = 0
		s.note = nil
	}

	if st.Connection != s.connection {
		prev := s.connection
		s.connection = st.Connection
		switch st.Connection {
		case session.StateConnected:
			fmt.Fprintf(s.out, "* connected to the %s\n", partnerName(st))
		case session.StateConnecting, session.StateReconnectPending:
			if prev == session.StateConnected {
				fmt.Fprintf(s.out, "* connection lost, reconnecting...\n")
			}
		}
	}

	for _, msg := range st.Messages {
		if msg.Seq <= s.lastSeq {
			continue
		}
		s.lastSeq = msg.Seq
		if msg.Sender == conversation.SenderSelf {
			continue
		}
		fmt.Fprintln(s.out, formatMessage(msg))
	}

	if st.Note != nil && (s.note == nil || *s.note != *st.Note) {
		n := *st.Note
		s.note = &n
		fmt.Fprintf(s.out, "* discharge note received from %s (use /note to read it)\n", n.Owner)
	}
}

// formatMessage renders one message for the terminal.
func formatMessage(msg conversation.Message) string {
	body := conversation.RenderPlain(msg.Text)
	if strings.Contains(body, "\n") {
		return fmt.Sprintf("[%s]\n%s", msg.Label, body)
	}
	return fmt.Sprintf("[%s] %s", msg.Label, body)
}

// run reads lines until the user quits, input ends, or ctx is done.
func (s *shell) run(ctx context.Context) error {
	rl := readline.NewShell()
	rl.Prompt.Primary(func() string { return s.client.Identity() + "> " })

	history := readline.NewInMemoryHistory()
	rl.History.Add("default", history)

	rl.Completer = func(line []rune, cursor int) readline.Completions {
		return completeInput(string(line), cursor)
	}

	s.printf("Type your message and press Enter. Use /help for commands. Tab completes commands.\n")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				s.printf("Goodbye!\n")
				return nil
			}
			return err
		}

		if quit := s.handleLine(ctx, line); quit {
			return nil
		}
	}
}

// handleLine sends a chat line or runs a slash command. It reports whether
// the shell should exit.
func (s *shell) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if name, arg, ok := parseCommand(line); ok {
		return s.handleCommand(ctx, name, arg)
	}

	if err := s.client.SendMessage(line); err != nil {
		switch {
		case errors.Is(err, session.ErrNotConnected):
			s.printf("! not connected, message not sent (try /reconnect)\n")
		default:
			s.printf("! send failed: %v\n", err)
		}
	}
	return false
}

func (s *shell) handleCommand(ctx context.Context, name, arg string) bool {
	switch name {
	case "quit", "exit", "q":
		s.printf("Goodbye!\n")
		return true
	case "help", "h", "?":
		s.printHelp()
	case "mode":
		s.switchMode(arg)
	case "upload":
		s.upload(ctx, arg)
	case "note":
		s.printNote()
	case "save":
		s.save(arg)
	case "status":
		s.printStatus()
	case "reconnect":
		if err := s.client.Reconnect(); err != nil {
			s.printf("! reconnect: %v\n", err)
		}
	default:
		s.printf("Unknown command: %s (use /help for available commands)\n", name)
	}
	return false
}

func (s *shell) switchMode(arg string) {
	if arg == "" {
		s.printf("Usage: /mode expert|automated\n")
		return
	}
	mode, err := session.ParseMode(arg)
	if err != nil {
		s.printf("! %v\n", err)
		return
	}
	changed, err := s.client.SwitchMode(mode)
	switch {
	case err != nil:
		s.printf("! %v\n", err)
	case !changed:
		s.printf("Already talking to the %s\n", partnerName(s.client.State()))
	default:
		s.printf("* switched to the %s, conversation cleared\n", partnerName(s.client.State()))
	}
}

func (s *shell) upload(ctx context.Context, path string) {
	if path == "" {
		s.printf("Usage: /upload PATH\n")
		return
	}
	doc, err := upload.ReadDocument(path)
	if err != nil {
		s.printf("! %v\n", err)
		return
	}
	// The acknowledgement or failure notice arrives as a system message.
	if _, err := s.client.UploadDocument(ctx, doc); err != nil {
		var uerr *upload.UploadError
		if !errors.As(err, &uerr) {
			s.printf("! %v\n", err)
		}
	}
}

func (s *shell) printNote() {
	st := s.client.State()
	if st.Note == nil {
		s.printf("No discharge note yet.\n")
		return
	}
	s.printf("Discharge note (%s):\n%s\n", st.Note.Owner, conversation.RenderPlain(st.Note.Text))
}

func (s *shell) save(name string) {
	st := s.client.State()
	now := s.now()
	path, err := appdir.TranscriptPath(name, st.Identity, now)
	if err != nil {
		s.printf("! %v\n", err)
		return
	}
	doc := transcript.Document{
		Role:       string(st.Role),
		Identity:   st.Identity,
		Mode:       string(st.Mode),
		Messages:   st.Messages,
		Note:       st.Note,
		ExportedAt: now,
	}
	if err := transcript.WriteFile(path, doc); err != nil {
		s.printf("! %v\n", err)
		return
	}
	s.printf("Saved %d messages to %s\n", len(st.Messages), path)
}

func (s *shell) printStatus() {
	st := s.client.State()
	var b strings.Builder
	fmt.Fprintf(&b, "Role:       %s\n", st.Role)
	fmt.Fprintf(&b, "Identity:   %s\n", st.Identity)
	if st.Mode != "" {
		fmt.Fprintf(&b, "Mode:       %s\n", st.Mode)
	}
	fmt.Fprintf(&b, "Connection: %s\n", st.Connection)
	fmt.Fprintf(&b, "Messages:   %d\n", len(st.Messages))
	fmt.Fprintf(&b, "Client ID:  %s\n", st.ClientID)
	if st.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", st.LastError)
	}
	s.printf("%s", b.String())
}

func (s *shell) printHelp() {
	s.printf(`
Available commands:
  /mode expert|automated  - Switch conversation partner (patients only)
  /upload PATH            - Upload a discharge note
  /note                   - Show the current discharge note
  /save [FILE]            - Export the conversation (HTML, or JSON for .json)
  /status                 - Show connection details
  /reconnect              - Reconnect after the connection was lost
  /quit, /exit, /q        - Log out and exit
  /help, /h, /?           - Show this help message

Tips:
  - Type your message and press Enter to send it
  - Use Ctrl+C to exit gracefully
  - Use up/down arrows for command history
  - Use Tab to autocomplete slash commands
`)
}

// completeInput provides tab completion for the chat input.
// It completes slash commands when the input starts with "/".
func completeInput(line string, cursor int) readline.Completions {
	if cursor > len(line) {
		cursor = len(line)
	}
	text := line[:cursor]

	if !strings.HasPrefix(text, "/") {
		return readline.Completions{}
	}

	matches := matchCommands(text)
	if len(matches) == 0 {
		return readline.Completions{}
	}

	// Format: value1, desc1, value2, desc2, ...
	pairs := make([]string, 0, len(matches)*2)
	for _, cmd := range slashCommands {
		for _, m := range matches {
			if cmd.name == m {
				pairs = append(pairs, cmd.name, cmd.description)
			}
		}
	}

	return readline.CompleteValuesDescribed(pairs...).
		Tag("commands").
		NoSpace('/')
}

// matchCommands returns the slash commands starting with prefix.
func matchCommands(prefix string) []string {
	var matches []string
	for _, cmd := range slashCommands {
		if strings.HasPrefix(cmd.name, prefix) {
			matches = append(matches, cmd.name)
		}
	}
	return matches
}
