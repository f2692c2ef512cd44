package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/inercia/carechat/internal/config"
	"github.com/inercia/carechat/internal/conversation"
	"github.com/inercia/carechat/internal/logging"
	"github.com/inercia/carechat/internal/session"
	"github.com/inercia/carechat/internal/upload"
)

// ErrBlankIdentity is returned by Login for an empty identity.
var ErrBlankIdentity = errors.New("please enter your ID")

// ConversationState is the observable state of a login.
type ConversationState struct {
	// Version increases with every change.
	Version       uint64
	ClientID      string
	Role          session.Role
	Identity      string
	Mode          session.Mode
	Connection    session.State
	Messages      []conversation.Message
	Note          *conversation.DocumentNote
	AwaitingReply bool
	LastError     string
}

// Connected reports whether messages can be sent.
func (s ConversationState) Connected() bool {
	return s.Connection == session.StateConnected
}

// Callbacks defines callbacks for client events.
// All callbacks are optional; nil callbacks are ignored.
type Callbacks struct {
	// OnStateChange receives the latest state after changes. Intermediate
	// states may be skipped.
	OnStateChange func(state ConversationState)

	// OnTransportError is called for every connection failure or drop.
	OnTransportError func(err *session.TransportError)
}

// Option configures a Client.
type Option func(*options)

type options struct {
	callbacks  Callbacks
	mode       session.Mode
	dial       session.DialFunc
	httpClient *http.Client
	logger     *slog.Logger
}

// WithCallbacks sets the event callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(o *options) {
		o.callbacks = cb
	}
}

// WithMode overrides the mode derived from the identity. Ignored for experts.
func WithMode(m session.Mode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithDialFunc replaces the websocket transport.
func WithDialFunc(fn session.DialFunc) Option {
	return func(o *options) {
		o.dial = fn
	}
}

// WithHTTPClient sets the HTTP client used for uploads.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Client is one logged-in user.
// It is safe for concurrent use.
type Client struct {
	clientID string
	manager  *session.Manager
	modes    *session.ModeController
	uploader *upload.Client
	logger   *slog.Logger

	notifier *notifier
	stopCtx  func() bool

	mu       sync.Mutex
	loggedIn bool
}

// Login creates a fresh session for (role, identity) and starts connecting.
// The session ends on Logout or when ctx is done.
func Login(ctx context.Context, cfg *config.Config, role session.Role, identity string, opts ...Option) (*Client, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrBlankIdentity
	}
	if _, err := session.ParseRole(string(role)); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Client{
		clientID: uuid.New().String(),
		loggedIn: true,
	}
	componentLogger := func(component string) *slog.Logger {
		l := logging.WithComponent(component)
		if o.logger != nil {
			l = o.logger.With("component", component)
		}
		return logging.WithIdentity(l, string(role), identity, c.clientID)
	}
	c.logger = componentLogger("client")
	c.notifier = newNotifier(c.snapshot, o.callbacks.OnStateChange)

	mopts := []session.Option{
		session.WithLogger(componentLogger("session")),
		session.WithCallbacks(session.Callbacks{
			OnChange:         c.notifier.kick,
			OnTransportError: o.callbacks.OnTransportError,
		}),
	}
	if o.dial != nil {
		mopts = append(mopts, session.WithDialFunc(o.dial))
	}
	m, err := session.NewManager(cfg, role, identity, mopts...)
	if err != nil {
		c.notifier.stop()
		return nil, err
	}
	c.manager = m
	c.modes = session.NewModeController(m)

	uopts := []upload.Option{upload.WithLogger(componentLogger("upload"))}
	if o.httpClient != nil {
		uopts = append(uopts, upload.WithHTTPClient(o.httpClient))
	}
	c.uploader = upload.FromConfig(cfg, uopts...)

	mode := o.mode
	if role == session.RolePatient && mode == "" {
		mode = session.DefaultModeFor(identity)
	}
	if err := m.Start(mode); err != nil {
		m.Close()
		c.notifier.stop()
		return nil, fmt.Errorf("start session: %w", err)
	}
	c.logger.Info("logged in", "mode", mode)

	stop := context.AfterFunc(ctx, c.Logout)
	c.mu.Lock()
	c.stopCtx = stop
	c.mu.Unlock()
	return c, nil
}

// ClientID returns the per-login correlation ID.
func (c *Client) ClientID() string {
	return c.clientID
}

// Role returns the login role.
func (c *Client) Role() session.Role {
	return c.manager.Role()
}

// Identity returns the login identity.
func (c *Client) Identity() string {
	return c.manager.Identity()
}

// State returns the current conversation state.
func (c *Client) State() ConversationState {
	return c.snapshot()
}

func (c *Client) snapshot() ConversationState {
	snap := c.manager.Snapshot()
	return ConversationState{
		Version:       snap.Version,
		ClientID:      c.clientID,
		Role:          snap.Role,
		Identity:      snap.Identity,
		Mode:          snap.Mode,
		Connection:    snap.State,
		Messages:      snap.Messages,
		Note:          snap.Note,
		AwaitingReply: snap.AwaitingReply,
		LastError:     snap.LastError,
	}
}

// OnStateChange registers fn for state notifications and returns a function
// that removes it.
func (c *Client) OnStateChange(fn func(ConversationState)) (unsubscribe func()) {
	return c.notifier.subscribe(fn)
}

// SendMessage sends text to the current peer.
func (c *Client) SendMessage(text string) error {
	return c.manager.Send(text)
}

// SwitchMode moves a patient to mode. It reports whether a switch happened.
func (c *Client) SwitchMode(mode session.Mode) (bool, error) {
	return c.modes.SwitchMode(mode)
}

// Reconnect starts a fresh connection in the current mode after the
// session gave up on the previous one.
func (c *Client) Reconnect() error {
	if c.manager.State() != session.StateDisconnected {
		return session.ErrAlreadyStarted
	}
	return c.manager.Start(c.manager.Mode())
}

// UploadDocument submits doc over the upload channel. The outcome is also
// added to the conversation as a system message. The chat connection is
// unaffected either way.
func (c *Client) UploadDocument(ctx context.Context, doc *upload.Document) (upload.Acknowledgement, error) {
	ack, err := c.uploader.Upload(ctx, c.manager.Identity(), doc)
	if err != nil {
		var uerr *upload.UploadError
		if errors.As(err, &uerr) {
			c.manager.AppendSystem(upload.FailureNotice)
		}
		return ack, err
	}
	c.manager.AppendSystem(ack.Message)
	return ack, nil
}

// Logout closes the session. It is idempotent.
func (c *Client) Logout() {
	c.mu.Lock()
	if !c.loggedIn {
		c.mu.Unlock()
		return
	}
	c.loggedIn = false
	stop := c.stopCtx
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.manager.Close()
	c.notifier.stop()
	c.logger.Info("logged out")
}
