// Package session manages the persistent connection for one logged-in user:
// endpoint derivation, the connect/reconnect state machine, routing of
// inbound frames into the conversation store, and patient mode switching.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/inercia/carechat/internal/config"
	"github.com/inercia/carechat/internal/conversation"
	"github.com/inercia/carechat/internal/logging"
	"github.com/inercia/carechat/internal/transport"
)

// State is the session state machine state.
type State string

const (
	StateDisconnected     State = "disconnected"
	StateConnecting       State = "connecting"
	StateConnected        State = "connected"
	StateReconnectPending State = "reconnect-pending"
)

// Handle is the part of a transport connection the manager needs.
type Handle interface {
	Send(text string) error
	Close() error
	State() transport.State
}

// DialFunc opens a connection. It must return without invoking any event;
// events are delivered later from another goroutine.
type DialFunc func(ctx context.Context, url string, events transport.Events) Handle

// TransportDialer returns a DialFunc backed by transport.Dial.
func TransportDialer(cfg config.SessionConfig, logger *slog.Logger) DialFunc {
	return func(ctx context.Context, url string, events transport.Events) Handle {
		return transport.Dial(ctx, url, events,
			transport.WithHandshakeTimeout(cfg.DialTimeout),
			transport.WithWriteTimeout(cfg.WriteTimeout),
			transport.WithLogger(logger),
		)
	}
}

// Callbacks defines callbacks for session events.
// All callbacks are optional; nil callbacks are ignored. They are invoked
// without the manager's lock held, so they may call back into the manager.
type Callbacks struct {
	// OnChange is called after every mutation of the observable state.
	OnChange func()

	// OnTransportError is called for every connection failure or drop.
	OnTransportError func(err *TransportError)
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialFunc replaces the transport, mainly for tests.
func WithDialFunc(fn DialFunc) Option {
	return func(m *Manager) {
		m.dial = fn
	}
}

// WithCallbacks sets the event callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(m *Manager) {
		m.callbacks = cb
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Snapshot is an immutable copy of the observable session state.
type Snapshot struct {
	// Version increases with every change.
	Version       uint64
	Role          Role
	Identity      string
	Mode          Mode
	State         State
	Messages      []conversation.Message
	Note          *conversation.DocumentNote
	AwaitingReply bool
	LastError     string
}

// Manager owns exactly one connection at a time for a (role, identity) pair.
// Every mutation is serialized by its lock; stale callbacks from abandoned
// connections are dropped by comparing their epoch with the current one.
//
// It is safe for concurrent use.
type Manager struct {
	role      Role
	identity  string
	server    config.ServerConfig
	wsBase    string
	dial      DialFunc
	callbacks Callbacks
	logger    *slog.Logger

	maxReconnects int
	limiter       *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	// sendMu keeps outbound frames and their echoes in call order. It is
	// held across the transport write; mu is not.
	sendMu sync.Mutex

	mu            sync.Mutex
	state         State
	mode          Mode
	url           string
	epoch         uint64
	conn          Handle
	store         *conversation.Store
	attempts      int
	retryTimer    *time.Timer
	awaitingReply bool
	lastErr       error
	version       uint64
	closed        bool

	// sending is set while a write is in flight. Frames arriving meanwhile
	// are queued so the reply lands after the echo of what it answers.
	sending bool
	held    []string
}

// NewManager creates a disconnected manager. Call Start to connect.
func NewManager(cfg *config.Config, role Role, identity string, opts ...Option) (*Manager, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity must not be empty")
	}

	interval := rate.Inf
	if cfg.Session.ReconnectInterval > 0 {
		interval = rate.Every(cfg.Session.ReconnectInterval)
	}

	m := &Manager{
		role:          role,
		identity:      identity,
		server:        cfg.Server,
		wsBase:        cfg.WebsocketBaseURL(),
		logger:        logging.Session(),
		maxReconnects: cfg.Session.MaxReconnects,
		limiter:       rate.NewLimiter(interval, 1),
		state:         StateDisconnected,
		store:         conversation.NewStore(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dial == nil {
		m.dial = TransportDialer(cfg.Session, logging.Transport())
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Role returns the login role.
func (m *Manager) Role() Role {
	return m.role
}

// Identity returns the login identity.
func (m *Manager) Identity() string {
	return m.identity
}

// Mode returns the active mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// State returns the current state machine state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Store returns the current conversation store. The store is replaced on
// every mode switch, so callers should not hold on to it.
func (m *Manager) Store() *conversation.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// Snapshot returns a copy of the observable state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Version:       m.version,
		Role:          m.role,
		Identity:      m.identity,
		Mode:          m.mode,
		State:         m.state,
		Messages:      m.store.Messages(),
		AwaitingReply: m.awaitingReply,
	}
	if note, ok := m.store.Note(); ok {
		snap.Note = &note
	}
	if m.lastErr != nil {
		snap.LastError = m.lastErr.Error()
	}
	return snap
}

// Start connects using mode. The mode is ignored for experts.
func (m *Manager) Start(mode Mode) error {
	m.mu.Lock()
	err := m.startLocked(mode)
	m.mu.Unlock()

	m.notify()
	return err
}

func (m *Manager) startLocked(mode Mode) error {
	if m.closed {
		return ErrClosed
	}
	if m.state != StateDisconnected {
		return ErrAlreadyStarted
	}
	path, err := EndpointPath(m.server.Endpoints, m.role, mode)
	if err != nil {
		return err
	}

	if m.role == RolePatient {
		m.mode = mode
	}
	m.url = EndpointURL(m.wsBase, path, m.server.IdentityParam, m.identity)
	m.attempts = 0
	m.lastErr = nil
	m.connectLocked()
	return nil
}

// connectLocked dials m.url under a fresh epoch.
func (m *Manager) connectLocked() {
	m.bumpEpochLocked()
	epoch := m.epoch

	m.state = StateConnecting
	m.version++
	m.logger.Debug("connecting", "url", m.url, "epoch", epoch)

	m.conn = m.dial(m.ctx, m.url, transport.Events{
		OnOpen:    func() { m.handleOpen(epoch) },
		OnMessage: func(text string) { m.handleFrame(epoch, text) },
		OnError:   func(err error) { m.handleLost(epoch, err) },
		OnClose: func(code int) {
			m.handleLost(epoch, fmt.Errorf("connection closed by server (code %d)", code))
		},
	})
}

// Stop closes the current connection and returns to disconnected. It is
// safe in any state, including while connecting, and idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopLocked()
	m.mu.Unlock()

	m.notify()
}

func (m *Manager) stopLocked() {
	m.bumpEpochLocked()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.logger.Debug("close failed", "error", err)
		}
		m.conn = nil
	}
	m.state = StateDisconnected
	m.awaitingReply = false
	m.version++
}

// Close stops the session for good. Later Start calls return ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopLocked()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.notify()
}

// Send forwards text verbatim and appends it to the store as a self
// message. Nothing is sent for blank text. The write happens without the
// manager's lock, so Stop and inbound events are not held up by a slow
// peer.
func (m *Manager) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	if m.conn == nil || m.state != StateConnected || m.conn.State() != transport.StateOpen {
		state := m.state
		m.mu.Unlock()
		m.logger.Warn("send rejected: not connected", "state", state)
		return ErrNotConnected
	}
	conn, epoch, url := m.conn, m.epoch, m.url
	m.sending = true
	m.mu.Unlock()

	err := conn.Send(text)

	m.mu.Lock()
	if epoch != m.epoch {
		// Stopped, switched or dropped mid-write; the echo would land in a
		// conversation that is gone.
		m.mu.Unlock()
		if err != nil {
			return ErrNotConnected
		}
		return nil
	}
	m.sending = false
	if err == nil {
		m.store.Append(conversation.SenderSelf, SelfLabel(m.role), text)
		if m.role == RolePatient && m.mode == ModeAutomated {
			m.awaitingReply = true
		}
	}
	for _, frame := range m.held {
		m.applyFrameLocked(frame)
	}
	m.held = nil
	m.version++
	m.mu.Unlock()

	m.notify()
	if err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			return ErrNotConnected
		}
		return &TransportError{Op: "send", URL: url, Err: err}
	}
	return nil
}

// AppendSystem adds a locally generated notice to the conversation.
func (m *Manager) AppendSystem(text string) {
	m.mu.Lock()
	m.store.Append(conversation.SenderSystem, SystemLabel, text)
	m.version++
	m.mu.Unlock()

	m.notify()
}

func (m *Manager) handleOpen(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		m.logger.Debug("dropping stale open", "epoch", epoch)
		return
	}
	m.state = StateConnected
	m.attempts = 0
	m.lastErr = nil
	m.version++
	m.mu.Unlock()

	m.logger.Info("connected", "mode", m.Mode())
	m.notify()
}

func (m *Manager) handleFrame(epoch uint64, text string) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	if m.sending {
		m.held = append(m.held, text)
		m.mu.Unlock()
		return
	}
	m.applyFrameLocked(text)
	m.version++
	m.mu.Unlock()

	m.notify()
}

func (m *Manager) applyFrameLocked(text string) {
	frame := conversation.ClassifyFrame(text)
	switch frame.Kind {
	case conversation.FrameNote:
		m.store.SetNote(frame.NoteOwner, frame.Text)
	case conversation.FrameMalformedNote:
		m.logger.Debug("note prefix without delimiter, treating as chat")
		fallthrough
	default:
		m.store.Append(conversation.SenderPeer, PeerLabel(m.role, m.mode), frame.Text)
		m.awaitingReply = false
	}
}

// bumpEpochLocked abandons the current connection's callbacks along with
// any frames held back for an in-flight send.
func (m *Manager) bumpEpochLocked() {
	m.epoch++
	m.sending = false
	m.held = nil
}

// handleLost handles a failed dial or a dropped connection.
func (m *Manager) handleLost(epoch uint64, cause error) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}

	op := "read"
	if m.state == StateConnecting {
		op = "connect"
	}
	terr := &TransportError{Op: op, URL: m.url, Err: cause}

	// Invalidate the dead handle so its remaining callbacks are ignored.
	m.bumpEpochLocked()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.lastErr = terr
	m.awaitingReply = false

	if m.attempts < m.maxReconnects {
		m.attempts++
		terr.Retrying = true
		m.state = StateReconnectPending
		m.scheduleRetryLocked()
	} else {
		m.state = StateDisconnected
		m.store.Append(conversation.SenderSystem, SystemLabel, "Connection lost: "+cause.Error())
	}
	m.version++
	m.mu.Unlock()

	m.logger.Warn("transport error", "op", terr.Op, "error", cause, "retrying", terr.Retrying)
	if m.callbacks.OnTransportError != nil {
		m.callbacks.OnTransportError(terr)
	}
	m.notify()
}

// scheduleRetryLocked reconnects now if the limiter allows it, otherwise
// after the limiter's delay.
func (m *Manager) scheduleRetryLocked() {
	r := m.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		m.connectLocked()
		return
	}

	epoch := m.epoch
	m.retryTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if epoch != m.epoch || m.state != StateReconnectPending {
			m.mu.Unlock()
			return
		}
		m.retryTimer = nil
		m.connectLocked()
		m.mu.Unlock()

		m.notify()
	})
}

func (m *Manager) notify() {
	if m.callbacks.OnChange != nil {
		m.callbacks.OnChange()
	}
}
