// Package transport owns a single persistent websocket connection to one
// endpoint URL. It never reconnects on its own; that decision belongs to the
// session layer.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inercia/carechat/internal/logging"
)

// ErrNotConnected is returned by Send when the connection is not open.
var ErrNotConnected = errors.New("not connected")

// State is the lifecycle state of a Conn.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// CloseAbnormal is the code reported to OnClose when the connection dropped
// without a close frame.
const CloseAbnormal = websocket.CloseAbnormalClosure

// Events defines callbacks for connection lifecycle events.
// All callbacks are optional; nil callbacks are ignored. They are invoked
// from the connection's own goroutine, one at a time.
type Events struct {
	// OnOpen is called once the handshake has completed.
	OnOpen func()

	// OnMessage is called for every inbound frame.
	OnMessage func(text string)

	// OnError is called when the dial fails or the connection breaks.
	OnError func(err error)

	// OnClose is called when the remote side closes the connection, or after
	// OnError when the connection broke while open.
	OnClose func(code int)
}

// Option configures a Conn.
type Option func(*Conn)

// WithDialer sets a custom websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) {
		c.dialer = d
	}
}

// WithHandshakeTimeout sets the dial handshake timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			dialer := *c.dialer
			dialer.HandshakeTimeout = d
			c.dialer = &dialer
		}
	}
}

// WithWriteTimeout sets the deadline applied to each outbound frame.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithHeader sets extra HTTP headers sent with the handshake.
func WithHeader(h http.Header) Option {
	return func(c *Conn) {
		c.header = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.logger = l
		}
	}
}

const defaultWriteTimeout = 10 * time.Second

// Conn is one websocket connection to one URL.
// It is safe for concurrent use.
type Conn struct {
	url          string
	events       Events
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	state   State
	ws      *websocket.Conn
	stopped bool // set by Close; suppresses all further callbacks

	writeMu sync.Mutex
}

// Dial starts connecting to url and returns immediately. The outcome is
// reported through events.
func Dial(ctx context.Context, url string, events Events, opts ...Option) *Conn {
	c := &Conn{
		url:          url,
		events:       events,
		dialer:       websocket.DefaultDialer,
		writeTimeout: defaultWriteTimeout,
		logger:       logging.Transport(),
		state:        StateConnecting,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	go c.run()
	return c
}

// URL returns the endpoint URL.
func (c *Conn) URL() string {
	return c.url
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the connection goroutine has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send writes text as a single text frame.
func (c *Conn) Send(text string) error {
	c.mu.Lock()
	if c.stopped || c.state != StateOpen {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ws := c.ws
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close closes the connection. It is idempotent and may be called in any
// state, including while the dial is still in progress, and from inside a
// callback. Callbacks not yet dispatched when Close flips the state are
// suppressed; one already dispatched on the connection goroutine may still
// run to completion, so callers needing a hard cut-off compare a generation
// of their own when the callback lands.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	prev := c.state
	c.state = StateClosed
	ws := c.ws
	c.mu.Unlock()

	c.cancel()
	if ws == nil {
		return nil
	}

	if prev == StateOpen {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	return ws.Close()
}

// run dials and then reads until the connection ends.
func (c *Conn) run() {
	defer close(c.done)
	defer c.cancel()

	ws, resp, err := c.dialer.DialContext(c.ctx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
		return
	}
	if err != nil {
		c.state = StateErrored
		c.mu.Unlock()

		if resp != nil {
			err = fmt.Errorf("dial %s: status %d: %w", c.url, resp.StatusCode, err)
		} else {
			err = fmt.Errorf("dial %s: %w", c.url, err)
		}
		c.logger.Debug("dial failed", "url", c.url, "error", err)
		c.fire(func() {
			if c.events.OnError != nil {
				c.events.OnError(err)
			}
		})
		return
	}
	c.ws = ws
	c.state = StateOpen
	c.mu.Unlock()

	c.logger.Debug("connected", "url", c.url)
	c.fire(func() {
		if c.events.OnOpen != nil {
			c.events.OnOpen()
		}
	})

	c.readLoop(ws)
}

// readLoop reads frames from the connection.
func (c *Conn) readLoop(ws *websocket.Conn) {
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		text := string(data)
		c.fire(func() {
			if c.events.OnMessage != nil {
				c.events.OnMessage(text)
			}
		})
	}
}

func (c *Conn) handleReadError(err error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	// gorilla reports a dropped TCP connection as a 1006 close error; that
	// is a broken connection, not a close handshake.
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		c.state = StateClosed
		c.mu.Unlock()

		c.logger.Debug("closed by remote", "url", c.url, "code", closeErr.Code)
		c.fire(func() {
			if c.events.OnClose != nil {
				c.events.OnClose(closeErr.Code)
			}
		})
		return
	}

	c.state = StateErrored
	c.mu.Unlock()

	err = fmt.Errorf("read %s: %w", c.url, err)
	c.logger.Debug("connection broken", "url", c.url, "error", err)
	c.fire(func() {
		if c.events.OnError != nil {
			c.events.OnError(err)
		}
	})
	c.fire(func() {
		if c.events.OnClose != nil {
			c.events.OnClose(CloseAbnormal)
		}
	})
}

// fire runs fn unless Close has been called. The check and the call are
// not atomic: holding a lock across fn would deadlock a callback that calls
// Close.
func (c *Conn) fire(fn func()) {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return
	}
	fn()
}
