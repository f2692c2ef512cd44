package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/inercia/carechat/internal/conversation"
	"github.com/inercia/carechat/internal/session"
)

// ErrGaveUp is returned by the wait helpers when the session stopped
// reconnecting.
var ErrGaveUp = errors.New("connection lost")

// WaitConnected blocks until the session is connected, the session gave up
// reconnecting, or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	return c.waitFor(ctx, func(st ConversationState) (bool, error) {
		switch {
		case st.Connected():
			return true, nil
		case st.Connection == session.StateDisconnected && st.LastError != "":
			return true, fmt.Errorf("%w: %s", ErrGaveUp, st.LastError)
		case st.Connection == session.StateDisconnected:
			return true, session.ErrNotConnected
		}
		return false, nil
	})
}

// SendAndWait sends text and waits for the first peer message that arrives
// after it.
func (c *Client) SendAndWait(ctx context.Context, text string) (conversation.Message, error) {
	var reply conversation.Message

	baseline := c.manager.Store().LastSeq()
	if err := c.SendMessage(text); err != nil {
		return reply, fmt.Errorf("send: %w", err)
	}

	err := c.waitFor(ctx, func(st ConversationState) (bool, error) {
		for _, msg := range st.Messages {
			if msg.Seq > baseline && msg.Sender == conversation.SenderPeer {
				reply = msg
				return true, nil
			}
		}
		if st.Connection == session.StateDisconnected {
			return true, fmt.Errorf("%w: %s", ErrGaveUp, st.LastError)
		}
		return false, nil
	})
	return reply, err
}

// waitFor evaluates check on every state change until it reports done.
func (c *Client) waitFor(ctx context.Context, check func(ConversationState) (bool, error)) error {
	changed := make(chan struct{}, 1)
	unsubscribe := c.OnStateChange(func(ConversationState) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		if done, err := check(c.State()); done {
			return err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
