package session

import (
	"fmt"

	"github.com/inercia/carechat/internal/conversation"
)

// ModeController switches a patient between the expert and the automated
// responder. A switch tears down the current connection, clears the
// conversation and connects to the other endpoint.
type ModeController struct {
	m *Manager
}

// NewModeController returns a controller driving m.
func NewModeController(m *Manager) *ModeController {
	return &ModeController{m: m}
}

// Manager returns the underlying session manager.
func (c *ModeController) Manager() *Manager {
	return c.m
}

// Mode returns the active mode.
func (c *ModeController) Mode() Mode {
	return c.m.Mode()
}

// SwitchMode moves the session to mode. Switching to the active mode is a
// no-op and reports false. The switch happens as one step: no frame from
// the old connection can reach the new conversation.
func (c *ModeController) SwitchMode(mode Mode) (bool, error) {
	m := c.m
	if m.role != RolePatient {
		return false, ErrModeNotSupported
	}
	if !mode.Valid() {
		return false, fmt.Errorf("unknown mode %q", mode)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrClosed
	}
	if m.mode == mode {
		m.mu.Unlock()
		return false, nil
	}

	from := m.mode
	m.stopLocked()
	m.store = conversation.NewStore()
	err := m.startLocked(mode)
	m.version++
	m.mu.Unlock()

	m.notify()
	if err != nil {
		return false, err
	}
	m.logger.Info("mode switched", "from", from, "to", mode)
	return true, nil
}
