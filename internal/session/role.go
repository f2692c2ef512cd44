package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Role is fixed at login.
type Role string

const (
	RolePatient Role = "patient"
	RoleExpert  Role = "expert"
)

// ParseRole parses a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RolePatient, RoleExpert:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q (want patient or expert)", s)
	}
}

// Mode selects the patient's conversation partner.
type Mode string

const (
	// ModeExpert talks to a human expert.
	ModeExpert Mode = "expert"
	// ModeAutomated talks to the automated responder.
	ModeAutomated Mode = "automated"
)

// ParseMode parses a mode name. "llm" and "ai" are accepted for automated.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expert", "human":
		return ModeExpert, nil
	case "automated", "llm", "ai":
		return ModeAutomated, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want expert or automated)", s)
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeExpert || m == ModeAutomated
}

// automatedFrom is the lowest identity suffix that defaults to automated.
const automatedFrom = 6

// DefaultModeFor derives a patient's initial mode from the identity's
// numeric suffix: the last one or two trailing digits, read as a number,
// select automated when >= 6. Identities without a numeric suffix start in
// expert mode.
func DefaultModeFor(identity string) Mode {
	start := len(identity)
	for start > 0 && identity[start-1] >= '0' && identity[start-1] <= '9' {
		start--
	}
	digits := identity[start:]
	if digits == "" {
		return ModeExpert
	}
	if len(digits) > 2 {
		digits = digits[len(digits)-2:]
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < automatedFrom {
		return ModeExpert
	}
	return ModeAutomated
}

// SelfLabel is the display label for messages the local user sends.
func SelfLabel(role Role) string {
	return string(role)
}

// PeerLabel is the display label for inbound chat messages.
func PeerLabel(role Role, mode Mode) string {
	if role == RoleExpert {
		return "patient"
	}
	if mode == ModeAutomated {
		return "assistant"
	}
	return "expert"
}

// SystemLabel is the display label for locally generated notices.
const SystemLabel = "system"
