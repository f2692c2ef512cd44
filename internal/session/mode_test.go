package session

import (
	"errors"
	"strings"
	"testing"
)

func TestModeController_SameModeIsNoop(t *testing.T) {
	m, d := connected(t, RolePatient, "patient3", ModeExpert)
	h := d.Last(t)
	h.deliver("hello there")
	mc := NewModeController(m)

	for i := 0; i < 2; i++ {
		switched, err := mc.SwitchMode(ModeExpert)
		if err != nil {
			t.Fatalf("SwitchMode failed: %v", err)
		}
		if switched {
			t.Error("SwitchMode to the active mode reported a switch")
		}
	}
	if d.Count() != 1 {
		t.Errorf("dials = %d, want no reconnect", d.Count())
	}
	if h.closed != 0 {
		t.Error("connection closed by a no-op switch")
	}
	if n := m.Store().Len(); n != 1 {
		t.Errorf("store has %d messages, want it untouched", n)
	}
}

func TestModeController_SwitchClearsAndReconnects(t *testing.T) {
	m, d := connected(t, RolePatient, "patient3", ModeExpert)
	old := d.Last(t)
	old.deliver("expert says hi")
	if err := m.Send("patient says hi"); err != nil {
		t.Fatal(err)
	}
	oldStore := m.Store()
	mc := NewModeController(m)

	switched, err := mc.SwitchMode(ModeAutomated)
	if err != nil || !switched {
		t.Fatalf("SwitchMode = %v, %v", switched, err)
	}

	if mc.Mode() != ModeAutomated {
		t.Errorf("Mode() = %v", mc.Mode())
	}
	if old.closed == 0 {
		t.Error("old connection not closed")
	}
	if m.Store() == oldStore {
		t.Error("store was not replaced")
	}
	if n := m.Store().Len(); n != 0 {
		t.Errorf("new store has %d messages, want 0", n)
	}
	if d.Count() != 2 {
		t.Fatalf("dials = %d, want 2", d.Count())
	}
	fresh := d.Last(t)
	if !strings.Contains(fresh.url, "/ws/llm?") {
		t.Errorf("new connection url = %q", fresh.url)
	}

	// A frame from the old connection that was already in flight must not
	// reach the new conversation.
	old.deliver("stale expert reply")
	if n := m.Store().Len(); n != 0 {
		t.Errorf("stale frame leaked into new store")
	}

	fresh.open()
	fresh.deliver("I am the assistant.")
	msgs := m.Store().Messages()
	if len(msgs) != 1 || msgs[0].Label != "assistant" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestModeController_SwitchWhileConnecting(t *testing.T) {
	m, d := newTestManager(t, testConfig(), RolePatient, "patient6")
	if err := m.Start(DefaultModeFor("patient6")); err != nil {
		t.Fatal(err)
	}
	pending := d.Last(t)

	if _, err := NewModeController(m).SwitchMode(ModeExpert); err != nil {
		t.Fatal(err)
	}
	pending.open()
	pending.deliver("late")

	if got := m.State(); got != StateConnecting {
		t.Errorf("State() = %v, stale open must not install the old handle", got)
	}
	if n := m.Store().Len(); n != 0 {
		t.Errorf("stale frame appended")
	}
}

func TestModeController_ExpertCannotSwitch(t *testing.T) {
	m, _ := connected(t, RoleExpert, "doc1", "")
	if _, err := NewModeController(m).SwitchMode(ModeAutomated); !errors.Is(err, ErrModeNotSupported) {
		t.Errorf("SwitchMode = %v, want ErrModeNotSupported", err)
	}
}

func TestModeController_InvalidMode(t *testing.T) {
	m, _ := connected(t, RolePatient, "patient3", ModeExpert)
	if _, err := NewModeController(m).SwitchMode(Mode("robot")); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestModeController_AfterClose(t *testing.T) {
	m, _ := connected(t, RolePatient, "patient3", ModeExpert)
	m.Close()
	if _, err := NewModeController(m).SwitchMode(ModeAutomated); !errors.Is(err, ErrClosed) {
		t.Errorf("SwitchMode after Close = %v, want ErrClosed", err)
	}
}
