package session

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Disconnected, "DISCONNECTED"},
		{Connecting, "CONNECTING"},
		{Connected, "CONNECTED"},
		{Error, "ERROR"},
		{State(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}

	data, err := json.Marshal(map[string]State{"state": Connected})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"state":"CONNECTED"}` {
		t.Errorf("unexpected JSON %s", data)
	}
}

func TestAllowed(t *testing.T) {
	all := []State{Disconnected, Connecting, Connected, Error}
	legal := map[[2]State]bool{
		{Disconnected, Connecting}: true,
		{Connecting, Connected}:    true,
		{Connecting, Error}:        true,
		{Connected, Error}:         true,
		{Connected, Disconnected}:  true,
		{Error, Disconnected}:      true,
	}
	for _, from := range all {
		for _, to := range all {
			want := legal[[2]State{from, to}]
			if got := Allowed(from, to); got != want {
				t.Errorf("Allowed(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestMachine_Lifecycle(t *testing.T) {
	m := NewMachine()
	if m.State() != Disconnected {
		t.Fatalf("initial state = %s", m.State())
	}

	var changes []Change
	m.OnChange(func(c Change) { changes = append(changes, c) })

	for _, to := range []State{Connecting, Connected, Disconnected} {
		if err := m.Transition(to); err != nil {
			t.Fatalf("Transition(%s): %v", to, err)
		}
	}
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}
	if changes[1].From != Connecting || changes[1].To != Connected {
		t.Errorf("unexpected change %+v", changes[1])
	}
}

func TestMachine_InvalidTransition(t *testing.T) {
	m := NewMachine()
	if err := m.Transition(Connected); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if m.State() != Disconnected {
		t.Error("state changed on invalid transition")
	}
}

func TestMachine_TransitionFrom(t *testing.T) {
	m := NewMachine()
	m.Transition(Connecting)

	prev, err := m.TransitionFrom([]State{Connected}, Disconnected)
	if !errors.Is(err, ErrInvalidTransition) || prev != Connecting {
		t.Errorf("guarded transition should fail from %s: %v", prev, err)
	}

	prev, err = m.TransitionFrom([]State{Connecting}, Error)
	if err != nil || prev != Connecting {
		t.Errorf("TransitionFrom: prev=%s err=%v", prev, err)
	}
	if m.State() != Error {
		t.Errorf("state = %s, want ERROR", m.State())
	}
}
