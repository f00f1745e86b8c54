// Package session holds the connection lifecycle state machine.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the connection lifecycle state.
type State int

const (
	// Disconnected is the idle state; start is allowed.
	Disconnected State = iota
	// Connecting means devices are being acquired and the transport is
	// opening.
	Connecting
	// Connected means the transport is open and media is streaming.
	Connected
	// Error is terminal for the current run; only stop or a new start
	// leave it.
	Error
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrInvalidTransition is returned for transitions not in the table.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// transitions lists the allowed moves.
var transitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Error},
	Connected:    {Error, Disconnected},
	Error:        {Disconnected},
}

// Allowed reports whether from → to is a legal transition.
func Allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Change describes one transition.
type Change struct {
	From State
	To   State
	At   time.Time
}

// Machine owns the current state. Listeners run synchronously after each
// transition, in registration order, outside the lock.
type Machine struct {
	mu        sync.Mutex
	state     State
	since     time.Time
	listeners []func(Change)
	now       func() time.Time
}

// NewMachine creates a machine in Disconnected.
func NewMachine() *Machine {
	return &Machine{state: Disconnected, since: time.Now(), now: time.Now}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.since
}

// OnChange registers a listener.
func (m *Machine) OnChange(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Transition moves to the target state.
func (m *Machine) Transition(to State) error {
	_, err := m.TransitionFrom(nil, to)
	return err
}

// TransitionFrom moves to the target state only if the current state is
// one of from (any state when from is empty). It returns the previous
// state.
func (m *Machine) TransitionFrom(from []State, to State) (State, error) {
	m.mu.Lock()
	cur := m.state
	if len(from) > 0 && !contains(from, cur) {
		m.mu.Unlock()
		return cur, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, to)
	}
	if !Allowed(cur, to) {
		m.mu.Unlock()
		return cur, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, to)
	}
	m.state = to
	m.since = m.now()
	change := Change{From: cur, To: to, At: m.since}
	listeners := append([]func(Change){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
	return cur, nil
}

func contains(states []State, s State) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}
