package transport

import (
	"context"
	"sync"
)

// Mock is a Transport for testing. Connect resolves immediately with a
// MockSession unless ConnectFunc says otherwise; tests drive events with
// the Simulate methods.
type Mock struct {
	mu sync.Mutex

	handler Handler
	session *MockSession
	future  *Future

	// ConnectFunc overrides the connect outcome.
	ConnectFunc func(ctx context.Context, cfg Config) (Session, error)

	// Defer leaves the future unresolved until Resolve is called.
	Defer bool

	// Captured calls for assertions.
	Configs []Config
}

// NewMock creates a new mock transport.
func NewMock() *Mock {
	return &Mock{}
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// Connect implements Transport.
func (m *Mock) Connect(ctx context.Context, cfg Config, h Handler) *Future {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Configs = append(m.Configs, cfg)
	m.handler = h
	m.session = &MockSession{}
	m.future = NewFuture()

	if m.Defer {
		return m.future
	}
	if m.ConnectFunc != nil {
		sess, err := m.ConnectFunc(ctx, cfg)
		m.future.Resolve(sess, err)
		return m.future
	}
	m.future.Resolve(m.session, nil)
	return m.future
}

// Resolve resolves a deferred connect with the mock session, or err.
func (m *Mock) Resolve(err error) {
	m.mu.Lock()
	f, sess := m.future, m.session
	m.mu.Unlock()
	if err != nil {
		f.Resolve(nil, err)
		return
	}
	f.Resolve(sess, nil)
}

// Session returns the most recent mock session.
func (m *Mock) Session() *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Mock) emit(ev Event) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h.HandleEvent(ev)
	}
}

// SimulateOpen delivers an open event.
func (m *Mock) SimulateOpen() { m.emit(Event{Kind: EventOpen}) }

// SimulateMessage delivers an inbound message.
func (m *Mock) SimulateMessage(msg InboundMessage) {
	m.emit(Event{Kind: EventMessage, Message: msg})
}

// SimulateClose delivers a close event.
func (m *Mock) SimulateClose(reason string) {
	m.emit(Event{Kind: EventClose, Reason: reason})
}

// SimulateError delivers an error event.
func (m *Mock) SimulateError(err error) {
	m.emit(Event{Kind: EventError, Err: err})
}

// MockSession records sent chunks.
type MockSession struct {
	mu     sync.Mutex
	sent   []MediaChunk
	closed int

	// SendFunc overrides Send.
	SendFunc func(chunk MediaChunk) error
}

// Send implements Session.
func (s *MockSession) Send(chunk MediaChunk) error {
	if s.SendFunc != nil {
		return s.SendFunc(chunk)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed > 0 {
		return ErrClosed
	}
	s.sent = append(s.sent, chunk)
	return nil
}

// Close implements Session.
func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Sent returns a copy of every chunk sent.
func (s *MockSession) Sent() []MediaChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MediaChunk, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentKind returns how many chunks of kind k were sent.
func (s *MockSession) SentKind(k ChunkKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.sent {
		if c.Kind == k {
			n++
		}
	}
	return n
}

// CloseCount returns how many times Close was called.
func (s *MockSession) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var (
	_ Transport = (*Mock)(nil)
	_ Session   = (*MockSession)(nil)
)
