// Package transport defines the bidirectional session to the live model:
// outbound media chunks, inbound model messages and lifecycle events.
//
// Implementations live in subpackages: gemini (raw WebSocket) and sdk
// (Google Gen AI SDK).
package transport

import (
	"context"
	"fmt"
	"time"
)

// DefaultModel is the native-audio live model.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// ModalityAudio requests spoken responses.
const ModalityAudio = "AUDIO"

// Config holds session parameters sent at connect time.
type Config struct {
	APIKey string `yaml:"-" json:"-"`

	Model string `yaml:"model" json:"model"`

	// ResponseModality is the output modality, "AUDIO".
	ResponseModality string `yaml:"response_modality" json:"response_modality"`

	// SystemInstruction is taken from the chosen scenario.
	SystemInstruction string `yaml:"system_instruction" json:"system_instruction"`

	// OutputTranscription asks the server to caption its own speech.
	OutputTranscription bool `yaml:"output_transcription" json:"output_transcription"`

	// Voice is a prebuilt voice name. Empty keeps the server default.
	Voice string `yaml:"voice" json:"voice"`

	// SendQueue is the outbound chunk buffer size.
	SendQueue int `yaml:"send_queue" json:"send_queue"`

	// HandshakeTimeout bounds dial and setup.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
}

// DefaultConfig returns an audio session with output transcription on.
func DefaultConfig() Config {
	return Config{
		Model:               DefaultModel,
		ResponseModality:    ModalityAudio,
		OutputTranscription: true,
		SendQueue:           64,
		HandshakeTimeout:    10 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Model == "" {
		return ErrMissingModel
	}
	if c.SendQueue <= 0 {
		return fmt.Errorf("transport: send_queue must be positive, got %d", c.SendQueue)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("transport: handshake_timeout must be positive, got %v", c.HandshakeTimeout)
	}
	return nil
}

// Session is an established connection.
type Session interface {
	// Send queues a chunk for transmission without waiting for delivery.
	Send(chunk MediaChunk) error

	// Close requests the connection be closed. Safe to call multiple times.
	Close() error
}

// Transport opens sessions.
type Transport interface {
	// Connect starts connecting and returns immediately. The returned
	// Future resolves once with the session or the connect error. Events
	// for the session are delivered to h from a single goroutine, in
	// arrival order, and never from within Connect itself.
	Connect(ctx context.Context, cfg Config, h Handler) *Future

	// Name identifies the implementation.
	Name() string
}

// EventKind tags a lifecycle event.
type EventKind int

const (
	// EventOpen fires once the server has accepted the session setup.
	EventOpen EventKind = iota
	// EventMessage carries an inbound model message.
	EventMessage
	// EventClose fires when the connection ends.
	EventClose
	// EventError reports a fatal session error.
	EventError
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one lifecycle notification.
type Event struct {
	Kind EventKind

	// Message is set for EventMessage.
	Message InboundMessage

	// Err is set for EventError, and for EventClose when abnormal.
	Err error

	// Reason is the close reason, if any.
	Reason string
}

// Handler receives session events.
type Handler interface {
	HandleEvent(ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event)

// HandleEvent calls f(ev).
func (f HandlerFunc) HandleEvent(ev Event) {
	f(ev)
}
