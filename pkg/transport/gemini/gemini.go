// Package gemini implements transport.Transport directly over the Gemini
// Live BidiGenerateContent WebSocket.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-kinetic/pkg/transport"
)

// DefaultEndpoint is the Gemini Live WebSocket endpoint.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const writeTimeout = 5 * time.Second

// Client dials live sessions.
type Client struct {
	// Endpoint overrides DefaultEndpoint.
	Endpoint string

	logger *slog.Logger
}

// New creates a client.
func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Endpoint: DefaultEndpoint,
		logger:   logger.With("component", "transport", "transport", "websocket"),
	}
}

// Name returns "websocket".
func (c *Client) Name() string { return "websocket" }

// Connect dials and configures a session in the background.
func (c *Client) Connect(ctx context.Context, cfg transport.Config, h transport.Handler) *transport.Future {
	f := transport.NewFuture()
	if err := cfg.Validate(); err != nil {
		f.Resolve(nil, err)
		go h.HandleEvent(transport.Event{Kind: transport.EventError, Err: err})
		return f
	}

	go func() {
		sess, err := c.dial(ctx, cfg, h)
		if err != nil {
			c.logger.Warn("live session failed to open", "error", err)
			f.Resolve(nil, err)
			h.HandleEvent(transport.Event{Kind: transport.EventError, Err: err})
			return
		}
		f.Resolve(sess, nil)
		c.logger.Info("live session open", "model", cfg.Model)
		h.HandleEvent(transport.Event{Kind: transport.EventOpen})
		sess.readLoop()
	}()
	return f
}

func (c *Client) dial(ctx context.Context, cfg transport.Config, h transport.Handler) (*session, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, &transport.ConnectionError{Op: "dial", Err: err}
	}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	ws, resp, err := dialer.DialContext(dialCtx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &transport.ConnectionError{Op: "dial", Err: fmt.Errorf("http %d: %w", resp.StatusCode, err)}
		}
		return nil, &transport.ConnectionError{Op: "dial", Err: err}
	}

	s := &session{
		ws:      ws,
		handler: h,
		logger:  c.logger,
	}

	if err := s.writeJSON(buildSetup(cfg)); err != nil {
		ws.Close()
		return nil, &transport.ConnectionError{Op: "setup", Err: err}
	}
	if err := s.awaitSetup(cfg.HandshakeTimeout); err != nil {
		ws.Close()
		return nil, err
	}

	s.outbox = transport.NewOutbox(cfg.SendQueue, s.writeChunk, s.fail, c.logger)
	return s, nil
}

func buildSetup(cfg transport.Config) setupMessage {
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	modality := cfg.ResponseModality
	if modality == "" {
		modality = transport.ModalityAudio
	}

	msg := setupMessage{Setup: setup{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{modality},
		},
	}}
	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoice{VoiceName: cfg.Voice}},
		}
	}
	if cfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &content{Parts: []textPart{{Text: cfg.SystemInstruction}}}
	}
	if cfg.OutputTranscription {
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}
	return msg
}

// session is one open WebSocket.
type session struct {
	ws      *websocket.Conn
	wsMu    sync.Mutex
	handler transport.Handler
	logger  *slog.Logger
	outbox  *transport.Outbox

	mu      sync.Mutex
	closing bool
	failed  bool
}

// awaitSetup reads until setupComplete arrives or the timeout passes.
func (s *session) awaitSetup(timeout time.Duration) error {
	s.ws.SetReadDeadline(time.Now().Add(timeout))
	defer s.ws.SetReadDeadline(time.Time{})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			var ne interface{ Timeout() bool }
			if errors.As(err, &ne) && ne.Timeout() {
				return transport.ErrSetupTimeout
			}
			return &transport.ConnectionError{Op: "setup", Code: closeCode(err), Err: err}
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func (s *session) readLoop() {
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("ignoring unparseable message", "error", err)
			continue
		}
		if msg.GoAway != nil {
			s.logger.Info("server going away", "time_left", msg.GoAway.TimeLeft)
		}
		if msg.ServerContent == nil {
			continue
		}

		in := s.decode(msg.ServerContent)
		if !in.Empty() {
			s.handler.HandleEvent(transport.Event{Kind: transport.EventMessage, Message: in})
		}
	}
}

func (s *session) decode(sc *serverContent) transport.InboundMessage {
	in := transport.InboundMessage{
		Interrupted:  sc.Interrupted,
		TurnComplete: sc.TurnComplete,
	}
	if sc.OutputTranscription != nil {
		in.Transcription = sc.OutputTranscription.Text
	}
	if sc.ModelTurn == nil {
		return in
	}
	for _, p := range sc.ModelTurn.Parts {
		if p.Text != "" {
			in.Text += p.Text
		}
		if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, "audio/pcm") {
			continue
		}
		audio, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			s.logger.Warn("dropping undecodable audio part", "error", err)
			continue
		}
		in.Audio = append(in.Audio, audio)
	}
	return in
}

// finish reports how the read loop ended.
func (s *session) finish(err error) {
	s.mu.Lock()
	closing, failed := s.closing, s.failed
	s.closing = true
	s.mu.Unlock()

	s.outbox.Close()
	s.ws.Close()

	if failed {
		return
	}
	if closing {
		s.handler.HandleEvent(transport.Event{Kind: transport.EventClose, Reason: "closed by client"})
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		s.logger.Info("live session closed by server", "code", ce.Code, "reason", ce.Text)
		ev := transport.Event{Kind: transport.EventClose, Reason: ce.Text}
		if ce.Code != websocket.CloseNormalClosure {
			ev.Err = &transport.ConnectionError{Op: "read", Code: ce.Code, Err: err}
		}
		s.handler.HandleEvent(ev)
		return
	}
	s.handler.HandleEvent(transport.Event{
		Kind: transport.EventError,
		Err:  &transport.ConnectionError{Op: "read", Err: err},
	})
}

// fail reports an outbound write failure once.
func (s *session) fail(err error) {
	s.mu.Lock()
	if s.closing || s.failed {
		s.mu.Unlock()
		return
	}
	s.failed = true
	s.mu.Unlock()

	s.handler.HandleEvent(transport.Event{
		Kind: transport.EventError,
		Err:  &transport.ConnectionError{Op: "write", Err: err},
	})
	s.ws.Close()
}

func (s *session) writeChunk(c transport.MediaChunk) error {
	return s.writeJSON(realtimeInputMessage{RealtimeInput: realtimeInput{
		MediaChunks: []blob{{MIMEType: c.MIMEType, Data: c.Base64()}},
	}})
}

func (s *session) writeJSON(v any) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.ws.WriteJSON(v)
}

// Send queues a chunk for the writer goroutine.
func (s *session) Send(c transport.MediaChunk) error {
	s.mu.Lock()
	closing := s.closing || s.failed
	s.mu.Unlock()
	if closing {
		return transport.ErrClosed
	}
	return s.outbox.Push(c)
}

// Close sends a close frame and shuts the socket. The read loop then
// reports EventClose.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	s.wsMu.Lock()
	s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.wsMu.Unlock()
	return s.ws.Close()
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

var _ transport.Transport = (*Client)(nil)
