// Package sdk implements transport.Transport on the Google Gen AI SDK's
// Live API client.
package sdk

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/teslashibe/go-kinetic/pkg/transport"
)

// Client opens live sessions through the SDK.
type Client struct {
	logger *slog.Logger

	// newClient is replaced in tests.
	newClient func(ctx context.Context, apiKey string) (liveConnector, error)
}

// liveConnector is the subset of the SDK used here.
type liveConnector interface {
	Connect(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error)
}

type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// sdkConnector adapts *genai.Live to liveConnector.
type sdkConnector struct {
	live *genai.Live
}

func (c sdkConnector) Connect(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error) {
	return c.live.Connect(ctx, model, cfg)
}

// New creates a client.
func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		logger: logger.With("component", "transport", "transport", "sdk"),
		newClient: func(ctx context.Context, apiKey string) (liveConnector, error) {
			c, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return nil, err
			}
			return sdkConnector{live: c.Live}, nil
		},
	}
}

// Name returns "sdk".
func (c *Client) Name() string { return "sdk" }

// Connect opens a session in the background.
func (c *Client) Connect(ctx context.Context, cfg transport.Config, h transport.Handler) *transport.Future {
	f := transport.NewFuture()
	if err := cfg.Validate(); err != nil {
		f.Resolve(nil, err)
		go h.HandleEvent(transport.Event{Kind: transport.EventError, Err: err})
		return f
	}

	go func() {
		sess, err := c.open(ctx, cfg, h)
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

func (c *Client) open(ctx context.Context, cfg transport.Config, h transport.Handler) (*session, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	conn, err := c.newClient(connectCtx, cfg.APIKey)
	if err != nil {
		return nil, &transport.ConnectionError{Op: "dial", Err: err}
	}
	live, err := conn.Connect(connectCtx, cfg.Model, connectConfig(cfg))
	if err != nil {
		return nil, &transport.ConnectionError{Op: "dial", Err: err}
	}

	if err := c.awaitSetup(ctx, live, cfg.HandshakeTimeout); err != nil {
		live.Close()
		return nil, err
	}

	s := &session{live: live, handler: h, logger: c.logger}
	s.outbox = transport.NewOutbox(cfg.SendQueue, s.writeChunk, s.fail, c.logger)
	return s, nil
}

// awaitSetup reads until setupComplete arrives, giving up on timeout or
// when ctx is done. Messages before setupComplete are discarded since the
// session is not open yet. The caller must close live on error, which also
// unblocks the pending Receive.
func (c *Client) awaitSetup(ctx context.Context, live liveSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		for {
			msg, err := live.Receive()
			if err != nil {
				done <- &transport.ConnectionError{Op: "setup", Err: err}
				return
			}
			if msg != nil && msg.SetupComplete != nil {
				done <- nil
				return
			}
			c.logger.Debug("discarding message received before setup completed")
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return transport.ErrSetupTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func connectConfig(cfg transport.Config) *genai.LiveConnectConfig {
	modality := genai.Modality(cfg.ResponseModality)
	if modality == "" {
		modality = genai.ModalityAudio
	}
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{modality},
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	return lc
}

type session struct {
	live    liveSession
	handler transport.Handler
	logger  *slog.Logger
	outbox  *transport.Outbox

	sendMu sync.Mutex

	mu      sync.Mutex
	closing bool
	failed  bool
}

func (s *session) readLoop() {
	for {
		msg, err := s.live.Receive()
		if err != nil {
			s.finish(err)
			return
		}
		s.deliver(msg)
	}
}

func (s *session) deliver(msg *genai.LiveServerMessage) {
	if msg == nil {
		return
	}
	if msg.GoAway != nil {
		s.logger.Info("server going away")
	}
	if msg.ServerContent == nil {
		return
	}
	if in := decode(msg.ServerContent); !in.Empty() {
		s.handler.HandleEvent(transport.Event{Kind: transport.EventMessage, Message: in})
	}
}

func decode(sc *genai.LiveServerContent) transport.InboundMessage {
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
		if p == nil {
			continue
		}
		if p.Text != "" {
			in.Text += p.Text
		}
		if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/pcm") {
			in.Audio = append(in.Audio, p.InlineData.Data)
		}
	}
	return in
}

func (s *session) finish(err error) {
	s.mu.Lock()
	closing, failed := s.closing, s.failed
	s.closing = true
	s.mu.Unlock()

	s.outbox.Close()
	s.live.Close()

	switch {
	case failed:
	case closing:
		s.handler.HandleEvent(transport.Event{Kind: transport.EventClose, Reason: "closed by client"})
	case isNormalClose(err):
		s.handler.HandleEvent(transport.Event{Kind: transport.EventClose, Reason: err.Error()})
	default:
		s.handler.HandleEvent(transport.Event{
			Kind: transport.EventError,
			Err:  &transport.ConnectionError{Op: "read", Err: err},
		})
	}
}

// isNormalClose matches the SDK's error text for a 1000 close frame.
func isNormalClose(err error) bool {
	return err != nil && strings.Contains(err.Error(), "close 1000")
}

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
	s.live.Close()
}

func (s *session) writeChunk(c transport.MediaChunk) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	blob := &genai.Blob{MIMEType: c.MIMEType, Data: c.Data}
	input := genai.LiveRealtimeInput{Audio: blob}
	if c.Kind == transport.KindImage {
		input = genai.LiveRealtimeInput{Video: blob}
	}
	return s.live.SendRealtimeInput(input)
}

// Send queues a chunk.
func (s *session) Send(c transport.MediaChunk) error {
	s.mu.Lock()
	closing := s.closing || s.failed
	s.mu.Unlock()
	if closing {
		return transport.ErrClosed
	}
	return s.outbox.Push(c)
}

// Close ends the session. The read loop then reports EventClose.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	err := s.live.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var _ transport.Transport = (*Client)(nil)
