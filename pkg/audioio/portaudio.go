//go:build portaudio

package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portAudioAvailable = true

// openStream opens a blocking stream on the named device, or the default
// device when name is empty.
func openStream(cfg Config, input bool, buf []float32) (*portaudio.Stream, error) {
	if cfg.Device == "" {
		if input {
			return portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.BufferSize(), buf)
		}
		return portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), cfg.BufferSize(), buf)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name != cfg.Device {
			continue
		}
		var p portaudio.StreamParameters
		if input {
			p = portaudio.LowLatencyParameters(d, nil)
			p.Input.Channels = cfg.Channels
		} else {
			p = portaudio.LowLatencyParameters(nil, d)
			p.Output.Channels = cfg.Channels
		}
		p.SampleRate = float64(cfg.SampleRate)
		p.FramesPerBuffer = cfg.BufferSize()
		return portaudio.OpenStream(p, buf)
	}
	return nil, fmt.Errorf("audio device %q not found", cfg.Device)
}

// PortAudioSource captures microphone blocks with PortAudio.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	stream   *portaudio.Stream
	buf      []float32
	streamCh chan AudioChunk
	stopCh   chan struct{}
	done     chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &PortAudioSource{
		cfg:      cfg,
		logger:   logger,
		buf:      make([]float32, cfg.BufferSize()*cfg.Channels),
		streamCh: make(chan AudioChunk, 8),
	}, nil
}

// Start opens the input stream and begins capture.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	stream, err := openStream(s.cfg, true, s.buf)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start input stream: %w", err)
	}

	s.stream = stream
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.streamCh = make(chan AudioChunk, 8)

	go s.captureLoop(ctx, stream, s.streamCh, s.stopCh, s.done)

	s.logger.Info("portaudio source started", "device", s.cfg.Device, "sample_rate", s.cfg.SampleRate)
	return nil
}

func (s *PortAudioSource) captureLoop(ctx context.Context, stream *portaudio.Stream, out chan AudioChunk, stopCh, done chan struct{}) {
	defer close(done)
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.overruns.Add(1)
				continue
			}
			s.logger.Warn("portaudio read failed", "error", err)
			return
		}

		samples := make([]float32, len(s.buf))
		copy(samples, s.buf)
		chunk := AudioChunk{Samples: samples, SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}

		select {
		case out <- chunk:
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop halts capture and closes the device stream.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	stream, done := s.stream, s.done
	s.stream = nil
	s.mu.Unlock()

	err := stream.Stop()
	<-done
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	s.logger.Info("portaudio source stopped")
	return err
}

// Read reads the next block.
func (s *PortAudioSource) Read(ctx context.Context) (AudioChunk, error) {
	ch := s.Stream()
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the block channel.
func (s *PortAudioSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *PortAudioSource) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSource) Name() string { return "portaudio" }

// Close stops capture and releases PortAudio.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Stop()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

// Stats returns source statistics.
func (s *PortAudioSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "portaudio",
	}
}

// PortAudioSink plays blocks through a blocking PortAudio output stream.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	running bool
	closed  bool
	stream  *portaudio.Stream
	buf     []float32

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	underruns      atomic.Int64
}

func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &PortAudioSink{
		cfg:    cfg,
		logger: logger,
		buf:    make([]float32, cfg.BufferSize()*cfg.Channels),
	}, nil
}

// Start opens the output stream.
func (s *PortAudioSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	stream, err := openStream(s.cfg, false, s.buf)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start output stream: %w", err)
	}
	s.stream = stream
	s.running = true
	s.logger.Info("portaudio sink started", "device", s.cfg.Device, "sample_rate", s.cfg.SampleRate)
	return nil
}

// Stop closes the output stream.
func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	// Abort drops queued device buffers instead of draining them.
	err := stream.Abort()
	s.writeMu.Lock()
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	s.writeMu.Unlock()
	s.logger.Info("portaudio sink stopped")
	return err
}

// Write plays a block, splitting it into device-sized buffers. It blocks
// until the device accepts every buffer.
func (s *PortAudioSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	stream, running := s.stream, s.running
	s.mu.Unlock()
	if !running {
		return io.ErrClosedPipe
	}

	samples := chunk.Samples
	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(s.buf, samples)
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		samples = samples[n:]

		if err := stream.Write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				s.underruns.Add(1)
				continue
			}
			return fmt.Errorf("portaudio write: %w", err)
		}
	}

	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Clear is a no-op: the sink holds at most one device buffer.
func (s *PortAudioSink) Clear() error { return nil }

// Paced reports that Write blocks on the device.
func (s *PortAudioSink) Paced() bool { return true }

// Config returns the audio configuration.
func (s *PortAudioSink) Config() Config { return s.cfg }

// Name returns "portaudio".
func (s *PortAudioSink) Name() string { return "portaudio" }

// Close stops playback and releases PortAudio.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Stop()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

// Stats returns sink statistics.
func (s *PortAudioSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return SinkStats{
		ChunksWritten:  s.chunksWritten.Load(),
		SamplesWritten: s.samplesWritten.Load(),
		Underruns:      s.underruns.Load(),
		Running:        running,
		Backend:        "portaudio",
	}
}

var (
	_ SourceWithStats = (*PortAudioSource)(nil)
	_ SinkWithStats   = (*PortAudioSink)(nil)
	_ PacedSink       = (*PortAudioSink)(nil)
)
