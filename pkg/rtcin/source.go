package rtcin

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-kinetic/pkg/audioio"
)

// Source is one session's view of the remote microphone. It re-blocks
// decoded audio into capture-sized chunks.
type Source struct {
	cfg audioio.Config

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan audioio.AudioChunk
	pending  []float32

	chunks   atomic.Int64
	samples  atomic.Int64
	overruns atomic.Int64
}

func newSource(cfg audioio.Config) *Source {
	return &Source{cfg: cfg}
}

// Start implements audioio.Source.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}
	s.running = true
	s.streamCh = make(chan audioio.AudioChunk, 16)
	s.pending = s.pending[:0]
	return nil
}

// push appends decoded 16kHz mono samples and emits full blocks.
func (s *Source) push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	block := s.cfg.BufferSize()
	s.pending = append(s.pending, samples...)
	for len(s.pending) >= block {
		out := make([]float32, block)
		copy(out, s.pending[:block])
		s.pending = s.pending[block:]

		select {
		case s.streamCh <- audioio.AudioChunk{Samples: out, SampleRate: s.cfg.SampleRate, Channels: 1}:
			s.chunks.Add(1)
			s.samples.Add(int64(block))
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop implements audioio.Source.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.streamCh)
	return nil
}

// Read implements audioio.Source.
func (s *Source) Read(ctx context.Context) (audioio.AudioChunk, error) {
	s.mu.Lock()
	ch := s.streamCh
	s.mu.Unlock()
	if ch == nil {
		return audioio.AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return audioio.AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return audioio.AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream implements audioio.Source.
func (s *Source) Stream() <-chan audioio.AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config implements audioio.Source.
func (s *Source) Config() audioio.Config { return s.cfg }

// Name returns "webrtc".
func (s *Source) Name() string { return "webrtc" }

// Processing reports that the browser applied echo cancellation, noise
// suppression and gain control before encoding.
func (s *Source) Processing() (bool, bool, bool) { return true, true, true }

// Close implements io.Closer.
func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats implements audioio.SourceWithStats.
func (s *Source) Stats() audioio.SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return audioio.SourceStats{
		ChunksRead:  s.chunks.Load(),
		SamplesRead: s.samples.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "webrtc",
	}
}

var _ audioio.SourceWithStats = (*Source)(nil)
