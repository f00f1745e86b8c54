package playback

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-kinetic/pkg/audioio"
)

// pcm returns d seconds of 24kHz PCM16 at a constant level.
func pcm(d float64, level float32) []byte {
	n := int(math.Round(d * audioio.OutputSampleRate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = level
	}
	return audioio.EncodePCM16(samples)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newTestScheduler() (*Scheduler, *ManualClock) {
	clock := &ManualClock{}
	return NewScheduler(DefaultConfig(), clock, nil), clock
}

func TestScheduler_GaplessSequence(t *testing.T) {
	s, clock := newTestScheduler()
	clock.Set(1.0)

	durations := []float64{0.5, 0.25, 1.0}
	var sources []*Source
	for _, d := range durations {
		src, err := s.Enqueue(pcm(d, 0.1))
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		sources = append(sources, src)
	}

	if !approx(sources[0].Start, 1.0) {
		t.Errorf("first start = %f, want 1.0", sources[0].Start)
	}
	for i := 1; i < len(sources); i++ {
		if !approx(sources[i].Start, sources[i-1].End()) {
			t.Errorf("fragment %d starts at %f, previous ends at %f", i, sources[i].Start, sources[i-1].End())
		}
	}
	if !approx(s.NextStartTime(), 2.75) {
		t.Errorf("NextStartTime = %f, want 2.75", s.NextStartTime())
	}
	if s.ActiveCount() != 3 {
		t.Errorf("ActiveCount = %d, want 3", s.ActiveCount())
	}
}

func TestScheduler_CursorBehindClock(t *testing.T) {
	s, clock := newTestScheduler()

	first, _ := s.Enqueue(pcm(0.5, 0.1))
	if !approx(first.Start, 0) {
		t.Fatalf("first start = %f, want 0", first.Start)
	}

	// Playback drained and time moved on: the next fragment starts now.
	clock.Set(3.0)
	second, _ := s.Enqueue(pcm(0.5, 0.1))
	if !approx(second.Start, 3.0) {
		t.Errorf("start = %f, want 3.0", second.Start)
	}
	if !approx(s.NextStartTime(), 3.5) {
		t.Errorf("NextStartTime = %f, want 3.5", s.NextStartTime())
	}
}

func TestScheduler_Interrupt(t *testing.T) {
	s, clock := newTestScheduler()
	clock.Set(2.0)

	var stoppedHook int
	s.SetHooks(Hooks{OnInterrupted: func(n int) { stoppedHook = n }})

	a, _ := s.Enqueue(pcm(0.5, 0.1))
	b, _ := s.Enqueue(pcm(0.5, 0.1))

	if n := s.Interrupt(); n != 2 {
		t.Errorf("Interrupt stopped %d, want 2", n)
	}
	if stoppedHook != 2 {
		t.Errorf("hook saw %d, want 2", stoppedHook)
	}
	if s.ActiveCount() != 0 || s.Playing() {
		t.Error("active set should be empty after interrupt")
	}
	if s.NextStartTime() != 0 {
		t.Errorf("NextStartTime = %f, want 0", s.NextStartTime())
	}
	if !a.Stopped() || !b.Stopped() {
		t.Error("all fragments should be stopped")
	}

	// Next fragment starts at the current clock, not after the old queue.
	c, _ := s.Enqueue(pcm(0.25, 0.1))
	if !approx(c.Start, 2.0) {
		t.Errorf("post-interrupt start = %f, want 2.0", c.Start)
	}

	// Completing a stopped fragment is ignored.
	if s.Complete(a) {
		t.Error("Complete should ignore fragments removed by interrupt")
	}
}

func TestScheduler_EmptyPayload(t *testing.T) {
	s, clock := newTestScheduler()
	clock.Set(1.0)
	s.Enqueue(pcm(0.5, 0.1))
	before := s.NextStartTime()

	src, err := s.Enqueue(nil)
	if src != nil || err != nil {
		t.Errorf("Enqueue(nil) = %v, %v; want nil, nil", src, err)
	}
	if s.NextStartTime() != before || s.ActiveCount() != 1 {
		t.Error("empty payload changed scheduler state")
	}
}

func TestScheduler_MalformedPayload(t *testing.T) {
	s, clock := newTestScheduler()
	clock.Set(1.0)
	s.Enqueue(pcm(0.5, 0.1))
	before := s.NextStartTime()

	var discarded error
	s.SetHooks(Hooks{OnDiscarded: func(err error) { discarded = err }})

	_, err := s.Enqueue([]byte{0x01, 0x02, 0x03})
	if !errors.Is(err, ErrMalformedAudio) {
		t.Fatalf("expected ErrMalformedAudio, got %v", err)
	}
	if discarded == nil {
		t.Error("OnDiscarded hook not called")
	}
	if s.NextStartTime() != before || s.ActiveCount() != 1 {
		t.Error("malformed payload changed scheduler state")
	}
}

func TestScheduler_Complete(t *testing.T) {
	s, _ := newTestScheduler()

	var ended []uint64
	s.SetHooks(Hooks{OnEnded: func(src *Source) { ended = append(ended, src.ID) }})

	a, _ := s.Enqueue(pcm(0.1, 0.1))
	b, _ := s.Enqueue(pcm(0.1, 0.1))

	if !s.Complete(a) {
		t.Fatal("Complete(a) returned false")
	}
	if s.Complete(a) {
		t.Error("second Complete(a) should return false")
	}
	active := s.Active()
	if len(active) != 1 || active[0] != b {
		t.Errorf("expected only b active, got %d fragments", len(active))
	}
	if len(ended) != 1 || ended[0] != a.ID {
		t.Errorf("OnEnded saw %v", ended)
	}
	// Natural completion leaves the cursor alone.
	if !approx(s.NextStartTime(), 0.2) {
		t.Errorf("NextStartTime = %f, want 0.2", s.NextStartTime())
	}
}

func TestScheduler_LevelDecaysWhenIdle(t *testing.T) {
	s, _ := newTestScheduler()
	src, _ := s.Enqueue(pcm(0.1, 0.5))
	src.observe(src.Samples)

	if s.Level() <= 0 {
		t.Error("expected a non-zero level while playing")
	}
	s.Complete(src)
	if s.Level() != 0 {
		t.Errorf("expected 0 with no active fragments, got %f", s.Level())
	}
}
