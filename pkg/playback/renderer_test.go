package playback

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-kinetic/pkg/audioio"
)

func newTestRenderer(t *testing.T) (*Renderer, *Scheduler, *DeviceClock, *audioio.MockSink) {
	t.Helper()
	clock := NewDeviceClock(audioio.OutputSampleRate)
	sched := NewScheduler(DefaultConfig(), clock, nil)
	sink := audioio.NewMockSink(audioio.DefaultOutputConfig(), nil)
	if err := sink.Start(context.Background()); err != nil {
		t.Fatalf("sink start: %v", err)
	}
	return NewRenderer(sched, sink, clock, nil), sched, clock, sink
}

func TestRenderer_MixesAndCompletes(t *testing.T) {
	r, sched, clock, sink := newTestRenderer(t)
	ctx := context.Background()

	// 30ms then 10ms: spans two 20ms blocks.
	a, _ := sched.Enqueue(pcm(0.03, 0.25))
	b, _ := sched.Enqueue(pcm(0.01, 0.5))

	if err := r.RenderBlock(ctx); err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	if clock.Frames() != 480 {
		t.Errorf("clock frames = %d, want 480", clock.Frames())
	}
	if sched.ActiveCount() != 2 {
		t.Errorf("expected both fragments active after first block, got %d", sched.ActiveCount())
	}

	if err := r.RenderBlock(ctx); err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	if sched.ActiveCount() != 0 {
		t.Errorf("expected fragments completed after second block, got %d", sched.ActiveCount())
	}

	written := sink.Written()
	if len(written) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(written))
	}
	second := written[1].Samples
	// a covers frames 480..719, b covers 720..959.
	if math.Abs(float64(second[0]-0.25)) > 1e-3 {
		t.Errorf("frame 480 = %f, want 0.25", second[0])
	}
	if math.Abs(float64(second[300]-0.5)) > 1e-3 {
		t.Errorf("frame 780 = %f, want 0.5", second[300])
	}
	if a.Stopped() || b.Stopped() {
		t.Error("naturally completed fragments should not be marked stopped")
	}
}

func TestRenderer_SkipsFutureAndStopped(t *testing.T) {
	r, sched, clock, sink := newTestRenderer(t)
	ctx := context.Background()

	src, _ := sched.Enqueue(pcm(0.02, 0.5))
	sched.Interrupt()

	if err := r.RenderBlock(ctx); err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	for _, s := range sink.Written()[0].Samples {
		if s != 0 {
			t.Fatal("stopped fragment was rendered")
		}
	}
	if !src.Stopped() {
		t.Error("expected stopped fragment")
	}

	// Fragment scheduled at the current clock starts in the next block.
	next, _ := sched.Enqueue(pcm(0.02, 0.5))
	if !approx(next.Start, clock.Now()) {
		t.Errorf("start = %f, want %f", next.Start, clock.Now())
	}
}

// pacedSink is a MockSink that reports Paced and runs a hook inside Write,
// standing in for a device whose Write blocks.
type pacedSink struct {
	*audioio.MockSink
	onWrite func(n int)
	writes  int
}

func (s *pacedSink) Paced() bool { return true }

func (s *pacedSink) Write(ctx context.Context, chunk audioio.AudioChunk) error {
	s.writes++
	if s.onWrite != nil {
		s.onWrite(s.writes)
	}
	return s.MockSink.Write(ctx, chunk)
}

func newPacedRenderer(t *testing.T) (*Renderer, *Scheduler, *DeviceClock, *pacedSink) {
	t.Helper()
	clock := NewDeviceClock(audioio.OutputSampleRate)
	sched := NewScheduler(DefaultConfig(), clock, nil)
	sink := &pacedSink{MockSink: audioio.NewMockSink(audioio.DefaultOutputConfig(), nil)}
	if err := sink.Start(context.Background()); err != nil {
		t.Fatalf("sink start: %v", err)
	}
	return NewRenderer(sched, sink, clock, nil), sched, clock, sink
}

func TestRenderer_EnqueueDuringWrite(t *testing.T) {
	r, sched, clock, sink := newPacedRenderer(t)
	ctx := context.Background()

	var frag *Source
	sink.onWrite = func(n int) {
		if n != 1 {
			return
		}
		// The first block is already mixed; the clock must point past it.
		if clock.Frames() != 480 {
			t.Errorf("clock frames during write = %d, want 480", clock.Frames())
		}
		src, err := sched.Enqueue(pcm(0.04, 0.5))
		if err != nil {
			t.Errorf("Enqueue: %v", err)
		}
		frag = src
	}

	for i := 0; i < 4; i++ {
		if err := r.RenderBlock(ctx); err != nil {
			t.Fatalf("RenderBlock %d: %v", i, err)
		}
	}

	if frag == nil {
		t.Fatal("fragment was not enqueued")
	}
	if !approx(frag.Start, 0.02) {
		t.Errorf("start = %f, want 0.02", frag.Start)
	}

	rendered := 0
	for _, chunk := range sink.Written() {
		for _, s := range chunk.Samples {
			if math.Abs(float64(s-0.5)) < 1e-3 {
				rendered++
			}
		}
	}
	if rendered != 960 {
		t.Errorf("rendered %d frames, want 960", rendered)
	}
	if sched.Playing() {
		t.Error("fragment should have completed")
	}
}

func TestRenderer_ClearDuringWrite(t *testing.T) {
	r, sched, _, sink := newPacedRenderer(t)
	ctx := context.Background()

	src, _ := sched.Enqueue(pcm(0.1, 0.5))
	sink.onWrite = func(n int) {
		if n == 1 {
			sched.Interrupt()
			if err := r.Clear(); err != nil {
				t.Errorf("Clear: %v", err)
			}
		}
	}

	if err := r.RenderBlock(ctx); err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	// One clear from the interruption, one for the block in flight.
	if sink.Clears() != 2 {
		t.Errorf("clears = %d, want 2", sink.Clears())
	}
	if !src.Stopped() {
		t.Error("expected stopped fragment")
	}

	if err := r.RenderBlock(ctx); err != nil {
		t.Fatalf("RenderBlock: %v", err)
	}
	for _, s := range sink.Written()[1].Samples {
		if s != 0 {
			t.Fatal("interrupted fragment rendered after clear")
		}
	}
	if sink.Clears() != 2 {
		t.Errorf("clears = %d after quiet block, want 2", sink.Clears())
	}
}

func TestRenderer_StartStop(t *testing.T) {
	clock := NewDeviceClock(audioio.OutputSampleRate)
	sched := NewScheduler(DefaultConfig(), clock, nil)
	sink := audioio.NewMockSink(audioio.DefaultOutputConfig(), nil)
	r := NewRenderer(sched, sink, clock, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sched.Enqueue(pcm(0.04, 0.2))

	deadline := time.After(time.Second)
	for sched.Playing() {
		select {
		case <-deadline:
			t.Fatal("fragment never completed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !sink.Closed() {
		t.Error("sink should be closed")
	}
}
