package playback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-kinetic/pkg/audioio"
)

// Renderer mixes the scheduler's active fragments into an output sink
// block by block, advancing a DeviceClock as it goes. Fragments whose last
// sample has been written are completed on the scheduler.
type Renderer struct {
	sched  *Scheduler
	sink   audioio.Sink
	clock  *DeviceClock
	block  int
	logger *slog.Logger

	clears atomic.Uint64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewRenderer creates a renderer. The scheduler must have been built on
// the same clock.
func NewRenderer(sched *Scheduler, sink audioio.Sink, clock *DeviceClock, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := sink.Config()
	return &Renderer{
		sched:  sched,
		sink:   sink,
		clock:  clock,
		block:  cfg.BufferSize(),
		logger: logger.With("component", "renderer"),
	}
}

// Start opens the sink and begins rendering.
func (r *Renderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if err := r.sink.Start(ctx); err != nil {
		return fmt.Errorf("start sink: %w", err)
	}

	r.running = true
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(ctx, r.stopCh, r.done)

	r.logger.Info("renderer started", "sink", r.sink.Name(), "block", r.block)
	return nil
}

func (r *Renderer) loop(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if !audioio.IsPaced(r.sink) {
		period := time.Duration(float64(r.block) / float64(r.sched.SampleRate()) * float64(time.Second))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-tick:
			}
		}

		if err := r.RenderBlock(ctx); err != nil {
			select {
			case <-stopCh:
			default:
				r.logger.Warn("render failed", "error", err)
			}
			return
		}
	}
}

// RenderBlock mixes and writes one block.
//
// The block's frames are reserved on the clock before mixing, so Now
// reports the end of the block being written. A fragment enqueued while
// Write blocks lands in the next block instead of the one already mixed.
func (r *Renderer) RenderBlock(ctx context.Context) error {
	t0 := r.clock.Frames()
	r.clock.Advance(r.block)
	epoch := r.clears.Load()

	active := r.sched.Active()
	m := r.mix(active, t0)

	// An interruption that landed while mixing must not reach the sink.
	for _, src := range active {
		if src.Stopped() {
			m = r.mix(active, t0)
			break
		}
	}
	for i, src := range m.sources {
		src.observe(m.segs[i])
	}

	err := r.sink.Write(ctx, audioio.AudioChunk{
		Samples:    m.buf,
		SampleRate: r.sched.SampleRate(),
		Channels:   1,
	})

	// Cleared during Write: the block just handed over is stale.
	if err == nil && r.clears.Load() != epoch {
		err = r.sink.Clear()
	}

	for _, src := range m.finished {
		if !src.Stopped() {
			r.sched.Complete(src)
		}
	}
	return err
}

type mixed struct {
	buf      []float32
	sources  []*Source
	segs     [][]float32
	finished []*Source
}

// mix sums the live fragments overlapping [t0, t0+block) and reports
// which of them end inside it.
func (r *Renderer) mix(active []*Source, t0 int64) mixed {
	rate := float64(r.sched.SampleRate())
	end := t0 + int64(r.block)
	m := mixed{buf: make([]float32, r.block)}

	for _, src := range active {
		if src.Stopped() {
			continue
		}
		startFrame := int64(math.Round(src.Start * rate))
		endFrame := startFrame + int64(len(src.Samples))

		lo := max(startFrame, t0)
		hi := min(endFrame, end)
		if lo < hi {
			seg := src.Samples[lo-startFrame : hi-startFrame]
			for i, s := range seg {
				m.buf[lo-t0+int64(i)] += s
			}
			m.sources = append(m.sources, src)
			m.segs = append(m.segs, seg)
		}
		if endFrame <= end {
			m.finished = append(m.finished, src)
		}
	}

	for i, s := range m.buf {
		m.buf[i] = max(-1, min(1, s))
	}
	return m
}

// Clear drops audio already handed to the sink, including a block that
// is being written concurrently.
func (r *Renderer) Clear() error {
	r.clears.Add(1)
	return r.sink.Clear()
}

// Stop halts rendering and stops the sink. Safe to call multiple times.
func (r *Renderer) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	done := r.done
	r.mu.Unlock()

	err := r.sink.Stop()
	<-done
	r.logger.Info("renderer stopped")
	return err
}

// Close stops rendering and releases the sink.
func (r *Renderer) Close() error {
	err := r.Stop()
	if cerr := r.sink.Close(); err == nil {
		err = cerr
	}
	return err
}
