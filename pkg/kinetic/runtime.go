package kinetic

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-kinetic/pkg/capture"
	"github.com/teslashibe/go-kinetic/pkg/metrics"
	"github.com/teslashibe/go-kinetic/pkg/playback"
	"github.com/teslashibe/go-kinetic/pkg/scenario"
	"github.com/teslashibe/go-kinetic/pkg/transport"
	"github.com/teslashibe/go-kinetic/pkg/uplink"
	"github.com/teslashibe/go-kinetic/pkg/volume"
)

// runtime is everything one session owns. It is built by Start and
// released by teardown; nothing in it outlives the session.
type runtime struct {
	id       uuid.UUID
	scenario scenario.Scenario
	started  time.Time
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	stream    *capture.Stream
	uplink    *uplink.Uplink
	clock     *playback.DeviceClock
	scheduler *playback.Scheduler
	renderer  *playback.Renderer

	mu     sync.Mutex
	future *transport.Future

	meterStop chan struct{}
	meterDone chan struct{}

	firstAudio sync.Once
	torn       sync.Once
	tornErr    error
}

func newRuntime(parent context.Context, sc scenario.Scenario, m *metrics.Metrics) *runtime {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &runtime{
		id:       uuid.New(),
		scenario: sc,
		started:  time.Now(),
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (rt *runtime) setFuture(f *transport.Future) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.future = f
}

func (rt *runtime) getFuture() *transport.Future {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.future
}

// Send hands a chunk to the session future and counts it. It makes the
// runtime the single sender shared by the uplink and the sampler.
func (rt *runtime) Send(chunk transport.MediaChunk) error {
	f := rt.getFuture()
	if f == nil {
		return transport.ErrNotConnected
	}
	err := f.Send(chunk)
	if rt.metrics != nil {
		if err != nil {
			rt.metrics.ChunksDropped.WithLabelValues(chunk.Kind.String()).Inc()
		} else {
			rt.metrics.ChunksSent.WithLabelValues(chunk.Kind.String()).Inc()
		}
	}
	return err
}

// startMeter recomputes the output level every interval until stopped.
// With nothing playing the level drops to 0.
func (rt *runtime) startMeter(interval time.Duration, out *volume.Meter, changed func()) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.meterStop != nil || rt.scheduler == nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	rt.meterStop, rt.meterDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				prev := out.Value()
				out.Set(rt.scheduler.Level())
				if out.Value() != prev && changed != nil {
					changed()
				}
			}
		}
	}()
}

func (rt *runtime) stopMeter() {
	rt.mu.Lock()
	stop, done := rt.meterStop, rt.meterDone
	rt.meterStop, rt.meterDone = nil, nil
	rt.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

var _ uplink.Sender = (*runtime)(nil)
