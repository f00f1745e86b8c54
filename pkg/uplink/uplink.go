// Package uplink pumps microphone blocks to the live session: each block
// updates the input level and is sent as a PCM16 chunk.
package uplink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-kinetic/internal/log"
	"github.com/teslashibe/go-kinetic/pkg/audioio"
	"github.com/teslashibe/go-kinetic/pkg/transport"
	"github.com/teslashibe/go-kinetic/pkg/volume"
)

// Sender accepts outbound chunks without blocking.
type Sender interface {
	Send(chunk transport.MediaChunk) error
}

// Uplink reads a source until stopped.
type Uplink struct {
	src      audioio.Source
	dst      Sender
	analyser *volume.Analyser
	meter    *volume.Meter
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	blocks  atomic.Int64
	refused atomic.Int64
}

// New wires src to dst. The analyser and meter receive every block.
func New(src audioio.Source, dst Sender, analyser *volume.Analyser, meter *volume.Meter) *Uplink {
	return &Uplink{
		src:      src,
		dst:      dst,
		analyser: analyser,
		meter:    meter,
		logger:   log.Component("uplink"),
	}
}

// Start begins pumping. Calling Start on a running uplink is a no-op.
func (u *Uplink) Start(ctx context.Context) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		return
	}
	ctx, u.cancel = context.WithCancel(ctx)
	u.done = make(chan struct{})
	go u.run(ctx, u.done)
}

// Stop halts the pump and waits for it to exit. The source is left open;
// its owner releases it.
func (u *Uplink) Stop() {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.cancel, u.done = nil, nil
	u.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	if u.meter != nil {
		u.meter.Reset()
	}
}

// Running reports whether the pump is active.
func (u *Uplink) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cancel != nil
}

// Stats returns blocks read and chunks the sender refused.
func (u *Uplink) Stats() (blocks, refused int64) {
	return u.blocks.Load(), u.refused.Load()
}

func (u *Uplink) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		chunk, err := u.src.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			u.logger.Warn("microphone read failed", "error", err)
			return
		}
		u.Process(chunk)
	}
}

// Process handles one block: meter it, encode it, send it.
func (u *Uplink) Process(chunk audioio.AudioChunk) {
	if len(chunk.Samples) == 0 {
		return
	}
	u.blocks.Add(1)

	samples := chunk.Samples
	if chunk.Channels > 1 {
		samples = audioio.DownmixToMono(samples, chunk.Channels)
	}
	rate := chunk.SampleRate
	if rate != audioio.InputSampleRate && rate > 0 {
		samples = audioio.Resample(samples, rate, audioio.InputSampleRate)
		rate = audioio.InputSampleRate
	}

	if u.analyser != nil {
		u.analyser.Write(samples)
		if u.meter != nil {
			u.meter.Set(u.analyser.Level())
		}
	}

	if err := u.dst.Send(transport.NewAudioChunk(audioio.EncodePCM16(samples), rate)); err != nil {
		if u.refused.Add(1) == 1 {
			u.logger.Debug("audio chunk not sent", "error", err)
		}
	}
}
