// Package sampler periodically snapshots the camera, downscales and
// JPEG-compresses the frame, and sends it to the live session.
package sampler

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/teslashibe/go-kinetic/internal/log"
	"github.com/teslashibe/go-kinetic/pkg/transport"
)

// Config holds sampler settings.
type Config struct {
	// Interval between snapshots.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// Width and Height of the transmitted still.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// Quality is the JPEG quality factor, 1-100.
	Quality int `yaml:"quality" json:"quality"`
}

// DefaultConfig sends a 640x360 still at quality 50 every 500ms.
func DefaultConfig() Config {
	return Config{
		Interval: 500 * time.Millisecond,
		Width:    640,
		Height:   360,
		Quality:  50,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("sampler: interval must be positive, got %v", c.Interval)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("sampler: invalid size %dx%d", c.Width, c.Height)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("sampler: quality must be 1-100, got %d", c.Quality)
	}
	return nil
}

// Source provides the latest camera frame. camera.Device satisfies it.
type Source interface {
	Frame() (image.Image, bool)
}

// Sender accepts outbound chunks without blocking. *transport.Future
// satisfies it.
type Sender interface {
	Send(chunk transport.MediaChunk) error
}

// Sampler owns at most one sampling timer.
type Sampler struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}

	onFrame atomic.Pointer[func(jpeg []byte)]

	loops   atomic.Int32
	ticks   atomic.Int64
	skipped atomic.Int64
	sent    atomic.Int64
}

// New creates a disarmed sampler.
func New(cfg Config) *Sampler {
	return &Sampler{
		cfg:    cfg,
		logger: log.Component("sampler"),
	}
}

// OnFrame registers a callback that receives every encoded still, for
// local preview. It runs on the sampling goroutine.
func (s *Sampler) OnFrame(fn func(jpeg []byte)) {
	if fn == nil {
		s.onFrame.Store(nil)
		return
	}
	s.onFrame.Store(&fn)
}

// Arm starts sampling src into dst. Any previous timer is disarmed first,
// so at most one timer is ever running.
func (s *Sampler) Arm(src Source, dst Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()

	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(src, dst, s.stopCh, s.done)

	s.logger.Debug("sampler armed",
		"interval", s.cfg.Interval,
		"width", s.cfg.Width,
		"height", s.cfg.Height)
}

// Disarm stops the timer and waits for an in-flight tick to finish. Safe
// to call when not armed.
func (s *Sampler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

func (s *Sampler) disarmLocked() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.done
	s.stopCh, s.done = nil, nil
}

// Active reports whether a timer is running.
func (s *Sampler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// Stats returns tick, skip and send counts.
func (s *Sampler) Stats() (ticks, skipped, sent int64) {
	return s.ticks.Load(), s.skipped.Load(), s.sent.Load()
}

func (s *Sampler) run(src Source, dst Sender, stopCh, done chan struct{}) {
	s.loops.Add(1)
	defer close(done)
	defer s.loops.Add(-1)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick(src, dst)
		}
	}
}

func (s *Sampler) tick(src Source, dst Sender) {
	s.ticks.Add(1)

	frame, ok := src.Frame()
	if !ok || frame == nil || frame.Bounds().Empty() {
		// No frame yet; try again next tick.
		s.skipped.Add(1)
		return
	}

	data, err := Encode(frame, s.cfg.Width, s.cfg.Height, s.cfg.Quality)
	if err != nil {
		s.logger.Debug("frame encode failed", "error", err)
		return
	}

	if err := dst.Send(transport.NewImageChunk(data)); err != nil {
		s.logger.Debug("frame not sent", "error", err)
	} else {
		s.sent.Add(1)
	}

	if fn := s.onFrame.Load(); fn != nil {
		(*fn)(data)
	}
}

// Encode scales img to fit within width x height, keeping its aspect
// ratio, and compresses it to JPEG.
func Encode(img image.Image, width, height, quality int) ([]byte, error) {
	w, h := Fit(img.Bounds().Dx(), img.Bounds().Dy(), width, height)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("sampler: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Fit returns the largest size with the aspect ratio of srcW x srcH that
// fits within maxW x maxH. Frames are never upscaled.
func Fit(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= maxW && srcH <= maxH {
		return srcW, srcH
	}
	sx := float64(maxW) / float64(srcW)
	sy := float64(maxH) / float64(srcH)
	scale := min(sx, sy)
	w := max(int(math.Round(float64(srcW)*scale)), 1)
	h := max(int(math.Round(float64(srcH)*scale)), 1)
	return min(w, maxW), min(h, maxH)
}
