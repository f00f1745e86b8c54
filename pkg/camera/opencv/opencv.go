// Package opencv captures frames from a local camera through gocv.
package opencv

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-kinetic/internal/log"
	"github.com/teslashibe/go-kinetic/pkg/camera"
)

// Device reads frames on a background goroutine and keeps the latest one.
type Device struct {
	cfg    camera.Config
	logger *slog.Logger

	mu       sync.RWMutex
	vc       *gocv.VideoCapture
	latest   image.Image
	settings camera.Settings
	closed   bool

	stopCh chan struct{}
	done   chan struct{}
}

// New creates an unopened device.
func New(cfg camera.Config) *Device {
	return &Device{
		cfg:    cfg,
		logger: log.Component("camera"),
	}
}

// Open tries each candidate index until one opens, then requests the
// configured resolution and reads back what the driver applied.
func (d *Device) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.vc != nil {
		return nil
	}
	if d.closed {
		return camera.ErrClosed
	}

	for _, idx := range d.cfg.Candidates() {
		if err := ctx.Err(); err != nil {
			return err
		}
		vc, err := gocv.OpenVideoCapture(idx)
		if err != nil {
			d.logger.Debug("camera index unavailable", "index", idx, "error", err)
			continue
		}
		if !vc.IsOpened() {
			vc.Close()
			continue
		}

		vc.Set(gocv.VideoCaptureFrameWidth, float64(d.cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(d.cfg.Height))
		vc.Set(gocv.VideoCaptureFPS, float64(d.cfg.Framerate))

		d.vc = vc
		d.settings = camera.Settings{
			Device:    idx,
			Width:     int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:    int(vc.Get(gocv.VideoCaptureFrameHeight)),
			Framerate: int(vc.Get(gocv.VideoCaptureFPS)),
		}
		d.stopCh = make(chan struct{})
		d.done = make(chan struct{})
		go d.readLoop(vc, d.stopCh, d.done)

		d.logger.Info("camera opened",
			"index", idx,
			"width", d.settings.Width,
			"height", d.settings.Height,
			"fps", d.settings.Framerate)
		return nil
	}
	return fmt.Errorf("%w: tried indices %v", camera.ErrNoDevice, d.cfg.Candidates())
}

func (d *Device) readLoop(vc *gocv.VideoCapture, stopCh, done chan struct{}) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()

	misses := 0
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if ok := vc.Read(&mat); !ok || mat.Empty() {
			misses++
			if misses == 30 {
				d.logger.Warn("camera is not delivering frames")
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0

		img, err := mat.ToImage()
		if err != nil {
			d.logger.Debug("frame conversion failed", "error", err)
			continue
		}

		d.mu.Lock()
		d.latest = img
		d.mu.Unlock()
	}
}

// Frame implements camera.Device.
func (d *Device) Frame() (image.Image, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest, d.latest != nil
}

// Settings implements camera.Device.
func (d *Device) Settings() camera.Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// Name returns "opencv".
func (d *Device) Name() string { return "opencv" }

// Close stops the reader and releases the capture device.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	vc, stopCh, done := d.vc, d.stopCh, d.done
	d.vc = nil
	d.latest = nil
	d.mu.Unlock()

	if vc == nil {
		return nil
	}
	close(stopCh)
	<-done
	return vc.Close()
}

var _ camera.Device = (*Device)(nil)
