package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// MockDevice is a camera for testing. It has no frame until SetFrame is
// called, unless created with a test pattern.
type MockDevice struct {
	cfg Config

	mu     sync.Mutex
	frame  image.Image
	open   bool
	closed int
	reads  int

	// OpenFunc overrides Open.
	OpenFunc func(ctx context.Context) error
}

// NewMockDevice creates a mock device.
func NewMockDevice(cfg Config) *MockDevice {
	return &MockDevice{cfg: cfg}
}

// NewPatternDevice creates a mock device that already holds a gradient
// test frame at the configured size.
func NewPatternDevice(cfg Config) *MockDevice {
	d := NewMockDevice(cfg)
	d.frame = TestPattern(cfg.Width, cfg.Height)
	return d
}

// TestPattern draws a horizontal gradient.
func TestPattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / max(w-1, 1))
			img.SetRGBA(x, y, color.RGBA{R: v, G: uint8(y * 255 / max(h-1, 1)), B: 128, A: 255})
		}
	}
	return img
}

// Open implements Device.
func (m *MockDevice) Open(ctx context.Context) error {
	if m.OpenFunc != nil {
		if err := m.OpenFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	return nil
}

// SetFrame replaces the current frame. nil clears it.
func (m *MockDevice) SetFrame(img image.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = img
}

// Frame implements Device.
func (m *MockDevice) Frame() (image.Image, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if !m.open || m.frame == nil {
		return nil, false
	}
	return m.frame, true
}

// Settings implements Device.
func (m *MockDevice) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Settings{Device: 0, Facing: m.cfg.Facing, Framerate: m.cfg.Framerate}
	if m.frame != nil {
		b := m.frame.Bounds()
		s.Width, s.Height = b.Dx(), b.Dy()
	}
	return s
}

// Name returns "mock".
func (m *MockDevice) Name() string { return "mock" }

// Close implements Device.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	m.closed++
	return nil
}

// CloseCount returns how many times Close was called.
func (m *MockDevice) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reads returns how many times Frame was called.
func (m *MockDevice) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

var _ Device = (*MockDevice)(nil)
