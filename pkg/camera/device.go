package camera

import (
	"context"
	"errors"
	"image"
)

// Sentinel errors for the camera package.
var (
	// ErrNoDevice indicates no camera could be opened.
	ErrNoDevice = errors.New("camera: no device available")

	// ErrClosed indicates the device was closed.
	ErrClosed = errors.New("camera: device closed")
)

// Settings are the values a device actually applied.
type Settings struct {
	Device    int    `json:"device"`
	Facing    Facing `json:"facing"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Framerate int    `json:"framerate"`
}

// Device is an open video track.
type Device interface {
	// Open acquires the device and starts capturing.
	Open(ctx context.Context) error

	// Frame returns the latest frame. ok is false until the first frame
	// has arrived.
	Frame() (img image.Image, ok bool)

	// Settings reports what the device applied.
	Settings() Settings

	// Name returns the backend name.
	Name() string

	// Close stops capture and releases the device. Safe to call multiple
	// times.
	Close() error
}

// Downgraded lists constraints the device did not honour.
func Downgraded(want Config, got Settings) []string {
	var out []string
	if got.Width != want.Width || got.Height != want.Height {
		out = append(out, "resolution")
	}
	if want.Device >= 0 && got.Device != want.Device {
		out = append(out, "device")
	}
	if got.Facing != "" && got.Facing != want.Facing {
		out = append(out, "facing")
	}
	return out
}
