package playback

import (
	"sync"
	"sync/atomic"
)

// DeviceClock counts frames handed to the output device.
type DeviceClock struct {
	rate   int
	frames atomic.Int64
}

// NewDeviceClock creates a clock at the given sample rate.
func NewDeviceClock(sampleRate int) *DeviceClock {
	return &DeviceClock{rate: sampleRate}
}

// Now returns rendered time in seconds.
func (c *DeviceClock) Now() float64 {
	return float64(c.frames.Load()) / float64(c.rate)
}

// Frames returns the number of rendered frames.
func (c *DeviceClock) Frames() int64 {
	return c.frames.Load()
}

// Advance moves the clock forward by n frames.
func (c *DeviceClock) Advance(n int) {
	c.frames.Add(int64(n))
}

// ManualClock is a Clock set by hand, for tests and offline rendering.
type ManualClock struct {
	mu  sync.Mutex
	now float64
}

// Now returns the current time.
func (c *ManualClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set sets the current time.
func (c *ManualClock) Set(t float64) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d float64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
