// Package audioio provides microphone capture and speaker playback.
//
// Samples travel through the package as normalized float32 values in
// [-1, 1]. PCM16 only appears at the wire boundary (see EncodePCM16).
//
// Backends:
//   - PortAudio - desktop capture/playback, built with -tags portaudio
//   - Mock - CI/testing without hardware
//
// WebRTC ingest sources live in package rtcin and satisfy Source.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects PortAudio when compiled in, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for cross-platform audio I/O.
	BackendPortAudio Backend = "portaudio"
	// BackendWebRTC takes microphone audio from a remote browser peer.
	BackendWebRTC Backend = "webrtc"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Sample rates used by the live session.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000

	// InputBlockSize is the number of samples per capture block.
	InputBlockSize = 4096
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of one block.
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is a PortAudio device name. Empty selects the system default.
	Device string `yaml:"device" json:"device"`
}

// DefaultConfig returns the capture configuration: 16kHz mono in
// 4096-sample blocks.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     InputSampleRate,
		Channels:       1,
		BufferDuration: time.Duration(InputBlockSize) * time.Second / InputSampleRate,
	}
}

// DefaultOutputConfig returns the playback configuration: 24kHz mono in
// 20ms blocks.
func DefaultOutputConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     OutputSampleRate,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	if c.BufferSize() == 0 {
		return fmt.Errorf("buffer_duration %v is shorter than one sample", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of frames per block.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate)*c.BufferDuration.Seconds() + 0.5)
}
