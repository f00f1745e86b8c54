// Package capture acquires the combined microphone and camera stream for a
// session and owns its lifetime.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/teslashibe/go-kinetic/pkg/audioio"
	"github.com/teslashibe/go-kinetic/pkg/camera"
)

// Sentinel errors for the capture package.
var (
	// ErrPermissionDenied indicates the OS refused access to a device.
	ErrPermissionDenied = errors.New("capture: permission denied")

	// ErrNoDevice indicates a required device is missing.
	ErrNoDevice = errors.New("capture: no device")
)

// AcquisitionError reports which track failed to open.
type AcquisitionError struct {
	Track string // "audio" or "video"
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("capture: %s: %v", e.Track, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Is maps platform errors onto the package sentinels.
func (e *AcquisitionError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return errors.Is(e.Err, os.ErrPermission)
	case ErrNoDevice:
		return errors.Is(e.Err, camera.ErrNoDevice) ||
			errors.Is(e.Err, os.ErrNotExist) ||
			errors.Is(e.Err, audioio.ErrBackendUnavailable)
	}
	return false
}

// AudioConstraints are requested microphone properties.
type AudioConstraints struct {
	EchoCancellation bool `yaml:"echo_cancellation" json:"echo_cancellation"`
	NoiseSuppression bool `yaml:"noise_suppression" json:"noise_suppression"`
	AutoGainControl  bool `yaml:"auto_gain_control" json:"auto_gain_control"`

	Config audioio.Config `yaml:"config" json:"config"`
}

// Constraints describe the stream to acquire.
type Constraints struct {
	Audio AudioConstraints `yaml:"audio" json:"audio"`
	Video camera.Config    `yaml:"video" json:"video"`
}

// DefaultConstraints enables all voice processing and asks for 720p from
// the environment-facing camera.
func DefaultConstraints() Constraints {
	return Constraints{
		Audio: AudioConstraints{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
			Config:           audioio.DefaultConfig(),
		},
		Video: camera.DefaultConfig(),
	}
}

// AudioSettings are what the microphone actually provides.
type AudioSettings struct {
	Backend          string `json:"backend"`
	SampleRate       int    `json:"sample_rate"`
	Channels         int    `json:"channels"`
	EchoCancellation bool   `json:"echo_cancellation"`
	NoiseSuppression bool   `json:"noise_suppression"`
	AutoGainControl  bool   `json:"auto_gain_control"`
}

// Settings are the applied stream properties.
type Settings struct {
	Audio AudioSettings   `json:"audio"`
	Video camera.Settings `json:"video"`

	// Downgraded names the constraints the platform did not honour.
	Downgraded []string `json:"downgraded,omitempty"`
}

// Processor is implemented by sources whose voice processing happens
// upstream, such as a browser peer.
type Processor interface {
	Processing() (echoCancellation, noiseSuppression, autoGainControl bool)
}

// Stream is an acquired audio+video stream.
type Stream struct {
	audio    audioio.Source
	video    camera.Device
	settings Settings

	once    sync.Once
	stopErr error
}

// NewStream wraps already opened tracks.
func NewStream(audio audioio.Source, video camera.Device, settings Settings) *Stream {
	return &Stream{audio: audio, video: video, settings: settings}
}

// Audio returns the microphone track.
func (s *Stream) Audio() audioio.Source { return s.audio }

// Video returns the camera track.
func (s *Stream) Video() camera.Device { return s.video }

// Settings returns the applied stream properties.
func (s *Stream) Settings() Settings { return s.settings }

// Stop releases every track. Both tracks are released even if one fails.
// Later calls return the first result.
func (s *Stream) Stop() error {
	s.once.Do(func() {
		var errs []error
		if s.audio != nil {
			if err := s.audio.Close(); err != nil {
				errs = append(errs, fmt.Errorf("audio: %w", err))
			}
		}
		if s.video != nil {
			if err := s.video.Close(); err != nil {
				errs = append(errs, fmt.Errorf("video: %w", err))
			}
		}
		s.stopErr = errors.Join(errs...)
	})
	return s.stopErr
}

// Acquirer opens a stream matching the constraints as closely as the
// platform allows.
type Acquirer interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
}

// settingsFor compares what was requested with what the tracks report.
func settingsFor(c Constraints, audio audioio.Source, video camera.Device) Settings {
	acfg := audio.Config()
	s := Settings{
		Audio: AudioSettings{
			Backend:    audio.Name(),
			SampleRate: acfg.SampleRate,
			Channels:   acfg.Channels,
		},
		Video: video.Settings(),
	}
	if p, ok := audio.(Processor); ok {
		s.Audio.EchoCancellation, s.Audio.NoiseSuppression, s.Audio.AutoGainControl = p.Processing()
	}

	if c.Audio.EchoCancellation && !s.Audio.EchoCancellation {
		s.Downgraded = append(s.Downgraded, "echo_cancellation")
	}
	if c.Audio.NoiseSuppression && !s.Audio.NoiseSuppression {
		s.Downgraded = append(s.Downgraded, "noise_suppression")
	}
	if c.Audio.AutoGainControl && !s.Audio.AutoGainControl {
		s.Downgraded = append(s.Downgraded, "auto_gain_control")
	}
	if s.Video.Width != 0 || s.Video.Height != 0 {
		s.Downgraded = append(s.Downgraded, camera.Downgraded(c.Video, s.Video)...)
	}
	return s
}
