package capture

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-kinetic/internal/log"
	"github.com/teslashibe/go-kinetic/pkg/audioio"
	"github.com/teslashibe/go-kinetic/pkg/camera"
)

// AudioFactory creates an unstarted microphone source.
type AudioFactory func(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error)

// VideoFactory creates an unopened camera.
type VideoFactory func(cfg camera.Config) (camera.Device, error)

// Devices acquires local hardware through the given factories.
type Devices struct {
	newAudio AudioFactory
	newVideo VideoFactory
	logger   *slog.Logger
}

// NewDevices creates an Acquirer. A nil audio factory uses
// audioio.NewSource.
func NewDevices(newAudio AudioFactory, newVideo VideoFactory) *Devices {
	if newAudio == nil {
		newAudio = audioio.NewSource
	}
	return &Devices{
		newAudio: newAudio,
		newVideo: newVideo,
		logger:   log.Component("capture"),
	}
}

// Acquire opens the microphone and then the camera. If the camera fails
// the microphone is released before returning.
func (d *Devices) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	audio, err := d.newAudio(c.Audio.Config, d.logger)
	if err != nil {
		return nil, &AcquisitionError{Track: "audio", Err: err}
	}
	if err := audio.Start(ctx); err != nil {
		audio.Close()
		return nil, &AcquisitionError{Track: "audio", Err: err}
	}

	video, err := d.newVideo(c.Video)
	if err == nil {
		err = video.Open(ctx)
		if err != nil {
			video.Close()
		}
	}
	if err != nil {
		audio.Close()
		return nil, &AcquisitionError{Track: "video", Err: err}
	}

	settings := settingsFor(c, audio, video)
	if len(settings.Downgraded) > 0 {
		d.logger.Info("capture constraints downgraded",
			"constraints", settings.Downgraded,
			"audio_backend", settings.Audio.Backend,
			"video_device", settings.Video.Device)
	}
	d.logger.Debug("stream acquired",
		"sample_rate", settings.Audio.SampleRate,
		"width", settings.Video.Width,
		"height", settings.Video.Height)

	return NewStream(audio, video, settings), nil
}

var _ Acquirer = (*Devices)(nil)
