package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/teslashibe/go-kinetic/pkg/audioio"
	"github.com/teslashibe/go-kinetic/pkg/camera"
)

func mockAudio(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error) {
	return audioio.NewMockSource(cfg, logger, audioio.WithoutGenerator()), nil
}

func TestDevicesAcquire(t *testing.T) {
	var cam *camera.MockDevice
	d := NewDevices(mockAudio, func(cfg camera.Config) (camera.Device, error) {
		cam = camera.NewPatternDevice(cfg)
		return cam, nil
	})

	c := DefaultConstraints()
	s, err := d.Acquire(context.Background(), c)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	got := s.Settings()
	if got.Audio.SampleRate != audioio.InputSampleRate {
		t.Errorf("sample rate = %d", got.Audio.SampleRate)
	}
	if got.Video.Width != 1280 || got.Video.Height != 720 {
		t.Errorf("video = %dx%d", got.Video.Width, got.Video.Height)
	}
	// The mock microphone has no voice processing.
	want := []string{"echo_cancellation", "noise_suppression", "auto_gain_control"}
	if fmt.Sprint(got.Downgraded) != fmt.Sprint(want) {
		t.Errorf("Downgraded = %v, want %v", got.Downgraded, want)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if cam.CloseCount() != 1 {
		t.Errorf("camera closed %d times, want 1", cam.CloseCount())
	}
	if s.Audio().(*audioio.MockSource).Running() {
		t.Error("microphone still running after Stop")
	}
}

func TestDevicesAcquireVideoFailure(t *testing.T) {
	var mic *audioio.MockSource
	d := NewDevices(func(cfg audioio.Config, logger *slog.Logger) (audioio.Source, error) {
		mic = audioio.NewMockSource(cfg, logger, audioio.WithoutGenerator())
		return mic, nil
	}, func(cfg camera.Config) (camera.Device, error) {
		dev := camera.NewMockDevice(cfg)
		dev.OpenFunc = func(context.Context) error { return camera.ErrNoDevice }
		return dev, nil
	})

	_, err := d.Acquire(context.Background(), DefaultConstraints())
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("Acquire() error = %v, want ErrNoDevice", err)
	}
	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) || acqErr.Track != "video" {
		t.Errorf("error = %#v, want video AcquisitionError", err)
	}
	if mic.Running() {
		t.Error("microphone leaked after camera failure")
	}
}

func TestDevicesAcquireAudioFailure(t *testing.T) {
	videoCalled := false
	d := NewDevices(func(audioio.Config, *slog.Logger) (audioio.Source, error) {
		return nil, fmt.Errorf("open /dev/snd: %w", os.ErrPermission)
	}, func(cfg camera.Config) (camera.Device, error) {
		videoCalled = true
		return camera.NewMockDevice(cfg), nil
	})

	_, err := d.Acquire(context.Background(), DefaultConstraints())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Acquire() error = %v, want ErrPermissionDenied", err)
	}
	if errors.Is(err, ErrNoDevice) {
		t.Error("permission error should not match ErrNoDevice")
	}
	if videoCalled {
		t.Error("camera opened after microphone failure")
	}
}

type processedSource struct {
	*audioio.MockSource
}

func (processedSource) Processing() (bool, bool, bool) { return true, true, true }

func TestSettingsProcessor(t *testing.T) {
	c := DefaultConstraints()
	src := processedSource{audioio.NewMockSource(c.Audio.Config, nil)}
	s := settingsFor(c, src, camera.NewPatternDevice(c.Video))
	if len(s.Downgraded) != 0 {
		t.Errorf("Downgraded = %v, want none", s.Downgraded)
	}
	if !s.Audio.EchoCancellation {
		t.Error("echo cancellation not reported")
	}
}

func TestSettingsResolutionDowngrade(t *testing.T) {
	c := DefaultConstraints()
	small := c.Video
	small.Width, small.Height = 640, 480
	src := processedSource{audioio.NewMockSource(c.Audio.Config, nil)}
	s := settingsFor(c, src, camera.NewPatternDevice(small))
	if len(s.Downgraded) != 1 || s.Downgraded[0] != "resolution" {
		t.Errorf("Downgraded = %v, want [resolution]", s.Downgraded)
	}
}

func TestMockAcquirer(t *testing.T) {
	m := &MockAcquirer{}
	s, err := m.Acquire(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatal(err)
	}
	if m.Acquired() != 1 {
		t.Errorf("Acquired() = %d", m.Acquired())
	}
	if _, ok := s.Video().Frame(); !ok {
		t.Error("mock camera has no frame")
	}
	if !m.LastAudio().Inject(audioio.AudioChunk{Samples: make([]float32, 8), SampleRate: 16000, Channels: 1}) {
		t.Error("inject failed")
	}
	s.Stop()
	if m.LastVideo().CloseCount() != 1 {
		t.Error("camera not closed")
	}

	m.Err = &AcquisitionError{Track: "audio", Err: os.ErrPermission}
	if _, err := m.Acquire(context.Background(), DefaultConstraints()); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Acquire() error = %v", err)
	}
}
