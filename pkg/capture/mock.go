package capture

import (
	"context"
	"sync"

	"github.com/teslashibe/go-kinetic/pkg/audioio"
	"github.com/teslashibe/go-kinetic/pkg/camera"
)

// MockAcquirer hands out mock tracks for testing.
type MockAcquirer struct {
	// Err, when set, is returned by Acquire.
	Err error

	// Generate makes the mock microphone emit silence on its own ticker.
	Generate bool

	mu      sync.Mutex
	streams []*Stream
	audio   []*audioio.MockSource
	video   []*camera.MockDevice
}

// Acquire implements Acquirer.
func (m *MockAcquirer) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if m.Err != nil {
		return nil, m.Err
	}

	var opts []audioio.MockSourceOption
	if !m.Generate {
		opts = append(opts, audioio.WithoutGenerator())
	}
	audio := audioio.NewMockSource(c.Audio.Config, nil, opts...)
	if err := audio.Start(ctx); err != nil {
		return nil, &AcquisitionError{Track: "audio", Err: err}
	}
	video := camera.NewPatternDevice(c.Video)
	if err := video.Open(ctx); err != nil {
		audio.Close()
		return nil, &AcquisitionError{Track: "video", Err: err}
	}

	s := NewStream(audio, video, settingsFor(c, audio, video))

	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.audio = append(m.audio, audio)
	m.video = append(m.video, video)
	m.mu.Unlock()
	return s, nil
}

// Acquired returns how many streams were handed out.
func (m *MockAcquirer) Acquired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// LastAudio returns the most recent mock microphone, or nil.
func (m *MockAcquirer) LastAudio() *audioio.MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.audio) == 0 {
		return nil
	}
	return m.audio[len(m.audio)-1]
}

// LastVideo returns the most recent mock camera, or nil.
func (m *MockAcquirer) LastVideo() *camera.MockDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.video) == 0 {
		return nil
	}
	return m.video[len(m.video)-1]
}

var _ Acquirer = (*MockAcquirer)(nil)
