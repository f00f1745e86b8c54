package audioio

import (
	"context"
	"io"
)

// AudioChunk is a block of normalized samples in [-1, 1], interleaved
// when Channels > 1.
type AudioChunk struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// ChunkFromPCM16 decodes little-endian PCM16 bytes into a chunk.
func ChunkFromPCM16(data []byte, sampleRate, channels int) (AudioChunk, error) {
	samples, err := DecodePCM16(data)
	if err != nil {
		return AudioChunk{}, err
	}
	return AudioChunk{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// PCM16 encodes the chunk as little-endian PCM16 bytes.
func (c AudioChunk) PCM16() []byte {
	return EncodePCM16(c.Samples)
}

// Frames returns the number of sample frames in the chunk.
func (c AudioChunk) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the duration of the chunk in seconds.
func (c AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture.
	Start(ctx context.Context) error

	// Stop halts audio capture. It is safe to call Stop multiple times.
	Stop() error

	// Read reads the next block, blocking if necessary.
	// Returns io.EOF when the source is stopped.
	Read(ctx context.Context) (AudioChunk, error)

	// Stream returns a channel that receives blocks.
	// The channel is closed when the source is stopped.
	Stream() <-chan AudioChunk

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"`
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
