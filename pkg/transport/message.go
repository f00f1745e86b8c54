package transport

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// ChunkKind tags a media chunk.
type ChunkKind int

const (
	KindAudio ChunkKind = iota
	KindImage
)

// String returns the kind name.
func (k ChunkKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("ChunkKind(%d)", int(k))
	}
}

// MIME types.
const (
	MIMEJPEG = "image/jpeg"
)

// AudioMIMEType returns the PCM MIME type for a sample rate.
func AudioMIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// MediaChunk is one outbound unit: a block of PCM16 audio or a JPEG frame.
// Data holds raw bytes; it is base64-encoded on the wire.
// Chunks must not be mutated after construction.
type MediaChunk struct {
	Kind     ChunkKind
	MIMEType string
	Data     []byte
}

// NewAudioChunk wraps little-endian PCM16 mono audio.
func NewAudioChunk(pcm []byte, rate int) MediaChunk {
	return MediaChunk{Kind: KindAudio, MIMEType: AudioMIMEType(rate), Data: pcm}
}

// NewImageChunk wraps a JPEG frame.
func NewImageChunk(jpeg []byte) MediaChunk {
	return MediaChunk{Kind: KindImage, MIMEType: MIMEJPEG, Data: jpeg}
}

// Base64 returns the payload in its wire encoding.
func (c MediaChunk) Base64() string {
	return base64.StdEncoding.EncodeToString(c.Data)
}

// InboundMessage is one message from the model. Any combination of fields
// may be set.
type InboundMessage struct {
	// Text is a model text part.
	Text string

	// Audio holds PCM16 24kHz fragments in arrival order.
	Audio [][]byte

	// Interrupted means the user spoke over the model; pending audio must
	// be dropped.
	Interrupted bool

	// Transcription is a delta of the model's output transcription.
	Transcription string

	// TurnComplete marks the end of a model turn.
	TurnComplete bool
}

// Empty reports whether the message carries nothing actionable.
func (m InboundMessage) Empty() bool {
	return m.Text == "" && len(m.Audio) == 0 && !m.Interrupted && m.Transcription == "" && !m.TurnComplete
}
