package audioio

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrTruncatedPCM is returned when PCM16 data has an odd byte count.
var ErrTruncatedPCM = errors.New("audioio: truncated pcm16 data")

const pcmScale = 32767

// EncodePCM16 converts normalized samples to little-endian signed 16-bit
// PCM. Samples are clamped to [-1, 1] and rounded to the nearest step, so
// the output range is symmetric [-32767, 32767].
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(quantize(s)))
	}
	return out
}

func quantize(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int16(math.Round(v * pcmScale))
}

// DecodePCM16 converts little-endian PCM16 bytes to normalized samples.
// -32768 maps to -1.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, ErrTruncatedPCM
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		v := float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / pcmScale
		if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out, nil
}

// PCM16Duration returns the playback length in seconds of mono PCM16 data.
func PCM16Duration(byteLen, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(byteLen/2) / float64(sampleRate)
}
