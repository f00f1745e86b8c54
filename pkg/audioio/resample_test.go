package audioio

import (
	"math"
	"testing"
)

func TestResample_SameRate(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}
	result := Resample(samples, 16000, 16000)
	if len(result) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(result))
	}
	for i := range samples {
		if result[i] != samples[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, samples[i], result[i])
		}
	}
}

func TestResample_Lengths(t *testing.T) {
	tests := []struct {
		name     string
		in       int
		from, to int
		want     int
	}{
		{"opus to input", 960, 48000, 16000, 320},
		{"input to output", 320, 16000, 24000, 480},
		{"downsample half", 960, 48000, 24000, 480},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resample(make([]float32, tt.in), tt.from, tt.to)
			if len(got) != tt.want {
				t.Errorf("Expected %d samples, got %d", tt.want, len(got))
			}
		})
	}
}

func TestResample_Interpolates(t *testing.T) {
	// 8kHz -> 16kHz doubles the ramp with midpoints between samples.
	result := Resample([]float32{0, 0.5, 1}, 8000, 16000)
	if len(result) != 6 {
		t.Fatalf("Expected 6 samples, got %d", len(result))
	}
	if math.Abs(float64(result[1]-0.25)) > 1e-6 {
		t.Errorf("Expected midpoint 0.25, got %f", result[1])
	}
}

func TestResample_Empty(t *testing.T) {
	if got := Resample(nil, 24000, 48000); len(got) != 0 {
		t.Errorf("Expected empty result for nil input")
	}
}

func TestDownmixToMono(t *testing.T) {
	mono := DownmixToMono([]float32{1, 0, -1, -1}, 2)
	if len(mono) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(mono))
	}
	if mono[0] != 0.5 || mono[1] != -1 {
		t.Errorf("Unexpected downmix: %v", mono)
	}
}

func TestInt16ToFloat(t *testing.T) {
	got := Int16ToFloat([]int16{32767, 0, -32768})
	if got[0] != 1 || got[1] != 0 || got[2] != -1 {
		t.Errorf("Unexpected conversion: %v", got)
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("Expected 0 for empty input")
	}
	if got := RMS([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Expected 0.5, got %f", got)
	}
}
