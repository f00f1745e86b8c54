// Package volume derives visualizer levels from audio, matching the
// behaviour of a browser frequency analyser: a windowed FFT whose smoothed
// magnitudes are mapped onto byte bins, averaged into a single level.
package volume

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Config holds analyser parameters.
type Config struct {
	// FFTSize is the window length in samples. Bins = FFTSize/2.
	FFTSize int `yaml:"fft_size" json:"fft_size"`

	// Smoothing is the time constant applied between successive frames.
	Smoothing float64 `yaml:"smoothing" json:"smoothing"`

	// MinDecibels maps to byte 0, MaxDecibels to byte 255.
	MinDecibels float64 `yaml:"min_decibels" json:"min_decibels"`
	MaxDecibels float64 `yaml:"max_decibels" json:"max_decibels"`
}

// DefaultConfig returns a 64-point analyser (32 bins).
func DefaultConfig() Config {
	return Config{
		FFTSize:     64,
		Smoothing:   0.8,
		MinDecibels: -100,
		MaxDecibels: -30,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.FFTSize < 32 || bits.OnesCount(uint(c.FFTSize)) != 1 {
		return fmt.Errorf("volume: fft_size must be a power of two >= 32, got %d", c.FFTSize)
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		return fmt.Errorf("volume: smoothing must be in [0, 1), got %v", c.Smoothing)
	}
	if c.MinDecibels >= c.MaxDecibels {
		return fmt.Errorf("volume: min_decibels %v must be below max_decibels %v", c.MinDecibels, c.MaxDecibels)
	}
	return nil
}

// Analyser keeps the most recent FFTSize samples of a signal and reports
// its smoothed spectrum as byte magnitudes.
type Analyser struct {
	cfg    Config
	window []float64

	mu      sync.Mutex
	fft     *fourier.FFT
	frame   []float64
	coeff   []complex128
	history []float32 // ring buffer
	pos     int
	prev    []float64
}

// NewAnalyser creates an analyser. Invalid configs fall back to defaults.
func NewAnalyser(cfg Config) *Analyser {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	n := cfg.FFTSize

	return &Analyser{
		cfg:     cfg,
		window:  blackman(n),
		fft:     fourier.NewFFT(n),
		frame:   make([]float64, n),
		coeff:   make([]complex128, n/2+1),
		history: make([]float32, n),
		prev:    make([]float64, n/2),
	}
}

// blackman returns the classic Blackman window (alpha 0.16).
func blackman(n int) []float64 {
	const alpha = 0.16
	a0, a1, a2 := (1-alpha)/2, 0.5, alpha/2
	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}

// Bins returns the number of frequency bins.
func (a *Analyser) Bins() int {
	return a.cfg.FFTSize / 2
}

// Write appends samples to the analysis window.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.history)
	if len(samples) >= n {
		copy(a.history, samples[len(samples)-n:])
		a.pos = 0
		return
	}
	for _, s := range samples {
		a.history[a.pos] = s
		a.pos = (a.pos + 1) % n
	}
}

// ByteFrequencyData computes the current spectrum into dst (allocated when
// too small) and returns it. Each call advances the smoothing state.
func (a *Analyser) ByteFrequencyData(dst []uint8) []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.cfg.FFTSize
	bins := n / 2
	if cap(dst) < bins {
		dst = make([]uint8, bins)
	}
	dst = dst[:bins]

	for i := 0; i < n; i++ {
		a.frame[i] = float64(a.history[(a.pos+i)%n]) * a.window[i]
	}
	// The FFT is not safe for concurrent use; a.mu covers it.
	a.coeff = a.fft.Coefficients(a.coeff, a.frame)

	scale := 255 / (a.cfg.MaxDecibels - a.cfg.MinDecibels)
	tau := a.cfg.Smoothing
	for k := 0; k < bins; k++ {
		mag := cmplx.Abs(a.coeff[k]) / float64(n)

		smoothed := tau*a.prev[k] + (1-tau)*mag
		if math.IsNaN(smoothed) || math.IsInf(smoothed, 0) {
			smoothed = 0
		}
		a.prev[k] = smoothed

		db := a.cfg.MinDecibels
		if smoothed > 0 {
			db = 20 * math.Log10(smoothed)
		}
		v := math.Floor(scale * (db - a.cfg.MinDecibels))
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		dst[k] = uint8(v)
	}
	return dst
}

// Level computes the spectrum and returns its mean byte magnitude in [0, 1].
func (a *Analyser) Level() float64 {
	return Level(a.ByteFrequencyData(nil))
}

// Reset clears the window and smoothing state.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.history)
	clear(a.prev)
	a.pos = 0
}

// Level averages byte bins and normalizes to [0, 1].
func Level(bins []uint8) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins)) / 255
}

// Meter holds the latest level for one direction. Safe for concurrent use.
type Meter struct {
	bits atomic.Uint64
}

// Set stores a level, clamped to [0, 1].
func (m *Meter) Set(v float64) {
	switch {
	case math.IsNaN(v) || v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	m.bits.Store(math.Float64bits(v))
}

// Value returns the latest level.
func (m *Meter) Value() float64 {
	return math.Float64frombits(m.bits.Load())
}

// Reset sets the level to 0.
func (m *Meter) Reset() {
	m.bits.Store(0)
}
