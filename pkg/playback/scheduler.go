// Package playback sequences model audio fragments onto a virtual output
// clock so consecutive fragments play back to back, and cuts everything
// off when the model is interrupted.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-kinetic/pkg/audioio"
	"github.com/teslashibe/go-kinetic/pkg/volume"
)

// ErrMalformedAudio is returned for fragments that cannot be decoded.
var ErrMalformedAudio = errors.New("playback: malformed audio fragment")

// Clock reports the output device's current time in seconds.
type Clock interface {
	Now() float64
}

// Config holds scheduler configuration.
type Config struct {
	// SampleRate of inbound fragments.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Analyser configures the per-fragment output volume analyser.
	Analyser volume.Config `yaml:"analyser" json:"analyser"`
}

// DefaultConfig returns the 24kHz output configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate: audioio.OutputSampleRate,
		Analyser:   volume.DefaultConfig(),
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("playback: sample_rate must be positive, got %d", c.SampleRate)
	}
	return c.Analyser.Validate()
}

// Hooks observe scheduler activity. All fields are optional.
type Hooks struct {
	OnScheduled   func(src *Source)
	OnDiscarded   func(err error)
	OnEnded       func(src *Source)
	OnInterrupted func(stopped int)
}

// Source is one scheduled fragment.
type Source struct {
	ID         uint64
	Samples    []float32
	SampleRate int

	// Start is the virtual-clock time the fragment begins playing.
	Start float64
	// Duration in seconds.
	Duration float64

	analyser *volume.Analyser

	mu      sync.Mutex
	stopped bool
}

// End returns the time the fragment finishes playing.
func (s *Source) End() float64 {
	return s.Start + s.Duration
}

// Stopped reports whether the fragment was cut off by an interruption.
func (s *Source) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Source) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Level returns the fragment's current output level in [0, 1].
func (s *Source) Level() float64 {
	return s.analyser.Level()
}

func (s *Source) observe(samples []float32) {
	s.analyser.Write(samples)
}

// Scheduler owns the virtual playback cursor and the set of fragments
// that are scheduled or playing.
type Scheduler struct {
	cfg    Config
	clock  Clock
	logger *slog.Logger
	hooks  Hooks

	mu     sync.Mutex
	next   float64
	active []*Source
	seq    uint64
}

// NewScheduler creates a scheduler on the given clock.
func NewScheduler(cfg Config, clock Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		cfg:    cfg,
		clock:  clock,
		logger: logger.With("component", "playback"),
	}
}

// SetHooks installs activity hooks. Call before use.
func (s *Scheduler) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// Enqueue decodes a PCM16 fragment and schedules it at
// max(cursor, now), then advances the cursor by its duration.
// An empty payload is a no-op and returns (nil, nil). A malformed payload
// is discarded without touching the cursor or the active set.
func (s *Scheduler) Enqueue(payload []byte) (*Source, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	samples, err := audioio.DecodePCM16(payload)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedAudio, err)
		s.logger.Warn("discarding audio fragment", "bytes", len(payload), "error", err)
		if h := s.hookSnapshot().OnDiscarded; h != nil {
			h(err)
		}
		return nil, err
	}

	s.mu.Lock()
	s.seq++
	src := &Source{
		ID:         s.seq,
		Samples:    samples,
		SampleRate: s.cfg.SampleRate,
		Duration:   float64(len(samples)) / float64(s.cfg.SampleRate),
		analyser:   volume.NewAnalyser(s.cfg.Analyser),
	}
	src.Start = max(s.next, s.clock.Now())
	// Registered before the cursor moves so an interruption always sees it.
	s.active = append(s.active, src)
	s.next = src.Start + src.Duration
	hooks := s.hooks
	s.mu.Unlock()

	s.logger.Debug("fragment scheduled",
		"id", src.ID,
		"start", src.Start,
		"duration", src.Duration,
	)
	if hooks.OnScheduled != nil {
		hooks.OnScheduled(src)
	}
	return src, nil
}

// Interrupt stops every active fragment, empties the active set and resets
// the cursor to 0 so the next fragment starts immediately. Returns the
// number of fragments stopped.
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	stopped := s.active
	s.active = nil
	s.next = 0
	hooks := s.hooks
	s.mu.Unlock()

	for _, src := range stopped {
		src.stop()
	}

	s.logger.Debug("playback interrupted", "stopped", len(stopped))
	if hooks.OnInterrupted != nil {
		hooks.OnInterrupted(len(stopped))
	}
	return len(stopped)
}

// Complete removes a fragment that finished playing naturally. Returns
// false if it was no longer active.
func (s *Scheduler) Complete(src *Source) bool {
	s.mu.Lock()
	idx := -1
	for i, a := range s.active {
		if a == src {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.active = append(s.active[:idx], s.active[idx+1:]...)
	hooks := s.hooks
	s.mu.Unlock()

	if hooks.OnEnded != nil {
		hooks.OnEnded(src)
	}
	return true
}

// NextStartTime returns the virtual cursor.
func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Active returns a snapshot of the active set in scheduling order.
func (s *Scheduler) Active() []*Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Source, len(s.active))
	copy(out, s.active)
	return out
}

// ActiveCount returns the size of the active set.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Playing reports whether any fragment is scheduled or playing.
func (s *Scheduler) Playing() bool {
	return s.ActiveCount() > 0
}

// Level returns the loudest current level among active fragments, or 0
// when nothing is active.
func (s *Scheduler) Level() float64 {
	var level float64
	for _, src := range s.Active() {
		level = max(level, src.Level())
	}
	return level
}

// SampleRate returns the fragment sample rate.
func (s *Scheduler) SampleRate() int {
	return s.cfg.SampleRate
}

func (s *Scheduler) hookSnapshot() Hooks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks
}
