// Package kinetic orchestrates a live assistant session: device capture,
// the model connection, playback, captions and the user-facing log.
package kinetic

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-kinetic/internal/config"
	"github.com/teslashibe/go-kinetic/pkg/audioio"
	"github.com/teslashibe/go-kinetic/pkg/capture"
	"github.com/teslashibe/go-kinetic/pkg/playback"
	"github.com/teslashibe/go-kinetic/pkg/sampler"
	"github.com/teslashibe/go-kinetic/pkg/scenario"
	"github.com/teslashibe/go-kinetic/pkg/transcript"
	"github.com/teslashibe/go-kinetic/pkg/transport"
)

// Greeting is logged as the assistant's first line once connected.
const Greeting = "I'm online. Show me what you're working on."

// Config holds all configuration for a Kinetic client.
// Flag parsing is done in cmd/kinetic; this struct is data only.
type Config struct {
	// APIKey for the live model, usually from GOOGLE_API_KEY.
	APIKey string

	// Model is the live model name.
	Model string

	// Voice is a prebuilt voice name. Empty keeps the server default.
	Voice string

	// Scenario is the default scenario ID.
	Scenario string

	Capture    capture.Constraints
	Output     audioio.Config
	Playback   playback.Config
	Sampler    sampler.Config
	Transcript transcript.Config

	// MeterInterval is how often the output level is recomputed.
	MeterInterval time.Duration

	// HandshakeTimeout bounds connect and setup.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:            transport.DefaultModel,
		Scenario:         scenario.DefaultID,
		Capture:          capture.DefaultConstraints(),
		Output:           audioio.DefaultOutputConfig(),
		Playback:         playback.DefaultConfig(),
		Sampler:          sampler.DefaultConfig(),
		Transcript:       transcript.DefaultConfig(),
		MeterInterval:    16 * time.Millisecond,
		HandshakeTimeout: 10 * time.Second,
	}
}

// LoadEnvConfig applies environment overrides. Call after flag parsing.
func (c *Config) LoadEnvConfig() {
	if key := config.APIKey(); key != "" {
		c.APIKey = key
	}
	c.Model = config.Model(c.Model)
	if b := config.Get(config.EnvAudioBackend, ""); b != "" {
		c.Capture.Audio.Config.Backend = audioio.Backend(b)
	}
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("kinetic: invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Validate checks the configuration. It is called by Start before any
// device is touched.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return &ConfigError{Field: "api_key", Err: transport.ErrMissingAPIKey}
	}
	if c.Model == "" {
		return &ConfigError{Field: "model", Err: transport.ErrMissingModel}
	}
	if err := c.Capture.Audio.Config.Validate(); err != nil {
		return &ConfigError{Field: "capture.audio", Err: err}
	}
	if errs := c.Capture.Video.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "capture.video", Err: errors.New(errs[0])}
	}
	if err := c.Output.Validate(); err != nil {
		return &ConfigError{Field: "output", Err: err}
	}
	if err := c.Playback.Validate(); err != nil {
		return &ConfigError{Field: "playback", Err: err}
	}
	if c.Output.SampleRate != c.Playback.SampleRate {
		return &ConfigError{Field: "output.sample_rate", Err: fmt.Errorf("%d does not match playback rate %d", c.Output.SampleRate, c.Playback.SampleRate)}
	}
	if err := c.Sampler.Validate(); err != nil {
		return &ConfigError{Field: "sampler", Err: err}
	}
	if err := c.Transcript.Validate(); err != nil {
		return &ConfigError{Field: "transcript", Err: err}
	}
	if c.MeterInterval <= 0 {
		return &ConfigError{Field: "meter_interval", Err: fmt.Errorf("must be positive, got %v", c.MeterInterval)}
	}
	return nil
}

// transportConfig builds the connect-time session parameters.
func (c Config) transportConfig(sc scenario.Scenario) transport.Config {
	tc := transport.DefaultConfig()
	tc.APIKey = c.APIKey
	tc.Model = c.Model
	tc.Voice = c.Voice
	tc.SystemInstruction = sc.SystemInstruction()
	if c.HandshakeTimeout > 0 {
		tc.HandshakeTimeout = c.HandshakeTimeout
	}
	return tc
}
