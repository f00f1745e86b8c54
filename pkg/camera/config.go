// Package camera provides video capture devices for the frame sampler.
// Devices keep only the most recent frame; callers poll it.
package camera

import "fmt"

// Backend selects the capture implementation.
type Backend string

const (
	// BackendOpenCV captures from a local device through gocv.
	BackendOpenCV Backend = "opencv"
	// BackendMock generates synthetic frames.
	BackendMock Backend = "mock"
)

// Facing is the preferred camera direction.
type Facing string

const (
	// FacingEnvironment prefers a rear or external camera pointed at the work.
	FacingEnvironment Facing = "environment"
	// FacingUser prefers the camera facing the user.
	FacingUser Facing = "user"
)

// AutoDevice lets the facing preference pick the device index.
const AutoDevice = -1

// maxProbe bounds how many device indices are tried.
const maxProbe = 4

// Config holds camera capture constraints. Width, Height and Framerate are
// ideals; a device may deliver something else.
type Config struct {
	Backend Backend `yaml:"backend" json:"backend"`

	// Device is an explicit device index, or AutoDevice.
	Device int `yaml:"device" json:"device"`

	Facing Facing `yaml:"facing" json:"facing"`

	Width     int `yaml:"width" json:"width"`
	Height    int `yaml:"height" json:"height"`
	Framerate int `yaml:"framerate" json:"framerate"`
}

// DefaultConfig asks for 1280x720 from the environment-facing camera.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendOpenCV,
		Device:    AutoDevice,
		Facing:    FacingEnvironment,
		Width:     1280,
		Height:    720,
		Framerate: 30,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Backend != BackendOpenCV && c.Backend != BackendMock {
		errors = append(errors, fmt.Sprintf("backend must be opencv or mock, got %q", c.Backend))
	}
	if c.Device < AutoDevice {
		errors = append(errors, "device must be -1 (auto) or a device index")
	}
	if c.Facing != FacingEnvironment && c.Facing != FacingUser {
		errors = append(errors, "facing must be environment or user")
	}
	if c.Width < 160 || c.Width > 3840 {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > 2160 {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	return errors
}

// Candidates returns device indices to try, in order. An explicit device
// comes first, then the facing preference, then every other index so a
// missing preferred camera degrades to any camera.
func (c *Config) Candidates() []int {
	var order []int
	if c.Device >= 0 {
		order = append(order, c.Device)
	}
	if c.Facing == FacingUser {
		order = append(order, 0, 1)
	} else {
		// Built-in cameras usually enumerate first and face the user.
		order = append(order, 1, 2, 0)
	}
	for i := 0; i < maxProbe; i++ {
		order = append(order, i)
	}

	seen := make(map[int]bool, len(order))
	out := order[:0]
	for _, idx := range order {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out
}
