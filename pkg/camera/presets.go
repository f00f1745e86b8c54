package camera

import "sort"

// Preset names.
const (
	PresetDefault = "default"
	PresetSD      = "480p"
	PresetHD1080  = "1080p"
	PresetFront   = "front"
	PresetMock    = "mock"
)

// Presets returns all named camera configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetSD:      SDConfig(),
		PresetHD1080:  HD1080Config(),
		PresetFront:   FrontConfig(),
		PresetMock:    MockConfig(),
	}
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets()))
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// SDConfig returns 640x480, for slow machines or USB 2 webcams.
func SDConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// HD1080Config returns 1080p at 30fps.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// FrontConfig prefers the user-facing camera.
func FrontConfig() Config {
	cfg := DefaultConfig()
	cfg.Facing = FacingUser
	return cfg
}

// MockConfig uses the synthetic backend.
func MockConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	return cfg
}
