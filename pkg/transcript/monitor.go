// Package transcript keeps a rolling caption of model output and raises a
// timed safety alert when the model says a stop keyword.
package transcript

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Config holds monitor configuration.
type Config struct {
	// MaxRunes caps the rolling buffer; the newest text is kept.
	MaxRunes int `yaml:"max_runes" json:"max_runes"`

	// Keyword raises the alert when it appears in a fragment, matched
	// case-insensitively.
	Keyword string `yaml:"keyword" json:"keyword"`

	// AlertDuration is how long the alert stays raised.
	AlertDuration time.Duration `yaml:"alert_duration" json:"alert_duration"`
}

// DefaultConfig returns a 150-rune buffer with a 3s STOP alert.
func DefaultConfig() Config {
	return Config{
		MaxRunes:      150,
		Keyword:       "STOP",
		AlertDuration: 3 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.MaxRunes <= 0 {
		return fmt.Errorf("transcript: max_runes must be positive, got %d", c.MaxRunes)
	}
	if strings.TrimSpace(c.Keyword) == "" {
		return fmt.Errorf("transcript: keyword is required")
	}
	if c.AlertDuration <= 0 {
		return fmt.Errorf("transcript: alert_duration must be positive, got %v", c.AlertDuration)
	}
	return nil
}

// Snapshot is the monitor's observable state.
type Snapshot struct {
	Text  string `json:"text"`
	Alert bool   `json:"alert"`
}

// Monitor accumulates transcript fragments.
type Monitor struct {
	cfg     Config
	keyword string
	logger  *slog.Logger

	mu       sync.Mutex
	buf      []rune
	alert    bool
	timer    *time.Timer
	gen      uint64
	onChange func(Snapshot)
	onAlert  func()
}

// New creates a monitor. Invalid configs fall back to defaults.
func New(cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	return &Monitor{
		cfg:     cfg,
		keyword: strings.ToUpper(cfg.Keyword),
		logger:  logger.With("component", "transcript"),
	}
}

// OnChange registers a callback fired after every visible change.
func (m *Monitor) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// OnAlert registers a callback fired each time the alert is raised.
func (m *Monitor) OnAlert(fn func()) {
	m.mu.Lock()
	m.onAlert = fn
	m.mu.Unlock()
}

// Append adds a fragment, trims the buffer to the newest MaxRunes runes
// and raises the alert if the fragment contains the keyword.
func (m *Monitor) Append(fragment string) {
	if fragment == "" {
		return
	}

	m.mu.Lock()
	m.buf = append(m.buf, []rune(fragment)...)
	if over := len(m.buf) - m.cfg.MaxRunes; over > 0 {
		m.buf = append(m.buf[:0:0], m.buf[over:]...)
	}

	raised := strings.Contains(strings.ToUpper(fragment), m.keyword)
	if raised {
		m.raiseLocked()
	}
	snap := m.snapshotLocked()
	onChange, onAlert := m.onChange, m.onAlert
	m.mu.Unlock()

	if raised {
		m.logger.Info("safety keyword detected", "keyword", m.cfg.Keyword)
		if onAlert != nil {
			onAlert()
		}
	}
	if onChange != nil {
		onChange(snap)
	}
}

// raiseLocked sets the alert and restarts its clear timer.
func (m *Monitor) raiseLocked() {
	m.alert = true
	if m.timer != nil {
		m.timer.Stop()
	}
	m.gen++
	gen := m.gen
	m.timer = time.AfterFunc(m.cfg.AlertDuration, func() { m.clearAlert(gen) })
}

func (m *Monitor) clearAlert(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.alert {
		m.mu.Unlock()
		return
	}
	m.alert = false
	m.timer = nil
	snap := m.snapshotLocked()
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(snap)
	}
}

// Text returns the rolling transcript.
func (m *Monitor) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.buf)
}

// Alert reports whether the alert is raised.
func (m *Monitor) Alert() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alert
}

// Snapshot returns text and alert together.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Monitor) snapshotLocked() Snapshot {
	return Snapshot{Text: string(m.buf), Alert: m.alert}
}

// Reset clears the buffer, lowers the alert and cancels its timer.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.buf = nil
	m.alert = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	snap := m.snapshotLocked()
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(snap)
	}
}
