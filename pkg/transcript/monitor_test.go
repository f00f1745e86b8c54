package transcript

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitor_CapKeepsNewest(t *testing.T) {
	m := New(DefaultConfig(), nil)

	m.Append(strings.Repeat("a", 100))
	m.Append(strings.Repeat("b", 100))

	text := m.Text()
	if len([]rune(text)) != 150 {
		t.Fatalf("expected 150 runes, got %d", len([]rune(text)))
	}
	want := strings.Repeat("a", 50) + strings.Repeat("b", 100)
	if text != want {
		t.Errorf("expected most recent suffix, got %q", text)
	}
}

func TestMonitor_CapCountsRunes(t *testing.T) {
	m := New(Config{MaxRunes: 3, Keyword: "STOP", AlertDuration: time.Second}, nil)
	m.Append("héllo")
	if got := m.Text(); got != "llo" {
		t.Errorf("expected llo, got %q", got)
	}
}

func TestMonitor_AlertCaseInsensitive(t *testing.T) {
	tests := []struct {
		fragment string
		want     bool
	}{
		{"please stop now", true},
		{"STOP", true},
		{"Stopping here", true},
		{"keep going", false},
	}
	for _, tt := range tests {
		t.Run(tt.fragment, func(t *testing.T) {
			m := New(DefaultConfig(), nil)
			defer m.Reset()
			m.Append(tt.fragment)
			if got := m.Alert(); got != tt.want {
				t.Errorf("Alert() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonitor_AlertAutoClears(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AlertDuration = 50 * time.Millisecond
	m := New(cfg, nil)

	var alerts atomic.Int32
	m.OnAlert(func() { alerts.Add(1) })

	m.Append("STOP the saw")
	if !m.Alert() {
		t.Fatal("expected alert raised")
	}
	if alerts.Load() != 1 {
		t.Errorf("expected 1 alert callback, got %d", alerts.Load())
	}

	time.Sleep(30 * time.Millisecond)
	if !m.Alert() {
		t.Error("alert cleared too early")
	}

	deadline := time.Now().Add(time.Second)
	for m.Alert() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.Alert() {
		t.Error("alert did not auto-clear")
	}
	if !strings.Contains(m.Text(), "STOP the saw") {
		t.Error("transcript should survive the alert clearing")
	}
}

func TestMonitor_ReRaiseRestartsTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AlertDuration = 80 * time.Millisecond
	m := New(cfg, nil)

	m.Append("stop")
	time.Sleep(50 * time.Millisecond)
	m.Append("stop again")
	time.Sleep(50 * time.Millisecond)

	// 100ms after the first raise but only 50ms after the second.
	if !m.Alert() {
		t.Error("second raise should have extended the alert")
	}
	m.Reset()
}

func TestMonitor_Reset(t *testing.T) {
	m := New(DefaultConfig(), nil)

	var last Snapshot
	m.OnChange(func(s Snapshot) { last = s })

	m.Append("STOP")
	if !last.Alert || last.Text != "STOP" {
		t.Errorf("unexpected snapshot %+v", last)
	}

	m.Reset()
	if m.Text() != "" || m.Alert() {
		t.Error("Reset should clear text and alert")
	}
	if last.Text != "" || last.Alert {
		t.Errorf("OnChange not fired on reset: %+v", last)
	}
}

func TestMonitor_EmptyFragment(t *testing.T) {
	m := New(DefaultConfig(), nil)
	calls := 0
	m.OnChange(func(Snapshot) { calls++ })
	m.Append("")
	if calls != 0 {
		t.Error("empty fragment should not notify")
	}
}
