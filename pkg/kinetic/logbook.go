package kinetic

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Origin is who produced a log entry.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
	OriginSystem    Origin = "system"
)

// Severity styles a log entry.
type Severity string

const (
	SeverityText  Severity = "text"
	SeverityAudio Severity = "audio"
	SeverityAlert Severity = "alert"
)

// LogEntry is one line of the user-facing session log.
type LogEntry struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Origin    Origin    `json:"origin"`
	Text      string    `json:"text"`
	Severity  Severity  `json:"severity"`
}

// logBook is the append-only session log.
type logBook struct {
	mu      sync.Mutex
	entries []LogEntry
	now     func() time.Time
}

func (b *logBook) add(origin Origin, text string, sev Severity) LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now
	if b.now != nil {
		now = b.now
	}
	e := LogEntry{
		ID:        uuid.New(),
		Timestamp: now(),
		Origin:    origin,
		Text:      text,
		Severity:  sev,
	}
	b.entries = append(b.entries, e)
	return e
}

func (b *logBook) list() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]LogEntry(nil), b.entries...)
}

func (b *logBook) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}
