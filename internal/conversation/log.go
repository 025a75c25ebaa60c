// Package conversation holds the in-memory conversation log of a briefly
// session and renders it as a plain-text transcript.
//
// The log is append-only during normal operation. Clear is the only operation
// that shrinks it.
package conversation

import (
	"sync"
	"time"
)

// Sender identifies who produced an entry.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderSystem Sender = "system"
)

// Label returns the human-readable sender name used in transcripts.
func (s Sender) Label() string {
	switch s {
	case SenderUser:
		return "Usuario"
	case SenderBot:
		return "Briefly"
	case SenderSystem:
		return "Sistema"
	default:
		return string(s)
	}
}

// Entry is a single conversation line.
type Entry struct {
	Sender    Sender `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"` // ISO-8601, UTC
}

// Time parses the entry timestamp. Zero time when unparsable.
func (e Entry) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Log is the ordered conversation history.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append records a message and returns the stored entry.
func (l *Log) Append(sender Sender, message string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		Sender:    sender,
		Message:   message,
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
	}
	l.entries = append(l.entries, e)
	return e
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the log contents.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// First returns the oldest entry, if any.
func (l *Log) First() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[0], true
}

// Clear empties the log. When reseed is non-empty a single bot entry with
// that text is appended afterwards.
func (l *Log) Clear(reseed string) {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()

	if reseed != "" {
		l.Append(SenderBot, reseed)
	}
}
