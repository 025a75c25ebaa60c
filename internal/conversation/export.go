package conversation

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// TranscriptTitle is the first line of every exported transcript.
const TranscriptTitle = "# Conversación con Briefly PDF Assistant"

// SessionMeta describes the loaded document in a transcript header.
type SessionMeta struct {
	SessionID    string
	DocumentName string
	TotalPages   int
	TotalBlocks  int
}

// Snapshot is an immutable copy of the log plus header data, taken at export time.
type Snapshot struct {
	Entries     []Entry
	Session     *SessionMeta
	GeneratedAt time.Time
}

// TakeSnapshot copies the current log. The log itself is not modified.
func (l *Log) TakeSnapshot(meta *SessionMeta) Snapshot {
	var m *SessionMeta
	if meta != nil {
		cp := *meta
		m = &cp
	}
	return Snapshot{
		Entries:     l.Entries(),
		Session:     m,
		GeneratedAt: l.now(),
	}
}

// WriteText renders the snapshot as a flat, human-readable transcript.
// Times are rendered in loc; a nil loc means time.Local.
func (s Snapshot) WriteText(w io.Writer, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	var sb strings.Builder
	sb.WriteString(TranscriptTitle + "\n")
	sb.WriteString(fmt.Sprintf("Fecha: %s\n\n", s.GeneratedAt.In(loc).Format("2006-01-02 15:04:05")))

	if s.Session != nil && s.Session.SessionID != "" && s.Session.DocumentName != "" {
		sb.WriteString(fmt.Sprintf("Documento: %s\n", s.Session.DocumentName))
		sb.WriteString(fmt.Sprintf("Páginas: %d\n", s.Session.TotalPages))
		sb.WriteString(fmt.Sprintf("Bloques: %d\n\n", s.Session.TotalBlocks))
	}

	sb.WriteString("## Historial de conversación\n\n")

	for _, e := range s.Entries {
		ts := e.Time()
		if ts.IsZero() {
			ts = s.GeneratedAt
		}
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n\n", ts.In(loc).Format("15:04:05"), e.Sender.Label(), e.Message))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// Text is WriteText into a string using local time.
func (s Snapshot) Text() string {
	var sb strings.Builder
	_ = s.WriteText(&sb, nil)
	return sb.String()
}

// FileName returns the local download name for a transcript generated at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("Briefly_Conversacion_%s.txt", t.Format("2006-01-02_15-04"))
}
