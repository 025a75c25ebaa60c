// Package typing paces the character-by-character reveal of bot messages.
//
// The Typist owns a queue of lines and a busy flag. Callers drive it with
// Step, one call per character tick, waiting Interval between calls. The busy
// flag covers the whole queue and is cleared exactly once, on the Step that
// completes the last queued line.
package typing

import (
	"time"
)

// Pace controls how fast text is revealed.
type Pace struct {
	CharsPerSecond float64
	Min            time.Duration
	Max            time.Duration
}

// DefaultPace is 30 characters per second with the total clamped to 1.5s..8s.
func DefaultPace() Pace {
	return Pace{
		CharsPerSecond: 30,
		Min:            1500 * time.Millisecond,
		Max:            8000 * time.Millisecond,
	}
}

// Duration is the total reveal time for n characters.
func (p Pace) Duration(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := p.Min
	if p.CharsPerSecond > 0 {
		d = time.Duration(float64(n) / p.CharsPerSecond * float64(time.Second))
	}
	if d < p.Min {
		d = p.Min
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// Interval is the delay between two characters of an n-character message.
// An empty message is revealed in a single tick of the full duration.
func (p Pace) Interval(n int) time.Duration {
	d := p.Duration(n)
	if n <= 0 {
		return d
	}
	return d / time.Duration(n)
}

// Line is one message being revealed.
type Line struct {
	ID    int
	text  []rune
	shown int
	done  bool
}

// Text returns the full message.
func (l *Line) Text() string { return string(l.text) }

// Visible returns the part revealed so far.
func (l *Line) Visible() string {
	if l.done {
		return string(l.text)
	}
	return string(l.text[:l.shown])
}

// Done reports whether every character has been revealed.
func (l *Line) Done() bool { return l.done }

// Typist reveals queued lines in order.
type Typist struct {
	pace   Pace
	queue  []*Line
	busy   bool
	nextID int
}

// New creates an idle Typist.
func New(p Pace) *Typist {
	return &Typist{pace: p}
}


// Type queues text and marks the typist busy. The returned Line starts empty.
func (t *Typist) Type(text string) *Line {
	t.nextID++
	l := &Line{ID: t.nextID, text: []rune(text)}
	t.queue = append(t.queue, l)
	t.busy = true
	return l
}

// Busy reports whether any line is still being revealed.
func (t *Typist) Busy() bool { return t.busy }

// Current returns the line being revealed, or nil when idle.
func (t *Typist) Current() *Line {
	if len(t.queue) == 0 {
		return nil
	}
	return t.queue[0]
}

// Interval is the wait before the next Step.
func (t *Typist) Interval() time.Duration {
	cur := t.Current()
	if cur == nil {
		return 0
	}
	return t.pace.Interval(len(cur.text))
}

// Step reveals one character of the current line. It returns the line that
// advanced and whether this step made the typist idle. idle is true on
// exactly one Step per busy period.
func (t *Typist) Step() (line *Line, idle bool) {
	cur := t.Current()
	if cur == nil {
		return nil, false
	}

	if cur.shown < len(cur.text) {
		cur.shown++
	}
	if cur.shown >= len(cur.text) {
		cur.done = true
		t.queue = t.queue[1:]
		if len(t.queue) == 0 && t.busy {
			t.busy = false
			return cur, true
		}
	}
	return cur, false
}

// Flush reveals every queued line immediately. It reports whether this
// cleared the busy flag.
func (t *Typist) Flush() bool {
	for _, l := range t.queue {
		l.shown = len(l.text)
		l.done = true
	}
	t.queue = nil
	was := t.busy
	t.busy = false
	return was
}
