// Package poll implements the block-summary polling state machine.
//
// A cycle starts when an upload or query reports that a block is being
// processed, and ends when the summary is delivered or the retry ceiling is
// reached. Each scheduled tick is an explicit Task carrying the cycle id; a
// new cycle invalidates the previous id so stale ticks and stale replies
// become no-ops.
package poll

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of the machine.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateDelivered
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDelivered:
		return "delivered"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome classifies the reply to a poll request.
type Outcome int

const (
	// OutcomeReady: success with the summary-ready flag.
	OutcomeReady Outcome = iota
	// OutcomeNotReady: success, summary still being generated.
	OutcomeNotReady
	// OutcomeFailed: transport error or success:false.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeNotReady:
		return "not_ready"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Task identifies one scheduled poll tick.
type Task struct {
	CycleID   string
	SessionID string
	Attempt   int // attempt number this tick will perform
}

// Action tells the caller what to do next.
type Action int

const (
	// ActionNone: stale or guarded-out event, do nothing.
	ActionNone Action = iota
	// ActionRequest: perform the poll request for Decision.Task.
	ActionRequest
	// ActionRetry: schedule Decision.Task after Decision.Delay.
	ActionRetry
	// ActionDeliver: the summary is ready; the cycle is over.
	ActionDeliver
	// ActionExhausted: the retry ceiling was passed; the cycle is over.
	ActionExhausted
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRequest:
		return "request"
	case ActionRetry:
		return "retry"
	case ActionDeliver:
		return "deliver"
	case ActionExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the result of a transition.
type Decision struct {
	Action  Action
	Task    Task
	Delay   time.Duration
	Attempt int
	// Notice is set when a not-ready reply should surface a progress notice.
	Notice bool
}

// Machine is the poll state for one client. It is not safe for concurrent
// use; the owner serializes Start, Stop, Tick and Resolve.
type Machine struct {
	policy    Policy
	state     State
	attempt   int
	sessionID string
	cycleID   string
	inFlight  bool
	newID     func() string
}

// NewMachine creates an idle machine.
func NewMachine(p Policy) *Machine {
	return &Machine{
		policy: p,
		newID:  func() string { return uuid.NewString() },
	}
}

// Policy returns the machine's policy.
func (m *Machine) Policy() Policy { return m.policy }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Attempt returns the number of ticks taken in the current cycle.
func (m *Machine) Attempt() int { return m.attempt }

// SessionID returns the session of the current cycle.
func (m *Machine) SessionID() string { return m.sessionID }

// CycleID returns the id of the current cycle.
func (m *Machine) CycleID() string { return m.cycleID }

// Active reports whether a cycle is polling.
func (m *Machine) Active() bool { return m.state == StatePolling }

// Start begins a new cycle for sessionID, invalidating any previous cycle.
// It returns the first task and the delay before it should fire. An empty
// sessionID stops any cycle and leaves the machine idle.
func (m *Machine) Start(sessionID string) (Task, time.Duration) {
	if sessionID == "" {
		m.Stop()
		return Task{}, 0
	}
	m.state = StatePolling
	m.attempt = 0
	m.sessionID = sessionID
	m.cycleID = m.newID()
	m.inFlight = false
	return Task{CycleID: m.cycleID, SessionID: sessionID, Attempt: 1}, m.policy.InitialDelay
}

// Stop abandons the current cycle. Pending tasks become stale.
func (m *Machine) Stop() {
	m.state = StateIdle
	m.attempt = 0
	m.sessionID = ""
	m.cycleID = ""
	m.inFlight = false
}

func (m *Machine) current(t Task) bool {
	return m.state == StatePolling &&
		t.CycleID != "" && t.CycleID == m.cycleID &&
		t.SessionID != "" && t.SessionID == m.sessionID
}

// Tick handles a scheduled task firing. It increments the attempt counter and
// either asks for a request or exhausts the cycle.
func (m *Machine) Tick(t Task) Decision {
	if !m.current(t) || m.inFlight {
		return Decision{Action: ActionNone}
	}

	m.attempt++
	if m.attempt > m.policy.MaxAttempts {
		m.state = StateExhausted
		return Decision{Action: ActionExhausted, Attempt: m.attempt}
	}

	m.inFlight = true
	req := Task{CycleID: m.cycleID, SessionID: m.sessionID, Attempt: m.attempt}
	return Decision{Action: ActionRequest, Task: req, Attempt: m.attempt}
}

// Resolve applies the outcome of the request issued for t.
func (m *Machine) Resolve(t Task, o Outcome) Decision {
	if !m.current(t) || !m.inFlight || t.Attempt != m.attempt {
		return Decision{Action: ActionNone}
	}
	m.inFlight = false

	next := Task{CycleID: m.cycleID, SessionID: m.sessionID, Attempt: m.attempt + 1}

	switch o {
	case OutcomeReady:
		m.state = StateDelivered
		return Decision{Action: ActionDeliver, Attempt: m.attempt}
	case OutcomeNotReady:
		return Decision{
			Action:  ActionRetry,
			Task:    next,
			Delay:   m.policy.ReadyDelay,
			Attempt: m.attempt,
			Notice:  m.policy.ShouldNotify(m.attempt),
		}
	default:
		return Decision{
			Action:  ActionRetry,
			Task:    next,
			Delay:   m.policy.FailureDelay(m.attempt),
			Attempt: m.attempt,
		}
	}
}
