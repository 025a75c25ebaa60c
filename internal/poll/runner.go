package poll

import (
	"context"
	"errors"
	"time"

	"briefly/internal/logging"
)

// ErrSuperseded is returned by Runner.Run when the cycle was replaced or
// stopped by someone else while the runner was waiting.
var ErrSuperseded = errors.New("poll cycle superseded")

// ErrNoSession is returned by Runner.Run for an empty session id.
var ErrNoSession = errors.New("poll: no session id")

// FetchFunc performs one poll request and classifies the reply.
type FetchFunc func(ctx context.Context, t Task) Outcome

// Runner drives a Machine with real timers. It is used by the
// non-interactive commands; the TUI schedules ticks through its own loop.
type Runner struct {
	Machine *Machine
	Fetch   FetchFunc
	// OnDecision, when set, observes every non-trivial transition.
	OnDecision func(Decision)
}

// Run polls for sessionID until the summary is delivered, the cycle is
// exhausted, or ctx is cancelled. It blocks the calling goroutine.
func (r *Runner) Run(ctx context.Context, sessionID string) (State, error) {
	if sessionID == "" {
		return StateIdle, ErrNoSession
	}
	log := logging.Get(logging.CategoryPoll)

	task, delay := r.Machine.Start(sessionID)
	log.Info("poll cycle %s started for session %s", task.CycleID, sessionID)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Machine.Stop()
			return StateIdle, ctx.Err()
		case <-timer.C:
		}

		tick := r.Machine.Tick(task)
		r.observe(tick)
		switch tick.Action {
		case ActionExhausted:
			log.Warn("poll cycle %s exhausted after %d attempts", task.CycleID, tick.Attempt-1)
			return StateExhausted, nil
		case ActionRequest:
		default:
			return r.Machine.State(), ErrSuperseded
		}

		outcome := r.Fetch(ctx, tick.Task)
		if err := ctx.Err(); err != nil {
			r.Machine.Stop()
			return StateIdle, err
		}
		log.Debug("poll attempt %d for session %s: %s", tick.Attempt, sessionID, outcome)

		res := r.Machine.Resolve(tick.Task, outcome)
		r.observe(res)
		switch res.Action {
		case ActionDeliver:
			return StateDelivered, nil
		case ActionRetry:
			task = res.Task
			timer.Reset(res.Delay)
		default:
			return r.Machine.State(), ErrSuperseded
		}
	}
}

func (r *Runner) observe(d Decision) {
	if r.OnDecision != nil && d.Action != ActionNone {
		r.OnDecision(d)
	}
}
