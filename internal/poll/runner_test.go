package poll

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastPolicy() Policy {
	return Policy{
		InitialDelay:  time.Millisecond,
		ReadyDelay:    time.Millisecond,
		FailureBase:   time.Millisecond,
		FailureFactor: 1.5,
		FailureMax:    5 * time.Millisecond,
		MaxAttempts:   10,
		NoticeEvery:   3,
	}
}

type scriptedFetch struct {
	mu       sync.Mutex
	outcomes []Outcome
	calls    []Task
}

func (s *scriptedFetch) fetch(_ context.Context, t Task) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, t)
	if len(s.outcomes) == 0 {
		return OutcomeNotReady
	}
	o := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return o
}

func (s *scriptedFetch) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestRunner_Delivers(t *testing.T) {
	f := &scriptedFetch{outcomes: []Outcome{OutcomeFailed, OutcomeNotReady, OutcomeReady}}
	var actions []Action
	r := &Runner{
		Machine:    NewMachine(fastPolicy()),
		Fetch:      f.fetch,
		OnDecision: func(d Decision) { actions = append(actions, d.Action) },
	}

	state, err := r.Run(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, StateDelivered, state)
	assert.Equal(t, 3, f.count())
	assert.Equal(t, []Action{
		ActionRequest, ActionRetry,
		ActionRequest, ActionRetry,
		ActionRequest, ActionDeliver,
	}, actions)

	for i, call := range f.calls {
		assert.Equal(t, i+1, call.Attempt)
		assert.Equal(t, "s1", call.SessionID)
	}
}

func TestRunner_Exhausts(t *testing.T) {
	f := &scriptedFetch{}
	var notices []int
	r := &Runner{
		Machine: NewMachine(fastPolicy()),
		Fetch:   f.fetch,
		OnDecision: func(d Decision) {
			if d.Notice {
				notices = append(notices, d.Attempt)
			}
		},
	}

	state, err := r.Run(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, state)
	assert.Equal(t, 10, f.count())
	assert.Equal(t, []int{3, 6, 9}, notices)
}

func TestRunner_StopsOnCancel(t *testing.T) {
	p := fastPolicy()
	p.InitialDelay = time.Hour
	m := NewMachine(p)
	r := &Runner{Machine: m, Fetch: (&scriptedFetch{}).fetch}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var (
		state State
		err   error
	)
	go func() {
		defer close(done)
		state, err = r.Run(ctx, "s1")
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not return after cancellation")
	}

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateIdle, state)
	assert.False(t, m.Active())
}

func TestRunner_RequiresSession(t *testing.T) {
	f := &scriptedFetch{}
	m := NewMachine(fastPolicy())
	r := &Runner{Machine: m, Fetch: f.fetch}

	state, err := r.Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, StateIdle, state)
	assert.False(t, m.Active())
	assert.Zero(t, f.count())
}
