package controller

import (
	"errors"
	"strings"
	"testing"
	"time"

	"briefly/internal/api"
	"briefly/internal/conversation"
	"briefly/internal/poll"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// effectsOf filters effects by concrete type.
func effectsOf[T Effect](effects []Effect) []T {
	var out []T
	for _, e := range effects {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func onlyEffect[T Effect](t *testing.T, effects []Effect) T {
	t.Helper()
	got := effectsOf[T](effects)
	require.Len(t, got, 1, "effects: %#v", effects)
	return got[0]
}

func feedTexts(c *Controller) []string {
	var out []string
	for _, it := range c.Feed() {
		out = append(out, it.Text())
	}
	return out
}

// finishTyping drives the typing animation to the end.
func finishTyping(t *testing.T, c *Controller) {
	t.Helper()
	for i := 0; c.Typing(); i++ {
		require.Less(t, i, 100000, "typing never finished")
		c.TypingTick()
	}
}

// uploaded returns a controller with session s-1 loaded and its first poll
// task scheduled.
func uploaded(t *testing.T) (*Controller, poll.Task) {
	t.Helper()
	c := New(Options{})
	_, err := c.PrepareUpload("/tmp/informe.pdf")
	require.NoError(t, err)
	effects := c.ApplyUploadResponse(&api.QueryResponse{
		Success:            true,
		SessionID:          "s-1",
		Message:            "PDF cargado",
		TotalPages:         12,
		TotalBlocks:        4,
		ProcessingBlock:    1,
		HasProcessingBlock: true,
	})
	sched := onlyEffect[SchedulePoll](t, effects)
	finishTyping(t, c)
	return c, sched.Task
}

func TestNew_ShowsWelcomeOnly(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, []string{MsgWelcome}, feedTexts(c))
	assert.Equal(t, 0, c.Log().Len(), "the welcome message is not part of the exported history")
	assert.Equal(t, []string{"obtener resumen", "siguiente bloque", "bloque 1: resumen", "pagina 1: contenido"}, c.Commands())
	assert.False(t, c.Busy())
}

func TestSubmitQuery_Validation(t *testing.T) {
	c := New(Options{})

	effects, err := c.SubmitQuery("   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, effects)
	assert.Equal(t, 0, c.Log().Len())
}

func TestSubmitQuery_Sends(t *testing.T) {
	c := New(Options{})
	effects, err := c.SubmitQuery("  hola  ")
	require.NoError(t, err)

	send := onlyEffect[SendQuery](t, effects)
	assert.Equal(t, SendQuery{Query: "hola", SessionID: ""}, send)
	assert.True(t, c.Processing())

	entries := c.Log().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, conversation.SenderUser, entries[0].Sender)
	assert.Equal(t, "hola", entries[0].Message)
}

func TestSubmitQuery_RejectedWhileProcessing(t *testing.T) {
	c := New(Options{})
	_, err := c.SubmitQuery("primera")
	require.NoError(t, err)
	feedBefore := feedTexts(c)
	logBefore := c.Log().Len()

	effects, err := c.SubmitQuery("segunda")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, effectsOf[SendQuery](effects), "no network call")
	notify := onlyEffect[Notify](t, effects)
	assert.Equal(t, LevelWarning, notify.Level)
	assert.Equal(t, ToastBusy, notify.Text)

	assert.Equal(t, feedBefore, feedTexts(c))
	assert.Equal(t, logBefore, c.Log().Len())
	assert.True(t, c.Processing())
}

func TestSubmitQuery_RejectedWhileTyping(t *testing.T) {
	c := New(Options{})
	_, err := c.SubmitQuery("hola")
	require.NoError(t, err)
	c.ApplyQueryResponse(&api.QueryResponse{Success: true, Message: "respuesta larga"})
	require.False(t, c.Processing())
	require.True(t, c.Typing())

	_, err = c.SubmitQuery("otra")
	assert.ErrorIs(t, err, ErrBusy)

	finishTyping(t, c)
	_, err = c.SubmitQuery("otra")
	assert.NoError(t, err)
}

func TestApplyQueryResponse_ProcessingBlockRestartsPoll(t *testing.T) {
	c, first := uploaded(t)
	_, err := c.SubmitQuery("siguiente bloque")
	require.NoError(t, err)

	effects := c.ApplyQueryResponse(&api.QueryResponse{
		Success:            true,
		Message:            "Procesando el bloque 2",
		ProcessingBlock:    2,
		HasProcessingBlock: true,
		TotalBlocks:        5,
	})

	sched := onlyEffect[SchedulePoll](t, effects)
	assert.Equal(t, 2*time.Second, sched.Delay)
	assert.NotEqual(t, first.CycleID, sched.Task.CycleID)
	assert.Equal(t, 0, c.PollAttempt())

	pct, ok := c.Progress()
	require.True(t, ok)
	assert.InDelta(t, 40.0, pct, 1e-9)
	assert.Equal(t, 2, c.Session().CurrentBlock)

	// The old cycle's tick is stale.
	assert.Empty(t, c.PollTick(first))
	assert.Len(t, effectsOf[RequestPoll](c.PollTick(sched.Task)), 1)
}

func TestApplyQueryResponse_BlockAndComplete(t *testing.T) {
	c, _ := uploaded(t)
	_, err := c.SubmitQuery("bloque 3: resumen")
	require.NoError(t, err)

	effects := c.ApplyQueryResponse(&api.QueryResponse{
		Success:  true,
		Message:  "Resumen 3",
		Block:    3,
		HasBlock: true,
		Complete: true,
	})
	assert.Empty(t, effectsOf[SchedulePoll](effects), "block alone does not restart polling")
	notify := onlyEffect[Notify](t, effects)
	assert.Equal(t, ToastDocumentComplete, notify.Text)

	pct, ok := c.Progress()
	require.True(t, ok)
	assert.InDelta(t, 75.0, pct, 1e-9)

	entries := c.Log().Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, conversation.SenderSystem, last.Sender)
	assert.Equal(t, MsgDocumentComplete, last.Message)
}

func TestApplyQueryError(t *testing.T) {
	t.Run("backend failure", func(t *testing.T) {
		c := New(Options{})
		_, _ = c.SubmitQuery("hola")
		effects := c.ApplyQueryError(&api.BackendError{Op: "query", Message: "Sesión no encontrada"})
		assert.False(t, c.Processing())
		assert.Equal(t, ToastQueryError, onlyEffect[Notify](t, effects).Text)

		entries := c.Log().Entries()
		assert.Equal(t, "Error: Sesión no encontrada", entries[len(entries)-1].Message)
	})

	t.Run("transport failure", func(t *testing.T) {
		c := New(Options{})
		_, _ = c.SubmitQuery("hola")
		effects := c.ApplyQueryError(errors.New("connection refused"))
		assert.False(t, c.Processing())
		assert.Equal(t, ToastConnection, onlyEffect[Notify](t, effects).Text)
		assert.Contains(t, feedTexts(c), MsgQueryFailed)
	})
}

func TestPrepareUpload_Validation(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
	}{
		{"empty", "", ErrNoFile},
		{"wrong extension", "notas.txt", ErrNotPDF},
		{"pdf-like name", "informe.pdf.exe", ErrNotPDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{})
			effects, err := c.PrepareUpload(tt.path)
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, effectsOf[SendUpload](effects))
			assert.False(t, c.Uploading())
			assert.Equal(t, []string{MsgWelcome}, feedTexts(c))
		})
	}

	t.Run("uppercase extension accepted", func(t *testing.T) {
		c := New(Options{})
		effects, err := c.PrepareUpload("INFORME.PDF")
		require.NoError(t, err)
		assert.Equal(t, SendUpload{Path: "INFORME.PDF"}, onlyEffect[SendUpload](t, effects))
	})

	t.Run("second upload rejected", func(t *testing.T) {
		c := New(Options{})
		_, err := c.PrepareUpload("a.pdf")
		require.NoError(t, err)
		_, err = c.PrepareUpload("b.pdf")
		assert.ErrorIs(t, err, ErrUploadInFlight)
	})
}

func TestApplyUploadResponse(t *testing.T) {
	c := New(Options{})
	_, err := c.PrepareUpload("informe.pdf")
	require.NoError(t, err)
	require.True(t, c.Uploading())

	effects := c.ApplyUploadResponse(&api.QueryResponse{
		Success:    true,
		SessionID:  "s-1",
		Messages:   []string{"uno", "dos"},
		TotalPages: 12,
	})
	assert.False(t, c.Uploading())
	assert.Equal(t, "s-1", c.Session().ID)

	sched := onlyEffect[SchedulePoll](t, effects)
	assert.Equal(t, 2*time.Second, sched.Delay)
	assert.Equal(t, "s-1", sched.Task.SessionID)
	assert.Equal(t, FetchSessionInfo{SessionID: "s-1"}, onlyEffect[FetchSessionInfo](t, effects))
	assert.Equal(t, ToastUploadOK, onlyEffect[Notify](t, effects).Text)
	assert.Len(t, effectsOf[ScheduleTyping](effects), 1, "one typing loop for several messages")

	var blockButtons int
	for _, cmd := range c.Commands() {
		if strings.HasPrefix(cmd, "bloque ") {
			blockButtons++
		}
	}
	assert.Equal(t, 3, blockButtons, "ceil(12/3)=4 blocks capped at 3 buttons")

	finishTyping(t, c)
	feed := feedTexts(c)
	assert.Contains(t, feed, "uno")
	assert.Contains(t, feed, "dos")
	assert.Contains(t, feed, MsgGeneratingFirst)
	assert.Contains(t, feed, MsgKeepInteracting)
}

func TestApplyUploadResponseWithoutSessionDoesNotPoll(t *testing.T) {
	c := New(Options{})
	_, err := c.PrepareUpload("informe.pdf")
	require.NoError(t, err)

	effects := c.ApplyUploadResponse(&api.QueryResponse{Success: true, Message: "ok", TotalPages: 12})
	assert.False(t, c.Uploading())
	assert.False(t, c.HasSession())
	assert.False(t, c.Polling())
	assert.Equal(t, poll.StateIdle, c.PollState())
	assert.Empty(t, c.PollCycleID())
	assert.Empty(t, effectsOf[SchedulePoll](effects))
	assert.Empty(t, effectsOf[FetchSessionInfo](effects))

	for i := 0; i < 20; i++ {
		assert.Empty(t, c.PollTick(poll.Task{Attempt: i + 1}))
	}
	assert.Equal(t, poll.StateIdle, c.PollState())

	finishTyping(t, c)
	assert.NotContains(t, feedTexts(c), MsgGeneratingFirst)
}

func TestApplyUploadError(t *testing.T) {
	c := New(Options{})
	_, _ = c.PrepareUpload("informe.pdf")
	effects := c.ApplyUploadError(&api.BackendError{Op: "upload", Status: 400, Message: "Solo se permiten archivos PDF"})
	assert.False(t, c.Uploading())
	assert.False(t, c.HasSession())
	assert.Equal(t, ToastUploadError, onlyEffect[Notify](t, effects).Text)
	assert.Contains(t, feedTexts(c), "Error: Solo se permiten archivos PDF")

	_, _ = c.PrepareUpload("informe.pdf")
	effects = c.ApplyUploadError(errors.New("dial tcp: refused"))
	assert.Equal(t, ToastConnection, onlyEffect[Notify](t, effects).Text)
	assert.Contains(t, feedTexts(c), MsgUploadFailed)
}

func TestNewUploadInvalidatesPoll(t *testing.T) {
	c, task := uploaded(t)
	tick := c.PollTick(task)
	req := onlyEffect[RequestPoll](t, tick)

	_, err := c.PrepareUpload("otro.pdf")
	require.NoError(t, err)
	assert.False(t, c.Polling())
	assert.Empty(t, c.ApplyPollResult(req.Task, &api.QueryResponse{Success: true, IsBlockSummary: true, Message: "viejo"}, nil))
	assert.NotContains(t, feedTexts(c), "viejo")
}

func TestApplySessionInfo(t *testing.T) {
	c, _ := uploaded(t)

	c.ApplySessionInfo(&api.SessionInfo{SessionID: "other", DocumentName: "x.pdf"})
	assert.Empty(t, c.Session().DocumentName, "info for another session is ignored")

	c.ApplySessionInfo(&api.SessionInfo{SessionID: "s-1", DocumentName: "informe.pdf", TotalPages: 2, TotalBlocks: 1, CurrentBlock: 1})
	s := c.Session()
	assert.Equal(t, "informe.pdf", s.DocumentName)
	assert.Equal(t, 1, s.TotalBlocks)
	assert.Equal(t, []string{"obtener resumen", "siguiente bloque", "bloque 1: contenido", "pagina 1: contenido", "pagina 2: contenido"}, c.Commands())
	pct, ok := c.Progress()
	assert.True(t, ok)
	assert.InDelta(t, 100.0, pct, 1e-9)

	effects := c.ApplySessionInfoError("s-1", errors.New("boom"))
	assert.Equal(t, ToastSessionInfoError, onlyEffect[Notify](t, effects).Text)
	assert.Empty(t, c.ApplySessionInfoError("old", errors.New("boom")))
}

func TestPoll_DeliversSummary(t *testing.T) {
	c, task := uploaded(t)

	req := onlyEffect[RequestPoll](t, c.PollTick(task))
	effects := c.ApplyPollResult(req.Task, &api.QueryResponse{
		Success:        true,
		IsBlockSummary: true,
		Message:        "Resumen del bloque 1",
		Block:          1,
		HasBlock:       true,
		TotalBlocks:    4,
	}, nil)
	assert.Len(t, effectsOf[ScheduleTyping](effects), 1)
	assert.Equal(t, poll.StateDelivered, c.PollState())

	finishTyping(t, c)
	feed := feedTexts(c)
	assert.Equal(t, "Resumen del bloque 1", feed[len(feed)-2])
	assert.Equal(t, MsgNextBlockHint, feed[len(feed)-1])

	pct, ok := c.Progress()
	require.True(t, ok)
	assert.InDelta(t, 25.0, pct, 1e-9)
}

func TestPoll_NoticesAndExhaustion(t *testing.T) {
	c, task := uploaded(t)

	requests := 0
	for {
		effects := c.PollTick(task)
		reqs := effectsOf[RequestPoll](effects)
		if len(reqs) == 0 {
			break
		}
		requests++
		var resp *api.QueryResponse
		var err error
		if requests%2 == 0 {
			err = errors.New("timeout")
		} else {
			resp = &api.QueryResponse{Success: true}
		}
		next := onlyEffect[SchedulePoll](t, c.ApplyPollResult(reqs[0].Task, resp, err))
		task = next.Task
	}

	assert.Equal(t, 10, requests)
	assert.Equal(t, poll.StateExhausted, c.PollState())
	assert.Empty(t, c.PollTick(task), "no requests after exhaustion")

	var notices []string
	for _, text := range feedTexts(c) {
		if strings.HasPrefix(text, "Aún generando el resumen") {
			notices = append(notices, text)
		}
	}
	// Only not-ready replies (odd attempts here) produce notices: 3 and 9.
	assert.Equal(t, []string{ProgressNotice(3, 10), ProgressNotice(9, 10)}, notices)

	entries := c.Log().Entries()
	assert.Equal(t, MsgPollExhausted, entries[len(entries)-1].Message)
}

func TestPoll_FailureBackoff(t *testing.T) {
	c, task := uploaded(t)
	var delays []time.Duration
	for i := 0; i < 4; i++ {
		req := onlyEffect[RequestPoll](t, c.PollTick(task))
		sched := onlyEffect[SchedulePoll](t, c.ApplyPollResult(req.Task, &api.QueryResponse{Success: false}, nil))
		delays = append(delays, sched.Delay)
		task = sched.Task
	}
	assert.Equal(t, []time.Duration{3 * time.Second, 4500 * time.Millisecond, 6750 * time.Millisecond, 10 * time.Second}, delays)
}

func TestClear(t *testing.T) {
	t.Run("keeps the first bot message", func(t *testing.T) {
		c, task := uploaded(t)
		_, err := c.Clear()
		require.NoError(t, err)

		// The upload made the first log entry a bot message.
		assert.Equal(t, 1, c.Log().Len())
		first, _ := c.Log().First()
		assert.Equal(t, "PDF cargado", first.Message)
		assert.False(t, c.Polling(), "clear cancels polling")
		assert.Empty(t, c.PollTick(task))
	})

	t.Run("uses welcome message otherwise", func(t *testing.T) {
		c := New(Options{})
		_, _ = c.SubmitQuery("hola")
		c.ApplyQueryResponse(&api.QueryResponse{Success: true, Message: "respuesta"})

		effects, err := c.Clear()
		require.NoError(t, err)
		assert.Equal(t, ToastCleared, onlyEffect[Notify](t, effects).Text)
		assert.False(t, c.Typing(), "typing animation is flushed")
		assert.Equal(t, []string{MsgWelcome}, feedTexts(c))

		entries := c.Log().Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, conversation.SenderBot, entries[0].Sender)
		assert.Equal(t, MsgWelcome, entries[0].Message)
	})
}

func TestResetSession(t *testing.T) {
	c := New(Options{})
	_, err := c.ResetSession()
	assert.ErrorIs(t, err, ErrNoSession)

	c, _ = uploaded(t)
	_, err = c.ResetSession()
	require.NoError(t, err)
	assert.False(t, c.HasSession())
	assert.False(t, c.Polling())
	_, ok := c.Progress()
	assert.False(t, ok)
}

func TestSnapshot(t *testing.T) {
	c := New(Options{})
	_, err := c.Snapshot()
	assert.ErrorIs(t, err, ErrNothingToExport)

	c, _ = uploaded(t)
	c.ApplySessionInfo(&api.SessionInfo{SessionID: "s-1", DocumentName: "informe.pdf", TotalPages: 12, TotalBlocks: 4})
	before := c.Log().Entries()

	snap, err := c.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Session)
	assert.Equal(t, "informe.pdf", snap.Session.DocumentName)
	assert.Contains(t, snap.Text(), "Documento: informe.pdf")
	assert.Equal(t, before, c.Log().Entries())
}

func TestProgress(t *testing.T) {
	tests := []struct {
		current, total int
		want           float64
		ok             bool
	}{
		{2, 5, 40, true},
		{5, 5, 100, true},
		{7, 5, 100, true},
		{-1, 5, 0, true},
		{1, 0, 0, false},
		{1, -3, 0, false},
	}
	for _, tt := range tests {
		got, ok := Progress(tt.current, tt.total)
		assert.Equal(t, tt.ok, ok, "%d/%d", tt.current, tt.total)
		assert.InDelta(t, tt.want, got, 1e-9, "%d/%d", tt.current, tt.total)
	}
}

func TestWarning(t *testing.T) {
	text, ok := Warning(ErrBusy)
	assert.True(t, ok)
	assert.Equal(t, ToastBusy, text)

	_, ok = Warning(errors.New("other"))
	assert.False(t, ok)
}
