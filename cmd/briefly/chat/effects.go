package chat

import (
	"time"

	"briefly/internal/controller"
	"briefly/internal/logging"
	"briefly/internal/poll"
	"briefly/internal/ux"

	tea "github.com/charmbracelet/bubbletea"
)

// apply carries out controller effects. Timers become tea.Tick commands and
// network calls run as commands whose results come back as messages.
func (m *Model) apply(effects []controller.Effect) tea.Cmd {
	var cmds []tea.Cmd
	spin := false

	for _, e := range effects {
		switch e := e.(type) {
		case controller.Notify:
			cmds = append(cmds, m.notify(e.Level, e.Text))

		case controller.SendUpload:
			m.countMetric(ux.MetricUploads)
			cmds = append(cmds, m.uploadCmd(e.Path))
			spin = true

		case controller.SendQuery:
			m.countMetric(ux.MetricQueries)
			cmds = append(cmds, m.queryCmd(e.Query, e.SessionID))
			spin = true

		case controller.FetchSessionInfo:
			cmds = append(cmds, m.sessionInfoCmd(e.SessionID))

		case controller.SchedulePoll:
			task := e.Task
			logging.Get(logging.CategoryPoll).Debug("poll %s attempt %d in %s", task.CycleID, task.Attempt, e.Delay)
			cmds = append(cmds, tea.Tick(e.Delay, func(time.Time) tea.Msg {
				return pollTickMsg{task: task}
			}))

		case controller.RequestPoll:
			cmds = append(cmds, m.pollCmd(e.Task))

		case controller.ScheduleTyping:
			cmds = append(cmds, tea.Tick(e.Delay, func(time.Time) tea.Msg {
				return typingTickMsg{}
			}))
		}
	}

	if spin {
		cmds = append(cmds, m.spinner.Tick)
	}
	m.refreshViewport()
	return tea.Batch(cmds...)
}

// notify shows a toast and schedules its removal.
func (m *Model) notify(level controller.Level, text string) tea.Cmd {
	if text == "" {
		return nil
	}
	m.toastSeq++
	id := m.toastSeq
	m.toast = &toast{id: id, level: level, text: text}
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

func (m *Model) countMetric(metric string) {
	if m.prefs == nil {
		return
	}
	if err := m.prefs.IncrementMetric(metric); err != nil {
		logging.Get(logging.CategoryUI).Warn("metrics: %v", err)
	}
}

func (m Model) uploadCmd(path string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		resp, err := backend.UploadFile(ctx, path)
		return uploadResultMsg{resp: resp, err: err}
	}
}

func (m Model) queryCmd(query, sessionID string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		resp, err := backend.Query(ctx, query, sessionID)
		return queryResultMsg{resp: resp, err: err}
	}
}

func (m Model) sessionInfoCmd(sessionID string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		info, err := backend.SessionInfo(ctx, sessionID)
		return sessionInfoMsg{sessionID: sessionID, info: info, err: err}
	}
}

func (m Model) pollCmd(task poll.Task) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		resp, err := backend.PollSummary(ctx, task.SessionID)
		return pollResultMsg{task: task, resp: resp, err: err}
	}
}

func (m Model) deleteCmd(sessionID string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		msg, err := backend.DeleteSession(ctx, sessionID)
		return deleteResultMsg{sessionID: sessionID, message: msg, err: err}
	}
}

func (m Model) exportCmd() tea.Cmd {
	snap, err := m.ctrl.Snapshot()
	if err != nil {
		return func() tea.Msg { return exportResultMsg{err: err} }
	}
	ctx, exporter := m.ctx, m.exporter
	return func() tea.Msg {
		res, err := exporter.Export(ctx, snap)
		return exportResultMsg{result: res, err: err}
	}
}
