package chat

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"briefly/internal/api"
	"briefly/internal/controller"
	"briefly/internal/export"
	"briefly/internal/logging"
	"briefly/internal/ux"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Update is the single owner of the controller: every transition happens here.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.viewMode == ChatView {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case uploadResultMsg:
		if msg.err != nil {
			return m, m.apply(m.ctrl.ApplyUploadError(msg.err))
		}
		return m, m.apply(m.ctrl.ApplyUploadResponse(msg.resp))

	case queryResultMsg:
		if msg.err != nil {
			return m, m.apply(m.ctrl.ApplyQueryError(msg.err))
		}
		return m, m.apply(m.ctrl.ApplyQueryResponse(msg.resp))

	case sessionInfoMsg:
		if msg.err != nil {
			return m, m.apply(m.ctrl.ApplySessionInfoError(msg.sessionID, msg.err))
		}
		return m, m.apply(m.ctrl.ApplySessionInfo(msg.info))

	case pollTickMsg:
		return m, m.apply(m.ctrl.PollTick(msg.task))

	case pollResultMsg:
		return m, m.apply(m.ctrl.ApplyPollResult(msg.task, msg.resp, msg.err))

	case typingTickMsg:
		return m, m.apply(m.ctrl.TypingTick())

	case exportResultMsg:
		return m, m.handleExportResult(msg)

	case deleteResultMsg:
		return m, m.handleDeleteResult(msg)

	case toastExpiredMsg:
		if m.toast != nil && m.toast.id == msg.id {
			m.toast = nil
		}
		return m, nil
	}

	// The file picker reads directories asynchronously and needs its own messages.
	if m.viewMode == FilePickerView {
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.Shutdown()
		return m, tea.Quit
	}

	switch m.viewMode {
	case FilePickerView:
		if msg.Type == tea.KeyEsc {
			m.viewMode = ChatView
			return m, nil
		}
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)
		if didSelect, path := m.filepicker.DidSelectFile(msg); didSelect {
			m.viewMode = ChatView
			m.filepicker = newFilePicker(filepath.Dir(path))
			return m, m.startUpload(path)
		}
		if didSelect, _ := m.filepicker.DidSelectDisabledFile(msg); didSelect {
			return m, tea.Batch(cmd, m.notify(controller.LevelWarning, controller.ToastNotPDF))
		}
		return m, cmd

	case ConfirmClearView:
		switch msg.String() {
		case "y", "Y", "s", "S", "enter":
			m.viewMode = ChatView
			return m, m.clear()
		case "n", "N", "esc":
			m.viewMode = ChatView
		}
		return m, nil

	case HelpView:
		m.viewMode = ChatView
		return m, nil
	}

	switch msg.String() {
	case "ctrl+o":
		return m, m.openFilePicker()
	case "ctrl+l":
		m.viewMode = ConfirmClearView
		return m, nil
	case "ctrl+s":
		return m, m.startExport()
	case "ctrl+t":
		return m, m.toggleTheme()
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if msg.Type == tea.KeyEnter && !msg.Alt && !msg.Paste {
		return m.handleSubmit()
	}

	// Alt+1..Alt+9 send the quick commands.
	if msg.Alt && len(msg.Runes) == 1 && msg.Runes[0] >= '1' && msg.Runes[0] <= '9' {
		if query, ok := m.ctrl.Command(int(msg.Runes[0] - '1')); ok {
			return m, m.submitQuery(query, false)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())
	if strings.HasPrefix(input, "/") {
		m.textarea.Reset()
		return m.handleCommand(input)
	}
	return m, m.submitQuery(input, true)
}

// submitQuery sends text as a query. fromInput clears the input box on success.
func (m *Model) submitQuery(text string, fromInput bool) tea.Cmd {
	effects, err := m.ctrl.SubmitQuery(text)
	if err != nil {
		logging.UI("query rejected: %v", err)
		return m.apply(effects)
	}
	if fromInput {
		m.textarea.Reset()
	}
	return m.apply(effects)
}

func (m *Model) startUpload(path string) tea.Cmd {
	effects, err := m.ctrl.PrepareUpload(path)
	if err != nil {
		logging.UI("upload rejected: %v", err)
	}
	return m.apply(effects)
}

func (m *Model) openFilePicker() tea.Cmd {
	if m.ctrl.Uploading() {
		return m.notify(controller.LevelWarning, controller.ToastUploadInFlight)
	}
	m.viewMode = FilePickerView
	return m.filepicker.Init()
}

func (m *Model) clear() tea.Cmd {
	effects, err := m.ctrl.Clear()
	if err != nil {
		logging.UI("clear rejected: %v", err)
	}
	m.renderCache = make(map[int]string)
	return m.apply(effects)
}

func (m *Model) startExport() tea.Cmd {
	if m.exporting {
		return nil
	}
	if m.exporter == nil {
		return m.notify(controller.LevelError, "Exportación no disponible")
	}
	if m.ctrl.Log().Len() == 0 {
		return m.notify(controller.LevelWarning, controller.ToastNothingToExport)
	}
	m.exporting = true
	return tea.Batch(
		m.notify(controller.LevelInfo, controller.ToastPreparingDownload),
		m.exportCmd(),
		m.spinner.Tick,
	)
}

func (m *Model) handleExportResult(msg exportResultMsg) tea.Cmd {
	m.exporting = false
	if msg.err != nil {
		if errors.Is(msg.err, controller.ErrNothingToExport) || errors.Is(msg.err, export.ErrEmpty) {
			return m.notify(controller.LevelWarning, controller.ToastNothingToExport)
		}
		logging.Get(logging.CategoryExport).Error("export failed: %v", msg.err)
		return m.notify(controller.LevelError, "Error al descargar la conversación: "+msg.err.Error())
	}

	m.countMetric(ux.MetricExports)
	if msg.result.Fallback {
		logging.Get(logging.CategoryExport).Warn("remote export fell back to local: %v", msg.result.RemoteErr)
	}
	return m.notify(controller.LevelSuccess, fmt.Sprintf("%s: %s", controller.ToastExported, msg.result.Path))
}

func (m *Model) startDelete() tea.Cmd {
	if !m.ctrl.HasSession() {
		return m.notify(controller.LevelWarning, controller.ToastNoSession)
	}
	if m.deleting {
		return nil
	}
	m.deleting = true
	return tea.Batch(m.deleteCmd(m.ctrl.Session().ID), m.spinner.Tick)
}

func (m *Model) handleDeleteResult(msg deleteResultMsg) tea.Cmd {
	m.deleting = false
	if msg.err != nil {
		text := controller.ToastConnection
		if be, ok := api.BackendMessage(msg.err); ok && be != "" {
			text = controller.MsgErrorPrefix + be
		}
		logging.Get(logging.CategorySession).Warn("delete session %s failed: %v", msg.sessionID, msg.err)
		return m.notify(controller.LevelError, text)
	}
	if msg.sessionID != m.ctrl.Session().ID {
		return nil
	}
	effects, _ := m.ctrl.ResetSession()
	return m.apply(effects)
}

func (m *Model) toggleTheme() tea.Cmd {
	dark := !m.styles.Theme.IsDark
	if m.prefs != nil {
		d, err := m.prefs.ToggleDarkMode(m.styles.Theme.IsDark)
		if err != nil {
			logging.Get(logging.CategoryUI).Warn("save theme: %v", err)
		}
		dark = d
	}
	m.setTheme(dark)
	if dark {
		return m.notify(controller.LevelInfo, "Tema oscuro activado")
	}
	return m.notify(controller.LevelInfo, "Tema claro activado")
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	vpHeight := height - headerHeight - buttonsHeight - footerHeight - inputHeight - paddingHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight

	inputWidth := width - 4
	if inputWidth < 10 {
		inputWidth = 10
	}
	m.textarea.SetWidth(inputWidth)

	m.filepicker.Height = max(height-6, 3)
	m.progress.Width = min(30, max(width/3, 10))

	m.renderer = newRenderer(m.styles.Theme.IsDark, width-6)
	m.renderCache = make(map[int]string)
	m.ready = true
	m.refreshViewport()
}
