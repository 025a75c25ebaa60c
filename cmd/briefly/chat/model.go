// Package chat provides the interactive TUI for briefly.
// The chat functionality is split across multiple files:
//   - model_types.go: Config, messages and the Model struct
//   - model.go: construction, Init and shutdown (this file)
//   - update.go: the Update loop and key handling
//   - effects.go: turning controller effects into tea commands
//   - commands.go: /command handling
//   - view.go: rendering
//
// All chat state lives in a controller.Controller owned by the bubbletea
// event loop; network calls and timers run as tea commands and report back
// as messages.
package chat

import (
	"context"
	"os"
	"sync"

	"briefly/cmd/briefly/ui"
	"briefly/internal/controller"
	"briefly/internal/logging"
	"briefly/internal/ux"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const inputPlaceholder = "Escribe tu consulta... (Enter para enviar, Ctrl+O cargar PDF, /help ayuda)"

// New initializes the chat model.
func New(cfg Config) Model {
	styles := ui.DefaultStyles()
	if cfg.Prefs != nil {
		if dark, ok := cfg.Prefs.DarkMode(); ok {
			styles = ui.NewStyles(ui.ThemeFor(dark))
		}
		if err := cfg.Prefs.IncrementMetric(ux.MetricSessions); err != nil {
			logging.Get(logging.CategoryUI).Warn("metrics: %v", err)
		}
	}

	ta := textarea.New()
	ta.Placeholder = inputPlaceholder
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 4096
	ta.ShowLineNumbers = false
	ta.SetHeight(1)
	ta.SetWidth(80)
	ta.KeyMap.InsertNewline.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)

	startDir := cfg.StartDir
	if startDir == "" {
		startDir, _ = os.Getwd()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		textarea:     ta,
		viewport:     vp,
		spinner:      sp,
		progress:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		filepicker:   newFilePicker(startDir),
		styles:       styles,
		renderCache:  make(map[int]string),
		viewMode:     ChatView,
		ctrl:         controller.New(cfg.Controller),
		width:        80,
		height:       24,
		serverURL:    cfg.ServerURL,
		startDir:     startDir,
		backend:      cfg.Backend,
		exporter:     cfg.Exporter,
		prefs:        cfg.Prefs,
		ctx:          ctx,
		cancel:       cancel,
		shutdownOnce: &sync.Once{},
	}
	m.renderer = newRenderer(styles.Theme.IsDark, 76)
	m.refreshViewport()
	logging.UI("chat model initialized (server %s)", cfg.ServerURL)
	return m
}

func newFilePicker(dir string) filepicker.Model {
	fp := filepicker.New()
	fp.AllowedTypes = []string{".pdf", ".PDF"}
	fp.CurrentDirectory = dir
	fp.ShowHidden = false
	return fp
}

// newRenderer builds the markdown renderer for bot messages. A nil renderer
// means plain text.
func newRenderer(dark bool, width int) *glamour.TermRenderer {
	if width < 20 {
		width = 20
	}
	style := "light"
	if dark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		logging.Get(logging.CategoryUI).Warn("markdown renderer unavailable: %v", err)
		return nil
	}
	return r
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Controller exposes the chat state, mainly for tests and the CLI.
func (m Model) Controller() *controller.Controller { return m.ctrl }

// Shutdown cancels in-flight requests and saves preferences.
// Safe to call multiple times.
func (m Model) Shutdown() {
	m.shutdownOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		if m.prefs != nil {
			if err := m.prefs.Save(); err != nil {
				logging.Get(logging.CategoryUI).Warn("save preferences: %v", err)
			}
		}
		logging.UI("chat shut down")
	})
}

// busy reports whether a spinner should be shown.
func (m Model) busy() bool {
	return m.ctrl.Processing() || m.ctrl.Uploading() || m.exporting || m.deleting
}
