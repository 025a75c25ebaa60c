package chat

import (
	"context"
	"sync"
	"time"

	"briefly/cmd/briefly/ui"
	"briefly/internal/api"
	"briefly/internal/controller"
	"briefly/internal/conversation"
	"briefly/internal/export"
	"briefly/internal/poll"
	"briefly/internal/ux"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
)

// toastDuration is how long a notification stays on screen.
const toastDuration = 3 * time.Second

// Layout heights in lines.
const (
	headerHeight  = 1
	buttonsHeight = 1
	footerHeight  = 1
	inputHeight   = 3
	paddingHeight = 2
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Backend is the part of the API client the chat uses.
type Backend interface {
	UploadFile(ctx context.Context, path string) (*api.QueryResponse, error)
	Query(ctx context.Context, query, sessionID string) (*api.QueryResponse, error)
	PollSummary(ctx context.Context, sessionID string) (*api.QueryResponse, error)
	SessionInfo(ctx context.Context, id string) (*api.SessionInfo, error)
	DeleteSession(ctx context.Context, id string) (string, error)
}

// Exporter writes conversation transcripts.
type Exporter interface {
	Export(ctx context.Context, snap conversation.Snapshot) (export.Result, error)
}

// Config holds configuration for initializing the chat interface.
type Config struct {
	Backend  Backend
	Exporter Exporter

	// Prefs may be nil; the theme is then detected and not persisted.
	Prefs *ux.PreferencesManager

	Controller controller.Options

	// StartDir is where the file picker opens. Empty means the working directory.
	StartDir string

	// ServerURL is shown in the header.
	ServerURL string
}

// ViewMode determines which component is focused/active
type ViewMode int

const (
	ChatView ViewMode = iota
	FilePickerView
	ConfirmClearView
	HelpView
)

// toast is a transient notification.
type toast struct {
	id    int
	level controller.Level
	text  string
}

// =============================================================================
// MESSAGES
// =============================================================================

type uploadResultMsg struct {
	resp *api.QueryResponse
	err  error
}

type queryResultMsg struct {
	resp *api.QueryResponse
	err  error
}

type sessionInfoMsg struct {
	sessionID string
	info      *api.SessionInfo
	err       error
}

type pollTickMsg struct {
	task poll.Task
}

type pollResultMsg struct {
	task poll.Task
	resp *api.QueryResponse
	err  error
}

type typingTickMsg struct{}

type exportResultMsg struct {
	result export.Result
	err    error
}

type deleteResultMsg struct {
	sessionID string
	message   string
	err       error
}

type toastExpiredMsg struct {
	id int
}

// =============================================================================
// CORE TYPES
// =============================================================================

// Model is the main model for the interactive chat interface
type Model struct {
	// UI Components
	textarea   textarea.Model
	viewport   viewport.Model
	spinner    spinner.Model
	progress   progress.Model
	filepicker filepicker.Model
	styles     ui.Styles
	renderer   *glamour.TermRenderer

	// renderCache holds rendered markdown of finished bot items by item ID.
	renderCache map[int]string

	viewMode ViewMode

	// State
	ctrl      *controller.Controller
	toast     *toast
	toastSeq  int
	exporting bool
	deleting  bool
	width     int
	height    int
	ready     bool
	serverURL string
	startDir  string

	// Backend
	backend  Backend
	exporter Exporter
	prefs    *ux.PreferencesManager

	// Lifecycle: every request runs under ctx so quitting cancels it.
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce *sync.Once
}
