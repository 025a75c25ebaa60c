// Package controller holds the chat client state: the current session, the
// processing flags, the conversation log and the summary poll cycle.
//
// A Controller has a single owner. Every exported method is a transition that
// mutates state and returns the Effects the owner must carry out; results of
// that work come back through the matching Apply* method. Nothing here does
// I/O or blocks, and nothing is safe for concurrent use.
package controller

import (
	"path/filepath"
	"strings"

	"briefly/internal/api"
	"briefly/internal/commands"
	"briefly/internal/conversation"
	"briefly/internal/logging"
	"briefly/internal/poll"
	"briefly/internal/typing"
)

// Session is the backend document the client is working on.
type Session struct {
	ID           string
	DocumentName string
	TotalPages   int
	TotalBlocks  int
	CurrentBlock int
}

// ItemKind classifies a feed item.
type ItemKind int

const (
	ItemUser ItemKind = iota
	ItemBot
	ItemSystem
)

// Item is one rendered entry of the chat feed. Bot items revealed with the
// typing effect read their text from the typist line.
type Item struct {
	ID   int
	Kind ItemKind
	text string
	line *typing.Line
}

// Text returns what should currently be shown.
func (i Item) Text() string {
	if i.line != nil {
		return i.line.Visible()
	}
	return i.text
}

// Typing reports whether the item is still being revealed.
func (i Item) Typing() bool {
	return i.line != nil && !i.line.Done()
}

// Options configures a Controller. Zero fields take defaults.
type Options struct {
	Policy poll.Policy
	Pace   typing.Pace
}

// Controller is the chat client state machine.
type Controller struct {
	log  *conversation.Log
	feed []Item
	seq  int

	session    Session
	processing bool
	uploading  bool

	typist          *typing.Typist
	typingScheduled bool

	poll     *poll.Machine
	commands []string

	progress    float64
	hasProgress bool
}

// New returns a controller showing the welcome message.
func New(opts Options) *Controller {
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = poll.DefaultPolicy()
	}
	if opts.Pace.CharsPerSecond == 0 {
		opts.Pace = typing.DefaultPace()
	}
	c := &Controller{
		log:      conversation.NewLog(),
		typist:   typing.New(opts.Pace),
		poll:     poll.NewMachine(opts.Policy),
		commands: commands.Default(),
	}
	c.addItem(ItemBot, MsgWelcome)
	return c
}

// Log returns the conversation log.
func (c *Controller) Log() *conversation.Log { return c.log }

// Session returns the current session. The zero Session means none.
func (c *Controller) Session() Session { return c.session }

// HasSession reports whether a document is loaded.
func (c *Controller) HasSession() bool { return c.session.ID != "" }

// Processing reports whether a query is in flight. The composing indicator
// is shown while it is true.
func (c *Controller) Processing() bool { return c.processing }

// Uploading reports whether an upload is in flight.
func (c *Controller) Uploading() bool { return c.uploading }

// Typing reports whether a typing animation is running.
func (c *Controller) Typing() bool { return c.typist.Busy() }

// Busy reports whether a new query would be rejected.
func (c *Controller) Busy() bool {
	return c.processing || c.uploading || c.typist.Busy()
}

// Polling reports whether a summary poll cycle is active.
func (c *Controller) Polling() bool { return c.poll.Active() }

// PollState exposes the poll machine state.
func (c *Controller) PollState() poll.State { return c.poll.State() }

// PollAttempt is the attempt counter of the current poll cycle.
func (c *Controller) PollAttempt() int { return c.poll.Attempt() }

// PollCycleID returns the id of the current poll cycle, empty when idle.
func (c *Controller) PollCycleID() string { return c.poll.CycleID() }

// Commands returns the quick-command list.
func (c *Controller) Commands() []string {
	out := make([]string, len(c.commands))
	copy(out, c.commands)
	return out
}

// Command returns the i-th quick command (0-based).
func (c *Controller) Command(i int) (string, bool) {
	if i < 0 || i >= len(c.commands) {
		return "", false
	}
	return c.commands[i], true
}

// Progress returns the document progress in percent. ok is false while the
// progress is unknown.
func (c *Controller) Progress() (percent float64, ok bool) {
	return c.progress, c.hasProgress
}

// Feed returns the rendered items in order.
func (c *Controller) Feed() []Item {
	out := make([]Item, len(c.feed))
	copy(out, c.feed)
	return out
}

// Progress computes current/total as a percentage clamped to [0,100].
// A non-positive total means the progress is unknown.
func Progress(current, total int) (float64, bool) {
	if total <= 0 {
		return 0, false
	}
	p := float64(current) / float64(total) * 100
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p, true
}

func (c *Controller) setProgress(current, total int) {
	if p, ok := Progress(current, total); ok {
		c.progress, c.hasProgress = p, true
	}
}

func (c *Controller) addItem(kind ItemKind, text string) {
	c.seq++
	c.feed = append(c.feed, Item{ID: c.seq, Kind: kind, text: text})
}

// say adds a bot message to the feed and the log without animation.
func (c *Controller) say(text string) {
	c.addItem(ItemBot, text)
	c.log.Append(conversation.SenderBot, text)
}

// notice adds a system line. Recorded notices also go to the log.
func (c *Controller) notice(text string, record bool) {
	c.addItem(ItemSystem, text)
	if record {
		c.log.Append(conversation.SenderSystem, text)
	}
}

// typeBot records a bot message and reveals it with the typing effect.
func (c *Controller) typeBot(text string) []Effect {
	c.log.Append(conversation.SenderBot, text)
	line := c.typist.Type(text)
	c.seq++
	c.feed = append(c.feed, Item{ID: c.seq, Kind: ItemBot, line: line})

	if c.typingScheduled {
		return nil
	}
	c.typingScheduled = true
	return []Effect{ScheduleTyping{Delay: c.typist.Interval()}}
}

// TypingTick reveals one more character and schedules the next tick while
// anything is left to type.
func (c *Controller) TypingTick() []Effect {
	c.typingScheduled = false
	if _, idle := c.typist.Step(); idle {
		logging.UI("typing finished")
	}
	if !c.typist.Busy() {
		return nil
	}
	c.typingScheduled = true
	return []Effect{ScheduleTyping{Delay: c.typist.Interval()}}
}

// SubmitQuery validates and records a user query.
func (c *Controller) SubmitQuery(text string) ([]Effect, error) {
	q := strings.TrimSpace(text)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if c.Busy() {
		return []Effect{Notify{Level: LevelWarning, Text: ToastBusy}}, ErrBusy
	}

	c.addItem(ItemUser, q)
	c.log.Append(conversation.SenderUser, q)
	c.processing = true
	return []Effect{SendQuery{Query: q, SessionID: c.session.ID}}, nil
}

// ApplyQueryResponse renders a successful query reply and acts on its
// block signals.
func (c *Controller) ApplyQueryResponse(resp *api.QueryResponse) []Effect {
	c.processing = false
	if !resp.Success {
		return c.ApplyQueryError(&api.BackendError{Op: "query", Message: resp.FailureText()})
	}

	var effects []Effect
	for _, text := range resp.Texts() {
		effects = append(effects, c.typeBot(text)...)
	}

	if resp.TotalBlocks > 0 {
		c.session.TotalBlocks = resp.TotalBlocks
	}
	if resp.TotalPages > 0 {
		c.session.TotalPages = resp.TotalPages
	}

	if resp.HasProcessingBlock && resp.ProcessingBlock > 0 {
		c.session.CurrentBlock = resp.ProcessingBlock
		c.setProgress(resp.ProcessingBlock, c.session.TotalBlocks)
		if c.HasSession() {
			effects = append(effects, c.startPoll())
		}
	}
	if resp.HasBlock && resp.Block > 0 {
		c.session.CurrentBlock = resp.Block
		c.setProgress(resp.Block, c.session.TotalBlocks)
	}
	if resp.Complete {
		c.notice(MsgDocumentComplete, true)
		effects = append(effects, Notify{Level: LevelSuccess, Text: ToastDocumentComplete})
	}
	return effects
}

// ApplyQueryError renders a failed query.
func (c *Controller) ApplyQueryError(err error) []Effect {
	c.processing = false
	if msg, ok := api.BackendMessage(err); ok {
		c.say(MsgErrorPrefix + msg)
		return []Effect{Notify{Level: LevelError, Text: ToastQueryError}}
	}
	logging.Get(logging.CategoryAPI).Warn("query failed: %v", err)
	c.say(MsgQueryFailed)
	return []Effect{Notify{Level: LevelError, Text: ToastConnection}}
}

// PrepareUpload validates a file path and starts an upload. Any poll cycle
// of the previous document is abandoned.
func (c *Controller) PrepareUpload(path string) ([]Effect, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return []Effect{Notify{Level: LevelWarning, Text: ToastNoFile}}, ErrNoFile
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return []Effect{Notify{Level: LevelWarning, Text: ToastNotPDF}}, ErrNotPDF
	}
	if c.uploading {
		return []Effect{Notify{Level: LevelWarning, Text: ToastUploadInFlight}}, ErrUploadInFlight
	}

	c.poll.Stop()
	c.uploading = true
	c.notice(MsgUploading, false)
	logging.Session("uploading %s", path)
	return []Effect{SendUpload{Path: path}}, nil
}

// ApplyUploadResponse installs the new session and starts polling for the
// first block summary.
func (c *Controller) ApplyUploadResponse(resp *api.QueryResponse) []Effect {
	c.uploading = false
	if !resp.Success {
		return c.ApplyUploadError(&api.BackendError{Op: "upload", Message: resp.FailureText()})
	}

	c.session = Session{
		ID:           resp.SessionID,
		TotalPages:   resp.TotalPages,
		TotalBlocks:  resp.TotalBlocks,
		CurrentBlock: 1,
	}
	if resp.HasProcessingBlock && resp.ProcessingBlock > 0 {
		c.session.CurrentBlock = resp.ProcessingBlock
	}
	c.hasProgress = false
	c.setProgress(c.session.CurrentBlock, c.session.TotalBlocks)

	var effects []Effect
	for _, text := range resp.Texts() {
		effects = append(effects, c.typeBot(text)...)
	}

	c.commands = commands.Buttons(resp.TotalBlocks, resp.TotalPages)

	// Without a session id there is nothing to poll for.
	if c.HasSession() {
		c.notice(MsgGeneratingFirst, false)
		c.notice(MsgKeepInteracting, false)
		effects = append(effects, FetchSessionInfo{SessionID: c.session.ID}, c.startPoll())
	} else {
		c.poll.Stop()
		logging.Get(logging.CategorySession).Warn("upload reply carried no session id")
	}
	effects = append(effects, Notify{Level: LevelSuccess, Text: ToastUploadOK})
	logging.Session("session %s ready: %d pages, %d blocks", c.session.ID, c.session.TotalPages, c.session.TotalBlocks)
	return effects
}

// ApplyUploadError renders a failed upload.
func (c *Controller) ApplyUploadError(err error) []Effect {
	c.uploading = false
	if msg, ok := api.BackendMessage(err); ok {
		c.say(MsgErrorPrefix + msg)
		return []Effect{Notify{Level: LevelError, Text: ToastUploadError}}
	}
	logging.Get(logging.CategorySession).Warn("upload failed: %v", err)
	c.say(MsgUploadFailed)
	return []Effect{Notify{Level: LevelError, Text: ToastConnection}}
}

// ApplySessionInfo merges document details into the current session. Info
// for another session is ignored.
func (c *Controller) ApplySessionInfo(info *api.SessionInfo) []Effect {
	if info == nil || info.SessionID != c.session.ID {
		return nil
	}
	c.session.DocumentName = info.DocumentName
	if c.session.DocumentName == "" {
		c.session.DocumentName = MsgNoDocumentName
	}
	c.session.TotalPages = info.TotalPages
	c.session.TotalBlocks = info.TotalBlocks
	if info.CurrentBlock > 0 {
		c.session.CurrentBlock = info.CurrentBlock
	}
	c.setProgress(c.session.CurrentBlock, c.session.TotalBlocks)
	c.commands = commands.Buttons(info.TotalBlocks, info.TotalPages)
	return nil
}

// ApplySessionInfoError reports a failed session info fetch.
func (c *Controller) ApplySessionInfoError(sessionID string, err error) []Effect {
	if sessionID != c.session.ID {
		return nil
	}
	logging.Get(logging.CategorySession).Warn("session info for %s failed: %v", sessionID, err)
	return []Effect{Notify{Level: LevelError, Text: ToastSessionInfoError}}
}

func (c *Controller) startPoll() Effect {
	task, delay := c.poll.Start(c.session.ID)
	logging.Get(logging.CategoryPoll).Info("poll cycle %s for session %s", task.CycleID, task.SessionID)
	return SchedulePoll{Task: task, Delay: delay}
}

// PollTick handles a scheduled poll firing.
func (c *Controller) PollTick(task poll.Task) []Effect {
	if !c.HasSession() {
		return nil
	}
	d := c.poll.Tick(task)
	switch d.Action {
	case poll.ActionRequest:
		return []Effect{RequestPoll{Task: d.Task}}
	case poll.ActionExhausted:
		logging.Get(logging.CategoryPoll).Warn("poll cycle %s exhausted", task.CycleID)
		c.notice(MsgPollExhausted, true)
	}
	return nil
}

// ApplyPollResult classifies a poll reply and moves the cycle on. A nil
// resp with a nil err counts as a failure.
func (c *Controller) ApplyPollResult(task poll.Task, resp *api.QueryResponse, err error) []Effect {
	outcome := poll.OutcomeFailed
	switch {
	case err != nil || resp == nil || !resp.Success:
	case resp.IsBlockSummary:
		outcome = poll.OutcomeReady
	default:
		outcome = poll.OutcomeNotReady
	}

	d := c.poll.Resolve(task, outcome)
	switch d.Action {
	case poll.ActionDeliver:
		if resp.HasBlock && resp.Block > 0 {
			c.session.CurrentBlock = resp.Block
		}
		if resp.TotalBlocks > 0 {
			c.session.TotalBlocks = resp.TotalBlocks
			c.setProgress(c.session.CurrentBlock, resp.TotalBlocks)
		}
		effects := c.typeBot(resp.Message)
		c.notice(MsgNextBlockHint, false)
		return effects
	case poll.ActionRetry:
		if d.Notice {
			c.notice(ProgressNotice(d.Attempt, c.poll.Policy().MaxAttempts), false)
		}
		return []Effect{SchedulePoll{Task: d.Task, Delay: d.Delay}}
	}
	return nil
}

// Clear empties the conversation and reseeds it with the first bot message,
// or the welcome message when the log did not start with one. The poll
// cycle and any typing animation are stopped.
func (c *Controller) Clear() ([]Effect, error) {
	if len(c.feed) == 0 {
		return []Effect{Notify{Level: LevelWarning, Text: ToastNothingToClear}}, ErrNothingToClear
	}

	reseed := MsgWelcome
	if first, ok := c.log.First(); ok && first.Sender == conversation.SenderBot {
		reseed = first.Message
	}

	c.typist.Flush()
	c.poll.Stop()
	c.feed = nil
	c.log.Clear(reseed)
	c.addItem(ItemBot, reseed)
	logging.Session("conversation cleared")
	return []Effect{Notify{Level: LevelSuccess, Text: ToastCleared}}, nil
}

// ResetSession forgets the current document, after it was deleted on the
// backend.
func (c *Controller) ResetSession() ([]Effect, error) {
	if !c.HasSession() {
		return []Effect{Notify{Level: LevelWarning, Text: ToastNoSession}}, ErrNoSession
	}
	c.poll.Stop()
	c.session = Session{}
	c.hasProgress = false
	c.progress = 0
	c.commands = commands.Default()
	return []Effect{Notify{Level: LevelSuccess, Text: ToastSessionDeleted}}, nil
}

// Snapshot captures the conversation for export without modifying it.
func (c *Controller) Snapshot() (conversation.Snapshot, error) {
	if c.log.Len() == 0 {
		return conversation.Snapshot{}, ErrNothingToExport
	}
	var meta *conversation.SessionMeta
	if c.session.ID != "" && c.session.DocumentName != "" {
		meta = &conversation.SessionMeta{
			SessionID:    c.session.ID,
			DocumentName: c.session.DocumentName,
			TotalPages:   c.session.TotalPages,
			TotalBlocks:  c.session.TotalBlocks,
		}
	}
	return c.log.TakeSnapshot(meta), nil
}
