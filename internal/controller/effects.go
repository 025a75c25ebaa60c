package controller

import (
	"time"

	"briefly/internal/poll"
)

// Level is the severity of a transient notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Effect is work the owner must perform after a transition: I/O, timers or
// notifications. The controller itself never blocks.
type Effect interface {
	effect()
}

// Notify shows a transient notification.
type Notify struct {
	Level Level
	Text  string
}

// SendUpload uploads the file at Path.
type SendUpload struct {
	Path string
}

// SendQuery sends a text query. SessionID is empty before any upload.
type SendQuery struct {
	Query     string
	SessionID string
}

// FetchSessionInfo loads the document details of a session.
type FetchSessionInfo struct {
	SessionID string
}

// SchedulePoll fires PollTick(Task) after Delay.
type SchedulePoll struct {
	Task  poll.Task
	Delay time.Duration
}

// RequestPoll performs the summary request for Task and reports back
// through ApplyPollResult.
type RequestPoll struct {
	Task poll.Task
}

// ScheduleTyping fires TypingTick after Delay.
type ScheduleTyping struct {
	Delay time.Duration
}

func (Notify) effect()           {}
func (SendUpload) effect()       {}
func (SendQuery) effect()        {}
func (FetchSessionInfo) effect() {}
func (SchedulePoll) effect()     {}
func (RequestPoll) effect()      {}
func (ScheduleTyping) effect()   {}
