package config

import (
	"time"

	"briefly/internal/poll"
	"briefly/internal/typing"
)

// GetTypingMin returns the minimum typing duration.
func (c *Config) GetTypingMin() time.Duration {
	return parseDuration(c.Typing.MinDuration, 1500*time.Millisecond)
}

// GetTypingMax returns the maximum typing duration.
func (c *Config) GetTypingMax() time.Duration {
	return parseDuration(c.Typing.MaxDuration, 8*time.Second)
}

// PollPolicy builds the polling policy, falling back to the defaults for
// unset or unparsable values.
func (c *Config) PollPolicy() poll.Policy {
	def := poll.DefaultPolicy()
	p := poll.Policy{
		InitialDelay:  parseDuration(c.Poll.InitialDelay, def.InitialDelay),
		ReadyDelay:    parseDuration(c.Poll.ReadyDelay, def.ReadyDelay),
		FailureBase:   parseDuration(c.Poll.FailureBase, def.FailureBase),
		FailureMax:    parseDuration(c.Poll.FailureMax, def.FailureMax),
		FailureFactor: c.Poll.FailureFactor,
		MaxAttempts:   c.Poll.MaxAttempts,
		NoticeEvery:   c.Poll.NoticeEvery,
	}
	if p.FailureFactor < 1 {
		p.FailureFactor = def.FailureFactor
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

// TypingPace builds the typing pace.
func (c *Config) TypingPace() typing.Pace {
	p := typing.Pace{
		CharsPerSecond: c.Typing.CharsPerSecond,
		Min:            c.GetTypingMin(),
		Max:            c.GetTypingMax(),
	}
	if p.CharsPerSecond <= 0 {
		p.CharsPerSecond = typing.DefaultPace().CharsPerSecond
	}
	return p
}
