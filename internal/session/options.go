package session

import (
	"time"

	"github.com/charmbracelet/log"

	"cli-commander/internal/launcher"
)

const defaultGracePeriod = 5 * time.Second

// Option configures a Registry.
type Option func(*registryConfig)

type registryConfig struct {
	gracePeriod time.Duration
	maxSessions int
	outputLines int
	lineEnding  string
	logger      *log.Logger
	sink        Sink
}

func defaultRegistryConfig() registryConfig {
	return registryConfig{
		gracePeriod: defaultGracePeriod,
		outputLines: defaultOutputLines,
		lineEnding:  launcher.LineEnding,
		logger:      log.Default(),
	}
}

// WithGracePeriod sets how long a close waits for the shell to exit before
// killing it, and how long it waits again after the kill.
func WithGracePeriod(d time.Duration) Option {
	return func(c *registryConfig) {
		if d > 0 {
			c.gracePeriod = d
		}
	}
}

// WithMaxSessions limits the number of live sessions. Zero means no limit.
func WithMaxSessions(n int) Option {
	return func(c *registryConfig) { c.maxSessions = n }
}

// WithOutputLines sets how many output lines each session keeps.
func WithOutputLines(n int) Option {
	return func(c *registryConfig) { c.outputLines = n }
}

// WithLineEnding sets the terminator appended to every command.
func WithLineEnding(s string) Option {
	return func(c *registryConfig) { c.lineEnding = s }
}

// WithLogger sets the logger. Sessions log with a "session" key added.
func WithLogger(l *log.Logger) Option {
	return func(c *registryConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSink forwards every output line of every session to fn.
func WithSink(fn Sink) Option {
	return func(c *registryConfig) { c.sink = fn }
}
