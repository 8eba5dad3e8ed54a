// Package dispatch maps logical operations onto a session registry.
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"cli-commander/internal/session"
)

// DefaultWait is how long Run waits for a response when no wait is given.
const DefaultWait = 200 * time.Millisecond

// RunResult is the outcome of Run.
type RunResult struct {
	Name    string
	Command string
	// Opened is true when Run had to start the session first.
	Opened bool
	Lines  []session.Line
}

// Dispatcher is a thin command layer over a Registry. It owns no processes
// or goroutines.
type Dispatcher struct {
	registry *session.Registry
	wait     atomic.Int64
}

// New creates a Dispatcher. A non-positive wait selects DefaultWait.
func New(registry *session.Registry, wait time.Duration) *Dispatcher {
	d := &Dispatcher{registry: registry}
	d.wait.Store(int64(DefaultWait))
	d.SetWait(wait)
	return d
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *session.Registry { return d.registry }

// Wait returns the default post-send wait.
func (d *Dispatcher) Wait() time.Duration { return time.Duration(d.wait.Load()) }

// SetWait changes the default post-send wait. Non-positive values are ignored.
func (d *Dispatcher) SetWait(wait time.Duration) {
	if wait > 0 {
		d.wait.Store(int64(wait))
	}
}

// Open starts a named session.
func (d *Dispatcher) Open(ctx context.Context, name string) (session.Info, error) {
	s, err := d.registry.Open(ctx, name)
	if err != nil {
		return session.Info{}, err
	}
	return s.Info(), nil
}

// Run sends command to the named session, opening it first if it does not
// exist, and returns the output produced within wait.
func (d *Dispatcher) Run(ctx context.Context, name, command string, wait time.Duration) (RunResult, error) {
	res := RunResult{Name: name, Command: command}
	if wait <= 0 {
		wait = d.Wait()
	}

	s, opened, err := d.registry.Ensure(ctx, name)
	if err != nil {
		return res, err
	}
	res.Opened = opened

	res.Lines, err = s.Exec(ctx, command, wait)
	return res, err
}

// Send delivers command to an existing session without waiting.
func (d *Dispatcher) Send(name, command string) error {
	s, err := d.registry.Lookup(name)
	if err != nil {
		return err
	}
	return s.Send(command)
}

// List returns every registered session.
func (d *Dispatcher) List() []session.Info {
	return d.registry.List()
}

// Status returns one session, including a terminated one.
func (d *Dispatcher) Status(name string) (session.Info, error) {
	s, err := d.registry.Inspect(name)
	if err != nil {
		return session.Info{}, err
	}
	return s.Info(), nil
}

// Log returns the retained output of one session.
func (d *Dispatcher) Log(name string) ([]session.Line, error) {
	s, err := d.registry.Inspect(name)
	if err != nil {
		return nil, err
	}
	return s.Output(), nil
}

// Close terminates one session.
func (d *Dispatcher) Close(ctx context.Context, name string) (session.Termination, error) {
	return d.registry.Close(ctx, name)
}

// CloseAll terminates every session.
func (d *Dispatcher) CloseAll(ctx context.Context) (int, error) {
	return d.registry.CloseAll(ctx)
}

// Prune drops terminated sessions.
func (d *Dispatcher) Prune() int {
	return d.registry.Prune()
}
