package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"cli-commander/internal/launcher"
)

// State represents the lifecycle state of a session.
type State string

const (
	StateCreated    State = "created"
	StateRunning    State = "running"
	StateClosing    State = "closing"
	StateTerminated State = "terminated"
)

// Line is a single line of shell output.
type Line struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Info is a point-in-time view of a session.
type Info struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	ExitedAt  time.Time `json:"exitedAt,omitzero"`
	ExitCode  *int      `json:"exitCode,omitempty"`
	Lines     int       `json:"lines"`
}

// Termination describes a completed close.
type Termination struct {
	Name     string `json:"name"`
	ID       string `json:"id"`
	PID      int    `json:"pid"`
	Forced   bool   `json:"forced"`
	ExitCode int    `json:"exitCode"`
}

// Sink receives every output line as the monitor records it. It runs on the
// monitor goroutine and must not block.
type Sink func(name string, line Line)

// inputWriter serializes writes to a shell's stdin.
type inputWriter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	closed bool
}

func (iw *inputWriter) Write(data string) error {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	if iw.closed {
		return fmt.Errorf("stdin pipe closed")
	}
	_, err := io.WriteString(iw.writer, data)
	return err
}

func (iw *inputWriter) Close() {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	if !iw.closed {
		iw.writer.Close()
		iw.closed = true
	}
}

// Session is one named shell process with its input stream, output log and
// output monitor.
type Session struct {
	name       string
	id         string
	createdAt  time.Time
	pid        int
	proc       launcher.Process
	stdin      *inputWriter
	out        *OutputLog
	lineEnding string
	sink       Sink
	logger     *log.Logger

	mu       sync.RWMutex
	state    State
	exitCode int
	exitedAt time.Time

	closeMu sync.Mutex
	done    chan struct{} // closed by the monitor once it has joined
}

func newSession(name string, proc launcher.Process, cfg registryConfig) *Session {
	return &Session{
		name:       name,
		id:         uuid.New().String(),
		createdAt:  time.Now().UTC(),
		pid:        proc.PID(),
		proc:       proc,
		stdin:      &inputWriter{writer: proc.Stdin()},
		out:        NewOutputLog(cfg.outputLines),
		lineEnding: cfg.lineEnding,
		sink:       cfg.sink,
		logger:     cfg.logger.With("session", name),
		state:      StateCreated,
		done:       make(chan struct{}),
	}
}

// start moves the session to running and launches its monitor.
func (s *Session) start() {
	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	go s.monitor()
}

func (s *Session) Name() string         { return s.name }
func (s *Session) ID() string           { return s.id }
func (s *Session) PID() int             { return s.pid }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Done is closed once the shell has exited and its monitor has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns the state and process id.
func (s *Session) Status() (State, int) {
	return s.State(), s.pid
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	info := Info{
		Name:      s.name,
		ID:        s.id,
		PID:       s.pid,
		State:     s.state,
		CreatedAt: s.createdAt,
		ExitedAt:  s.exitedAt,
	}
	if s.state == StateTerminated {
		code := s.exitCode
		info.ExitCode = &code
	}
	s.mu.RUnlock()

	info.Lines = s.out.Len()
	return info
}

// Output returns every line still held in the output log.
func (s *Session) Output() []Line {
	return s.out.Snapshot()
}

// OutputSince returns the lines with a sequence number of at least seq.
func (s *Session) OutputSince(seq uint64) []Line {
	return s.out.Since(seq)
}

// Mark returns the sequence number the next output line will get.
func (s *Session) Mark() uint64 {
	return s.out.Next()
}

// Send writes a command line to the shell.
func (s *Session) Send(command string) error {
	if st := s.State(); st != StateRunning {
		return newError("send", s.name, ErrNotRunning, fmt.Errorf("state is %s", st))
	}
	if err := s.stdin.Write(command + s.lineEnding); err != nil {
		return newError("send", s.name, ErrWriteFailure, err)
	}
	s.logger.Debug("command sent", "command", command)
	return nil
}

// Exec sends a command, waits up to wait for the shell to respond, and
// returns the output produced since the command was sent. There is no prompt
// detection: output arriving after the wait is only visible through Output.
func (s *Session) Exec(ctx context.Context, command string, wait time.Duration) ([]Line, error) {
	mark := s.out.Next()
	if err := s.Send(command); err != nil {
		return nil, err
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.done:
		case <-ctx.Done():
			return s.out.Since(mark), ctx.Err()
		}
	}
	return s.out.Since(mark), nil
}

// Close ends the shell. It closes stdin and asks the shell to terminate,
// waits up to grace, then kills the process group and waits up to grace
// again. A session that already exited closes immediately. Cancelling ctx
// cuts the graceful phase short.
func (s *Session) Close(ctx context.Context, grace time.Duration) (Termination, error) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if grace <= 0 {
		grace = defaultGracePeriod
	}
	term := Termination{Name: s.name, ID: s.id, PID: s.pid}

	s.mu.Lock()
	switch s.state {
	case StateTerminated:
		term.ExitCode = s.exitCode
		s.mu.Unlock()
		return term, nil
	case StateRunning:
		s.state = StateClosing
	case StateClosing:
		// An earlier close gave up after the kill; try again.
	default:
		st := s.state
		s.mu.Unlock()
		return term, newError("close", s.name, ErrNotRunning, fmt.Errorf("state is %s", st))
	}
	s.mu.Unlock()

	s.stdin.Close()
	if err := s.proc.Terminate(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Debug("terminate request failed", "error", err)
	}

	if !s.await(ctx, grace) {
		term.Forced = true
		s.logger.Warn("shell ignored close, killing", "pid", s.pid, "grace", grace)
		if err := s.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warn("kill failed", "pid", s.pid, "error", err)
		}

		if !s.await(context.Background(), grace) {
			// Something outside the process group still holds the output
			// pipe; stop reading so the monitor can reap the shell.
			s.proc.Output().Close()
			if !s.await(context.Background(), grace) {
				return term, newError("close", s.name, ErrTerminationTimeout,
					fmt.Errorf("pid %d still running after kill", s.pid))
			}
		}
	}

	s.mu.RLock()
	term.ExitCode = s.exitCode
	s.mu.RUnlock()
	s.logger.Debug("session closed", "pid", s.pid, "forced", term.Forced, "exit_code", term.ExitCode)
	return term, nil
}

// await reports whether the monitor finished within d.
func (s *Session) await(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		select {
		case <-s.done:
			return true
		default:
			return false
		}
	}
}

// finish records the exit and releases everyone waiting on done.
func (s *Session) finish(code int) {
	s.mu.Lock()
	prev := s.state
	s.state = StateTerminated
	s.exitCode = code
	s.exitedAt = time.Now().UTC()
	close(s.done)
	s.mu.Unlock()

	if prev == StateRunning {
		s.logger.Info("shell exited", "pid", s.pid, "exit_code", code)
	}
}
