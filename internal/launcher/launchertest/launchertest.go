// Package launchertest provides a scripted in-memory shell for tests.
//
// The fake shell understands a handful of commands:
//
//	echo <text>    writes <text> (surrounding quotes stripped)
//	seq <n>        writes 1..n, one per line
//	sleep <dur>    blocks for a Go duration before reading the next command
//	exit [code]    exits with the given code
//
// Anything else writes "<cmd>: command not found".
package launchertest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cli-commander/internal/launcher"
)

// Launcher hands out fake shells.
type Launcher struct {
	mu             sync.Mutex
	nextPID        int
	procs          []*Process
	spawnErr       error
	spawnDelay     time.Duration
	ignoreGraceful bool
	unkillable     bool
}

// New creates a Launcher whose shells behave cooperatively.
func New() *Launcher {
	return &Launcher{nextPID: 1000}
}

// FailSpawn makes every following launch fail with err. Pass nil to reset.
func (l *Launcher) FailSpawn(err error) {
	l.mu.Lock()
	l.spawnErr = err
	l.mu.Unlock()
}

// SpawnDelay makes launches block for d before returning.
func (l *Launcher) SpawnDelay(d time.Duration) {
	l.mu.Lock()
	l.spawnDelay = d
	l.mu.Unlock()
}

// IgnoreGraceful makes following shells survive end of input and Terminate;
// only Kill ends them.
func (l *Launcher) IgnoreGraceful(v bool) {
	l.mu.Lock()
	l.ignoreGraceful = v
	l.mu.Unlock()
}

// Unkillable makes following shells ignore Kill as well. Tests must call
// Release on them.
func (l *Launcher) Unkillable(v bool) {
	l.mu.Lock()
	l.unkillable = v
	l.mu.Unlock()
}

// Launch implements launcher.Launcher.
func (l *Launcher) Launch(ctx context.Context) (launcher.Process, error) {
	l.mu.Lock()
	delay, spawnErr := l.spawnDelay, l.spawnErr
	l.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if spawnErr != nil {
		return nil, spawnErr
	}

	l.mu.Lock()
	l.nextPID++
	p := newProcess(l.nextPID, l.ignoreGraceful, l.unkillable)
	l.procs = append(l.procs, p)
	l.mu.Unlock()

	go p.run()
	return p, nil
}

// Processes returns every shell launched so far, oldest first.
func (l *Launcher) Processes() []*Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Process, len(l.procs))
	copy(out, l.procs)
	return out
}

// Launches returns the number of successful launches.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

// Process is a fake shell.
type Process struct {
	pid            int
	ignoreGraceful bool
	unkillable     bool

	stdinR *io.PipeReader
	stdinW *io.PipeWriter
	outR   *io.PipeReader
	outW   *io.PipeWriter

	exited   chan struct{}
	exitOnce sync.Once
	code     int

	mu       sync.Mutex
	received []string

	terminated atomic.Bool
	killed     atomic.Bool
}

func newProcess(pid int, ignoreGraceful, unkillable bool) *Process {
	p := &Process{
		pid:            pid,
		ignoreGraceful: ignoreGraceful || unkillable,
		unkillable:     unkillable,
		exited:         make(chan struct{}),
	}
	p.stdinR, p.stdinW = io.Pipe()
	p.outR, p.outW = io.Pipe()
	return p
}

func (p *Process) PID() int              { return p.pid }
func (p *Process) Stdin() io.WriteCloser { return p.stdinW }
func (p *Process) Output() io.ReadCloser { return p.outR }

// Terminate records the request and exits unless graceful requests are ignored.
func (p *Process) Terminate() error {
	p.terminated.Store(true)
	if !p.ignoreGraceful {
		p.exit(143)
	}
	return nil
}

// Kill exits the shell unless it is unkillable.
func (p *Process) Kill() error {
	p.killed.Store(true)
	if !p.unkillable {
		p.exit(137)
	}
	return nil
}

// Wait blocks until the shell exits.
func (p *Process) Wait() (int, error) {
	<-p.exited
	return p.code, nil
}

// Release exits the shell regardless of its behavior.
func (p *Process) Release() {
	p.exit(137)
}

// Exited reports whether the shell has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// Terminated reports whether Terminate was called.
func (p *Process) Terminated() bool { return p.terminated.Load() }

// Killed reports whether Kill was called.
func (p *Process) Killed() bool { return p.killed.Load() }

// Received returns the command lines read from stdin, in order.
func (p *Process) Received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.received))
	copy(out, p.received)
	return out
}

func (p *Process) run() {
	scanner := bufio.NewScanner(p.stdinR)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		p.mu.Lock()
		p.received = append(p.received, line)
		p.mu.Unlock()

		if !p.execute(line) {
			return
		}
	}
	if !p.ignoreGraceful {
		p.exit(0)
	}
}

// execute runs one command line and reports whether the shell keeps reading.
func (p *Process) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}

	switch fields[0] {
	case "echo":
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "echo"))
		p.emit(strings.Trim(text, `'"`))
	case "seq":
		n := 0
		if len(fields) > 1 {
			n, _ = strconv.Atoi(fields[1])
		}
		for i := 1; i <= n; i++ {
			p.emit(strconv.Itoa(i))
		}
	case "sleep":
		if len(fields) > 1 {
			if d, err := time.ParseDuration(fields[1]); err == nil {
				time.Sleep(d)
			}
		}
	case "exit":
		code := 0
		if len(fields) > 1 {
			code, _ = strconv.Atoi(fields[1])
		}
		p.exit(code)
		return false
	default:
		p.emit(fmt.Sprintf("%s: command not found", fields[0]))
	}
	return true
}

func (p *Process) emit(text string) {
	_, _ = io.WriteString(p.outW, text+"\n")
}

func (p *Process) exit(code int) {
	p.exitOnce.Do(func() {
		p.code = code
		p.outW.Close()
		p.stdinR.CloseWithError(io.ErrClosedPipe)
		close(p.exited)
	})
}
