// Package launcher spawns the platform shell that backs a session.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Process is a spawned shell owned by exactly one session.
type Process interface {
	// PID returns the operating system process id.
	PID() int

	// Stdin is the shell's input stream.
	Stdin() io.WriteCloser

	// Output is the shell's merged stdout and stderr stream. It reaches EOF
	// once every holder of the write end has exited.
	Output() io.ReadCloser

	// Terminate asks the shell to exit.
	Terminate() error

	// Kill ends the shell and its process group unconditionally.
	Kill() error

	// Wait blocks until the shell has exited and returns its exit code.
	Wait() (int, error)
}

// Launcher spawns shells.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// ExecLauncher starts a local shell with os/exec.
type ExecLauncher struct {
	Shell string
	Args  []string
	Dir   string
	Env   []string
}

// New creates an ExecLauncher. An empty shell selects the platform default.
func New(shell string, args []string, dir string) *ExecLauncher {
	return &ExecLauncher{
		Shell: shell,
		Args:  args,
		Dir:   dir,
	}
}

// Launch starts the shell. The context only bounds the spawn; the shell
// outlives it.
func (l *ExecLauncher) Launch(ctx context.Context) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, args, err := l.resolve()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = l.Dir
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	setProcGroup(cmd)

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdin = stdinR
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("start %s: %w", path, err)
	}

	// The child holds its own copies now.
	stdinR.Close()
	outW.Close()

	return &execProcess{
		cmd:    cmd,
		stdin:  stdinW,
		output: outR,
	}, nil
}

func (l *ExecLauncher) resolve() (string, []string, error) {
	args := l.Args
	if l.Shell != "" {
		path, err := exec.LookPath(l.Shell)
		if err != nil {
			return "", nil, fmt.Errorf("shell %q not found: %w", l.Shell, err)
		}
		return path, args, nil
	}

	if args == nil {
		args = defaultArgs
	}
	for _, name := range defaultShells {
		if path, err := exec.LookPath(name); err == nil {
			return path, args, nil
		}
	}
	return "", nil, fmt.Errorf("no shell found in PATH (tried %v)", defaultShells)
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  *os.File
	output *os.File

	// sigMu orders signals against the reap so a recycled pid is never
	// signalled.
	sigMu  sync.Mutex
	exited bool

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

func (p *execProcess) PID() int              { return p.cmd.Process.Pid }
func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Output() io.ReadCloser { return p.output }

func (p *execProcess) Terminate() error {
	return p.signal(terminateProcess)
}

func (p *execProcess) Kill() error {
	return p.signal(killProcess)
}

func (p *execProcess) signal(send func(*os.Process) error) error {
	p.sigMu.Lock()
	defer p.sigMu.Unlock()
	if p.exited {
		return os.ErrProcessDone
	}
	return send(p.cmd.Process)
}

// Wait blocks until the shell exits, then marks it exited before reaping so
// no signal can race the release of its pid.
func (p *execProcess) Wait() (int, error) {
	p.waitOnce.Do(func() {
		awaitExit(p.cmd.Process.Pid)

		p.sigMu.Lock()
		p.exited = true
		p.sigMu.Unlock()

		p.exitCode, p.waitErr = exitStatus(p.cmd.Wait())
	})
	return p.exitCode, p.waitErr
}

// exitStatus converts the result of exec.Cmd.Wait into an exit code. A shell
// that exits non-zero is not an error here.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
