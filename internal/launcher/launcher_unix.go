//go:build !windows

package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// LineEnding terminates every command written to a shell.
const LineEnding = "\n"

var (
	defaultShells = []string{"bash", "sh"}
	defaultArgs   []string
)

// setProcGroup puts the shell in its own process group so signals reach the
// commands it started as well.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcess(p *os.Process) error {
	return signalGroup(p.Pid, unix.SIGTERM)
}

func killProcess(p *os.Process) error {
	return signalGroup(p.Pid, unix.SIGKILL)
}

func signalGroup(pid int, sig syscall.Signal) error {
	if err := unix.Kill(-pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		return fmt.Errorf("signal process group %d: %w", pid, err)
	}
	return nil
}
