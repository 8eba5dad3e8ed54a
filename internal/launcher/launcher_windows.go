//go:build windows

package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// LineEnding terminates every command written to a shell.
const LineEnding = "\r\n"

var (
	defaultShells = []string{"cmd.exe"}
	defaultArgs   = []string{"/Q"}
)

func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// terminateProcess is a no-op: cmd.exe exits on end of input, and console
// control events cannot be targeted at a single piped child.
func terminateProcess(p *os.Process) error {
	return nil
}

// killProcess ends the process tree with taskkill, falling back to
// TerminateProcess on the shell alone.
func killProcess(p *os.Process) error {
	cmd := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(p.Pid))
	if err := cmd.Run(); err != nil {
		if killErr := p.Kill(); killErr != nil {
			return fmt.Errorf("taskkill failed for pid %d: %w", p.Pid, err)
		}
	}
	return nil
}
