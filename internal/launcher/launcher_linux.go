package launcher

import "golang.org/x/sys/unix"

// awaitExit blocks until pid has exited without reaping it. The zombie keeps
// the pid and its process group id reserved until exec.Cmd.Wait runs.
func awaitExit(pid int) {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if err != unix.EINTR {
			return
		}
	}
}
