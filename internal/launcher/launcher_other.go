//go:build !linux

package launcher

// awaitExit returns at once; the reap in exec.Cmd.Wait is the only exit
// notification available here.
func awaitExit(int) {}
