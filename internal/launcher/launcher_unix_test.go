//go:build !windows

package launcher

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecLauncher_EchoAndExit(t *testing.T) {
	requireShell(t)

	proc, err := New("sh", nil, t.TempDir()).Launch(context.Background())
	require.NoError(t, err)
	assert.Greater(t, proc.PID(), 0)

	_, err = io.WriteString(proc.Stdin(), "echo hello\necho oops 1>&2\nexit 3\n")
	require.NoError(t, err)

	scanner := bufio.NewScanner(proc.Output())
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	assert.Equal(t, []string{"hello", "oops"}, lines)

	code, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestExecLauncher_EndOfInputEndsShell(t *testing.T) {
	requireShell(t)

	proc, err := New("sh", nil, "").Launch(context.Background())
	require.NoError(t, err)

	require.NoError(t, proc.Stdin().Close())
	_, _ = io.Copy(io.Discard, proc.Output())

	code, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExecLauncher_KillEndsProcessGroup(t *testing.T) {
	requireShell(t)

	proc, err := New("sh", nil, "").Launch(context.Background())
	require.NoError(t, err)

	// A background child keeps the output pipe open; only a group kill
	// releases it.
	_, err = io.WriteString(proc.Stdin(), "sleep 30 &\necho ready\n")
	require.NoError(t, err)

	scanner := bufio.NewScanner(proc.Output())
	require.True(t, scanner.Scan())
	assert.Equal(t, "ready", scanner.Text())

	require.NoError(t, proc.Kill())

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, proc.Output())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("output not released after kill")
	}

	code, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, -1, code)
	assert.Error(t, proc.Kill())
}

func TestExecLauncher_SignalsAfterReapAreRefused(t *testing.T) {
	requireShell(t)

	proc, err := New("sh", nil, "").Launch(context.Background())
	require.NoError(t, err)

	_, err = io.WriteString(proc.Stdin(), "exit 0\n")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, proc.Output())

	code, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	assert.ErrorIs(t, proc.Terminate(), os.ErrProcessDone)
	assert.ErrorIs(t, proc.Kill(), os.ErrProcessDone)
}

func TestExecLauncher_SignalsRacingWait(t *testing.T) {
	requireShell(t)

	proc, err := New("sh", nil, "").Launch(context.Background())
	require.NoError(t, err)
	go func() { _, _ = io.Copy(io.Discard, proc.Output()) }()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := proc.Terminate(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				select {
				case errs <- err:
				default:
				}
				return
			}
		}
	}()

	_, err = proc.Wait()
	require.NoError(t, err)
	close(stop)
	wg.Wait()

	select {
	case err := <-errs:
		t.Fatalf("unexpected signal error: %v", err)
	default:
	}
	assert.ErrorIs(t, proc.Kill(), os.ErrProcessDone)
}

func TestExecLauncher_UnknownShell(t *testing.T) {
	_, err := New("definitely-not-a-shell-xyz", nil, "").Launch(context.Background())
	require.Error(t, err)
}

func TestExecLauncher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New("", nil, "").Launch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExitStatus(t *testing.T) {
	code, err := exitStatus(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	code, err = exitStatus(exec.ErrNotFound)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.Equal(t, -1, code)
}
