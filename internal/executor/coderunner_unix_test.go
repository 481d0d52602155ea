//go:build unix

package executor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/deskagent/internal/failure"
)

func TestProcessRunnerCapturesOutput(t *testing.T) {
	out, err := NewProcessRunner(nil).Run(context.Background(), "sh", "echo hello; echo oops >&2", time.Second*5)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.Stdout)
	assert.Equal(t, "oops\n", out.Stderr)
	assert.Equal(t, 0, out.ExitCode)
}

func TestProcessRunnerNonZeroExit(t *testing.T) {
	out, err := NewProcessRunner(nil).Run(context.Background(), "sh", "echo broken >&2; exit 3", time.Second*5)
	assert.ErrorIs(t, err, failure.CodeExecutionFailed)
	assert.Contains(t, err.Error(), "broken")
	require.NotNil(t, out)
	assert.Equal(t, 3, out.ExitCode)
}

func TestProcessRunnerUnknownLanguage(t *testing.T) {
	_, err := NewProcessRunner(nil).Run(context.Background(), "cobol", "DISPLAY 'HI'.", time.Second)
	assert.ErrorIs(t, err, failure.InvalidAction)
}

func TestProcessRunnerMissingInterpreter(t *testing.T) {
	r := NewProcessRunner(nil)
	r.Interpreters = map[string][]string{"ghost": {"deskagent-no-such-interpreter", "-c"}}
	_, err := r.Run(context.Background(), "ghost", "x", time.Second)
	assert.ErrorIs(t, err, failure.CodeExecutionFailed)
}

func TestProcessRunnerTimeout(t *testing.T) {
	start := time.Now()
	_, err := NewProcessRunner(nil).Run(context.Background(), "sh", "sleep 5", 300*time.Millisecond)
	assert.ErrorIs(t, err, failure.CodeTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestProcessRunnerTimeoutLeavesNoOrphans(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	// The backgrounded sleep is a grandchild of the runner; it must die with the group.
	script := "sleep 30 & echo $! > " + pidFile + "; wait"

	_, err := NewProcessRunner(nil).Run(context.Background(), "sh", script, 500*time.Millisecond)
	require.ErrorIs(t, err, failure.CodeTimeout)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return processGone(pid) }, 3*time.Second, 50*time.Millisecond,
		"grandchild %d still running after timeout", pid)
}

func TestProcessRunnerParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	_, err := NewProcessRunner(nil).Run(ctx, "sh", "sleep 5", 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, failure.CodeTimeout)
}

func TestProcessRunnerPythonTimeout(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	_, err := NewProcessRunner(nil).Run(context.Background(), "python", "import time; time.sleep(5)", time.Second)
	assert.ErrorIs(t, err, failure.CodeTimeout)
}

func TestExecutorRunsCodeThroughProcessRunner(t *testing.T) {
	var got *Output
	ex := New(nil, Config{SecurityGateOpen: true, CodeTimeout: 5 * time.Second},
		WithObserver(ObserverFunc(func(_ context.Context, ev Event) { got = ev.Output })))

	require.NoError(t, ex.Execute(context.Background(), Sequence{Code("sh", "echo 42")}, nil))
	require.NotNil(t, got)
	assert.Equal(t, "42\n", got.Stdout)
}

// processGone reports whether pid no longer runs. A zombie reparented to an
// init that has not reaped it yet counts as gone.
func processGone(pid int) bool {
	err := syscall.Kill(pid, 0)
	if errors.Is(err, syscall.ESRCH) {
		return true
	}
	if runtime.GOOS != "linux" {
		return false
	}
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return true
	}
	// Format: pid (comm) state ...
	s := string(stat)
	i := strings.LastIndexByte(s, ')')
	return i >= 0 && i+2 < len(s) && s[i+2] == 'Z'
}
