package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/v0xg/deskagent/internal/failure"
	"go.uber.org/zap"
)

// DefaultCodeTimeout bounds code actions when the config leaves it unset.
const DefaultCodeTimeout = 10 * time.Second

// Output is what a code action produced
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// CodeRunner executes a code action with a hard wall-clock limit
type CodeRunner interface {
	Run(ctx context.Context, language, code string, timeout time.Duration) (*Output, error)
}

// DefaultInterpreters maps action languages to the argv prefix that runs
// inline source.
var DefaultInterpreters = map[string][]string{
	"python":     {"python3", "-c"},
	"python3":    {"python3", "-c"},
	"sh":         {"sh", "-c"},
	"shell":      {"sh", "-c"},
	"bash":       {"bash", "-c"},
	"node":       {"node", "-e"},
	"javascript": {"node", "-e"},
}

// ProcessRunner runs code in a child process placed in its own process group;
// on timeout the whole group is killed, so nothing the code spawned outlives
// the action.
type ProcessRunner struct {
	Interpreters map[string][]string
	logger       *zap.Logger
}

// NewProcessRunner returns a runner using DefaultInterpreters
func NewProcessRunner(logger *zap.Logger) *ProcessRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessRunner{Interpreters: DefaultInterpreters, logger: logger}
}

// Run executes code. A run past timeout fails with CodeTimeout, a non-zero
// exit or a failed start with CodeExecutionFailed, and an unknown language
// with InvalidAction.
func (r *ProcessRunner) Run(ctx context.Context, language, code string, timeout time.Duration) (*Output, error) {
	argv, ok := r.Interpreters[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return nil, failure.New(failure.InvalidAction, fmt.Sprintf("unsupported code language %q", language))
	}
	if timeout <= 0 {
		timeout = DefaultCodeTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, argv[1:]...), code)
	cmd := exec.CommandContext(runCtx, argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	killProcessGroupOnCancel(cmd)

	r.logger.Debug("code started", zap.String("language", language), zap.Strings("argv", argv), zap.Duration("timeout", timeout))
	start := time.Now()
	err := cmd.Run()
	out := &Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		return out, nil
	case ctx.Err() != nil:
		return out, fmt.Errorf("code action cancelled: %w", ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return out, failure.New(failure.CodeTimeout, fmt.Sprintf("%s code exceeded %s", language, timeout))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, failure.New(failure.CodeExecutionFailed,
			fmt.Sprintf("%s exited with status %d: %s", language, out.ExitCode, tail(out.Stderr, 500)))
	}
	return out, failure.Wrap(failure.CodeExecutionFailed, "start "+argv[0], err)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
