// Package toolrun executes the external helpers (screenshot tool, OCR
// engine, compositor scripting tools) with hard deadlines.
package toolrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DefaultTimeout applies when a Request carries no timeout.
const DefaultTimeout = 30 * time.Second

// maxStderr bounds how much stderr is carried into errors and logs.
const maxStderr = 512

// Request describes one tool invocation
type Request struct {
	Command string
	Args    []string
	Stdin   []byte
	Env     []string // appended to the current environment
	Timeout time.Duration
}

// Result holds the outcome of a finished tool invocation
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner runs external tools.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// HostRunner runs tools directly on the host.
type HostRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after the
	// process has been killed.
	WaitDelay time.Duration
}

// NewHostRunner creates a runner with default settings
func NewHostRunner() *HostRunner {
	return &HostRunner{WaitDelay: 500 * time.Millisecond}
}

// Run executes the request. The returned Result is populated even when an
// error is returned, so callers can inspect stderr.
func (h *HostRunner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Command == "" {
		return Result{}, ErrEmptyCommand
	}

	path, err := exec.LookPath(req.Command)
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("%w: %s", ErrNotFound, req.Command)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, path, req.Args...)
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}

	// Kill the whole process group so helpers spawned by the tool do not
	// keep the output pipes open past the deadline.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = h.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(req.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}

	start := time.Now()
	runErr := cmd.Run()
	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.ExitCode = -1
		return result, fmt.Errorf("%s after %s: %w", req.Command, timeout, ErrTimeout)
	}
	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, ctx.Err()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, &ExitError{
				Command:  req.Command,
				ExitCode: result.ExitCode,
				Stderr:   trimStderr(result.Stderr),
			}
		}
		result.ExitCode = -1
		return result, fmt.Errorf("failed to run %s: %w", req.Command, runErr)
	}

	return result, nil
}

func trimStderr(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	return s
}
