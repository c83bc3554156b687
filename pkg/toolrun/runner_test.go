package toolrun

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostRunner(t *testing.T) {
	r := NewHostRunner()
	ctx := context.Background()

	t.Run("captures stdout", func(t *testing.T) {
		res, err := r.Run(ctx, Request{Command: "sh", Args: []string{"-c", "printf hello"}})
		require.NoError(t, err)
		assert.Equal(t, "hello", string(res.Stdout))
		assert.Equal(t, 0, res.ExitCode)
	})

	t.Run("feeds stdin", func(t *testing.T) {
		res, err := r.Run(ctx, Request{Command: "cat", Stdin: []byte("image-bytes")})
		require.NoError(t, err)
		assert.Equal(t, "image-bytes", string(res.Stdout))
	})

	t.Run("extra environment", func(t *testing.T) {
		res, err := r.Run(ctx, Request{
			Command: "sh",
			Args:    []string{"-c", "printf %s \"$TOOLRUN_TEST\""},
			Env:     []string{"TOOLRUN_TEST=set"},
		})
		require.NoError(t, err)
		assert.Equal(t, "set", string(res.Stdout))
	})

	t.Run("non-zero exit", func(t *testing.T) {
		res, err := r.Run(ctx, Request{Command: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}})
		require.Error(t, err)

		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 3, exitErr.ExitCode)
		assert.Equal(t, "broken", exitErr.Stderr)
		assert.Equal(t, 3, res.ExitCode)
	})

	t.Run("timeout is bounded", func(t *testing.T) {
		start := time.Now()
		_, err := r.Run(ctx, Request{
			Command: "sh",
			Args:    []string{"-c", "sleep 10; echo late"},
			Timeout: 200 * time.Millisecond,
		})
		elapsed := time.Since(start)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Less(t, elapsed, 3*time.Second)
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := r.Run(ctx, Request{Command: "definitely-not-a-real-tool-xyz"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty command", func(t *testing.T) {
		_, err := r.Run(ctx, Request{})
		assert.ErrorIs(t, err, ErrEmptyCommand)
	})

	t.Run("parent cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		_, err := r.Run(cctx, Request{Command: "sleep", Args: []string{"10"}, Timeout: 5 * time.Second})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExitErrorMessage(t *testing.T) {
	assert.Equal(t, "grim exited with status 1", (&ExitError{Command: "grim", ExitCode: 1}).Error())
	assert.Contains(t, (&ExitError{Command: "grim", ExitCode: 1, Stderr: "no outputs"}).Error(), "no outputs")
}
