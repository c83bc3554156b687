package daemon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLifecycleManager(t *testing.T) {
	d, _ := createTestDaemon(t)
	t.Cleanup(func() { _ = d.Service().Close() })

	lm := NewLifecycleManager(d)
	assert.Equal(t, d, lm.daemon)
	assert.Equal(t, filepath.Join(d.config.DataDir, "alexandria.pid"), lm.pidFile)
}

func TestLifecycleManagerStartStop(t *testing.T) {
	d, _ := createTestDaemon(t)
	t.Cleanup(func() { _ = d.Service().Close() })

	lm := NewLifecycleManager(d)
	require.NoError(t, lm.Start())

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, lm.IsRunning())

	require.NoError(t, lm.Stop())
	_, err = os.Stat(lm.pidFile)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, lm.IsRunning())

	// stopping twice is harmless
	require.NoError(t, lm.Stop())
}

func TestLifecycleManagerReplacesStalePIDFile(t *testing.T) {
	d, _ := createTestDaemon(t)
	t.Cleanup(func() { _ = d.Service().Close() })

	lm := NewLifecycleManager(d)
	require.NoError(t, os.WriteFile(lm.pidFile, []byte("not-a-pid"), 0o644))

	require.NoError(t, lm.Start())
	defer lm.Stop()

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	t.Run("trims whitespace", func(t *testing.T) {
		path := filepath.Join(dir, "ok.pid")
		require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o644))
		pid, err := ReadPID(path)
		require.NoError(t, err)
		assert.Equal(t, 4242, pid)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		path := filepath.Join(dir, "bad.pid")
		require.NoError(t, os.WriteFile(path, []byte("-3"), 0o644))
		_, err := ReadPID(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadPID(filepath.Join(dir, "none.pid"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
}
