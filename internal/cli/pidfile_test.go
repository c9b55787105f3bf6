package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_Lifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	pid := newPIDFile(dir)

	assert.False(t, pid.IsRunning())

	require.NoError(t, pid.Write())
	id, err := pid.PID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), id)
	assert.True(t, pid.IsRunning())

	info, err := os.Stat(filepath.Join(dir, pidFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// the current process holds it
	assert.Error(t, pid.Write())

	require.NoError(t, pid.Remove())
	assert.False(t, pid.IsRunning())
	assert.NoError(t, pid.Remove())
}

func TestPIDFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pidFileName), []byte("not-a-pid"), 0600))

	pid := newPIDFile(dir)
	_, err := pid.PID()
	assert.Error(t, err)
	assert.False(t, pid.IsRunning())
	assert.NoError(t, pid.Write())
}

func TestPIDFile_Since(t *testing.T) {
	pid := newPIDFile(t.TempDir())
	require.NoError(t, pid.Write())

	since, err := pid.Since()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), since, 5*time.Second)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}

func TestStatus(t *testing.T) {
	t.Run("stopped", func(t *testing.T) {
		dir := t.TempDir()
		cmd, out := testCommand(t, filepath.Join(dir, "config.json"), "")

		require.NoError(t, runStatus(cmd, nil))
		assert.Contains(t, out.String(), "Status: stopped")
	})

	t.Run("running", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, newPIDFile(dir).Write())
		cmd, out := testCommand(t, filepath.Join(dir, "config.json"), "")

		require.NoError(t, runStatus(cmd, nil))
		assert.Contains(t, out.String(), "Status: running")
		assert.Contains(t, out.String(), "PID: "+strconv.Itoa(os.Getpid()))
		assert.Contains(t, out.String(), "Address: 0.0.0.0:5000")
	})

	t.Run("stale file removed", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, pidFileName)
		// no live process has this PID
		require.NoError(t, os.WriteFile(path, []byte("999999999"), 0600))
		cmd, out := testCommand(t, filepath.Join(dir, "config.json"), "")

		require.NoError(t, runStatus(cmd, nil))
		assert.Contains(t, out.String(), "Status: stopped")
		assert.NoFileExists(t, path)
	})
}

func TestStop_NotRunning(t *testing.T) {
	dir := t.TempDir()
	cmd, _ := testCommand(t, filepath.Join(dir, "config.json"), "")

	err := runStop(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}
