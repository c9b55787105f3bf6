package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("create rotating writer", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "test.log")

		rw, err := NewRotatingWriter(logFile, 10, 7, false)
		require.NoError(t, err)
		defer rw.Close()

		_, err = os.Stat(logFile)
		assert.NoError(t, err)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "subdir", "test.log")

		rw, err := NewRotatingWriter(logFile, 10, 7, false)
		require.NoError(t, err)
		defer rw.Close()

		_, err = os.Stat(filepath.Dir(logFile))
		assert.NoError(t, err)
	})
}

func TestRotatingWriterWrite(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	rw, err := NewRotatingWriter(logFile, 1, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	data := []byte("test log message\n")
	n, err := rw.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test log message")
}

func TestRotatingWriterRotation(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.log")

	rw, err := NewRotatingWriter(logFile, 1, 7, false)
	require.NoError(t, err)
	rw.maxSize = 100
	defer rw.Close()

	first := bytes.Repeat([]byte("a"), 80)
	second := bytes.Repeat([]byte("b"), 80)

	_, err = rw.Write(first)
	require.NoError(t, err)
	_, err = rw.Write(second)
	require.NoError(t, err)

	rotated, err := filepath.Glob(logFile + ".*")
	require.NoError(t, err)
	require.Len(t, rotated, 1)

	old, err := os.ReadFile(rotated[0])
	require.NoError(t, err)
	assert.Equal(t, first, old)

	current, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, second, current)
}

func TestRotatingWriterRotationCompresses(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.log")

	rw, err := NewRotatingWriter(logFile, 1, 7, true)
	require.NoError(t, err)
	rw.maxSize = 10

	_, err = rw.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = rw.Write([]byte("next"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	rotated, err := filepath.Glob(logFile + ".*")
	require.NoError(t, err)
	require.Len(t, rotated, 1)
	assert.True(t, strings.HasSuffix(rotated[0], ".gz"))
}

func TestRotatingWriterClose(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)

	assert.NoError(t, rw.Close())
	assert.NoError(t, rw.Close())

	_, err = rw.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestCompressFile(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("test content"), 0600))

	require.NoError(t, compressFile(testFile))

	_, err := os.Stat(testFile + ".gz")
	assert.NoError(t, err)

	_, err = os.Stat(testFile)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveExpired(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	oldFile := logFile + ".20200101-120000"
	require.NoError(t, os.WriteFile(oldFile, []byte("old log"), 0600))
	oldTime := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))

	recentFile := logFile + ".20990101-120000"
	require.NoError(t, os.WriteFile(recentFile, []byte("recent log"), 0600))

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(recentFile)
	assert.NoError(t, err)
}
