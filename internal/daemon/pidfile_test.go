package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID is very unlikely to belong to a live process.
const deadPID = 999999

func TestPIDFile_WriteAndRead(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "board.pid"))

	require.NoError(t, pf.WritePID(12345))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-number\n"), 0o644))

	_, err := NewPIDFile(path).Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")
}

func TestPIDFile_Acquire(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "run", "board.pid"))

	require.NoError(t, pf.Acquire(), "creates the directory")
	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, pf.Acquire(), "re-acquiring from the same process is allowed")
}

func TestPIDFile_Acquire_ReplacesStale(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "board.pid"))
	require.NoError(t, pf.WritePID(deadPID))

	require.NoError(t, pf.Acquire())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Acquire_AlreadyRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "board.pid"))
	// The parent process is alive for as long as the test runs.
	require.NoError(t, pf.WritePID(os.Getppid()))

	err := pf.Acquire()
	var are *AlreadyRunningError
	require.True(t, errors.As(err, &are))
	assert.Equal(t, os.Getppid(), are.PID)
	assert.Contains(t, err.Error(), "already running")
}

func TestPIDFile_Release(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.pid")
	pf := NewPIDFile(path)

	require.NoError(t, pf.Release(), "missing file is fine")

	require.NoError(t, pf.Acquire())
	require.NoError(t, pf.Release())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, pf.WritePID(deadPID))
	require.NoError(t, pf.Release())
	_, err = os.Stat(path)
	assert.NoError(t, err, "another process's file is left alone")
}

func TestPIDFile_IsRunning(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "board.pid"))

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)

	require.NoError(t, pf.WritePID(deadPID))
	pid, running = pf.IsRunning()
	assert.Equal(t, deadPID, pid)
	assert.False(t, running)
}

func TestPIDFile_Signal(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "board.pid"))

	assert.ErrorIs(t, pf.Signal(syscall.SIGTERM), ErrNotRunning)

	require.NoError(t, pf.WritePID(deadPID))
	assert.ErrorIs(t, pf.Signal(syscall.SIGTERM), ErrNotRunning)
}
