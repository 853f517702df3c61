package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrNotRunning is returned when no live process owns the PID file.
var ErrNotRunning = errors.New("server is not running")

// AlreadyRunningError reports that another live server holds the PID file.
type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("server already running (pid %d)", e.PID)
}

// PIDFile tracks the process serving the board.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire records the current process in the PID file. A file left behind
// by a dead process is replaced; one owned by a live process is not.
func (p *PIDFile) Acquire() error {
	if pid, running := p.IsRunning(); running && pid != os.Getpid() {
		return &AlreadyRunningError{PID: pid}
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID dir: %w", err)
	}
	return p.WritePID(os.Getpid())
}

// Release removes the PID file if it still names the current process.
func (p *PIDFile) Release() error {
	pid, err := p.Read()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil || pid != os.Getpid() {
		return err
	}
	return p.Remove()
}

// WritePID writes the given PID to the file.
func (p *PIDFile) WritePID(pid int) error {
	return os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}

// IsRunning returns the recorded PID and whether that process is alive.
func (p *PIDFile) IsRunning() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

// Signal sends sig to the recorded process. It returns ErrNotRunning when
// the file is missing or its process is gone.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, running := p.IsRunning()
	if !running {
		return ErrNotRunning
	}
	if err := signalProcess(pid, sig); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return nil
}
