package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const pidFileName = "backlog-agent.pid"

// pidFile records the process ID of a running server
type pidFile struct {
	path string
}

func newPIDFile(dataDir string) *pidFile {
	return &pidFile{path: filepath.Join(dataDir, pidFileName)}
}

// Write records the current process, refusing when another live process
// already holds the file
func (p *pidFile) Write() error {
	if p.IsRunning() {
		pid, _ := p.PID()
		return fmt.Errorf("server is already running (PID %d, PID file: %s)", pid, p.path)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Remove deletes the file; a missing file is not an error
func (p *pidFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// PID reads the recorded process ID
func (p *pidFile) PID() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID file %s", p.path)
	}
	return pid, nil
}

// Since returns when the file was written
func (p *pidFile) Since() (time.Time, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// IsRunning reports whether the recorded process is alive
func (p *pidFile) IsRunning() bool {
	pid, err := p.PID()
	if err != nil {
		return false
	}
	return processAlive(pid)
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 probes without delivering anything
	return process.Signal(syscall.Signal(0)) == nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
