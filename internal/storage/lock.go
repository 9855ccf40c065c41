package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// DaemonLock is the lock file format a running `vos daemon` writes into the
// data directory. While it is held, other daemons refuse to start against
// the same state, and `vos exec --remote` knows to use the control socket.
type DaemonLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
	Socket    string    `json:"socket,omitempty"`
}

// LockPath returns the daemon lock file path inside dataDir.
func LockPath(dataDir string) string {
	return filepath.Join(dataDir, "daemon.lock")
}

// ReadDaemonLock returns the current lock, or nil if none is held by a live process.
func ReadDaemonLock(dataDir string) (*DaemonLock, error) {
	data, err := os.ReadFile(LockPath(dataDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon lock: %w", err)
	}
	var lock DaemonLock
	if err := json.Unmarshal(data, &lock); err != nil {
		// Corrupt lock files are treated as stale
		return nil, nil
	}
	if !isProcessAlive(lock.PID, lock.Hostname) {
		return nil, nil
	}
	return &lock, nil
}

// AcquireDaemonLock claims dataDir for this process.
// Returns the lock file path for cleanup on shutdown.
func AcquireDaemonLock(dataDir, version, socket string) (lockPath string, err error) {
	existing, err := ReadDaemonLock(dataDir)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", fmt.Errorf("another vos daemon is already running (PID %d on %s, started %s)",
			existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := DaemonLock{
		Holder:    "vos-daemon",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
		Socket:    socket,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	lockPath = LockPath(dataDir)
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create daemon lock: %w", err)
	}
	return lockPath, nil
}

// ReleaseDaemonLock removes the lock file.
// Should be called on daemon shutdown (use defer).
func ReleaseDaemonLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove daemon lock: %w", err)
	}
	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
// Remote hosts cannot be checked and are assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks existence without delivering anything
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: the process exists but belongs to someone else
	return err == syscall.EPERM
}
