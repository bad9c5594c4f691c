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

// LockFileName is the lock file created inside the data directory.
const LockFileName = ".bugsift.lock"

// ExclusiveLock is the lock file format claiming exclusive use of a data
// directory. Only one bugsift process may drive progress and counters at a time.
type ExclusiveLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// AcquireExclusiveLock creates the lock file in dataDir. A lock left behind by
// a dead process is overwritten. Returns the lock file path for cleanup.
func AcquireExclusiveLock(dataDir, holder, version string) (lockPath string, err error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	lockPath = filepath.Join(dataDir, LockFileName)

	if existing, err := ReadExclusiveLock(lockPath); err == nil && existing != nil {
		if isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("another bugsift process is already running (PID %d on %s, started %s)",
				existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
		// Stale lock - will overwrite
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := ExclusiveLock{
		Holder:    holder,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create exclusive lock: %w", err)
	}

	return lockPath, nil
}

// ReadExclusiveLock returns the lock at lockPath, or nil if there is none.
func ReadExclusiveLock(lockPath string) (*ExclusiveLock, error) {
	data, err := os.ReadFile(lockPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lock ExclusiveLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("corrupt lock file %s: %w", lockPath, err)
	}
	return &lock, nil
}

// ReleaseExclusiveLock removes the exclusive lock file.
// Should be called on shutdown (use defer).
func ReleaseExclusiveLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove exclusive lock: %w", err)
	}

	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
// Remote hosts and permission errors are assumed alive.
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

	// Signal 0 checks existence (Unix: kill -0)
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		return true
	}
	return false
}
