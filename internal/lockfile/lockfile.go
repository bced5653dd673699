// Package lockfile stops two ScreenPipe processes from sharing one state directory.
//
// The lock is an flock on a file in the directory, so the kernel drops it
// when the holder exits, cleanly or not.
package lockfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the lock file created in the state directory
const LockFileName = "screenpipe.lock"

// ErrLocked matches any LockError via errors.Is.
var ErrLocked = errors.New("state directory is locked by another process")

// Lock is a held state directory lock.
type Lock struct {
	file *os.File
	path string
}

// Info is what the holder writes into the lock file.
type Info struct {
	PID       int
	StartedAt time.Time
}

func (i Info) encode() string {
	return fmt.Sprintf("pid=%d\nstarted=%s\n", i.PID, i.StartedAt.UTC().Format(time.RFC3339))
}

// parseInfo reads key=value lines; unknown keys are ignored.
func parseInfo(content string) Info {
	var info Info
	for _, line := range strings.Split(content, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(val); err == nil {
				info.PID = pid
			}
		case "started":
			if ts, err := time.Parse(time.RFC3339, val); err == nil {
				info.StartedAt = ts
			}
		}
	}
	return info
}

// Acquire takes an exclusive, non-blocking lock on stateDir, creating the
// directory when needed. A held lock yields a *LockError.
func Acquire(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", stateDir, err)
	}
	lockPath := filepath.Join(stateDir, LockFileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		lerr := &LockError{LockPath: lockPath, Holder: describeHolder(lockPath), Cause: err}
		slog.Error("Lockfile Acquire failed", "lock_path", lockPath, "holder", lerr.Holder)
		return nil, lerr
	}

	// truncate only once the lock is ours so a running holder's info survives
	if err := file.Truncate(0); err != nil {
		release(file)
		return nil, fmt.Errorf("truncate lock file: %w", err)
	}
	info := Info{PID: os.Getpid(), StartedAt: time.Now()}
	if _, err := file.WriteAt([]byte(info.encode()), 0); err != nil {
		release(file)
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Lockfile Acquire sync failed", "error", err, "lock_path", lockPath)
	}

	slog.Info("Acquired state directory lock", "lock_path", lockPath, "pid", info.PID)
	return &Lock{file: file, path: lockPath}, nil
}

func release(file *os.File) {
	_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
	_ = file.Close()
}

// Release drops the lock and removes the file. Calling it twice is harmless.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	release(l.file)
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lockfile Release remove failed", "error", err, "lock_path", l.path)
	}
	slog.Info("Released state directory lock", "lock_path", l.path)
	return nil
}

// LockError reports a state directory already locked by another process.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another ScreenPipe instance is using this state directory (lock file %s", e.LockPath)
	if e.Holder != "" {
		msg += ", holder " + e.Holder
	}
	return msg + "); remove the lock file only if no other instance is running"
}

func (e *LockError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrLocked) true for any LockError.
func (e *LockError) Is(target error) bool { return target == ErrLocked }

// describeHolder summarizes the current holder for error messages.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return ""
	}
	info := parseInfo(string(data))
	if info.PID == 0 {
		return ""
	}
	state := "not running, stale"
	if isProcessRunning(info.PID) {
		state = "running"
	}
	if info.StartedAt.IsZero() {
		return fmt.Sprintf("PID %d (%s)", info.PID, state)
	}
	return fmt.Sprintf("PID %d (%s, since %s)", info.PID, state, info.StartedAt.Format(time.RFC3339))
}

// isProcessRunning sends signal 0 to check for a live process.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
