package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

const (
	// InstanceLockFileName guards the state directory for the process lifetime.
	InstanceLockFileName = "shoppipe.lock"
	// AutomationLockFileName guards a single automation run.
	AutomationLockFileName = "automation.lock"
)

// InstanceLock is held for as long as a ShopPipe process uses a state directory.
type InstanceLock struct {
	file     *os.File
	path     string
	acquired bool
}

// AcquireInstanceLock takes an exclusive lock on the state directory. When
// another process holds it, the returned error is a *LockError describing
// the holder.
func AcquireInstanceLock(stateDir string) (*InstanceLock, error) {
	lockPath := filepath.Join(stateDir, InstanceLockFileName)
	slog.Debug("lock.AcquireInstanceLock: attempting", "lock_path", lockPath)

	file, err := tryFlock(stateDir, lockPath)
	if err != nil {
		if errors.Is(err, syscall.EWOULDBLOCK) {
			info := readExistingLockInfo(lockPath)
			slog.Error("lock.AcquireInstanceLock: another ShopPipe instance is running", "lock_path", lockPath, "existing_lock_info", info)
			return nil, &LockError{LockPath: lockPath, ExistingInfo: info, Cause: err}
		}
		return nil, err
	}

	slog.Info("lock.AcquireInstanceLock: acquired state directory lock", "lock_path", lockPath, "pid", os.Getpid())
	return &InstanceLock{file: file, path: lockPath, acquired: true}, nil
}

// Release releases the lock and removes the lock file. Safe to call twice.
func (l *InstanceLock) Release() error {
	if !l.acquired || l.file == nil {
		return nil
	}
	unlockAndRemove(l.file, l.path)
	l.acquired = false
	l.file = nil
	slog.Info("lock.InstanceLock.Release: released state directory lock", "lock_path", l.path)
	return nil
}

// LockError reports a state directory already owned by another process.
type LockError struct {
	LockPath     string
	ExistingInfo string
	Cause        error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("Another ShopPipe instance is already running using the same state directory.\n\nLock file: %s", e.LockPath)
	if e.ExistingInfo != "" {
		msg += fmt.Sprintf("\nExisting process: %s", e.ExistingInfo)
	}
	msg += "\n\nIf you're certain no other ShopPipe instance is running, the lock file may be stale.\n" +
		fmt.Sprintf("You can manually remove it with:\n  rm %s", e.LockPath)
	return msg
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// FileLock is a Locker backed by flock on a file in the state directory. It
// coordinates automation runs between processes on the same host.
type FileLock struct {
	mu   sync.Mutex
	dir  string
	path string
	file *os.File
}

// NewFileLock returns a FileLock for stateDir/automation.lock.
func NewFileLock(stateDir string) *FileLock {
	return &FileLock{dir: stateDir, path: filepath.Join(stateDir, AutomationLockFileName)}
}

// Acquire attempts a non-blocking flock.
func (l *FileLock) Acquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return false, nil
	}
	file, err := tryFlock(l.dir, l.path)
	if err != nil {
		if errors.Is(err, syscall.EWOULDBLOCK) {
			slog.Debug("FileLock.Acquire: held elsewhere", "lock_path", l.path, "holder", readExistingLockInfo(l.path))
			return false, nil
		}
		return false, err
	}
	l.file = file
	return true, nil
}

// Release drops the flock. Releasing an unheld FileLock is a no-op.
func (l *FileLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	unlockAndRemove(l.file, l.path)
	l.file = nil
	return nil
}

// tryFlock opens lockPath and takes LOCK_EX|LOCK_NB on it, then records the
// pid. A held lock surfaces as syscall.EWOULDBLOCK.
func tryFlock(dir, lockPath string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		return nil, fmt.Errorf("flock %s: %w", lockPath, err)
	}
	if err := file.Truncate(0); err == nil {
		if _, err := file.WriteAt([]byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0); err != nil {
			syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
			file.Close()
			return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
		}
	}
	if err := file.Sync(); err != nil {
		slog.Warn("lock.tryFlock: failed to sync lock file", "error", err, "lock_path", lockPath)
	}
	return file, nil
}

func unlockAndRemove(file *os.File, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Error("lock.unlockAndRemove: failed to remove lock file", "error", err, "lock_path", path)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("lock.unlockAndRemove: failed to release flock", "error", err, "lock_path", path)
	}
	if err := file.Close(); err != nil {
		slog.Error("lock.unlockAndRemove: failed to close lock file", "error", err, "lock_path", path)
	}
}

func readExistingLockInfo(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return "unable to read lock file information"
	}
	content := string(data)
	if content == "" {
		return "lock file exists but contains no process information"
	}
	if pid := extractPIDFromLockInfo(content); pid > 0 {
		if isProcessRunning(pid) {
			return fmt.Sprintf("PID %d (running)", pid)
		}
		return fmt.Sprintf("PID %d (not running - stale lock)", pid)
	}
	return fmt.Sprintf("process information: %s", content)
}

// extractPIDFromLockInfo parses the "pid=NNNN" line written by tryFlock.
func extractPIDFromLockInfo(content string) int {
	const pidPrefix = "pid="
	idx := strings.Index(content, pidPrefix)
	if idx == -1 {
		return 0
	}
	start := idx + len(pidPrefix)
	end := start
	for end < len(content) && content[end] >= '0' && content[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}
	pid, err := strconv.Atoi(content[start:end])
	if err != nil {
		return 0
	}
	return pid
}

// isProcessRunning sends signal 0 to pid.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
