//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

type unixModemLock struct {
	path string
	file *os.File
}

func acquireModemLock(name, channel string) (ModemLock, error) {
	lockPath, err := unixModemLockPath(name, channel)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- lockPath is built from process-owned runtime/temp directories.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open modem lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if isUnixLockContention(err) {
			return nil, fmt.Errorf("%w: %s", ErrModemBusy, describeOwner(lockPath))
		}

		return nil, fmt.Errorf("acquire modem file lock: %w", err)
	}

	if err := writeOwner(file); err != nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()

		return nil, err
	}

	return &unixModemLock{path: lockPath, file: file}, nil
}

func (l *unixModemLock) Path() string {
	if l == nil {
		return ""
	}

	return l.path
}

func (l *unixModemLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	fd := int(l.file.Fd())
	_ = l.file.Truncate(0)
	unlockErr := unix.Flock(fd, unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil && !errors.Is(unlockErr, unix.EBADF) {
		return fmt.Errorf("unlock modem file lock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close modem lock file: %w", closeErr)
	}

	return nil
}

func writeOwner(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("truncate modem lock file: %w", err)
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("write modem lock owner: %w", err)
	}

	return nil
}

func describeOwner(lockPath string) string {
	// #nosec G304 -- same path as the lock itself.
	raw, err := os.ReadFile(lockPath)
	if err != nil {
		return "owner unknown"
	}
	pid := strings.TrimSpace(string(raw))
	if pid == "" {
		return "owner unknown"
	}

	return "pid " + pid
}

func unixModemLockPath(name, channel string) (string, error) {
	lockDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if lockDir != "" {
		lockDir = filepath.Join(lockDir, name)
	} else {
		lockDir = filepath.Join(os.TempDir(), name+"-"+strconv.Itoa(os.Getuid()))
	}

	if err := os.MkdirAll(lockDir, 0o700); err != nil {
		return "", fmt.Errorf("create modem lock dir: %w", err)
	}

	return filepath.Join(lockDir, channel+".lock"), nil
}

func isUnixLockContention(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}
