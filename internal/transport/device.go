package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// DeviceTransport talks to the baseband through a character device node.
type DeviceTransport struct {
	path string
	baud int

	mu   sync.Mutex
	file *os.File
	fd   int
}

// NewDeviceTransport creates a transport for the device at path. A positive
// baud switches the device to raw mode at that rate when it is a tty.
func NewDeviceTransport(path string, baud int) *DeviceTransport {
	return &DeviceTransport{path: path, baud: baud, fd: InvalidFd}
}

func (t *DeviceTransport) Name() string {
	return "device"
}

func (t *DeviceTransport) Path() string {
	return t.path
}

func (t *DeviceTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("device", "path", t.path)
	if t.file != nil {
		logger.Debug("open skipped: already open")

		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.path == "" {
		return errors.New("device path is empty")
	}

	fd, err := unix.Open(t.path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		logger.Warn("open failed", "error", err)

		return fmt.Errorf("open device %q: %w", t.path, err)
	}
	if t.baud > 0 {
		if err := configureRaw(fd, t.baud); err != nil {
			_ = unix.Close(fd)

			return fmt.Errorf("configure device %q: %w", t.path, err)
		}
	}
	t.file = os.NewFile(uintptr(fd), t.path)
	t.fd = fd
	logger.Info("opened", "fd", fd)

	return nil
}

func (t *DeviceTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("device", "path", t.path)
	if t.file == nil {
		logger.Debug("close skipped: not open")

		return nil
	}
	err := t.file.Close()
	t.file = nil
	t.fd = InvalidFd
	if err != nil {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

func (t *DeviceTransport) Read(p []byte) (int, error) {
	f, err := t.current()
	if err != nil {
		return 0, err
	}

	return f.Read(p)
}

func (t *DeviceTransport) Write(p []byte) (int, error) {
	f, err := t.current()
	if err != nil {
		return 0, err
	}

	return f.Write(p)
}

func (t *DeviceTransport) Fd() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.fd
}

func (t *DeviceTransport) current() (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil, ErrNotConnected
	}

	return t.file, nil
}
