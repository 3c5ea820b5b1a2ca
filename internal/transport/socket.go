package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"
)

const defaultDialTimeout = 6 * time.Second

// SocketTransport carries baseband traffic over a unix or tcp stream socket,
// as exposed by modem multiplexers and emulators.
type SocketTransport struct {
	network string
	address string

	mu   sync.Mutex
	conn net.Conn
	fd   int
}

func NewSocketTransport(network, address string) *SocketTransport {
	return &SocketTransport{network: network, address: address, fd: InvalidFd}
}

func (t *SocketTransport) Name() string {
	return t.network
}

func (t *SocketTransport) StatusTarget() string {
	return t.address
}

func (t *SocketTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger(t.network, "target", t.address)
	if t.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if t.address == "" {
		logger.Warn("connect failed: address is empty")

		return errors.New("socket address is empty")
	}

	dialer := net.Dialer{Timeout: defaultDialTimeout}
	logger.Info("connecting")
	conn, err := dialer.DialContext(ctx, t.network, t.address)
	if err != nil {
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("dial %s: %w", t.network, err)
	}
	fd, err := connFd(conn)
	if err != nil {
		_ = conn.Close()

		return err
	}
	t.conn = conn
	t.fd = fd
	logger.Info("connected", "remote", conn.RemoteAddr().String(), "fd", fd)

	return nil
}

func (t *SocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger(t.network, "target", t.address)
	if t.conn == nil {
		logger.Debug("close skipped: not connected")

		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.fd = InvalidFd
	if err != nil {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

func (t *SocketTransport) Read(p []byte) (int, error) {
	conn, err := t.currentConn()
	if err != nil {
		return 0, err
	}

	return conn.Read(p)
}

func (t *SocketTransport) Write(p []byte) (int, error) {
	conn, err := t.currentConn()
	if err != nil {
		return 0, err
	}

	return conn.Write(p)
}

func (t *SocketTransport) Fd() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.fd
}

func (t *SocketTransport) currentConn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}

func connFd(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return InvalidFd, fmt.Errorf("connection %T exposes no descriptor", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return InvalidFd, fmt.Errorf("raw connection: %w", err)
	}
	fd := InvalidFd
	if err := raw.Control(func(s uintptr) {
		fd = int(s) // #nosec G115 -- socket descriptors fit in int.
	}); err != nil {
		return InvalidFd, fmt.Errorf("read socket descriptor: %w", err)
	}

	return fd, nil
}
