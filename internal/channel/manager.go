// Package channel owns the lifecycle of one baseband channel: client
// construction and teardown, the blocking read loop, and the lock that
// serializes sends against receives.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/rilcore/internal/ipc"
	"github.com/skobkin/rilcore/internal/transport"
)

const defaultDestroyWait = 2 * time.Second

var (
	// ErrInvalidFd is returned when a channel has no valid descriptor to poll.
	ErrInvalidFd = errors.New("channel descriptor is invalid")
	// ErrNotReady is returned by Send and ReadLoop on a channel that is not created.
	ErrNotReady = errors.New("channel is not ready")
	// ErrAlreadyCreated is returned by Create on a live channel.
	ErrAlreadyCreated = errors.New("channel already created")
)

// State is the lifecycle state of a channel.
type State int

const (
	StateUncreated State = iota
	StateCreating
	StateReady
	StateReading
	StateDestroying
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUncreated:
		return "uncreated"
	case StateCreating:
		return "creating"
	case StateReady:
		return "ready"
	case StateReading:
		return "reading"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Dispatcher consumes messages received on a channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, client ipc.ClientType, msg ipc.Message)
}

// Options configures a Manager.
type Options struct {
	Logger     *slog.Logger
	LogHandler ipc.LogHandler
	Dispatcher Dispatcher
	// DestroyWait bounds how long Destroy waits for a running read loop to exit.
	DestroyWait time.Duration
}

// Manager runs one channel (FMT or RFS).
type Manager struct {
	kind        ipc.ClientType
	backend     ipc.Backend
	dispatcher  Dispatcher
	logger      *slog.Logger
	logHandler  ipc.LogHandler
	destroyWait time.Duration

	// ioMu is held for exactly one Send or one Recv.
	ioMu sync.Mutex

	mu         sync.Mutex
	client     *ipc.Client
	fd         int
	state      State
	loopDone   chan struct{}
	createDone chan struct{}
}

func NewManager(kind ipc.ClientType, backend ipc.Backend, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("channel", kind.String())
	m := &Manager{
		kind:        kind,
		backend:     backend,
		dispatcher:  opts.Dispatcher,
		logger:      logger,
		logHandler:  opts.LogHandler,
		destroyWait: opts.DestroyWait,
		fd:          transport.InvalidFd,
	}
	if m.logHandler == nil {
		m.logHandler = func(message string) {
			logger.Debug("ipc: " + message)
		}
	}
	if m.destroyWait <= 0 {
		m.destroyWait = defaultDestroyWait
	}

	return m
}

func (m *Manager) Kind() ipc.ClientType {
	return m.kind
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

func (m *Manager) Fd() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.fd
}

// Create builds, bootstraps and opens the channel client. On error the
// channel is left partially built; Destroy is still safe to call. The
// vendor hooks run without the manager lock, so State, Fd and Send stay
// responsive during a slow bootstrap.
func (m *Manager) Create(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateUncreated && m.state != StateDestroyed {
		state := m.state
		m.mu.Unlock()

		return fmt.Errorf("create %s: %w (state %s)", m.kind, ErrAlreadyCreated, state)
	}
	m.state = StateCreating
	m.fd = transport.InvalidFd
	m.client = nil
	done := make(chan struct{})
	m.createDone = done
	m.mu.Unlock()
	defer close(done)

	client, fd, err := m.build(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = client
	m.fd = fd
	if err != nil {
		return err
	}
	m.state = StateReady
	m.logger.Info("client ready", "fd", fd)

	return nil
}

// build runs the creation steps on a client nobody else can see yet. The
// client and descriptor are returned even on failure so Destroy can free
// what was built.
func (m *Manager) build(ctx context.Context) (*ipc.Client, int, error) {
	fd := transport.InvalidFd

	m.logger.Debug("creating new client")
	client, err := ipc.NewClient(m.kind, m.backend)
	if err != nil {
		return nil, fd, m.createFailed("new client", err)
	}

	m.logger.Debug("setting log handler")
	if err := client.SetLogHandler(m.logHandler); err != nil {
		return client, fd, m.createFailed("set log handler", err)
	}

	m.logger.Debug("creating handlers common data")
	if err := client.CreateHandlersCommonData(); err != nil {
		return client, fd, m.createFailed("create handlers common data", err)
	}

	if m.kind == ipc.ClientFMT {
		m.logger.Debug("starting modem bootstrap")
		if err := client.Bootstrap(ctx); err != nil {
			return client, fd, m.createFailed("modem bootstrap", err)
		}
	}

	m.logger.Debug("client open")
	if err := client.Open(ctx); err != nil {
		return client, fd, m.createFailed("open", err)
	}

	m.logger.Debug("obtaining client fd")
	fd = client.Fd()
	if fd < 0 {
		return client, fd, m.createFailed("obtain fd", ErrInvalidFd)
	}

	if m.kind == ipc.ClientFMT {
		m.logger.Debug("client power on")
		if err := client.PowerOn(ctx); err != nil {
			return client, fd, m.createFailed("power on", err)
		}
	}

	return client, fd, nil
}

func (m *Manager) createFailed(step string, err error) error {
	m.logger.Error("client creation failed", "step", step, "error", err)

	return fmt.Errorf("create %s: %s: %w", m.kind, step, err)
}

// Destroy tears the channel down. It tolerates partially created channels
// and repeated calls; both are successful no-ops where nothing is left to free.
// A Create still in progress is waited for until ctx is done.
func (m *Manager) Destroy(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateUncreated, StateDestroyed:
		m.mu.Unlock()
		m.logger.Debug("client was already destroyed")

		return nil
	case StateDestroying:
		m.mu.Unlock()
		m.logger.Debug("client is being destroyed")

		return nil
	case StateCreating:
		if done := m.createDone; done != nil && !isClosed(done) {
			m.mu.Unlock()
			m.logger.Debug("waiting for client creation to finish")
			select {
			case <-done:
			case <-ctx.Done():
				return fmt.Errorf("destroy %s: %w", m.kind, ctx.Err())
			}

			return m.Destroy(ctx)
		}
	}
	m.logger.Debug("destroying client")
	m.state = StateDestroying
	client := m.client
	fd := m.fd
	m.fd = transport.InvalidFd
	loopDone := m.loopDone
	m.mu.Unlock()

	var errs []error
	if err := client.Wake(); err != nil {
		errs = append(errs, fmt.Errorf("wake read loop: %w", err))
	}
	// Closing the descriptor unblocks a read loop stuck in Recv.
	closed := false
	if fd >= 0 {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close fd %d: %w", fd, err))
		}
		closed = true
	}
	if loopDone != nil {
		select {
		case <-loopDone:
		case <-time.After(m.destroyWait):
			m.logger.Warn("read loop did not stop before teardown", "wait", m.destroyWait)
		}
	}

	m.ioMu.Lock()
	if client != nil {
		if err := client.DestroyHandlersCommonData(); err != nil {
			errs = append(errs, fmt.Errorf("destroy handlers common data: %w", err))
		}
		if m.kind == ipc.ClientFMT {
			if err := client.PowerOff(ctx); err != nil {
				errs = append(errs, fmt.Errorf("power off: %w", err))
			}
		}
		if !closed {
			if err := client.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close client: %w", err))
			}
		}
		if err := client.Free(); err != nil {
			errs = append(errs, fmt.Errorf("free client: %w", err))
		}
	}
	m.ioMu.Unlock()

	m.mu.Lock()
	m.client = nil
	m.createDone = nil
	m.state = StateDestroyed
	m.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("client destroyed with errors", "error", err)

		return fmt.Errorf("destroy %s: %w", m.kind, err)
	}
	m.logger.Debug("client destroyed")

	return nil
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Send writes one message under the channel lock. Failures are logged and returned.
func (m *Manager) Send(msg ipc.Message) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		m.logger.Error("client is nil, dropping send", "msg", msg.String())

		return fmt.Errorf("send on %s: %w", m.kind, ErrNotReady)
	}

	m.ioMu.Lock()
	err := client.Send(msg)
	m.ioMu.Unlock()
	if err != nil {
		m.logger.Error("send failed", "msg", msg.String(), "error", err)

		return fmt.Errorf("send on %s: %w", m.kind, err)
	}

	return nil
}

// ReadLoop waits for the descriptor to become readable, receives one frame
// under the channel lock and hands it to the dispatcher, until the channel
// is destroyed, ctx is cancelled or a receive fails. A receive failure ends
// the loop with an error: the channel is down.
func (m *Manager) ReadLoop(ctx context.Context) error {
	client, done, err := m.beginReadLoop()
	if err != nil {
		m.logger.Error("read loop not started", "error", err)

		return err
	}
	defer m.endReadLoop(done)

	stopWake := context.AfterFunc(ctx, func() {
		if err := client.Wake(); err != nil {
			m.logger.Warn("wake on cancel failed", "error", err)
		}
	})
	defer stopWake()

	for {
		fd := m.Fd()
		if fd < 0 {
			if m.State() == StateDestroying {
				return nil
			}
			m.logger.Error("client fd is negative, aborting", "fd", fd)

			return fmt.Errorf("read loop %s: %w", m.kind, ErrInvalidFd)
		}

		if err := client.Poll(fd); err != nil {
			if errors.Is(err, transport.ErrWoken) {
				m.logger.Debug("read loop woken for shutdown")

				return ctx.Err()
			}
			m.logger.Error("wait for readability failed", "error", err)

			return fmt.Errorf("read loop %s: %w", m.kind, err)
		}

		m.ioMu.Lock()
		msg, err := client.Recv()
		m.ioMu.Unlock()
		if err != nil {
			if m.State() == StateDestroying {
				return nil
			}
			m.logger.Error("recv failed, aborting", "error", err)

			return fmt.Errorf("read loop %s: %w", m.kind, err)
		}

		if m.dispatcher != nil {
			m.dispatcher.Dispatch(ctx, m.kind, msg)
		} else {
			m.logger.Debug("no dispatcher, dropping message", "msg", msg.String())
		}
		msg.Release()
	}
}

func (m *Manager) beginReadLoop() (*ipc.Client, chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateReady || m.client == nil {
		return nil, nil, fmt.Errorf("read loop %s: %w (state %s)", m.kind, ErrNotReady, m.state)
	}
	if m.fd < 0 {
		return nil, nil, fmt.Errorf("read loop %s: %w", m.kind, ErrInvalidFd)
	}
	m.state = StateReading
	m.loopDone = make(chan struct{})

	return m.client, m.loopDone, nil
}

func (m *Manager) endReadLoop(done chan struct{}) {
	m.mu.Lock()
	if m.state == StateReading {
		m.state = StateReady
	}
	if m.loopDone == done {
		m.loopDone = nil
	}
	m.mu.Unlock()
	close(done)
}
