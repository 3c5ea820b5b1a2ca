// Package ril holds the core context: both baseband channels, the power
// state machine and the token bookkeeping shared by the request layer.
package ril

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/rilcore/internal/channel"
	"github.com/skobkin/rilcore/internal/dispatch"
	"github.com/skobkin/rilcore/internal/events"
	"github.com/skobkin/rilcore/internal/genres"
	"github.com/skobkin/rilcore/internal/ipc"
	"github.com/skobkin/rilcore/internal/power"
	"github.com/skobkin/rilcore/internal/rfs"
)

var (
	// ErrClosed is returned by operations on a closed core.
	ErrClosed = errors.New("ril core closed")
	// ErrStarted is returned when Start is called twice.
	ErrStarted = errors.New("ril core already started")
)

// Options configures a Core.
type Options struct {
	Logger *slog.Logger
	// Bus receives completions, unsolicited events and state snapshots.
	Bus Publisher
	// Responder overrides the bus responder for completions and unsolicited events.
	Responder Responder
	FMT       ipc.Backend
	RFS       ipc.Backend
	// NVStore backs the RFS NV data requests; nil fails them.
	NVStore rfs.Store
	// DestroyWait bounds how long channel teardown waits for a read loop.
	DestroyWait time.Duration
	// LogHandler receives the channel clients' diagnostics.
	LogHandler ipc.LogHandler
}

// Core is created once per process by New and torn down once by Close.
type Core struct {
	logger    *slog.Logger
	bus       Publisher
	tokens    *Tokens
	responder Responder
	genres    *genres.Table
	power     *power.Machine
	channels  map[ipc.ClientType]*channel.Manager

	failed chan error
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
}

func New(opts Options) (*Core, error) {
	if opts.Bus == nil && opts.Responder == nil {
		return nil, errors.New("ril: bus or responder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Core{
		logger:   logger.With("component", "ril"),
		bus:      opts.Bus,
		tokens:   NewTokens(),
		channels: make(map[ipc.ClientType]*channel.Manager, 2),
		failed:   make(chan error, 2),
	}

	next := opts.Responder
	if next == nil {
		next = NewBusResponder(opts.Bus, logger.With("component", "responder"))
	}
	c.responder = releasingResponder{tokens: c.tokens, next: next}

	c.genres = genres.New(logger.With("component", "genres"), c.responder)
	c.power = power.NewMachine(power.Deps{
		Logger:    logger.With("component", "power"),
		Sender:    channelSender{c: c, kind: ipc.ClientFMT},
		Responder: c.responder,
		Expecter:  c.genres,
		IDs:       c.tokens,
		Checker:   c,
		Listener:  c,
	})
	c.genres.SetFailer(c.power)

	nv := rfs.NewHandler(logger.With("component", "rfs"), opts.NVStore, channelSender{c: c, kind: ipc.ClientRFS})
	dispatcher := dispatch.New(logger.With("component", "dispatch"), dispatch.Handlers{
		Power:  c.power,
		GenRes: c.genres,
		NV:     nv,
	})

	for kind, backend := range map[ipc.ClientType]ipc.Backend{ipc.ClientFMT: opts.FMT, ipc.ClientRFS: opts.RFS} {
		c.channels[kind] = channel.NewManager(kind, backend, channel.Options{
			Logger:      logger.With("component", "channel"),
			LogHandler:  opts.LogHandler,
			Dispatcher:  dispatcher,
			DestroyWait: opts.DestroyWait,
		})
	}

	return c, nil
}

// Start creates both channels, FMT first, and runs their read loops. On
// error everything created so far is torn down again.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.started:
		c.mu.Unlock()
		return ErrStarted
	}
	c.started = true
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.mu.Unlock()

	for _, kind := range []ipc.ClientType{ipc.ClientFMT, ipc.ClientRFS} {
		if err := c.channels[kind].Create(ctx); err != nil {
			c.logger.Error("channel create failed", "channel", kind.String(), "error", err)
			if closeErr := c.Close(context.WithoutCancel(ctx)); closeErr != nil {
				c.logger.Warn("teardown after failed start", "error", closeErr)
			}

			return err
		}
	}

	for _, kind := range []ipc.ClientType{ipc.ClientFMT, ipc.ClientRFS} {
		c.startReadLoop(loopCtx, c.channels[kind])
	}

	return nil
}

func (c *Core) startReadLoop(ctx context.Context, m *channel.Manager) {
	c.publish(events.TopicChannel, events.ChannelStatus{
		Channel:   m.Kind().String(),
		State:     events.ChannelStateUp,
		Timestamp: time.Now(),
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		err := m.ReadLoop(ctx)
		status := events.ChannelStatus{
			Channel:   m.Kind().String(),
			State:     events.ChannelStateDown,
			Timestamp: time.Now(),
		}
		if err != nil {
			status.Err = err.Error()
		}
		c.publish(events.TopicChannel, status)

		if err == nil || errors.Is(err, context.Canceled) {
			c.logger.Debug("read loop stopped", "channel", m.Kind().String())
			return
		}
		c.logger.Error("read loop failed", "channel", m.Kind().String(), "error", err)
		if m.Kind() == ipc.ClientFMT {
			c.power.LinkLost()
		}
		select {
		case c.failed <- err:
		default:
		}
	}()
}

// Failed delivers read loop failures. The channel is down afterwards; the
// core does not reconnect.
func (c *Core) Failed() <-chan error {
	return c.failed
}

// Close stops the read loops and destroys both channels. It is idempotent.
func (c *Core) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	var errs []error
	// RFS first: the modem keeps using NV data until FMT powers it off.
	for _, kind := range []ipc.ClientType{ipc.ClientRFS, ipc.ClientFMT} {
		if err := c.channels[kind].Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	return errors.Join(errs...)
}

// Send writes one request to a channel. A non-zero token gets a wire id.
// On FMT the modem's generic response completes it; RFS has no generic
// response, so the token completes once the frame is written. A failed
// send completes it with RadioNotAvailable.
func (c *Core) Send(kind ipc.ClientType, cmd ipc.Command, typ ipc.MessageType, payload []byte, token events.Token) error {
	msg := ipc.Message{Command: cmd, Type: typ, Data: payload}

	var id uint8
	if token != 0 {
		var err error
		id, err = c.tokens.Register(token)
		if err != nil {
			c.logger.Error("no id for request", "token", token, "cmd", cmd.String(), "error", err)
			c.responder.CompleteToken(token, events.ResultGenericFailure, nil)

			return err
		}
		msg.MSeq = id
		if kind == ipc.ClientFMT {
			c.genres.Expect(id, cmd, token)
		}
	}

	if err := c.channelSend(kind, msg); err != nil {
		if token != 0 {
			c.genres.Forget(id)
			c.responder.CompleteToken(token, events.ResultRadioNotAvailable, nil)
		}

		return err
	}
	if token != 0 && kind != ipc.ClientFMT {
		c.responder.CompleteToken(token, events.ResultSuccess, nil)
	}

	return nil
}

// RequestRadioPower asks for NORMAL mode when level > 0 and LPM otherwise.
// token completes once the modem reports the new mode.
func (c *Core) RequestRadioPower(ctx context.Context, token events.Token, level int) error {
	if _, err := c.tokens.Register(token); err != nil {
		c.responder.CompleteToken(token, events.ResultGenericFailure, nil)

		return err
	}

	return c.power.RequestRadioPower(ctx, token, level)
}

// CheckOutstanding lets requests parked on a radio state re-evaluate.
func (c *Core) CheckOutstanding(s power.Snapshot) {
	c.publish(events.TopicTokensCheck, events.TokensCheck{Radio: s.Radio.String(), Power: s.Power.String()})
}

func (c *Core) RadioStateChanged(s power.Snapshot) {
	c.publish(events.TopicRadioState, events.RadioState{Radio: s.Radio.String(), Power: s.Power.String(), At: time.Now()})
}

func (c *Core) Snapshot() power.Snapshot {
	return c.power.Snapshot()
}

// WaitPoweredUp blocks until the modem reported its first power up.
func (c *Core) WaitPoweredUp(ctx context.Context) error {
	return c.power.Gate().Wait(ctx)
}

func (c *Core) Tokens() *Tokens {
	return c.tokens
}

// Channel returns the manager of kind.
func (c *Core) Channel(kind ipc.ClientType) *channel.Manager {
	return c.channels[kind]
}

func (c *Core) channelSend(kind ipc.ClientType, msg ipc.Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	m, ok := c.channels[kind]
	if !ok {
		return fmt.Errorf("unknown channel %s", kind)
	}

	return m.Send(msg)
}

func (c *Core) publish(topic string, msg any) {
	if c.bus != nil {
		c.bus.Publish(topic, msg)
	}
}

// channelSender lets handlers write to one channel of the core.
type channelSender struct {
	c    *Core
	kind ipc.ClientType
}

func (s channelSender) Send(msg ipc.Message) error {
	return s.c.channelSend(s.kind, msg)
}

var (
	_ power.OutstandingChecker = (*Core)(nil)
	_ power.StateListener      = (*Core)(nil)
)
