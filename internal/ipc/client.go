package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/skobkin/rilcore/internal/transport"
)

// ErrClientNil is returned by operations on a client that was never built or was already freed.
var ErrClientNil = errors.New("ipc client is nil")

// LogHandler receives the client's diagnostic messages.
type LogHandler func(message string)

// Direction tells whether a frame was sent or received.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string {
	if d == DirectionOut {
		return "out"
	}

	return "in"
}

// FrameObserver is told about every frame a client moves.
type FrameObserver interface {
	ObserveFrame(client ClientType, dir Direction, msg Message, raw []byte)
}

// Bootstrapper brings the modem firmware link up before the FMT channel opens.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

// PowerSwitch toggles modem power.
type PowerSwitch interface {
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

// Backend supplies the transport and vendor hooks of a client.
type Backend struct {
	NewTransport func() (transport.Transport, error)
	NewPoller    func() (transport.Poller, error)
	Bootstrapper Bootstrapper
	PowerSwitch  PowerSwitch
	Observer     FrameObserver
}

// handlersCommonData holds per-client state shared by the transport handlers.
type handlersCommonData struct {
	poller transport.Poller
}

// Client owns one baseband channel connection and its framing.
type Client struct {
	kind    ClientType
	codec   Codec
	backend Backend

	logHandler LogHandler
	transport  transport.Transport
	common     *handlersCommonData
	freed      bool
}

// NewClient allocates a client handle for the given channel.
func NewClient(kind ClientType, backend Backend) (*Client, error) {
	if kind != ClientFMT && kind != ClientRFS {
		return nil, fmt.Errorf("unknown client type: %s", kind)
	}
	if backend.NewTransport == nil {
		return nil, errors.New("backend has no transport factory")
	}
	if backend.NewPoller == nil {
		backend.NewPoller = transport.NewPoller
	}

	return &Client{
		kind:    kind,
		codec:   CodecFor(kind),
		backend: backend,
	}, nil
}

func (c *Client) Type() ClientType {
	return c.kind
}

func (c *Client) SetLogHandler(h LogHandler) error {
	if c.unusable() {
		return ErrClientNil
	}
	c.logHandler = h

	return nil
}

// CreateHandlersCommonData instantiates the transport and its readiness poller.
func (c *Client) CreateHandlersCommonData() error {
	if c.unusable() {
		return ErrClientNil
	}
	if c.common != nil {
		return nil
	}

	tr, err := c.backend.NewTransport()
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	poller, err := c.backend.NewPoller()
	if err != nil {
		_ = tr.Close()

		return fmt.Errorf("create poller: %w", err)
	}
	c.transport = tr
	c.common = &handlersCommonData{poller: poller}
	c.log("handlers common data created for %s transport", tr.Name())

	return nil
}

func (c *Client) DestroyHandlersCommonData() error {
	if c.unusable() {
		return ErrClientNil
	}
	if c.common == nil {
		return nil
	}
	err := c.common.poller.Close()
	c.common = nil
	if err != nil {
		return fmt.Errorf("close poller: %w", err)
	}

	return nil
}

// Fd returns the pollable descriptor of the open transport.
func (c *Client) Fd() int {
	if c.unusable() || c.transport == nil {
		return transport.InvalidFd
	}

	return c.transport.Fd()
}

// Poll blocks until fd is readable or the client is woken.
func (c *Client) Poll(fd int) error {
	if c.unusable() {
		return ErrClientNil
	}
	if c.common == nil {
		return errors.New("handlers common data not created")
	}

	return c.common.poller.Wait(fd)
}

// Wake unblocks a pending Poll; every later Poll returns transport.ErrWoken.
func (c *Client) Wake() error {
	if c.unusable() || c.common == nil {
		return nil
	}

	return c.common.poller.Wake()
}

func (c *Client) Bootstrap(ctx context.Context) error {
	if c.unusable() {
		return ErrClientNil
	}
	if c.backend.Bootstrapper == nil {
		c.log("no bootstrapper configured, skipping modem bootstrap")

		return nil
	}

	return c.backend.Bootstrapper.Bootstrap(ctx)
}

func (c *Client) Open(ctx context.Context) error {
	if c.unusable() {
		return ErrClientNil
	}
	if c.transport == nil {
		return errors.New("transport not created")
	}
	if err := c.transport.Open(ctx); err != nil {
		return err
	}
	c.log("%s client opened", c.kind)

	return nil
}

func (c *Client) PowerOn(ctx context.Context) error {
	if c.unusable() {
		return ErrClientNil
	}
	if c.backend.PowerSwitch == nil {
		return nil
	}

	return c.backend.PowerSwitch.PowerOn(ctx)
}

func (c *Client) PowerOff(ctx context.Context) error {
	if c.unusable() {
		return ErrClientNil
	}
	if c.backend.PowerSwitch == nil {
		return nil
	}

	return c.backend.PowerSwitch.PowerOff(ctx)
}

func (c *Client) Close() error {
	if c.unusable() {
		return ErrClientNil
	}
	if c.transport == nil {
		return nil
	}

	return c.transport.Close()
}

// Free releases the handle; the client is unusable afterwards.
func (c *Client) Free() error {
	if c.unusable() {
		return ErrClientNil
	}
	c.transport = nil
	c.common = nil
	c.freed = true

	return nil
}

// Send encodes msg and writes it as one frame.
func (c *Client) Send(msg Message) error {
	if c.unusable() {
		return ErrClientNil
	}
	if c.transport == nil {
		return transport.ErrNotConnected
	}

	frame, err := c.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", c.kind, err)
	}
	if err := writeFull(c.transport, frame); err != nil {
		return fmt.Errorf("write %s frame: %w", c.kind, err)
	}
	c.observe(DirectionOut, msg, frame)

	return nil
}

// Recv blocks until one complete frame has been read.
func (c *Client) Recv() (Message, error) {
	if c.unusable() {
		return Message{}, ErrClientNil
	}
	if c.transport == nil {
		return Message{}, transport.ErrNotConnected
	}

	msg, err := c.codec.Decode(c.transport)
	if err != nil {
		return Message{}, fmt.Errorf("receive %s frame: %w", c.kind, err)
	}
	if c.backend.Observer != nil {
		raw, err := c.codec.Encode(msg)
		if err != nil {
			c.log("%s frame %s not observed: %v", c.kind, msg.Command, err)
		} else {
			c.observe(DirectionIn, msg, raw)
		}
	}

	return msg, nil
}

func (c *Client) unusable() bool {
	return c == nil || c.freed
}

func (c *Client) observe(dir Direction, msg Message, raw []byte) {
	if c.backend.Observer != nil {
		c.backend.Observer.ObserveFrame(c.kind, dir, msg, raw)
	}
}

func (c *Client) log(format string, args ...any) {
	if c.logHandler != nil {
		c.logHandler(fmt.Sprintf(format, args...))
	}
}

func writeFull(w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		written += n
	}

	return nil
}
