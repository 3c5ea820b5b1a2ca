// Package modemsim emulates the baseband side of the FMT and RFS channels:
// enough of the power protocol and the NV data exchange to run the daemon
// without hardware.
package modemsim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/skobkin/rilcore/internal/ipc"
	"github.com/skobkin/rilcore/internal/rfs"
)

// Generic response codes; only the low byte carries the outcome.
const (
	codeSuccess uint16 = 0x0080
	codeFailure uint16 = 0x8001
)

// ErrNotConnected is returned when the requested channel has no peer.
var ErrNotConnected = errors.New("modemsim: channel not connected")

// Options tunes the emulated modem.
type Options struct {
	Logger *slog.Logger
	// RejectPower answers power state requests with a failed generic response.
	RejectPower bool
	// SilentPower acknowledges power state requests but never reports the new mode.
	SilentPower bool
}

type nvReply struct {
	ok   bool
	data []byte
}

// Modem serves one FMT and one RFS connection.
type Modem struct {
	logger *slog.Logger
	opts   Options

	fmtMu  sync.Mutex
	fmtOut io.Writer
	rfsMu  sync.Mutex
	rfsOut io.Writer

	mu      sync.Mutex
	mode    uint16
	seq     uint8
	nvID    uint8
	waiters map[uint8]chan nvReply
	seen    []ipc.Message
}

func New(opts Options) *Modem {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Modem{
		logger:  logger.With("component", "modemsim"),
		opts:    opts,
		mode:    ipc.PwrPhoneStateLPM,
		waiters: make(map[uint8]chan nvReply),
	}
}

// Mode returns the power state value last requested by the host.
func (m *Modem) Mode() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Seen returns the FMT requests received so far.
func (m *Modem) Seen() []ipc.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ipc.Message(nil), m.seen...)
}

// ServeFMT announces power up and answers requests until rw fails or ctx ends.
func (m *Modem) ServeFMT(ctx context.Context, rw io.ReadWriteCloser) error {
	m.fmtMu.Lock()
	m.fmtOut = rw
	m.fmtMu.Unlock()
	defer func() {
		m.fmtMu.Lock()
		m.fmtOut = nil
		m.fmtMu.Unlock()
	}()
	stop := context.AfterFunc(ctx, func() { _ = rw.Close() })
	defer stop()

	if err := m.notify(ipc.PwrPhonePwrUp, nil); err != nil {
		return fmt.Errorf("send power up: %w", err)
	}
	m.logger.Info("fmt peer connected, power up sent")

	codec := ipc.FMTCodec{}
	for {
		msg, err := codec.Decode(rw)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read fmt request: %w", err)
		}
		m.mu.Lock()
		m.seen = append(m.seen, msg)
		m.mu.Unlock()
		if err := m.handleFMT(msg); err != nil {
			return err
		}
	}
}

func (m *Modem) handleFMT(msg ipc.Message) error {
	m.logger.Debug("fmt request", "msg", msg.String())

	if msg.Command != ipc.PwrPhoneState {
		if msg.Type == ipc.TypeGet {
			return m.send(ipc.Message{Command: msg.Command, Type: ipc.TypeResp, ASeq: msg.MSeq})
		}
		return m.genRes(msg, codeSuccess)
	}

	if len(msg.Data) < 2 || m.opts.RejectPower {
		return m.genRes(msg, codeFailure)
	}
	value := binary.LittleEndian.Uint16(msg.Data)
	if value != ipc.PwrPhoneStateLPM && value != ipc.PwrPhoneStateNormal {
		return m.genRes(msg, codeFailure)
	}
	if err := m.genRes(msg, codeSuccess); err != nil {
		return err
	}
	m.mu.Lock()
	m.mode = value
	m.mu.Unlock()
	if m.opts.SilentPower {
		return nil
	}

	return m.notify(ipc.PwrPhoneState, []byte{ipc.PwrReport(value)})
}

// PhoneReset reports a spontaneous modem reset.
func (m *Modem) PhoneReset() error {
	return m.notify(ipc.PwrPhoneReset, nil)
}

// ReportPowerState sends an unsolicited power state report with a raw value.
func (m *Modem) ReportPowerState(report uint8) error {
	return m.notify(ipc.PwrPhoneState, []byte{report})
}

func (m *Modem) genRes(req ipc.Message, code uint16) error {
	data := make([]byte, 5)
	data[0] = req.Command.Group()
	data[1] = req.Command.Index()
	data[2] = uint8(req.Type)
	binary.LittleEndian.PutUint16(data[3:], code)

	return m.send(ipc.Message{Command: ipc.GenPhoneRes, Type: ipc.TypeIndi, ASeq: req.MSeq, Data: data})
}

func (m *Modem) notify(cmd ipc.Command, data []byte) error {
	return m.send(ipc.Message{Command: cmd, Type: ipc.TypeNoti, Data: data})
}

func (m *Modem) send(msg ipc.Message) error {
	m.mu.Lock()
	m.seq++
	msg.MSeq = m.seq
	m.mu.Unlock()

	frame, err := ipc.FMTCodec{}.Encode(msg)
	if err != nil {
		return err
	}

	m.fmtMu.Lock()
	defer m.fmtMu.Unlock()
	if m.fmtOut == nil {
		return fmt.Errorf("fmt: %w", ErrNotConnected)
	}
	if _, err := m.fmtOut.Write(frame); err != nil {
		return fmt.Errorf("write fmt frame: %w", err)
	}

	return nil
}

// ServeRFS routes the host's NV replies to pending ReadNV/WriteNV calls.
func (m *Modem) ServeRFS(ctx context.Context, rw io.ReadWriteCloser) error {
	m.rfsMu.Lock()
	m.rfsOut = rw
	m.rfsMu.Unlock()
	defer func() {
		m.rfsMu.Lock()
		m.rfsOut = nil
		m.rfsMu.Unlock()
	}()
	stop := context.AfterFunc(ctx, func() { _ = rw.Close() })
	defer stop()

	codec := ipc.RFSCodec{}
	for {
		msg, err := codec.Decode(rw)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read rfs reply: %w", err)
		}
		ok, _, _, body, err := rfs.DecodeReply(msg.Data)
		if err != nil {
			m.logger.Warn("bad nv reply", "error", err)
			continue
		}

		m.mu.Lock()
		ch, found := m.waiters[msg.MSeq]
		delete(m.waiters, msg.MSeq)
		m.mu.Unlock()
		if !found {
			m.logger.Warn("nv reply nobody waits for", "id", msg.MSeq)
			continue
		}
		ch <- nvReply{ok: ok, data: append([]byte(nil), body...)}
	}
}

// ReadNV asks the host for NV data and waits for the reply.
func (m *Modem) ReadNV(ctx context.Context, offset, length uint32) ([]byte, error) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], offset)
	binary.LittleEndian.PutUint32(payload[4:], length)

	return m.nvRequest(ctx, ipc.RFSNVReadItem, payload)
}

// WriteNV stores data in the host's NV image and waits for the confirmation.
func (m *Modem) WriteNV(ctx context.Context, offset uint32, data []byte) error {
	payload := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(payload[0:], offset)
	// #nosec G115 -- test payloads are small.
	binary.LittleEndian.PutUint32(payload[4:], uint32(len(data)))
	copy(payload[8:], data)

	_, err := m.nvRequest(ctx, ipc.RFSNVWriteItem, payload)
	return err
}

func (m *Modem) nvRequest(ctx context.Context, cmd ipc.Command, payload []byte) ([]byte, error) {
	ch := make(chan nvReply, 1)
	m.mu.Lock()
	m.nvID++
	id := m.nvID
	m.waiters[id] = ch
	m.mu.Unlock()

	frame, err := ipc.RFSCodec{}.Encode(ipc.Message{Command: cmd, MSeq: id, Data: payload})
	if err != nil {
		return nil, err
	}
	m.rfsMu.Lock()
	out := m.rfsOut
	if out != nil {
		_, err = out.Write(frame)
	}
	m.rfsMu.Unlock()
	if out == nil {
		err = fmt.Errorf("rfs: %w", ErrNotConnected)
	}
	if err != nil {
		m.mu.Lock()
		delete(m.waiters, id)
		m.mu.Unlock()
		return nil, err
	}

	select {
	case reply := <-ch:
		if !reply.ok {
			return nil, fmt.Errorf("%s %d rejected by host", cmd, id)
		}
		return reply.data, nil
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.waiters, id)
		m.mu.Unlock()
		return nil, ctx.Err()
	}
}
