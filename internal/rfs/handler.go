// Package rfs serves the modem's NV data requests on the RFS channel.
package rfs

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/skobkin/rilcore/internal/dispatch"
	"github.com/skobkin/rilcore/internal/ipc"
)

const (
	confirmFailed uint8 = 0
	confirmOK     uint8 = 1

	replyHeaderSize = 9
	// MaxReadLength is the largest NV read answered in one reply frame.
	MaxReadLength = ipc.MaxRFSFrameSize - ipc.RFSHeaderSize - replyHeaderSize
)

// Sender writes to the RFS channel.
type Sender interface {
	Send(msg ipc.Message) error
}

// Handler answers NV_READ_ITEM and NV_WRITE_ITEM. Every request gets a reply
// carrying its id; failures are reported with a zero confirm byte.
type Handler struct {
	logger *slog.Logger
	store  Store
	sender Sender
}

func NewHandler(logger *slog.Logger, store Store, sender Sender) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{logger: logger, store: store, sender: sender}
}

func (h *Handler) HandleNVRead(ctx context.Context, req dispatch.NVRead) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	confirm := confirmOK
	data, readErr := h.read(req)
	if readErr != nil {
		confirm = confirmFailed
		h.logger.Warn("nv read failed", "id", req.ID, "offset", req.Offset, "length", req.Length, "error", readErr)
	} else {
		h.logger.Debug("nv read", "id", req.ID, "offset", req.Offset, "length", req.Length)
	}

	if err := h.reply(ipc.RFSNVReadItem, req.ID, confirm, req.Offset, req.Length, data); err != nil {
		return err
	}

	return readErr
}

func (h *Handler) read(req dispatch.NVRead) ([]byte, error) {
	if h.store == nil {
		return nil, fmt.Errorf("%w: no nv store", ErrOutOfRange)
	}
	if req.Length > MaxReadLength {
		return nil, fmt.Errorf("%w: read length %d", ErrOutOfRange, req.Length)
	}
	buf := make([]byte, req.Length)
	if _, err := h.store.ReadAt(buf, int64(req.Offset)); err != nil {
		return nil, fmt.Errorf("read nv data: %w", err)
	}

	return buf, nil
}

func (h *Handler) HandleNVWrite(ctx context.Context, req dispatch.NVWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	confirm := confirmOK
	var writeErr error
	if h.store == nil {
		writeErr = fmt.Errorf("%w: no nv store", ErrOutOfRange)
	} else if _, err := h.store.WriteAt(req.Data, int64(req.Offset)); err != nil {
		writeErr = fmt.Errorf("write nv data: %w", err)
	}
	if writeErr != nil {
		confirm = confirmFailed
		h.logger.Warn("nv write failed", "id", req.ID, "offset", req.Offset, "length", len(req.Data), "error", writeErr)
	} else {
		h.logger.Debug("nv write", "id", req.ID, "offset", req.Offset, "length", len(req.Data))
	}

	// #nosec G115 -- NV payloads are bounded by the RFS frame size.
	if err := h.reply(ipc.RFSNVWriteItem, req.ID, confirm, req.Offset, uint32(len(req.Data)), nil); err != nil {
		return err
	}

	return writeErr
}

func (h *Handler) reply(cmd ipc.Command, id, confirm uint8, offset, length uint32, data []byte) error {
	payload := make([]byte, replyHeaderSize+len(data))
	payload[0] = confirm
	binary.LittleEndian.PutUint32(payload[1:5], offset)
	binary.LittleEndian.PutUint32(payload[5:9], length)
	copy(payload[replyHeaderSize:], data)

	if err := h.sender.Send(ipc.Message{Command: cmd, MSeq: id, Data: payload}); err != nil {
		return fmt.Errorf("send %s reply: %w", cmd, err)
	}

	return nil
}

// DecodeReply parses an NV reply payload. It is used by the modem emulator.
func DecodeReply(data []byte) (ok bool, offset, length uint32, body []byte, err error) {
	if len(data) < replyHeaderSize {
		return false, 0, 0, nil, fmt.Errorf("%w: nv reply %d bytes", ipc.ErrFrameMalformed, len(data))
	}

	return data[0] == confirmOK,
		binary.LittleEndian.Uint32(data[1:5]),
		binary.LittleEndian.Uint32(data[5:9]),
		data[replyHeaderSize:],
		nil
}
