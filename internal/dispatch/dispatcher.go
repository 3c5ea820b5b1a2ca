package dispatch

import (
	"context"
	"log/slog"

	"github.com/skobkin/rilcore/internal/ipc"
)

// PowerHandler receives modem power notifications.
type PowerHandler interface {
	PhonePowerUp()
	PhoneReset()
	PhoneState(value uint8) error
}

// GenResHandler receives generic phone responses.
type GenResHandler interface {
	HandleGenPhoneRes(res GenPhoneRes) error
}

// NVHandler serves RFS NV data requests.
type NVHandler interface {
	HandleNVRead(ctx context.Context, req NVRead) error
	HandleNVWrite(ctx context.Context, req NVWrite) error
}

// Handlers is the set of handlers a Dispatcher routes to. Nil handlers drop
// their messages.
type Handlers struct {
	Power  PowerHandler
	GenRes GenResHandler
	NV     NVHandler
}

// Dispatcher runs on the read loop of each channel. It never fails: handler
// errors and unknown messages are logged and dropped.
type Dispatcher struct {
	logger   *slog.Logger
	handlers Handlers
}

func New(logger *slog.Logger, handlers Handlers) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{logger: logger, handlers: handlers}
}

func (d *Dispatcher) Dispatch(ctx context.Context, client ipc.ClientType, msg ipc.Message) {
	var err error

	switch ev := Decode(client, msg).(type) {
	case PhonePowerUp:
		if d.handlers.Power == nil {
			d.drop(client, msg, "no power handler")
			return
		}
		d.handlers.Power.PhonePowerUp()
	case PhoneReset:
		if d.handlers.Power == nil {
			d.drop(client, msg, "no power handler")
			return
		}
		d.handlers.Power.PhoneReset()
	case PhoneState:
		if d.handlers.Power == nil {
			d.drop(client, msg, "no power handler")
			return
		}
		err = d.handlers.Power.PhoneState(ev.Value)
	case GenPhoneRes:
		if d.handlers.GenRes == nil {
			d.drop(client, msg, "no generic response handler")
			return
		}
		err = d.handlers.GenRes.HandleGenPhoneRes(ev)
	case NVRead:
		if d.handlers.NV == nil {
			d.drop(client, msg, "no nv handler")
			return
		}
		err = d.handlers.NV.HandleNVRead(ctx, ev)
	case NVWrite:
		if d.handlers.NV == nil {
			d.drop(client, msg, "no nv handler")
			return
		}
		err = d.handlers.NV.HandleNVWrite(ctx, ev)
	case Unhandled:
		d.drop(client, msg, ev.Reason)
		return
	default:
		d.drop(client, msg, "unexpected event")
		return
	}

	if err != nil {
		d.logger.Warn("handler failed", "channel", client.String(), "msg", msg.String(), "error", err)
	}
}

func (d *Dispatcher) drop(client ipc.ClientType, msg ipc.Message, reason string) {
	d.logger.Debug("unhandled message dropped", "channel", client.String(), "msg", msg.String(), "reason", reason)
}
