package trace

import (
	"encoding/hex"

	"github.com/skobkin/rilcore/internal/events"
	"github.com/skobkin/rilcore/internal/ipc"
)

// Multi fans a frame out to several observers.
type Multi []ipc.FrameObserver

func (m Multi) ObserveFrame(client ipc.ClientType, dir ipc.Direction, msg ipc.Message, raw []byte) {
	for _, o := range m {
		if o != nil {
			o.ObserveFrame(client, dir, msg, raw)
		}
	}
}

// Publisher is the subset of the bus used for frame diagnostics.
type Publisher interface {
	TryPublish(topic string, msg any)
}

// BusObserver publishes frames as events.RawFrame for debug consumers. Slow
// consumers lose frames rather than stall the read loops.
type BusObserver struct {
	Bus Publisher
}

func (o BusObserver) ObserveFrame(client ipc.ClientType, dir ipc.Direction, msg ipc.Message, raw []byte) {
	topic := events.TopicFrameIn
	if dir == ipc.DirectionOut {
		topic = events.TopicFrameOut
	}
	o.Bus.TryPublish(topic, events.RawFrame{
		Channel: client.String(),
		Command: msg.Command.String(),
		Hex:     hex.EncodeToString(raw),
		Len:     len(raw),
	})
}

var (
	_ ipc.FrameObserver = Multi(nil)
	_ ipc.FrameObserver = BusObserver{}
)
