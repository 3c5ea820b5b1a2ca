// Package trace records every IPC frame moved by the channel clients into an
// append-only CBOR file, one event per frame.
package trace

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/skobkin/rilcore/internal/ipc"
)

// Event is one traced frame. Integer keys keep the file compact.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	// Session is the UUID of the daemon run that wrote the event.
	Session   string        `cbor:"2,keyasint"`
	Channel   string        `cbor:"3,keyasint"`
	Direction ipc.Direction `cbor:"4,keyasint"`
	Command   uint16        `cbor:"5,keyasint"`
	Type      uint8         `cbor:"6,keyasint"`
	MSeq      uint8         `cbor:"7,keyasint"`
	ASeq      uint8         `cbor:"8,keyasint"`
	// Raw is the complete wire frame including its header.
	Raw []byte `cbor:"9,keyasint,omitempty"`
}

// NewEvent builds the event for a frame seen on client.
func NewEvent(session string, client ipc.ClientType, dir ipc.Direction, msg ipc.Message, raw []byte) Event {
	return Event{
		Timestamp: time.Now(),
		Session:   session,
		Channel:   client.String(),
		Direction: dir,
		Command:   uint16(msg.Command),
		Type:      uint8(msg.Type),
		MSeq:      msg.MSeq,
		ASeq:      msg.ASeq,
		Raw:       append([]byte(nil), raw...),
	}
}

// Format renders the event as one human readable line.
func Format(e Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %-3s %-3s %-16s type=0x%02x mseq=%3d aseq=%3d len=%d",
		e.Timestamp.Format("15:04:05.000000"),
		shortSession(e.Session),
		e.Channel,
		e.Direction,
		ipc.Command(e.Command),
		e.Type,
		e.MSeq,
		e.ASeq,
		len(e.Raw),
	)
	if len(e.Raw) > 0 {
		b.WriteString(" ")
		b.WriteString(hex.EncodeToString(e.Raw))
	}

	return b.String()
}

func shortSession(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
