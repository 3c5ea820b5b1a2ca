// Package dispatch routes decoded baseband messages to their handlers.
package dispatch

import (
	"encoding/binary"
	"fmt"

	"github.com/skobkin/rilcore/internal/ipc"
)

// Event is the closed set of messages the core understands. Decode never
// fails: anything it cannot classify becomes Unhandled.
type Event interface {
	event()
}

// PhonePowerUp: the modem finished powering up (still in LPM).
type PhonePowerUp struct{}

// PhoneReset: the modem reset itself.
type PhoneReset struct{}

// PhoneState carries the modem's one byte power state report.
type PhoneState struct {
	Value uint8
}

// GenPhoneRes is the generic acknowledgement of an earlier request.
type GenPhoneRes struct {
	ASeq    uint8
	Command ipc.Command
	Type    ipc.MessageType
	Code    uint16
}

// Success reports whether the acknowledged request was accepted.
func (r GenPhoneRes) Success() bool {
	return uint8(r.Code) == ipc.GenPhoneResSuccess
}

// NVRead asks for Length bytes of NV data at Offset.
type NVRead struct {
	ID     uint8
	Offset uint32
	Length uint32
}

// NVWrite stores Data at Offset in NV data.
type NVWrite struct {
	ID     uint8
	Offset uint32
	Data   []byte
}

// Unhandled is a message outside the core's scope or with a malformed payload.
type Unhandled struct {
	Client ipc.ClientType
	Msg    ipc.Message
	Reason string
}

func (PhonePowerUp) event() {}
func (PhoneReset) event()   {}
func (PhoneState) event()   {}
func (GenPhoneRes) event()  {}
func (NVRead) event()       {}
func (NVWrite) event()      {}
func (Unhandled) event()    {}

const (
	genPhoneResSize = 5
	nvHeaderSize    = 8
)

// Decode classifies msg received on the given channel.
func Decode(client ipc.ClientType, msg ipc.Message) Event {
	if client == ipc.ClientRFS {
		return decodeRFS(msg)
	}

	switch msg.Command {
	case ipc.PwrPhonePwrUp:
		return PhonePowerUp{}
	case ipc.PwrPhoneReset:
		return PhoneReset{}
	case ipc.PwrPhoneState:
		if len(msg.Data) < 1 {
			return unhandled(client, msg, "power state report without payload")
		}

		return PhoneState{Value: msg.Data[0]}
	case ipc.GenPhoneRes:
		if len(msg.Data) < genPhoneResSize {
			return unhandled(client, msg, fmt.Sprintf("generic response payload %d bytes, want %d", len(msg.Data), genPhoneResSize))
		}

		return GenPhoneRes{
			ASeq:    msg.ASeq,
			Command: ipc.MakeCommand(msg.Data[0], msg.Data[1]),
			Type:    ipc.MessageType(msg.Data[2]),
			Code:    binary.LittleEndian.Uint16(msg.Data[3:5]),
		}
	default:
		return unhandled(client, msg, "unknown command")
	}
}

func decodeRFS(msg ipc.Message) Event {
	switch msg.Command {
	case ipc.RFSNVReadItem:
		if len(msg.Data) < nvHeaderSize {
			return unhandled(ipc.ClientRFS, msg, "nv read request too short")
		}

		return NVRead{
			ID:     msg.MSeq,
			Offset: binary.LittleEndian.Uint32(msg.Data[0:4]),
			Length: binary.LittleEndian.Uint32(msg.Data[4:8]),
		}
	case ipc.RFSNVWriteItem:
		if len(msg.Data) < nvHeaderSize {
			return unhandled(ipc.ClientRFS, msg, "nv write request too short")
		}
		length := binary.LittleEndian.Uint32(msg.Data[4:8])
		if uint64(length) > uint64(len(msg.Data)-nvHeaderSize) {
			return unhandled(ipc.ClientRFS, msg, fmt.Sprintf("nv write announces %d bytes, carries %d", length, len(msg.Data)-nvHeaderSize))
		}

		return NVWrite{
			ID:     msg.MSeq,
			Offset: binary.LittleEndian.Uint32(msg.Data[0:4]),
			Data:   msg.Data[nvHeaderSize : nvHeaderSize+int(length)],
		}
	default:
		return unhandled(ipc.ClientRFS, msg, "unknown command")
	}
}

func unhandled(client ipc.ClientType, msg ipc.Message, reason string) Unhandled {
	return Unhandled{Client: client, Msg: msg, Reason: reason}
}
