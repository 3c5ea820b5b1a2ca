// Package ipc implements the Samsung IPC channel client: message model,
// wire framing for the FMT and RFS channels, and the client handle that owns
// one transport connection.
package ipc

import "fmt"

// ClientType selects the logical baseband channel a client talks to.
type ClientType uint8

const (
	// ClientFMT is the primary protocol channel.
	ClientFMT ClientType = iota
	// ClientRFS is the filesystem/bootstrap channel.
	ClientRFS
)

func (t ClientType) String() string {
	switch t {
	case ClientFMT:
		return "fmt"
	case ClientRFS:
		return "rfs"
	default:
		return fmt.Sprintf("client(%d)", uint8(t))
	}
}

// Command is a 16-bit command code: group in the high byte, index in the low byte.
type Command uint16

func MakeCommand(group, index uint8) Command {
	return Command(uint16(group)<<8 | uint16(index))
}

func (c Command) Group() uint8 {
	return uint8(c >> 8)
}

func (c Command) Index() uint8 {
	return uint8(c)
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}

	return fmt.Sprintf("0x%04x", uint16(c))
}

// MessageType is the request/response kind byte of an FMT frame.
type MessageType uint8

// Request types, sent to the modem.
const (
	TypeExec  MessageType = 0x01
	TypeGet   MessageType = 0x02
	TypeSet   MessageType = 0x03
	TypeCfrm  MessageType = 0x04
	TypeEvent MessageType = 0x05
)

// Response types, received from the modem.
const (
	TypeIndi MessageType = 0x01
	TypeResp MessageType = 0x02
	TypeNoti MessageType = 0x03
)

// Message is one decoded frame.
type Message struct {
	Command Command
	Type    MessageType
	// MSeq is the sequence number chosen by the sender; requests carry the caller token id.
	MSeq uint8
	// ASeq is the sequence number of the request a response acknowledges.
	ASeq uint8
	Data []byte
}

// Release drops the payload buffer once dispatch is done with it.
func (m *Message) Release() {
	m.Data = nil
}

func (m Message) String() string {
	return fmt.Sprintf("%s type=0x%02x mseq=%d aseq=%d len=%d", m.Command, uint8(m.Type), m.MSeq, m.ASeq, len(m.Data))
}
