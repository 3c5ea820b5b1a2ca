package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Frame header sizes.
const (
	FMTHeaderSize = 7
	RFSHeaderSize = 6

	// MaxRFSFrameSize bounds RFS frames; NV data transfers stay well below it.
	MaxRFSFrameSize = 4 << 20
)

var (
	// ErrFrameTruncated indicates the stream ended inside a frame.
	ErrFrameTruncated = errors.New("frame truncated")
	// ErrFrameMalformed indicates a header that cannot describe a valid frame.
	ErrFrameMalformed = errors.New("frame malformed")
	// ErrPayloadTooLarge indicates a payload that does not fit the channel's length field.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Codec converts messages to and from one channel's wire framing.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(r io.Reader) (Message, error)
}

// CodecFor returns the framing used on the given channel.
func CodecFor(t ClientType) Codec {
	if t == ClientRFS {
		return RFSCodec{}
	}

	return FMTCodec{}
}

// FMTCodec frames messages as: length u16, mseq, aseq, group, index, type, data.
type FMTCodec struct{}

func (FMTCodec) Encode(msg Message) ([]byte, error) {
	if len(msg.Data) > math.MaxUint16-FMTHeaderSize {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(msg.Data))
	}

	frame := make([]byte, FMTHeaderSize+len(msg.Data))
	// #nosec G115 -- length is bounded by math.MaxUint16 above.
	binary.LittleEndian.PutUint16(frame[0:2], uint16(len(frame)))
	frame[2] = msg.MSeq
	frame[3] = msg.ASeq
	frame[4] = msg.Command.Group()
	frame[5] = msg.Command.Index()
	frame[6] = uint8(msg.Type)
	copy(frame[FMTHeaderSize:], msg.Data)

	return frame, nil
}

func (FMTCodec) Decode(r io.Reader) (Message, error) {
	var hdr [FMTHeaderSize]byte
	if err := readFull(r, hdr[:], "fmt header"); err != nil {
		return Message{}, err
	}

	length := int(binary.LittleEndian.Uint16(hdr[0:2]))
	if length < FMTHeaderSize {
		return Message{}, fmt.Errorf("%w: fmt length %d shorter than header", ErrFrameMalformed, length)
	}

	msg := Message{
		MSeq:    hdr[2],
		ASeq:    hdr[3],
		Command: MakeCommand(hdr[4], hdr[5]),
		Type:    MessageType(hdr[6]),
	}
	if n := length - FMTHeaderSize; n > 0 {
		msg.Data = make([]byte, n)
		if err := readFull(r, msg.Data, "fmt payload"); err != nil {
			return Message{}, err
		}
	}

	return msg, nil
}

// RFSCodec frames messages as: length u32, cmd u8, id u8, data. The message
// type is not carried on the RFS channel.
type RFSCodec struct{}

func (RFSCodec) Encode(msg Message) ([]byte, error) {
	if msg.Command > math.MaxUint8 {
		return nil, fmt.Errorf("%w: rfs command %s does not fit one byte", ErrFrameMalformed, msg.Command)
	}
	if len(msg.Data) > MaxRFSFrameSize-RFSHeaderSize {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(msg.Data))
	}

	frame := make([]byte, RFSHeaderSize+len(msg.Data))
	// #nosec G115 -- length is bounded by MaxRFSFrameSize above.
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(frame)))
	frame[4] = uint8(msg.Command)
	frame[5] = msg.MSeq
	copy(frame[RFSHeaderSize:], msg.Data)

	return frame, nil
}

func (RFSCodec) Decode(r io.Reader) (Message, error) {
	var hdr [RFSHeaderSize]byte
	if err := readFull(r, hdr[:], "rfs header"); err != nil {
		return Message{}, err
	}

	length := binary.LittleEndian.Uint32(hdr[0:4])
	if length < RFSHeaderSize || length > MaxRFSFrameSize {
		return Message{}, fmt.Errorf("%w: rfs length %d", ErrFrameMalformed, length)
	}

	msg := Message{
		Command: Command(hdr[4]),
		MSeq:    hdr[5],
	}
	if n := int(length) - RFSHeaderSize; n > 0 {
		msg.Data = make([]byte, n)
		if err := readFull(r, msg.Data, "rfs payload"); err != nil {
			return Message{}, err
		}
	}

	return msg, nil
}

func readFull(r io.Reader, buf []byte, what string) error {
	_, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %s", ErrFrameTruncated, what)
	default:
		return fmt.Errorf("read %s: %w", what, err)
	}
}
