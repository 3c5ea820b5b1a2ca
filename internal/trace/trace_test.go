package trace

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/rilcore/internal/bus"
	"github.com/skobkin/rilcore/internal/events"
	"github.com/skobkin/rilcore/internal/ipc"
)

func readAll(t *testing.T, path string, filter Filter) []Event {
	t.Helper()
	r, err := NewReader(path, filter)
	require.NoError(t, err)
	defer r.Close()

	var out []Event
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestFileLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "ipc.trace")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	_, err = uuid.Parse(logger.Session())
	require.NoError(t, err)

	msg := ipc.Message{Command: ipc.PwrPhoneState, Type: ipc.TypeExec, MSeq: 5, Data: []byte{0x02, 0x02}}
	frame, err := ipc.FMTCodec{}.Encode(msg)
	require.NoError(t, err)

	logger.ObserveFrame(ipc.ClientFMT, ipc.DirectionOut, msg, frame)
	logger.ObserveFrame(ipc.ClientRFS, ipc.DirectionIn, ipc.Message{Command: ipc.RFSNVReadItem, MSeq: 1}, []byte{6, 0, 0, 0, 1, 1})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
	logger.ObserveFrame(ipc.ClientFMT, ipc.DirectionIn, msg, frame)

	got := readAll(t, path, Filter{})
	require.Len(t, got, 2)
	assert.Equal(t, logger.Session(), got[0].Session)
	assert.Equal(t, "fmt", got[0].Channel)
	assert.Equal(t, ipc.DirectionOut, got[0].Direction)
	assert.Equal(t, uint16(ipc.PwrPhoneState), got[0].Command)
	assert.Equal(t, uint8(5), got[0].MSeq)
	assert.Equal(t, frame, got[0].Raw)
	assert.Zero(t, logger.Errors())
}

func TestReaderFiltersAndAppendsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipc.trace")

	first, err := NewFileLogger(path)
	require.NoError(t, err)
	first.ObserveFrame(ipc.ClientFMT, ipc.DirectionIn, ipc.Message{Command: ipc.PwrPhonePwrUp}, nil)
	require.NoError(t, first.Close())

	second, err := NewFileLogger(path)
	require.NoError(t, err)
	second.ObserveFrame(ipc.ClientFMT, ipc.DirectionOut, ipc.Message{Command: ipc.PwrPhoneState}, nil)
	second.ObserveFrame(ipc.ClientRFS, ipc.DirectionIn, ipc.Message{Command: ipc.RFSNVWriteItem}, nil)
	require.NoError(t, second.Close())

	assert.NotEqual(t, first.Session(), second.Session())
	assert.Len(t, readAll(t, path, Filter{}), 3)
	assert.Len(t, readAll(t, path, Filter{Session: second.Session()}), 2)
	assert.Len(t, readAll(t, path, Filter{Channel: "rfs"}), 1)

	in := ipc.DirectionIn
	assert.Len(t, readAll(t, path, Filter{Direction: &in}), 2)
	cmd := uint16(ipc.PwrPhoneState)
	assert.Len(t, readAll(t, path, Filter{Command: &cmd}), 1)
}

func TestEncodeDecodeEvent(t *testing.T) {
	e := NewEvent("s", ipc.ClientFMT, ipc.DirectionIn, ipc.Message{Command: ipc.GenPhoneRes, ASeq: 9}, []byte{1, 2})
	raw, err := EncodeEvent(e)
	require.NoError(t, err)

	back, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, uint8(9), back.ASeq)
	assert.True(t, e.Timestamp.Equal(back.Timestamp))
}

func TestFormat(t *testing.T) {
	e := NewEvent("0123456789abcdef", ipc.ClientFMT, ipc.DirectionOut, ipc.Message{Command: ipc.PwrPhoneState, MSeq: 3}, []byte{0xab, 0xcd})
	line := Format(e)

	assert.True(t, strings.Contains(line, "01234567 fmt out PWR_PHONE_STATE"), line)
	assert.True(t, strings.HasSuffix(line, "len=2 abcd"), line)
}

func TestBusObserverPublishesByDirection(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	in := b.Subscribe(events.TopicFrameIn)
	out := b.Subscribe(events.TopicFrameOut)

	obs := Multi{BusObserver{Bus: b}, nil}
	obs.ObserveFrame(ipc.ClientRFS, ipc.DirectionIn, ipc.Message{Command: ipc.RFSNVReadItem}, []byte{1})
	obs.ObserveFrame(ipc.ClientFMT, ipc.DirectionOut, ipc.Message{Command: ipc.PwrPhoneState}, []byte{2, 3})

	frameIn := (<-in).(events.RawFrame)
	assert.Equal(t, "rfs", frameIn.Channel)
	assert.Equal(t, "01", frameIn.Hex)
	frameOut := (<-out).(events.RawFrame)
	assert.Equal(t, "PWR_PHONE_STATE", frameOut.Command)
	assert.Equal(t, 2, frameOut.Len)
}
