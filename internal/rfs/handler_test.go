package rfs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/rilcore/internal/dispatch"
	"github.com/skobkin/rilcore/internal/ipc"
)

type captureSender struct {
	sent []ipc.Message
	err  error
}

func (s *captureSender) Send(msg ipc.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)

	return nil
}

func newStore(t *testing.T, size int64) *FileStore {
	t.Helper()
	store, err := OpenFileStore(filepath.Join(t.TempDir(), "nv", "nv_data.bin"), size)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestOpenFileStoreCreatesZeroFilledImage(t *testing.T) {
	store := newStore(t, 64)
	assert.Equal(t, int64(64), store.Size())

	buf := make([]byte, 8)
	_, err := store.ReadAt(buf, 56)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), buf)

	_, err = store.ReadAt(buf, 60)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestOpenFileStoreKeepsLargerImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nv.bin")
	first, err := OpenFileStore(path, 128)
	require.NoError(t, err)
	_, err = first.WriteAt([]byte{1, 2, 3}, 100)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenFileStore(path, 16)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, int64(128), second.Size())
	buf := make([]byte, 3)
	_, err = second.ReadAt(buf, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf)
}

func TestWriteThenRead(t *testing.T) {
	store := newStore(t, 32)
	sender := &captureSender{}
	h := NewHandler(nil, store, sender)
	ctx := context.Background()

	require.NoError(t, h.HandleNVWrite(ctx, dispatch.NVWrite{ID: 3, Offset: 4, Data: []byte{0xde, 0xad}}))
	require.NoError(t, h.HandleNVRead(ctx, dispatch.NVRead{ID: 4, Offset: 3, Length: 4}))

	require.Len(t, sender.sent, 2)

	write := sender.sent[0]
	assert.Equal(t, ipc.RFSNVWriteItem, write.Command)
	assert.Equal(t, uint8(3), write.MSeq)
	ok, offset, length, body, err := DecodeReply(write.Data)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(4), offset)
	assert.Equal(t, uint32(2), length)
	assert.Empty(t, body)

	read := sender.sent[1]
	assert.Equal(t, ipc.RFSNVReadItem, read.Command)
	assert.Equal(t, uint8(4), read.MSeq)
	ok, offset, length, body, err = DecodeReply(read.Data)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(3), offset)
	assert.Equal(t, uint32(4), length)
	assert.Equal(t, []byte{0, 0xde, 0xad, 0}, body)
}

func TestOutOfRangeRepliesWithFailure(t *testing.T) {
	store := newStore(t, 16)
	sender := &captureSender{}
	h := NewHandler(nil, store, sender)

	err := h.HandleNVRead(context.Background(), dispatch.NVRead{ID: 1, Offset: 10, Length: 10})
	require.ErrorIs(t, err, ErrOutOfRange)
	err = h.HandleNVWrite(context.Background(), dispatch.NVWrite{ID: 2, Offset: 15, Data: []byte{1, 2}})
	require.ErrorIs(t, err, ErrOutOfRange)

	require.Len(t, sender.sent, 2)
	for _, msg := range sender.sent {
		ok, _, _, body, err := DecodeReply(msg.Data)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, body)
	}
}

func TestSendFailureIsReturned(t *testing.T) {
	sender := &captureSender{err: errors.New("channel closed")}
	h := NewHandler(nil, newStore(t, 16), sender)

	err := h.HandleNVRead(context.Background(), dispatch.NVRead{ID: 1, Length: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestDecodeReplyRejectsShortPayload(t *testing.T) {
	_, _, _, _, err := DecodeReply([]byte{1, 2})
	require.ErrorIs(t, err, ipc.ErrFrameMalformed)
}
