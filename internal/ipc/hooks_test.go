package ipc

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirmwareBootstrapperStreamsImage(t *testing.T) {
	image := bytes.Repeat([]byte{0x5a}, bootstrapChunkSize+17)
	fwPath := filepath.Join(t.TempDir(), "modem.bin")
	require.NoError(t, os.WriteFile(fwPath, image, 0o600))

	dev := &fakeBootDevice{ack: bytes.NewReader([]byte{bootstrapAck})}
	b := FirmwareBootstrapper{
		BootDevice:   "/dev/modem_boot",
		FirmwarePath: fwPath,
		OpenDevice:   func(string) (io.ReadWriteCloser, error) { return dev, nil },
	}

	require.NoError(t, b.Bootstrap(context.Background()))
	written := dev.Bytes()
	require.Len(t, written, 4+len(image))
	assert.Equal(t, uint32(len(image)), binary.LittleEndian.Uint32(written[:4]))
	assert.Equal(t, image, written[4:])
	assert.True(t, dev.closed)
}

func TestFirmwareBootstrapperRejectsBadAck(t *testing.T) {
	fwPath := filepath.Join(t.TempDir(), "modem.bin")
	require.NoError(t, os.WriteFile(fwPath, []byte{1, 2, 3}, 0o600))

	dev := &fakeBootDevice{ack: bytes.NewReader([]byte{0xee})}
	b := FirmwareBootstrapper{
		BootDevice:   "/dev/modem_boot",
		FirmwarePath: fwPath,
		OpenDevice:   func(string) (io.ReadWriteCloser, error) { return dev, nil },
	}

	require.ErrorContains(t, b.Bootstrap(context.Background()), "rejected")
}

func TestFirmwareBootstrapperUnconfiguredIsNoOp(t *testing.T) {
	require.NoError(t, FirmwareBootstrapper{}.Bootstrap(context.Background()))
}

func TestSysfsPowerSwitch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modem_power")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	s := SysfsPowerSwitch{Path: path}

	require.NoError(t, s.PowerOn(context.Background()))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(raw))

	require.NoError(t, s.PowerOff(context.Background()))
	raw, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(raw))

	require.NoError(t, SysfsPowerSwitch{}.PowerOn(context.Background()))
}
