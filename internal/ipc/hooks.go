package ipc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

const (
	bootstrapChunkSize = 0x1000
	bootstrapAck       = 0x01
)

// FirmwareBootstrapper uploads the modem firmware image over the boot device:
// a little endian u32 image size, the image itself, then a single ack byte
// read back from the modem.
type FirmwareBootstrapper struct {
	BootDevice   string
	FirmwarePath string
	// OpenDevice opens the boot device; os.OpenFile is used when nil.
	OpenDevice func(path string) (io.ReadWriteCloser, error)
}

func (b FirmwareBootstrapper) Bootstrap(ctx context.Context) error {
	if b.BootDevice == "" || b.FirmwarePath == "" {
		return nil
	}

	// #nosec G304 -- firmware path comes from daemon configuration.
	image, err := os.ReadFile(filepath.Clean(b.FirmwarePath))
	if err != nil {
		return fmt.Errorf("read firmware image: %w", err)
	}
	if uint64(len(image)) > math.MaxUint32 {
		return fmt.Errorf("firmware image too large: %d", len(image))
	}

	open := b.OpenDevice
	if open == nil {
		open = func(path string) (io.ReadWriteCloser, error) {
			// #nosec G304 -- boot device path comes from daemon configuration.
			return os.OpenFile(filepath.Clean(path), os.O_RDWR, 0)
		}
	}
	dev, err := open(b.BootDevice)
	if err != nil {
		return fmt.Errorf("open boot device: %w", err)
	}
	defer func() { _ = dev.Close() }()

	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(image))) // #nosec G115 -- bounded above.
	if err := writeFull(dev, size[:]); err != nil {
		return fmt.Errorf("write firmware size: %w", err)
	}
	for off := 0; off < len(image); off += bootstrapChunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+bootstrapChunkSize, len(image))
		if err := writeFull(dev, image[off:end]); err != nil {
			return fmt.Errorf("write firmware at offset %d: %w", off, err)
		}
	}

	var ack [1]byte
	if _, err := io.ReadFull(dev, ack[:]); err != nil {
		return fmt.Errorf("read bootstrap ack: %w", err)
	}
	if ack[0] != bootstrapAck {
		return fmt.Errorf("bootstrap rejected by modem: ack 0x%02x", ack[0])
	}

	return nil
}

// SysfsPowerSwitch drives modem power through a sysfs control attribute.
type SysfsPowerSwitch struct {
	Path string
}

func (s SysfsPowerSwitch) PowerOn(ctx context.Context) error {
	return s.write(ctx, "1\n")
}

func (s SysfsPowerSwitch) PowerOff(ctx context.Context) error {
	return s.write(ctx, "0\n")
}

func (s SysfsPowerSwitch) write(ctx context.Context, value string) error {
	if s.Path == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Clean(s.Path), []byte(value), 0o600); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("power control %q missing: %w", s.Path, err)
		}

		return fmt.Errorf("write power control: %w", err)
	}

	return nil
}
