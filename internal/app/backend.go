package app

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/skobkin/rilcore/internal/config"
	"github.com/skobkin/rilcore/internal/ipc"
	"github.com/skobkin/rilcore/internal/transport"
)

// NewChannelTransport builds the transport described by one channel config.
func NewChannelTransport(cfg config.ChannelConfig) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportDevice:
		return transport.NewDeviceTransport(cfg.Path, cfg.Baud), nil
	case config.TransportUnix:
		return transport.NewSocketTransport("unix", cfg.Path), nil
	case config.TransportTCP:
		return transport.NewSocketTransport("tcp", cfg.Address), nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

// ChannelTarget is a human readable location of a channel.
func ChannelTarget(cfg config.ChannelConfig) string {
	if cfg.Transport == config.TransportTCP {
		return strings.TrimSpace(cfg.Address)
	}

	return strings.TrimSpace(cfg.Path)
}

// NewBackend wires the transport factory and vendor hooks of a channel. Only
// the FMT channel carries the bootstrap and power hooks.
func NewBackend(kind ipc.ClientType, cfg config.AppConfig, observer ipc.FrameObserver) ipc.Backend {
	chCfg := cfg.Channels.RFS
	if kind == ipc.ClientFMT {
		chCfg = cfg.Channels.FMT
	}

	backend := ipc.Backend{
		NewTransport: func() (transport.Transport, error) {
			return NewChannelTransport(chCfg)
		},
		Observer: observer,
	}
	if kind != ipc.ClientFMT {
		return backend
	}

	if cfg.Modem.BootstrapDevice != "" && cfg.Modem.FirmwarePath != "" {
		backend.Bootstrapper = ipc.FirmwareBootstrapper{
			BootDevice:   cfg.Modem.BootstrapDevice,
			FirmwarePath: cfg.Modem.FirmwarePath,
		}
	}
	if cfg.Modem.PowerPath != "" {
		backend.PowerSwitch = ipc.SysfsPowerSwitch{Path: cfg.Modem.PowerPath}
	}

	return backend
}

// WarnMissingSerialDevices logs tty channels that the OS does not enumerate.
// Character devices without line settings are not serial ports and are skipped.
func WarnMissingSerialDevices(logger *slog.Logger, cfg config.ChannelsConfig) {
	channels := []struct {
		name string
		cfg  config.ChannelConfig
	}{
		{name: "fmt", cfg: cfg.FMT},
		{name: "rfs", cfg: cfg.RFS},
	}
	for _, ch := range channels {
		if ch.cfg.Transport != config.TransportDevice || ch.cfg.Baud == 0 {
			continue
		}
		present, err := transport.SerialPortPresent(ch.cfg.Path)
		if err != nil {
			logger.Debug("enumerate serial ports", "error", err)

			return
		}
		if !present {
			logger.Warn("configured serial device not found", "channel", ch.name, "path", ch.cfg.Path)
		}
	}
}
