package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Channels.FMT.Transport != TransportDevice {
		t.Fatalf("expected default fmt transport %q, got %q", TransportDevice, cfg.Channels.FMT.Transport)
	}
	if cfg.Channels.FMT.Path != DefaultFMTDevice {
		t.Fatalf("expected default fmt device %q, got %q", DefaultFMTDevice, cfg.Channels.FMT.Path)
	}
	if cfg.Channels.RFS.Path != DefaultRFSDevice {
		t.Fatalf("expected default rfs device %q, got %q", DefaultRFSDevice, cfg.Channels.RFS.Path)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.MaxSizeMB != DefaultLogMaxSizeMB {
		t.Fatalf("expected default log size %d, got %d", DefaultLogMaxSizeMB, cfg.Logging.MaxSizeMB)
	}
}

func TestFillMissingDefaultsKeepsSocketPathEmpty(t *testing.T) {
	cfg := AppConfig{Channels: ChannelsConfig{FMT: ChannelConfig{Transport: TransportTCP, Address: "127.0.0.1:7001"}}}
	cfg.FillMissingDefaults()

	if cfg.Channels.FMT.Path != "" {
		t.Fatalf("expected tcp channel to keep empty path, got %q", cfg.Channels.FMT.Path)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Channels.FMT.Path != DefaultFMTDevice {
		t.Fatalf("expected defaults, got %+v", cfg.Channels)
	}
}

func TestLoadJSONPartialUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "channels": {
    "fmt": {
      "transport": "unix",
      "path": "/run/modemsim/fmt.sock"
    }
  },
  "trace": {
    "enabled": true,
    "path": "/tmp/ipc.trace"
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Channels.FMT.Transport != TransportUnix || cfg.Channels.FMT.Path != "/run/modemsim/fmt.sock" {
		t.Fatalf("unexpected fmt channel: %+v", cfg.Channels.FMT)
	}
	if cfg.Channels.RFS.Path != DefaultRFSDevice {
		t.Fatalf("expected rfs channel to default, got %+v", cfg.Channels.RFS)
	}
	if !cfg.Trace.Enabled || cfg.Trace.Path != "/tmp/ipc.trace" {
		t.Fatalf("unexpected trace config: %+v", cfg.Trace)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rild.yaml")
	raw := `channels:
  fmt:
    transport: tcp
    address: 127.0.0.1:7001
  rfs:
    transport: device
    path: /dev/ttyUSB1
    baud: 115200
modem:
  nv_data_path: /efs/nv_data.bin
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Channels.FMT.Transport != TransportTCP || cfg.Channels.FMT.Address != "127.0.0.1:7001" {
		t.Fatalf("unexpected fmt channel: %+v", cfg.Channels.FMT)
	}
	if cfg.Channels.RFS.Baud != 115200 || cfg.Channels.RFS.Path != "/dev/ttyUSB1" {
		t.Fatalf("unexpected rfs channel: %+v", cfg.Channels.RFS)
	}
	if cfg.Modem.NVDataPath != "/efs/nv_data.bin" {
		t.Fatalf("unexpected nv data path %q", cfg.Modem.NVDataPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsBrokenJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSaveRoundTripYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Channels.FMT = ChannelConfig{Transport: TransportUnix, Path: "/tmp/fmt.sock"}
	cfg.Storage.DBPath = "/var/lib/rild/state.db"

	for _, name := range []string{"rild.yml", "rild.json"} {
		path := filepath.Join(dir, "nested", name)
		if err := Save(path, cfg); err != nil {
			t.Fatalf("%s: save config: %v", name, err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("%s: load config: %v", name, err)
		}
		if loaded != cfg {
			t.Fatalf("%s: expected %+v, got %+v", name, cfg, loaded)
		}
	}
}

func TestAppConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*AppConfig) {}},
		{
			name: "valid tcp",
			mutate: func(c *AppConfig) {
				c.Channels.FMT = ChannelConfig{Transport: TransportTCP, Address: "10.0.0.2:7001"}
			},
		},
		{
			name: "tcp without address",
			mutate: func(c *AppConfig) {
				c.Channels.FMT = ChannelConfig{Transport: TransportTCP}
			},
			wantErr: true,
		},
		{
			name: "unix without path",
			mutate: func(c *AppConfig) {
				c.Channels.RFS = ChannelConfig{Transport: TransportUnix}
			},
			wantErr: true,
		},
		{
			name: "negative baud",
			mutate: func(c *AppConfig) {
				c.Channels.RFS.Baud = -1
			},
			wantErr: true,
		},
		{
			name: "unknown transport",
			mutate: func(c *AppConfig) {
				c.Channels.FMT.Transport = TransportType("usb")
			},
			wantErr: true,
		},
		{
			name: "bootstrap device without firmware",
			mutate: func(c *AppConfig) {
				c.Modem.BootstrapDevice = "/dev/modem_boot"
			},
			wantErr: true,
		},
		{
			name: "trace without path",
			mutate: func(c *AppConfig) {
				c.Trace.Enabled = true
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		cfg := Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: expected no error, got %v", tc.name, err)
		}
	}
}
