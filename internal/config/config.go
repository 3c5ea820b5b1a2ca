package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TransportType identifies how a channel reaches the modem.
type TransportType string

const (
	TransportDevice TransportType = "device"
	TransportUnix   TransportType = "unix"
	TransportTCP    TransportType = "tcp"

	DefaultFMTDevice = "/dev/umts_ipc0"
	DefaultRFSDevice = "/dev/umts_rfs0"

	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	LogToFile  bool   `json:"log_to_file" yaml:"log_to_file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// ChannelConfig contains transport parameters of one baseband channel.
type ChannelConfig struct {
	Transport TransportType `json:"transport" yaml:"transport"`
	// Path is the character device or unix socket path.
	Path    string `json:"path" yaml:"path"`
	Address string `json:"address" yaml:"address"`
	// Baud configures a tty device; zero leaves line settings untouched.
	Baud int `json:"baud" yaml:"baud"`
}

// ChannelsConfig holds both channels.
type ChannelsConfig struct {
	FMT ChannelConfig `json:"fmt" yaml:"fmt"`
	RFS ChannelConfig `json:"rfs" yaml:"rfs"`
}

// ModemConfig holds the vendor lifecycle hooks. Empty paths disable a hook.
type ModemConfig struct {
	BootstrapDevice string `json:"bootstrap_device" yaml:"bootstrap_device"`
	FirmwarePath    string `json:"firmware_path" yaml:"firmware_path"`
	PowerPath       string `json:"power_path" yaml:"power_path"`
	NVDataPath      string `json:"nv_data_path" yaml:"nv_data_path"`
}

// TraceConfig controls the frame trace log.
type TraceConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// StorageConfig controls the state journal.
type StorageConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// AppConfig is the root persisted daemon configuration.
type AppConfig struct {
	Channels ChannelsConfig `json:"channels" yaml:"channels"`
	Modem    ModemConfig    `json:"modem" yaml:"modem"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Trace    TraceConfig    `json:"trace" yaml:"trace"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
}

func Default() AppConfig {
	return AppConfig{
		Channels: ChannelsConfig{
			FMT: ChannelConfig{Transport: TransportDevice, Path: DefaultFMTDevice},
			RFS: ChannelConfig{Transport: TransportDevice, Path: DefaultRFSDevice},
		},
		Logging: LoggingConfig{
			Level:      "info",
			LogToFile:  false,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
	}
}

// IsYAML reports whether path is read and written as YAML rather than JSON.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the command line or the default config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if IsYAML(cleanPath) {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("decode config yaml: %w", err)
		}
	} else if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	fillChannel(&c.Channels.FMT, DefaultFMTDevice)
	fillChannel(&c.Channels.RFS, DefaultRFSDevice)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

func fillChannel(ch *ChannelConfig, device string) {
	if ch.Transport == "" {
		ch.Transport = TransportDevice
	}
	if ch.Transport == TransportDevice && strings.TrimSpace(ch.Path) == "" {
		ch.Path = device
	}
	if ch.Baud < 0 {
		ch.Baud = 0
	}
}

func (c AppConfig) Validate() error {
	if err := c.Channels.FMT.validate(); err != nil {
		return fmt.Errorf("channels.fmt: %w", err)
	}
	if err := c.Channels.RFS.validate(); err != nil {
		return fmt.Errorf("channels.rfs: %w", err)
	}
	if (c.Modem.BootstrapDevice == "") != (c.Modem.FirmwarePath == "") {
		return errors.New("modem: bootstrap_device and firmware_path must be set together")
	}
	if c.Trace.Enabled && strings.TrimSpace(c.Trace.Path) == "" {
		return errors.New("trace: path is required when enabled")
	}

	return nil
}

func (c ChannelConfig) validate() error {
	switch c.Transport {
	case TransportDevice, TransportUnix:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("%s path is required", c.Transport)
		}
	case TransportTCP:
		if strings.TrimSpace(c.Address) == "" {
			return errors.New("tcp address is required")
		}
	default:
		return fmt.Errorf("unknown transport: %s", c.Transport)
	}
	if c.Baud < 0 {
		return errors.New("baud must not be negative")
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var (
		raw []byte
		err error
	)
	if IsYAML(path) {
		raw, err = yaml.Marshal(cfg)
	} else {
		raw, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
