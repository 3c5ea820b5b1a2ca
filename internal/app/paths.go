package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skobkin/rilcore/internal/config"
)

// Paths stores resolved runtime file locations. Config values override the
// per-user defaults.
type Paths struct {
	RootDir    string
	StateDir   string
	ConfigFile string
	DBFile     string
	LogFile    string
	TraceFile  string
	NVDataFile string
}

// ResolvePaths picks the default locations. A non-empty configFile replaces
// the default config path.
func ResolvePaths(configFile string) (Paths, error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve cache dir: %w", err)
	}

	root := filepath.Join(cfgRoot, Name)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}
	state := filepath.Join(cacheRoot, Name)
	if err := os.MkdirAll(state, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app state dir: %w", err)
	}

	cfgFile := filepath.Join(root, ConfigFilename)
	if strings.TrimSpace(configFile) != "" {
		cfgFile = filepath.Clean(configFile)
	}

	return Paths{
		RootDir:    root,
		StateDir:   state,
		ConfigFile: cfgFile,
		DBFile:     filepath.Join(state, DBFilename),
		LogFile:    filepath.Join(state, LogFilename),
		TraceFile:  filepath.Join(state, TraceFilename),
		NVDataFile: filepath.Join(root, NVDataFilename),
	}, nil
}

// WithConfig applies the path overrides found in cfg.
func (p Paths) WithConfig(cfg config.AppConfig) Paths {
	p.DBFile = pick(cfg.Storage.DBPath, p.DBFile)
	p.TraceFile = pick(cfg.Trace.Path, p.TraceFile)
	p.NVDataFile = pick(cfg.Modem.NVDataPath, p.NVDataFile)

	return p
}

func pick(override, fallback string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}

	return fallback
}
