package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skobkin/rilcore/internal/bus"
	"github.com/skobkin/rilcore/internal/config"
	"github.com/skobkin/rilcore/internal/ipc"
	"github.com/skobkin/rilcore/internal/logging"
	"github.com/skobkin/rilcore/internal/persistence"
	"github.com/skobkin/rilcore/internal/platform"
	"github.com/skobkin/rilcore/internal/rfs"
	"github.com/skobkin/rilcore/internal/ril"
	"github.com/skobkin/rilcore/internal/trace"
)

// Options tunes Initialize from the command line.
type Options struct {
	// ConfigFile replaces the default config location.
	ConfigFile string
	// LogLevel overrides logging.level when set.
	LogLevel string
	// SkipLock disables the modem ownership lock.
	SkipLock bool
}

// Runtime owns every long-lived component of the daemon.
type Runtime struct {
	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager  *logging.Manager
	Bus         *bus.PubSubBus
	DB          *sql.DB
	Journal     *persistence.StateRepo
	WriterQueue *persistence.WriterQueue
	Trace       *trace.FileLogger
	NVStore     *rfs.FileStore
	Core        *ril.Core
	Lock        platform.ModemLock
}

func Initialize(parent context.Context, opts Options) (*Runtime, error) {
	paths, err := ResolvePaths(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}
	if lvl := strings.TrimSpace(opts.LogLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", paths.ConfigFile, err)
	}
	paths = paths.WithConfig(cfg)

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	logger := logMgr.Logger("runtime")
	logger.Info("starting", "banner", Banner(), "config", paths.ConfigFile)

	if !opts.SkipLock {
		lock, err := platform.AcquireModemLock(Name, ChannelTarget(cfg.Channels.FMT))
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Lock = lock
	}

	WarnMissingSerialDevices(logger, cfg.Channels)

	if err := rt.openJournal(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	persistence.StartJournalProjection(ctx, b, rt.WriterQueue, rt.Journal)

	observers := trace.Multi{trace.BusObserver{Bus: b}}
	if cfg.Trace.Enabled {
		tl, err := trace.NewFileLogger(paths.TraceFile)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.Trace = tl
		observers = append(observers, tl)
		logger.Info("frame trace enabled", "path", paths.TraceFile, "session", tl.Session())
	}

	nv, err := rfs.OpenFileStore(paths.NVDataFile, rfs.DefaultNVSize)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.NVStore = nv

	core, err := ril.New(ril.Options{
		Logger:     logMgr.Logger("ril"),
		Bus:        b,
		FMT:        NewBackend(ipc.ClientFMT, cfg, observers),
		RFS:        NewBackend(ipc.ClientRFS, cfg, observers),
		NVStore:    nv,
		LogHandler: logging.IPCLogHandler(logMgr.Logger("ipc")),
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("initialize ril core: %w", err)
	}
	rt.Core = core

	return rt, nil
}

func (r *Runtime) openJournal(ctx context.Context) error {
	db, err := persistence.Open(ctx, r.Paths.DBFile)
	if err != nil {
		return err
	}
	r.DB = db
	r.Journal = persistence.NewStateRepo(db)

	logger := r.LogManager.Logger("persistence")
	persistence.LogLastState(ctx, logger, r.Journal)
	pruned, err := persistence.PruneBefore(ctx, db, time.Now().Add(-JournalRetention))
	if err != nil {
		logger.Warn("prune journal", "error", err)
	} else if pruned > 0 {
		logger.Info("pruned journal", "rows", pruned)
	}

	r.WriterQueue = persistence.NewWriterQueue(logger, JournalQueueSize)
	r.WriterQueue.Start(ctx)

	return nil
}

// Start brings both channels up and starts their read loops.
func (r *Runtime) Start() error {
	if r.Core == nil {
		return errors.New("runtime is not initialized")
	}

	return r.Core.Start(r.Ctx)
}

// ClearJournal empties the state journal.
func (r *Runtime) ClearJournal() error {
	if r.DB == nil {
		return fmt.Errorf("database is not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := persistence.ClearDatabase(ctx, r.DB); err != nil {
		return err
	}
	slog.Info("journal cleared")

	return nil
}

// Close tears the daemon down. The core goes first so its final status
// events still reach the journal.
func (r *Runtime) Close() error {
	var errs []error
	if r.Core != nil {
		ctx, cancel := context.WithTimeout(context.Background(), CloseTimeout)
		if err := r.Core.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close ril core: %w", err))
		}
		cancel()
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.WriterQueue != nil {
		select {
		case <-r.WriterQueue.Done():
		case <-time.After(CloseTimeout):
			slog.Warn("journal writer did not stop in time")
		}
		if dropped := r.WriterQueue.Dropped(); dropped > 0 {
			slog.Warn("journal writes dropped", "count", dropped)
		}
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.Trace != nil {
		if n := r.Trace.Errors(); n > 0 {
			slog.Warn("frame trace write errors", "count", n)
		}
		_ = r.Trace.Close()
	}
	if r.NVStore != nil {
		_ = r.NVStore.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.Lock != nil {
		if err := r.Lock.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}

	return errors.Join(errs...)
}
