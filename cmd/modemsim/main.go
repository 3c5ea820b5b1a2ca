package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/skobkin/rilcore/internal/config"
	"github.com/skobkin/rilcore/internal/logging"
	"github.com/skobkin/rilcore/internal/modemsim"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run modemsim", "error", err)
		os.Exit(1)
	}
}

func run() error {
	dir := os.TempDir()
	fmtPath := flag.String("fmt", filepath.Join(dir, "rilcore-fmt.sock"), "FMT channel unix socket")
	rfsPath := flag.String("rfs", filepath.Join(dir, "rilcore-rfs.sock"), "RFS channel unix socket")
	rejectPower := flag.Bool("reject-power", false, "fail every power state request")
	silentPower := flag.Bool("silent-power", false, "acknowledge power state requests without reporting the new mode")
	resetAfter := flag.Duration("reset-after", 0, "send PHONE_RESET once this long after start, e.g. 30s")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logMgr := logging.NewManager()
	if err := logMgr.Configure(config.LoggingConfig{Level: *logLevel}, ""); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		_ = logMgr.Close()
	}()
	logger := logMgr.Logger("modemsim")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmtLn, rfsLn, err := modemsim.Listen(*fmtPath, *rfsPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(*fmtPath)
		_ = os.Remove(*rfsPath)
	}()

	modem := modemsim.New(modemsim.Options{
		Logger:      logger,
		RejectPower: *rejectPower,
		SilentPower: *silentPower,
	})
	if *resetAfter > 0 {
		go scheduleReset(ctx, logger, modem, *resetAfter)
	}

	logger.Info("listening", "fmt", *fmtPath, "rfs", *rfsPath)
	if err := modem.Serve(ctx, fmtLn, rfsLn); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped", "frames_seen", len(modem.Seen()))

	return nil
}

func scheduleReset(ctx context.Context, logger *slog.Logger, modem *modemsim.Modem, after time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(after):
	}
	if err := modem.PhoneReset(); err != nil {
		logger.Warn("send phone reset", "error", err)
		return
	}
	logger.Info("phone reset sent")
}
