//go:build linux

package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skobkin/rilcore/internal/config"
	"github.com/skobkin/rilcore/internal/events"
	"github.com/skobkin/rilcore/internal/ipc"
	"github.com/skobkin/rilcore/internal/modemsim"
	"github.com/skobkin/rilcore/internal/platform"
	"github.com/skobkin/rilcore/internal/trace"
)

func writeEmulatorConfig(t *testing.T) (cfgPath, tracePath string) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "cfg"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(dir, "run"))

	fmtSock := filepath.Join(dir, "fmt.sock")
	rfsSock := filepath.Join(dir, "rfs.sock")
	fmtLn, rfsLn, err := modemsim.Listen(fmtSock, rfsSock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = modemsim.New(modemsim.Options{}).Serve(ctx, fmtLn, rfsLn)
	}()
	t.Cleanup(func() {
		cancel()
		<-served
	})

	tracePath = filepath.Join(dir, "ipc.trace")
	cfg := config.Default()
	cfg.Channels.FMT = config.ChannelConfig{Transport: config.TransportUnix, Path: fmtSock}
	cfg.Channels.RFS = config.ChannelConfig{Transport: config.TransportUnix, Path: rfsSock}
	cfg.Trace = config.TraceConfig{Enabled: true, Path: tracePath}
	cfg.Storage.DBPath = filepath.Join(dir, "journal.db")
	cfg.Modem.NVDataPath = filepath.Join(dir, "nv_data.bin")

	cfgPath = filepath.Join(dir, "rild.yaml")
	require.NoError(t, config.Save(cfgPath, cfg))

	return cfgPath, tracePath
}

func TestRuntimeAgainstEmulator(t *testing.T) {
	cfgPath, tracePath := writeEmulatorConfig(t)

	rt, err := Initialize(context.Background(), Options{ConfigFile: cfgPath})
	require.NoError(t, err)
	closed := false
	t.Cleanup(func() {
		if !closed {
			_ = rt.Close()
		}
	})
	require.NoError(t, rt.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rt.Core.WaitPoweredUp(ctx))
	require.NoError(t, rt.Core.RequestRadioPower(ctx, 7, 1))

	require.Eventually(t, func() bool {
		recs, err := rt.Journal.ListCompletions(ctx, 10)
		return err == nil && len(recs) > 0 && recs[0].Token == 7 && recs[0].Result == events.ResultSuccess
	}, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		recs, err := rt.Journal.ListChannelEvents(ctx, 10)
		return err == nil && len(recs) >= 2
	}, 3*time.Second, 20*time.Millisecond)

	_, err = Initialize(context.Background(), Options{ConfigFile: cfgPath})
	require.ErrorIs(t, err, platform.ErrModemBusy)

	require.NoError(t, rt.Close())
	closed = true

	reader, err := trace.NewReader(tracePath, trace.Filter{})
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	var frames []trace.Event
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frames = append(frames, ev)
	}
	require.NotEmpty(t, frames)
	assert.Equal(t, ipc.ClientFMT.String(), frames[0].Channel)
	assert.Equal(t, ipc.DirectionIn, frames[0].Direction)
}

func TestInitializeRejectsUnknownLogLevel(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "cfg"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))

	cfgPath := filepath.Join(dir, "rild.json")
	cfg := config.Default()
	require.NoError(t, config.Save(cfgPath, cfg))

	_, err := Initialize(context.Background(), Options{ConfigFile: cfgPath, LogLevel: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure logging")
}
