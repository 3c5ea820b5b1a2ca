//go:build linux

package ril

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/skobkin/rilcore/internal/bus"
	"github.com/skobkin/rilcore/internal/events"
	"github.com/skobkin/rilcore/internal/ipc"
	"github.com/skobkin/rilcore/internal/modemsim"
	"github.com/skobkin/rilcore/internal/power"
	"github.com/skobkin/rilcore/internal/rfs"
	"github.com/skobkin/rilcore/internal/transport"
)

const waitTimeout = 5 * time.Second

type harness struct {
	core  *Core
	modem *modemsim.Modem
	bus   *bus.PubSubBus

	completions bus.Subscription
	unsolicited bus.Subscription
	states      bus.Subscription
	channels    bus.Subscription

	fmtPeer *os.File
}

// pipe returns the host end as a transport and the modem end as a pollable file.
func pipe(t *testing.T, name string) (*transport.FileTransport, *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[1], true))

	return transport.NewFileTransport(name, os.NewFile(uintptr(fds[0]), name)), os.NewFile(uintptr(fds[1]), name+"-modem")
}

func newHarness(t *testing.T, opts modemsim.Options) *harness {
	t.Helper()

	b := bus.New(nil)
	t.Cleanup(b.Close)

	store, err := rfs.OpenFileStore(filepath.Join(t.TempDir(), "nv_data.bin"), 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fmtHost, fmtPeer := pipe(t, "fmt")
	rfsHost, rfsPeer := pipe(t, "rfs")

	core, err := New(Options{
		Bus:         b,
		FMT:         ipc.Backend{NewTransport: func() (transport.Transport, error) { return fmtHost, nil }},
		RFS:         ipc.Backend{NewTransport: func() (transport.Transport, error) { return rfsHost, nil }},
		NVStore:     store,
		DestroyWait: time.Second,
	})
	require.NoError(t, err)

	h := &harness{
		core:        core,
		modem:       modemsim.New(opts),
		bus:         b,
		completions: b.Subscribe(events.TopicCompletion),
		unsolicited: b.Subscribe(events.TopicUnsolicited),
		states:      b.Subscribe(events.TopicRadioState),
		channels:    b.Subscribe(events.TopicChannel),
		fmtPeer:     fmtPeer,
	}

	ctx, cancel := context.WithCancel(context.Background())
	fmtDone := make(chan struct{})
	rfsDone := make(chan struct{})
	go func() {
		defer close(fmtDone)
		_ = h.modem.ServeFMT(ctx, fmtPeer)
	}()
	go func() {
		defer close(rfsDone)
		_ = h.modem.ServeRFS(ctx, rfsPeer)
	}()
	t.Cleanup(func() {
		_ = core.Close(context.Background())
		cancel()
		<-fmtDone
		<-rfsDone
	})

	require.NoError(t, core.Start(context.Background()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), waitTimeout)
	defer waitCancel()
	require.NoError(t, core.WaitPoweredUp(waitCtx))

	return h
}

func next[T any](t *testing.T, sub bus.Subscription) T {
	t.Helper()
	select {
	case raw := <-sub:
		v, ok := raw.(T)
		require.True(t, ok, "unexpected payload %T", raw)
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %T", *new(T))
		panic("unreachable")
	}
}

func assertQuiet(t *testing.T, sub bus.Subscription) {
	t.Helper()
	select {
	case raw := <-sub:
		t.Fatalf("unexpected event %#v", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPowerUpLeavesRadioOffWithoutBroadcast(t *testing.T) {
	h := newHarness(t, modemsim.Options{})

	assert.Equal(t, power.Snapshot{Radio: power.RadioOff, Power: power.StateLPM}, h.core.Snapshot())
	state := next[events.RadioState](t, h.states)
	assert.Equal(t, "off", state.Radio)
	assertQuiet(t, h.unsolicited)
}

func TestRadioPowerNormalThenLPM(t *testing.T) {
	h := newHarness(t, modemsim.Options{})
	ctx := context.Background()

	require.NoError(t, h.core.RequestRadioPower(ctx, 0x21, 1))

	done := next[events.Completion](t, h.completions)
	assert.Equal(t, events.Token(0x21), done.Token)
	assert.Equal(t, events.ResultSuccess, done.Result)
	unsol := next[events.Unsolicited](t, h.unsolicited)
	assert.Equal(t, events.UnsolRadioStateChanged, unsol.Kind)
	assert.Equal(t, power.Snapshot{Radio: power.RadioSimNotReady, Power: power.StateNormal}, h.core.Snapshot())
	assert.Zero(t, h.core.Tokens().Len())

	seen := h.modem.Seen()
	require.Len(t, seen, 1)
	assert.Equal(t, ipc.TypeExec, seen[0].Type)
	assert.Equal(t, []byte{0x02, 0x02}, seen[0].Data)

	require.NoError(t, h.core.RequestRadioPower(ctx, 0x42, 0))
	done = next[events.Completion](t, h.completions)
	assert.Equal(t, events.Token(0x42), done.Token)
	assert.Equal(t, events.ResultSuccess, done.Result)
	next[events.Unsolicited](t, h.unsolicited)
	assert.Equal(t, power.Snapshot{Radio: power.RadioOff, Power: power.StateLPM}, h.core.Snapshot())
	assert.Equal(t, ipc.PwrPhoneStateLPM, h.modem.Mode())
	assertQuiet(t, h.unsolicited)
}

func TestRejectedPowerRequestFailsToken(t *testing.T) {
	h := newHarness(t, modemsim.Options{RejectPower: true})

	require.NoError(t, h.core.RequestRadioPower(context.Background(), 5, 1))

	done := next[events.Completion](t, h.completions)
	assert.Equal(t, events.Token(5), done.Token)
	assert.Equal(t, events.ResultGenericFailure, done.Result)
	assert.Equal(t, power.StateLPM, h.core.Snapshot().Power)
	_, pending := h.core.power.Pending()
	assert.False(t, pending)
	assertQuiet(t, h.unsolicited)
}

func TestUnknownPowerReportIsIgnored(t *testing.T) {
	h := newHarness(t, modemsim.Options{})

	require.NoError(t, h.modem.ReportPowerState(0x7f))
	require.NoError(t, h.modem.PhoneReset())

	// The reset is the only broadcast; the unknown report changed nothing before it.
	unsol := next[events.Unsolicited](t, h.unsolicited)
	assert.Equal(t, events.UnsolRadioStateChanged, unsol.Kind)
	assertQuiet(t, h.unsolicited)
	assert.Equal(t, power.Snapshot{Radio: power.RadioOff, Power: power.StateLPM}, h.core.Snapshot())
}

func TestSendWithTokenCompletesOnGenericResponse(t *testing.T) {
	h := newHarness(t, modemsim.Options{})

	require.NoError(t, h.core.Send(ipc.ClientFMT, ipc.PwrPhonePwrOff, ipc.TypeExec, nil, 77))

	done := next[events.Completion](t, h.completions)
	assert.Equal(t, events.Token(77), done.Token)
	assert.Equal(t, events.ResultSuccess, done.Result)
	assert.Zero(t, h.core.Tokens().Len())
}

func TestRFSSendWithTokenReleasesID(t *testing.T) {
	h := newHarness(t, modemsim.Options{})

	for tok := events.Token(1000); tok < 1300; tok++ {
		require.NoError(t, h.core.Send(ipc.ClientRFS, 0x10, 0, nil, tok))
		done := next[events.Completion](t, h.completions)
		assert.Equal(t, tok, done.Token)
		assert.Equal(t, events.ResultSuccess, done.Result)
	}
	assert.Zero(t, h.core.Tokens().Len())

	require.NoError(t, h.core.Send(ipc.ClientFMT, ipc.PwrPhonePwrOff, ipc.TypeExec, nil, 5))
	done := next[events.Completion](t, h.completions)
	assert.Equal(t, events.Token(5), done.Token)
	assert.Equal(t, events.ResultSuccess, done.Result)
	assert.Zero(t, h.core.Tokens().Len())
}

func TestNVDataOverRFS(t *testing.T) {
	h := newHarness(t, modemsim.Options{})
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	require.NoError(t, h.modem.WriteNV(ctx, 10, []byte("imei")))
	data, err := h.modem.ReadNV(ctx, 8, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 'i', 'm', 'e', 'i', 0, 0}, data)

	_, err = h.modem.ReadNV(ctx, 60, 8)
	require.Error(t, err)
}

func TestFMTLinkLossIsReported(t *testing.T) {
	h := newHarness(t, modemsim.Options{})
	next[events.ChannelStatus](t, h.channels)
	next[events.ChannelStatus](t, h.channels)

	require.NoError(t, h.fmtPeer.Close())

	select {
	case err := <-h.core.Failed():
		require.Error(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("link loss not reported")
	}
	status := next[events.ChannelStatus](t, h.channels)
	assert.Equal(t, "fmt", status.Channel)
	assert.Equal(t, events.ChannelStateDown, status.State)
	assert.NotEmpty(t, status.Err)
	assert.Equal(t, power.RadioUnavailable, h.core.Snapshot().Radio)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t, modemsim.Options{})

	require.NoError(t, h.core.Close(context.Background()))
	require.NoError(t, h.core.Close(context.Background()))

	err := h.core.Send(ipc.ClientFMT, ipc.PwrPhonePwrOff, ipc.TypeExec, nil, 9)
	require.ErrorIs(t, err, ErrClosed)
	done := next[events.Completion](t, h.completions)
	assert.Equal(t, events.ResultRadioNotAvailable, done.Result)
	require.ErrorIs(t, h.core.Start(context.Background()), ErrClosed)
}

func TestStartFailureTearsDown(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()
	openErr := errors.New("no modem")

	core, err := New(Options{
		Bus: b,
		FMT: ipc.Backend{NewTransport: func() (transport.Transport, error) { return nil, openErr }},
		RFS: ipc.Backend{NewTransport: func() (transport.Transport, error) { return nil, openErr }},
	})
	require.NoError(t, err)

	err = core.Start(context.Background())
	require.ErrorIs(t, err, openErr)
	require.NoError(t, core.Close(context.Background()))
}

func TestNewRequiresOutput(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}
