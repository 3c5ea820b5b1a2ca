package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skobkin/rilcore/internal/app"
	"github.com/skobkin/rilcore/internal/bus"
	"github.com/skobkin/rilcore/internal/events"
	"github.com/skobkin/rilcore/internal/transport"
)

const (
	powerUpTimeout   = 30 * time.Second
	maxHexPreviewLen = 64
	// radioToken is the token used for the -radio request issued at startup.
	radioToken events.Token = 1
)

func main() {
	if err := run(); err != nil {
		slog.Error("run rild", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file (.json, .yaml or .yml)")
	logLevel := flag.String("log-level", "", "override logging.level")
	radio := flag.String("radio", "", "radio power to request once the modem is up: on, off")
	watchFrames := flag.Bool("watch-frames", false, "log every frame moved on the channels")
	noLock := flag.Bool("no-lock", false, "do not take the modem ownership lock")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	clearJournal := flag.Bool("clear-journal", false, "empty the state journal and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(app.Banner())
		return nil
	}
	if *listPorts {
		return printPorts()
	}
	level, err := parseRadioLevel(*radio)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Initialize(ctx, app.Options{
		ConfigFile: *configPath,
		LogLevel:   *logLevel,
		SkipLock:   *noLock || *clearJournal,
	})
	if err != nil {
		return fmt.Errorf("initialize runtime: %w", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Warn("close runtime", "error", closeErr)
		}
	}()

	if *clearJournal {
		return rt.ClearJournal()
	}

	logger := rt.LogManager.Logger("cli")
	watch(ctx, rt.Bus, logger, *watchFrames)

	if err := rt.Start(); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	if level != nil {
		go requestRadio(ctx, rt, logger, *level)
	}

	logger.Info("running until interrupt")
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-rt.Core.Failed():
		return fmt.Errorf("channel failed: %w", err)
	}
}

func requestRadio(ctx context.Context, rt *app.Runtime, logger *slog.Logger, level int) {
	waitCtx, cancel := context.WithTimeout(ctx, powerUpTimeout)
	defer cancel()
	if err := rt.Core.WaitPoweredUp(waitCtx); err != nil {
		logger.Warn("modem did not report power up", "error", err)
		return
	}
	if err := rt.Core.RequestRadioPower(ctx, radioToken, level); err != nil {
		logger.Warn("request radio power", "level", level, "error", err)
		return
	}
	logger.Info("radio power requested", "level", level)
}

// parseRadioLevel maps the -radio flag to a power request level; nil means
// no request.
func parseRadioLevel(raw string) (*int, error) {
	var level int
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return nil, nil
	case "on", "normal":
		level = 1
	case "off", "lpm":
		level = 0
	default:
		return nil, fmt.Errorf("unsupported -radio value %q: want on or off", raw)
	}

	return &level, nil
}

func printPorts() error {
	ports, err := transport.ListSerialPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}

	return nil
}

func watch(ctx context.Context, b bus.MessageBus, logger *slog.Logger, frames bool) {
	topics := []string{
		events.TopicRadioState,
		events.TopicCompletion,
		events.TopicUnsolicited,
		events.TopicTokensCheck,
		events.TopicChannel,
	}
	if frames {
		topics = append(topics, events.TopicFrameIn, events.TopicFrameOut)
	}
	sub := b.Subscribe(topics...)

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.Unsubscribe(sub, topics...)
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				logEvent(logger, raw)
			}
		}
	}()
}

func logEvent(logger *slog.Logger, raw any) {
	switch ev := raw.(type) {
	case events.RadioState:
		logger.Info("radio state", "radio", ev.Radio, "power", ev.Power)
	case events.Completion:
		logger.Info("completion", "token", ev.Token, "result", ev.Result.String(), "payload_len", len(ev.Payload))
	case events.Unsolicited:
		logger.Info("unsolicited", "kind", ev.Kind.String())
	case events.TokensCheck:
		logger.Debug("tokens check", "radio", ev.Radio, "power", ev.Power)
	case events.ChannelStatus:
		logger.Info("channel", "channel", ev.Channel, "state", ev.State, "error", ev.Err)
	case events.RawFrame:
		logger.Info("frame", "channel", ev.Channel, "command", ev.Command, "len", ev.Len, "hex", previewHex(ev.Hex))
	default:
		logger.Debug("unexpected bus payload", "payload_type", fmt.Sprintf("%T", raw))
	}
}

func previewHex(hex string) string {
	hex = strings.TrimSpace(hex)
	if len(hex) <= maxHexPreviewLen {
		return hex
	}
	return hex[:maxHexPreviewLen] + "..."
}
