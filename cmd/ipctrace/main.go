package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/skobkin/rilcore/internal/ipc"
	"github.com/skobkin/rilcore/internal/trace"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("run ipctrace", "error", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ipctrace", flag.ContinueOnError)
	session := fs.String("session", "", "only events of this session UUID")
	channel := fs.String("channel", "", "only events of this channel: fmt, rfs")
	dir := fs.String("dir", "", "only events in this direction: in, out")
	command := fs.String("cmd", "", "only this command, by name or code (PWR_PHONE_STATE, 0x0107)")
	sessions := fs.Bool("sessions", false, "list session ids with event counts instead of events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ipctrace [flags] <trace file>")
	}

	filter, err := buildFilter(*session, *channel, *dir, *command)
	if err != nil {
		return err
	}

	reader, err := trace.NewReader(fs.Arg(0), filter)
	if err != nil {
		return err
	}
	defer func() {
		_ = reader.Close()
	}()

	if *sessions {
		return printSessions(reader, out)
	}

	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, trace.Format(ev)); err != nil {
			return err
		}
	}
}

func buildFilter(session, channel, dir, command string) (trace.Filter, error) {
	filter := trace.Filter{Session: strings.TrimSpace(session)}

	switch c := strings.ToLower(strings.TrimSpace(channel)); c {
	case "":
	case ipc.ClientFMT.String(), ipc.ClientRFS.String():
		filter.Channel = c
	default:
		return trace.Filter{}, fmt.Errorf("unknown channel %q", channel)
	}

	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "":
	case ipc.DirectionIn.String():
		d := ipc.DirectionIn
		filter.Direction = &d
	case ipc.DirectionOut.String():
		d := ipc.DirectionOut
		filter.Direction = &d
	default:
		return trace.Filter{}, fmt.Errorf("unknown direction %q", dir)
	}

	if strings.TrimSpace(command) != "" {
		cmd, err := ipc.ParseCommand(command)
		if err != nil {
			return trace.Filter{}, err
		}
		code := uint16(cmd)
		filter.Command = &code
	}

	return filter, nil
}

func printSessions(reader *trace.Reader, out io.Writer) error {
	var order []string
	counts := map[string]int{}
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if _, seen := counts[ev.Session]; !seen {
			order = append(order, ev.Session)
		}
		counts[ev.Session]++
	}
	for _, s := range order {
		if _, err := fmt.Fprintf(out, "%s %d\n", s, counts[s]); err != nil {
			return err
		}
	}

	return nil
}
