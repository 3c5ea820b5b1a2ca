package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/skobkin/rilcore/internal/events"
)

func TestParseRadioLevel(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		none    bool
		wantErr bool
	}{
		{raw: "", none: true},
		{raw: "on", want: 1},
		{raw: " NORMAL ", want: 1},
		{raw: "off", want: 0},
		{raw: "lpm", want: 0},
		{raw: "maybe", wantErr: true},
	}

	for _, tc := range tests {
		got, err := parseRadioLevel(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.raw, err)
		}
		if tc.none {
			if got != nil {
				t.Fatalf("%q: expected no request, got %d", tc.raw, *got)
			}
			continue
		}
		if got == nil || *got != tc.want {
			t.Fatalf("%q: expected level %d, got %v", tc.raw, tc.want, got)
		}
	}
}

func TestPreviewHex(t *testing.T) {
	short := "0a0b0c"
	if got := previewHex(" " + short + " "); got != short {
		t.Fatalf("expected %q, got %q", short, got)
	}

	long := strings.Repeat("ab", maxHexPreviewLen)
	got := previewHex(long)
	if len(got) != maxHexPreviewLen+len("...") || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected preview %q", got)
	}
}

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logEvent(logger, events.Completion{Token: 9, Result: events.ResultCancelled})
	logEvent(logger, events.RadioState{Radio: "on", Power: "normal"})
	logEvent(logger, 42)

	out := buf.String()
	for _, want := range []string{"result=cancelled", "token=9", "radio=on", "payload_type=int"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
