package app

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
)

func BuildVersion() string {
	version := strings.TrimSpace(Version)
	if version == "" {
		return "dev"
	}

	return version
}

func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		return ""
	}

	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.Format("2006-01-02")
	}

	if len(raw) >= len("2006-01-02") {
		date := raw[:len("2006-01-02")]
		if _, err := time.Parse("2006-01-02", date); err == nil {
			return date
		}
	}

	return raw
}

// BuildRevision returns the short VCS revision stamped by the Go toolchain.
func BuildRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}

	return revisionFromSettings(info.Settings)
}

func revisionFromSettings(settings []debug.BuildSetting) string {
	var rev string
	dirty := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "+dirty"
	}

	return rev
}

// Banner is the one-line identification printed by -version and logged at startup.
func Banner() string {
	out := Name + " " + BuildVersion()
	if buildDate := BuildDateYMD(); buildDate != "" {
		out = fmt.Sprintf("%s (%s)", out, buildDate)
	}
	if rev := BuildRevision(); rev != "" {
		out += " rev " + rev
	}

	return out
}
