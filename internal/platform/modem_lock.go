package platform

import (
	"errors"
	"strings"
)

// ErrModemBusy indicates another process already owns the modem channels.
var ErrModemBusy = errors.New("modem already owned by another process")

// ErrModemLockUnsupported indicates the current platform has no lock backend implementation.
var ErrModemLockUnsupported = errors.New("modem lock unsupported")

// ModemLock represents exclusive ownership of one modem's IPC channels.
type ModemLock interface {
	Path() string
	Release() error
}

// AcquireModemLock takes a non-blocking exclusive lock keyed by the daemon
// name and the FMT channel location. The lock file records the owner pid.
func AcquireModemLock(name, channel string) (ModemLock, error) {
	return acquireModemLock(
		normalizeLockComponent(name, "rild"),
		normalizeLockComponent(channel, "modem"),
	)
}

func normalizeLockComponent(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	normalized := strings.Trim(b.String(), "_-.")
	if normalized == "" {
		return fallback
	}

	return normalized
}
