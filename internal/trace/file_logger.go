package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/skobkin/rilcore/internal/ipc"
)

// FileLogger appends frame events to a CBOR file. It is safe for concurrent
// use by both channel read loops.
type FileLogger struct {
	session string

	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool
	errors  int
}

// NewFileLogger opens path for appending and starts a new trace session.
func NewFileLogger(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	// #nosec G304 -- path comes from the daemon configuration.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	return &FileLogger{
		session: uuid.NewString(),
		file:    f,
		encoder: newEncoder(f),
	}, nil
}

// Session returns the UUID stamped on every event of this logger.
func (l *FileLogger) Session() string {
	return l.session
}

// Log appends event. Encoding failures are counted, never returned: tracing
// must not disturb the channels.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.encoder.Encode(event); err != nil {
		l.errors++
	}
}

func (l *FileLogger) ObserveFrame(client ipc.ClientType, dir ipc.Direction, msg ipc.Message, raw []byte) {
	l.Log(NewEvent(l.session, client, dir, msg, raw))
}

// Errors returns how many events could not be written.
func (l *FileLogger) Errors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors
}

// Close is idempotent; later events are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ ipc.FrameObserver = (*FileLogger)(nil)
