package trace

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/skobkin/rilcore/internal/ipc"
)

// Filter selects events; zero fields match everything.
type Filter struct {
	Session   string
	Channel   string
	Direction *ipc.Direction
	Command   *uint16
}

func (f Filter) matches(e Event) bool {
	if f.Session != "" && e.Session != f.Session {
		return false
	}
	if f.Channel != "" && e.Channel != f.Channel {
		return false
	}
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	if f.Command != nil && e.Command != *f.Command {
		return false
	}
	return true
}

// Reader streams events from a trace file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

func NewReader(path string, filter Filter) (*Reader, error) {
	// #nosec G304 -- path is given by the operator.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &Reader{file: f, decoder: newDecoder(f), filter: filter}, nil
}

// Next returns the next matching event or io.EOF.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.decoder.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("decode trace event: %w", err)
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

func (r *Reader) Close() error {
	return r.file.Close()
}
