// Package genres correlates GEN_PHONE_RES acknowledgements with the
// requests that caused them.
package genres

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skobkin/rilcore/internal/dispatch"
	"github.com/skobkin/rilcore/internal/events"
	"github.com/skobkin/rilcore/internal/ipc"
)

var (
	// ErrNotExpected is returned for a response nobody registered for.
	ErrNotExpected = errors.New("generic response not expected")
	// ErrCommandMismatch is returned when the response acknowledges a different command.
	ErrCommandMismatch = errors.New("generic response command mismatch")
)

// Completer finishes caller tokens.
type Completer interface {
	CompleteToken(token events.Token, result events.Result, payload []byte)
}

// Failer fails a request that was registered to abort, by wire id.
type Failer interface {
	FailRequest(id uint8, result events.Result) bool
}

type entry struct {
	cmd   ipc.Command
	token events.Token
	abort bool
}

// Table holds one expectation per wire id. A newer registration for the
// same id replaces the old one.
type Table struct {
	logger    *slog.Logger
	completer Completer

	mu      sync.Mutex
	failer  Failer
	entries map[uint8]entry
}

func New(logger *slog.Logger, completer Completer) *Table {
	if logger == nil {
		logger = slog.Default()
	}

	return &Table{
		logger:    logger,
		completer: completer,
		entries:   make(map[uint8]entry),
	}
}

// SetFailer wires the component that owns abort-registered requests.
func (t *Table) SetFailer(f Failer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failer = f
}

// ExpectToAbort marks the response to request id as intermediate: success
// completes nothing, failure is reported to the Failer.
func (t *Table) ExpectToAbort(id uint8, cmd ipc.Command) {
	t.register(id, entry{cmd: cmd, abort: true})
}

// Expect makes the response to request id complete token.
func (t *Table) Expect(id uint8, cmd ipc.Command, token events.Token) {
	t.register(id, entry{cmd: cmd, token: token})
}

// Forget drops the expectation for id, if any.
func (t *Table) Forget(id uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len returns the number of outstanding expectations.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

func (t *Table) register(id uint8, e entry) {
	t.mu.Lock()
	old, replaced := t.entries[id]
	t.entries[id] = e
	t.mu.Unlock()

	if replaced {
		t.logger.Debug("generic response expectation replaced", "id", id, "old_cmd", old.cmd.String(), "cmd", e.cmd.String())
	}
}

func (t *Table) HandleGenPhoneRes(res dispatch.GenPhoneRes) error {
	t.mu.Lock()
	e, ok := t.entries[res.ASeq]
	if ok {
		delete(t.entries, res.ASeq)
	}
	failer := t.failer
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: aseq=%d cmd=%s", ErrNotExpected, res.ASeq, res.Command)
	}
	// A response for another command still ends the exchange for this id.
	if e.cmd != res.Command {
		t.fail(failer, e, res.ASeq)

		return fmt.Errorf("%w: aseq=%d want %s, got %s", ErrCommandMismatch, res.ASeq, e.cmd, res.Command)
	}

	if res.Success() {
		if !e.abort {
			t.completer.CompleteToken(e.token, events.ResultSuccess, nil)
		}

		return nil
	}
	t.logger.Warn("request rejected by modem", "id", res.ASeq, "cmd", res.Command.String(), "code", fmt.Sprintf("0x%04x", res.Code))
	t.fail(failer, e, res.ASeq)

	return nil
}

func (t *Table) fail(failer Failer, e entry, id uint8) {
	if !e.abort {
		t.completer.CompleteToken(e.token, events.ResultGenericFailure, nil)

		return
	}
	if failer == nil || !failer.FailRequest(id, events.ResultGenericFailure) {
		t.logger.Debug("no pending request to fail", "id", id)
	}
}
