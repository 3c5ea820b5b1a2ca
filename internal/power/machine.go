package power

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skobkin/rilcore/internal/events"
	"github.com/skobkin/rilcore/internal/ipc"
)

// ErrUnknownPowerState is returned for power state reports the machine does not model.
var ErrUnknownPowerState = errors.New("unknown power state report")

// Sender writes to the FMT channel.
type Sender interface {
	Send(msg ipc.Message) error
}

// Responder delivers results to the request layer.
type Responder interface {
	CompleteToken(token events.Token, result events.Result, payload []byte)
	Unsolicited(kind events.UnsolicitedKind, payload []byte)
}

// Expecter is told that the generic response to a request is only an
// intermediate step and must not complete the caller's token.
type Expecter interface {
	ExpectToAbort(id uint8, cmd ipc.Command)
}

// TokenIDs maps caller tokens to the one byte sequence number used on the wire.
type TokenIDs interface {
	IDOf(token events.Token) (uint8, error)
}

// OutstandingChecker re-evaluates requests parked until the radio reaches some state.
type OutstandingChecker interface {
	CheckOutstanding(s Snapshot)
}

// StateListener observes every applied transition.
type StateListener interface {
	RadioStateChanged(s Snapshot)
}

// Deps wires a Machine to its collaborators. Checker and Listener are optional.
type Deps struct {
	Logger    *slog.Logger
	Sender    Sender
	Responder Responder
	Expecter  Expecter
	IDs       TokenIDs
	Checker   OutstandingChecker
	Listener  StateListener
	Gate      *Gate
}

type pendingToken struct {
	token events.Token
	id    uint8
}

// Machine tracks radio and modem power state. Handlers run on the FMT read
// loop; RequestRadioPower runs on the caller's goroutine.
type Machine struct {
	deps   Deps
	logger *slog.Logger

	mu      sync.Mutex
	radio   RadioState
	power   State
	pending *pendingToken
}

func NewMachine(deps Deps) *Machine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Gate == nil {
		deps.Gate = NewGate()
	}

	return &Machine{
		deps:   deps,
		logger: logger,
		radio:  RadioOff,
		power:  StateUnknown,
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{Radio: m.radio, Power: m.power}
}

// Pending returns the token of the in-flight power request, if any.
func (m *Machine) Pending() (events.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return 0, false
	}

	return m.pending.token, true
}

func (m *Machine) Gate() *Gate {
	return m.deps.Gate
}

// PhonePowerUp handles the modem's power-up notification. The modem is up
// but still in LPM, so the radio is OFF. Listeners are not broadcast to; the
// startup gate is released.
func (m *Machine) PhonePowerUp() {
	m.logger.Debug("modem powered up")

	m.mu.Lock()
	m.radio = RadioOff
	m.power = StateLPM
	snap := Snapshot{Radio: m.radio, Power: m.power}
	m.mu.Unlock()

	m.notifyListener(snap)
	m.deps.Gate.Release()
}

// PhoneReset handles a modem reset: the radio is OFF and callers are told.
func (m *Machine) PhoneReset() {
	m.logger.Info("modem reset")

	m.mu.Lock()
	m.radio = RadioOff
	snap := Snapshot{Radio: m.radio, Power: m.power}
	m.mu.Unlock()

	m.notifyListener(snap)
	m.broadcast()
}

// LinkLost marks the radio unavailable after the FMT channel went down. A
// pending power request can no longer be answered and fails.
func (m *Machine) LinkLost() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.radio = RadioUnavailable
	m.power = StateUnknown
	snap := Snapshot{Radio: m.radio, Power: m.power}
	m.mu.Unlock()

	m.logger.Warn("modem link lost")
	if pending != nil {
		m.deps.Responder.CompleteToken(pending.token, events.ResultRadioNotAvailable, nil)
	}
	m.notifyListener(snap)
	m.broadcast()
}

// PhoneState handles the modem's power mode report.
func (m *Machine) PhoneState(value uint8) error {
	switch value {
	case ipc.PwrReport(ipc.PwrPhoneStateLPM):
		m.logger.Debug("got power to LPM")
		m.apply(RadioOff, StateLPM)
	case ipc.PwrReport(ipc.PwrPhoneStateNormal):
		m.logger.Debug("got power to NORMAL")
		m.apply(RadioSimNotReady, StateNormal)
	default:
		return fmt.Errorf("%w: 0x%02x", ErrUnknownPowerState, value)
	}

	if m.deps.Checker != nil {
		m.deps.Checker.CheckOutstanding(m.Snapshot())
	}

	return nil
}

func (m *Machine) apply(radio RadioState, power State) {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.radio = radio
	m.power = power
	snap := Snapshot{Radio: radio, Power: power}
	m.mu.Unlock()

	if pending != nil {
		m.deps.Responder.CompleteToken(pending.token, events.ResultSuccess, nil)
	}
	m.notifyListener(snap)
	m.broadcast()
}

// RequestRadioPower asks the modem for NORMAL mode when level > 0 and LPM
// otherwise. The token completes when the modem reports the new mode.
func (m *Machine) RequestRadioPower(ctx context.Context, token events.Token, level int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := m.deps.IDs.IDOf(token)
	if err != nil {
		m.deps.Responder.CompleteToken(token, events.ResultGenericFailure, nil)

		return fmt.Errorf("resolve token id: %w", err)
	}

	value := ipc.PwrPhoneStateLPM
	if level > 0 {
		m.logger.Debug("request power to NORMAL", "level", level, "id", id)
		value = ipc.PwrPhoneStateNormal
	} else {
		m.logger.Debug("request power to LPM", "level", level, "id", id)
	}

	// Register before sending: the modem may answer before Send returns.
	m.mu.Lock()
	superseded := m.pending
	m.pending = &pendingToken{token: token, id: id}
	m.mu.Unlock()
	if superseded != nil {
		m.logger.Warn("power request superseded by a newer one", "token", superseded.token, "id", superseded.id)
		m.deps.Responder.CompleteToken(superseded.token, events.ResultCancelled, nil)
	}

	m.deps.Expecter.ExpectToAbort(id, ipc.PwrPhoneState)

	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, value)
	if err := m.deps.Sender.Send(ipc.Message{
		Command: ipc.PwrPhoneState,
		Type:    ipc.TypeExec,
		MSeq:    id,
		Data:    data,
	}); err != nil {
		m.FailRequest(id, events.ResultRadioNotAvailable)

		return fmt.Errorf("send power state request: %w", err)
	}

	return nil
}

// FailRequest completes the pending power request with result if its wire
// id matches. It reports whether a request was completed.
func (m *Machine) FailRequest(id uint8, result events.Result) bool {
	m.mu.Lock()
	pending := m.pending
	if pending == nil || pending.id != id {
		m.mu.Unlock()

		return false
	}
	m.pending = nil
	m.mu.Unlock()

	m.logger.Warn("power request failed", "token", pending.token, "id", id, "result", result.String())
	m.deps.Responder.CompleteToken(pending.token, result, nil)

	return true
}

func (m *Machine) broadcast() {
	m.deps.Responder.Unsolicited(events.UnsolRadioStateChanged, nil)
}

func (m *Machine) notifyListener(s Snapshot) {
	if m.deps.Listener != nil {
		m.deps.Listener.RadioStateChanged(s)
	}
}
