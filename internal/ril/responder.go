package ril

import (
	"log/slog"
	"time"

	"github.com/skobkin/rilcore/internal/events"
)

// Responder is the outbound interface toward the telephony request layer.
type Responder interface {
	CompleteToken(token events.Token, result events.Result, payload []byte)
	Unsolicited(kind events.UnsolicitedKind, payload []byte)
}

// Publisher is the subset of the bus the core publishes on.
type Publisher interface {
	Publish(topic string, msg any)
}

// BusResponder publishes completions and unsolicited events on the bus.
type BusResponder struct {
	bus    Publisher
	logger *slog.Logger
}

func NewBusResponder(b Publisher, logger *slog.Logger) *BusResponder {
	if logger == nil {
		logger = slog.Default()
	}

	return &BusResponder{bus: b, logger: logger}
}

func (r *BusResponder) CompleteToken(token events.Token, result events.Result, payload []byte) {
	r.logger.Debug("request complete", "token", token, "result", result.String(), "payload_len", len(payload))
	r.bus.Publish(events.TopicCompletion, events.Completion{
		Token:   token,
		Result:  result,
		Payload: payload,
		At:      time.Now(),
	})
}

func (r *BusResponder) Unsolicited(kind events.UnsolicitedKind, payload []byte) {
	r.logger.Debug("unsolicited response", "kind", kind.String(), "payload_len", len(payload))
	r.bus.Publish(events.TopicUnsolicited, events.Unsolicited{
		Kind:    kind,
		Payload: payload,
		At:      time.Now(),
	})
}

// releasingResponder frees a token's wire id before passing its completion on.
type releasingResponder struct {
	tokens *Tokens
	next   Responder
}

func (r releasingResponder) CompleteToken(token events.Token, result events.Result, payload []byte) {
	r.tokens.Release(token)
	r.next.CompleteToken(token, result, payload)
}

func (r releasingResponder) Unsolicited(kind events.UnsolicitedKind, payload []byte) {
	r.next.Unsolicited(kind, payload)
}
