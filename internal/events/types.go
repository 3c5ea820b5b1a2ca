// Package events holds the payloads published on the bus toward the
// telephony request layer.
package events

import (
	"fmt"
	"time"
)

// Token is the caller's opaque handle for one request.
type Token uint64

// Result is the completion status reported for a token.
type Result int

const (
	ResultSuccess           Result = 0
	ResultRadioNotAvailable Result = 1
	ResultGenericFailure    Result = 2
	ResultCancelled         Result = 7
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultRadioNotAvailable:
		return "radio_not_available"
	case ResultGenericFailure:
		return "generic_failure"
	case ResultCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// UnsolicitedKind identifies an unsolicited event pushed to callers.
type UnsolicitedKind int

const (
	UnsolRadioStateChanged UnsolicitedKind = 1000
)

func (k UnsolicitedKind) String() string {
	if k == UnsolRadioStateChanged {
		return "radio_state_changed"
	}

	return fmt.Sprintf("unsol(%d)", int(k))
}

// Completion finishes a caller request.
type Completion struct {
	Token   Token
	Result  Result
	Payload []byte
	At      time.Time
}

// Unsolicited is a broadcast without a matching request.
type Unsolicited struct {
	Kind    UnsolicitedKind
	Payload []byte
	At      time.Time
}

// RadioState is a snapshot of the radio after a power transition.
type RadioState struct {
	Radio string
	Power string
	At    time.Time
}

// TokensCheck asks deferred request handlers to re-evaluate against the current radio state.
type TokensCheck struct {
	Radio string
	Power string
}

// ChannelState describes a channel lifecycle change.
type ChannelState string

const (
	ChannelStateUp   ChannelState = "up"
	ChannelStateDown ChannelState = "down"
)

// ChannelStatus is published when a channel comes up or its read loop ends.
type ChannelStatus struct {
	Channel   string
	State     ChannelState
	Err       string
	Timestamp time.Time
}

// RawFrame carries frame diagnostics for debug output.
type RawFrame struct {
	Channel string
	Command string
	Hex     string
	Len     int
}
