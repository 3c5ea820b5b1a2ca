// Package power reconciles modem power notifications with radio power
// requests and owns the radio state seen by callers.
package power

import "fmt"

// RadioState is the consumer-visible radio state.
type RadioState int

const (
	RadioOff RadioState = iota
	RadioUnavailable
	RadioSimNotReady
	RadioSimLockedOrAbsent
	RadioSimReady
)

func (s RadioState) String() string {
	switch s {
	case RadioOff:
		return "off"
	case RadioUnavailable:
		return "unavailable"
	case RadioSimNotReady:
		return "sim_not_ready"
	case RadioSimLockedOrAbsent:
		return "sim_locked_or_absent"
	case RadioSimReady:
		return "sim_ready"
	default:
		return fmt.Sprintf("radio(%d)", int(s))
	}
}

// State is the modem hardware power mode.
type State int

const (
	StateUnknown State = iota
	// StateLPM is low power mode, airplane mode for instance.
	StateLPM
	StateNormal
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateLPM:
		return "lpm"
	case StateNormal:
		return "normal"
	default:
		return fmt.Sprintf("power(%d)", int(s))
	}
}

// Snapshot is a consistent view of both state axes.
type Snapshot struct {
	Radio RadioState
	Power State
}
