package agent

import "fmt"

// CallState represents the lifecycle state of a single inbound call.
type CallState int32

const (
	// StateIdle is the initial state before a call starts.
	StateIdle CallState = iota

	// StateRinging means a call is incoming and being set up.
	StateRinging

	// StateActive means the call is in progress.
	StateActive

	// StateTerminating means the call is being torn down.
	StateTerminating

	// StateEnded means the call has ended.
	StateEnded

	// StateError means the call failed and is awaiting reset.
	StateError
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRinging:
		return "Ringing"
	case StateActive:
		return "Active"
	case StateTerminating:
		return "Terminating"
	case StateEnded:
		return "Ended"
	case StateError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}
