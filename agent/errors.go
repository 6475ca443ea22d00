package agent

import "errors"

var (
	// ErrTerminationFailed indicates the termination sequence hit a
	// critical or catastrophic failure
	ErrTerminationFailed = errors.New("call termination failed")

	// ErrDisconnectTimeout indicates the room disconnect exceeded its bound
	ErrDisconnectTimeout = errors.New("room disconnect timed out")
)
