package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RoomDisconnectTimeout bounds the graceful room disconnect during
// termination. On expiry the room reference is cleared forcibly and local
// cleanup proceeds; termination never hangs on the transport.
const RoomDisconnectTimeout = 5 * time.Second

// TerminateCall runs the call teardown sequence. Partial step failures are
// collected and the call still reaches Ended with warnings; only a critical
// failure (resource cleanup and its emergency fallback both failing) or a
// catastrophic one (a panic escaping the whole sequence) returns an error,
// with the call left in the Error state.
func (a *InboundAgent) TerminateCall(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("panic: %v", r)
			a.logCallError("Catastrophic error during call termination", cause,
				slog.String("call_state", a.State().String()))
			a.setCallState(StateError, map[string]any{"error": cause.Error()})
			a.catastrophicCleanup()
			err = fmt.Errorf("%w catastrophically: %v", ErrTerminationFailed, r)
		}
	}()

	// Check-and-transition under one lock so concurrent callers cannot
	// each run the teardown sequence.
	a.mu.Lock()
	switch a.state {
	case StateEnded:
		a.mu.Unlock()
		a.logger.Warn("Call already ended, ignoring termination request")
		return nil
	case StateTerminating:
		a.mu.Unlock()
		a.logger.Warn("Call termination already in progress, ignoring request")
		return nil
	}
	oldState := a.state
	a.state = StateTerminating
	a.mu.Unlock()

	a.logger.Info("Call state changed",
		slog.String("from", oldState.String()),
		slog.String("to", StateTerminating.String()))
	a.logCallEvent("CALL_TERMINATION", map[string]string{"action": "initiating"})

	opErrors := make(map[string]string)
	critical := false

	// Step 1: end the call session timing.
	a.callSession.EndCall()
	a.logTerminationStep("session_ended", "success")

	// Step 2: end-of-call timestamp.
	a.logger.Info("Call ended", slog.String("timestamp", a.formattedTimestamp()))
	a.logTerminationStep("timestamp_logged", "success")

	// Step 3: duration analytics.
	if d, ok := a.callSession.Duration(); ok {
		a.mergeMetadata(map[string]any{"duration": d})
		a.logCallDurationSummary()
		a.logTerminationStep("duration_logged", "success")
	} else {
		a.logger.Warn("No duration data available for call termination logging")
		a.logTerminationStep("duration_logged", "no_data")
	}

	// Step 4: lifecycle summary.
	a.logCallLifecycleSummary()
	a.logTerminationStep("lifecycle_logged", "success")

	// Step 5: release the room with a bounded wait, forcing a local clear
	// when the graceful path fails.
	if derr := a.disconnectRoom(ctx); derr != nil {
		opErrors["room_disconnect"] = derr.Error()
		a.logCallError("Failed to disconnect from room", derr)
		if ferr := guard(a.forceRoomCleanup); ferr != nil {
			opErrors["room_force_cleanup"] = ferr.Error()
			a.logCallError("Failed to force clean room", ferr)
			critical = true
		} else {
			a.logTerminationStep("room_force_cleaned", "success")
		}
	} else {
		a.logTerminationStep("room_disconnected", "success")
	}

	// Step 6: clear local call resources, escalating to the emergency path
	// when a cleanup hook fails.
	if cerr := guard(a.cleanupCallResources); cerr != nil {
		opErrors["resource_cleanup"] = cerr.Error()
		a.logCallError("Failed to clean up call resources", cerr)
		if eerr := guard(a.emergencyResourceCleanup); eerr != nil {
			opErrors["emergency_cleanup"] = eerr.Error()
			a.logCallError("Emergency cleanup failed", eerr)
			critical = true
		} else {
			a.logTerminationStep("emergency_cleanup", "success")
		}
	} else {
		a.logTerminationStep("resources_cleaned", "success")
	}

	// Step 7: final state from the collected step results.
	switch {
	case len(opErrors) > 0 && critical:
		summary := fmt.Sprintf("critical termination failure: %v", opErrors)
		a.setCallState(StateError, map[string]any{
			"error":            summary,
			"operation_errors": opErrors,
		})
		a.logCallEvent("CALL_TERMINATED", map[string]string{"status": "critical_failure"})
		return fmt.Errorf("%w: %s", ErrTerminationFailed, summary)
	case len(opErrors) > 0:
		a.logger.Warn("Call terminated with partial failures", slog.Any("errors", opErrors))
		a.setCallState(StateEnded, map[string]any{"warnings": opErrors})
		a.logCallEvent("CALL_TERMINATED", map[string]string{"status": "partial_success"})
	default:
		a.setCallState(StateEnded, nil)
		a.logCallEvent("CALL_TERMINATED", map[string]string{"status": "success"})
	}
	return nil
}

func (a *InboundAgent) logTerminationStep(step, status string) {
	a.logCallEvent("TERMINATION_STEP", map[string]string{"step": step, "status": status})
}

// disconnectRoom releases the transport connection with a bounded wait and
// clears the room reference on success.
func (a *InboundAgent) disconnectRoom(ctx context.Context) error {
	a.mu.Lock()
	room := a.room
	a.mu.Unlock()

	if room == nil {
		a.logger.Debug("No room to disconnect from")
		return nil
	}

	if n := room.RemoteParticipantCount(); n > 0 {
		a.logger.Info("Disconnecting from room", slog.Int("other_participants", n))
	} else {
		a.logger.Info("Disconnecting from room (no other participants)")
	}

	dctx, cancel := context.WithTimeout(ctx, RoomDisconnectTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- guard(func() error { return room.Disconnect(dctx) })
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("room disconnect: %w", err)
		}
	case <-dctx.Done():
		a.logger.Warn("Room disconnection timed out, proceeding with forced cleanup",
			slog.Duration("timeout", RoomDisconnectTimeout))
		return fmt.Errorf("%w after %s", ErrDisconnectTimeout, RoomDisconnectTimeout)
	}

	a.mu.Lock()
	a.room = nil
	a.mu.Unlock()

	a.logger.Info("Disconnected from room")
	a.logger.Debug("Cleared room reference")
	return nil
}

// forceRoomCleanup clears the room reference when the graceful disconnect
// failed or timed out.
func (a *InboundAgent) forceRoomCleanup() error {
	a.logger.Info("Performing forced room cleanup")
	a.mu.Lock()
	a.room = nil
	a.mu.Unlock()
	a.logger.Info("Forced room cleanup completed")
	return nil
}

// cleanupCallResources resets call flags, clears metadata and runs the
// registered cleanup hooks. Hooks that fail are remembered so the emergency
// path can retry them.
func (a *InboundAgent) cleanupCallResources() error {
	a.mu.Lock()
	hooks := a.cleanupHooks
	a.mu.Unlock()

	var failed []func() error
	var errs []error
	for _, hook := range hooks {
		if err := guard(hook); err != nil {
			failed = append(failed, hook)
			errs = append(errs, err)
		}
	}

	a.mu.Lock()
	a.isSpeaking = false
	a.isListening = false
	a.metadata = make(map[string]any)
	a.failedHooks = failed
	a.mu.Unlock()

	return errors.Join(errs...)
}

// emergencyResourceCleanup retries the failed cleanup hooks once and resets
// every tracked field individually. A hook failing again here makes the
// termination failure critical.
func (a *InboundAgent) emergencyResourceCleanup() error {
	a.logger.Info("Performing emergency resource cleanup")

	a.mu.Lock()
	failed := a.failedHooks
	a.failedHooks = nil
	a.mu.Unlock()

	var errs []error
	for _, hook := range failed {
		if err := guard(hook); err != nil {
			errs = append(errs, err)
		}
	}

	a.mu.Lock()
	a.isSpeaking = false
	a.isListening = false
	a.metadata = make(map[string]any)
	a.session = nil
	a.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("emergency cleanup: %w", errors.Join(errs...))
	}
	a.logger.Info("Emergency resource cleanup completed")
	return nil
}

// catastrophicCleanup is the last resort when the termination sequence
// panics: clear every tracked field, each individually guarded so one
// failure cannot block another.
func (a *InboundAgent) catastrophicCleanup() {
	a.logger.Error("Performing catastrophic failure cleanup")

	_ = guard(func() error {
		a.mu.Lock()
		a.room = nil
		a.mu.Unlock()
		return nil
	})
	_ = guard(func() error {
		a.mu.Lock()
		a.session = nil
		a.mu.Unlock()
		return nil
	})
	_ = guard(func() error {
		a.mu.Lock()
		a.isSpeaking = false
		a.isListening = false
		a.mu.Unlock()
		return nil
	})
	_ = guard(func() error {
		a.callSession.Reset()
		return nil
	})
	_ = guard(func() error {
		a.mu.Lock()
		a.metadata = make(map[string]any)
		a.mu.Unlock()
		return nil
	})

	a.logger.Error("Catastrophic failure cleanup completed")
}
