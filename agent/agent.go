// Package agent implements the inbound call agent: a per-call state machine
// (Idle → Ringing → Active → Terminating → Ended/Error) that tracks call
// timing, watches user speech for termination phrases, and sequences call
// teardown against the room transport.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raseniero/lk-golf-mobil-business-inbound-call-agent/termination"
)

// SpeechSession is the voice-output collaborator for a call. GenerateReply
// asks the model pipeline to produce and speak the next turn; Say speaks an
// explicit utterance without involving the model.
type SpeechSession interface {
	GenerateReply(ctx context.Context) error
	Say(ctx context.Context, text string) error
}

// RoomConnection is the live transport connection for a call. Disconnect
// must honor context cancellation; the agent bounds it with a timeout during
// termination.
type RoomConnection interface {
	Disconnect(ctx context.Context) error
	RemoteParticipantCount() int
}

// Config holds configuration for creating an InboundAgent.
type Config struct {
	// TerminationPhrases overrides the default phrase set. Nil or empty
	// keeps the defaults.
	TerminationPhrases []string

	// Session is the voice-output collaborator. Optional; without it the
	// agent tracks call state but produces no speech.
	Session SpeechSession

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// InboundAgent handles the lifecycle of one inbound call. The host framework
// drives it through OnEnter, OnUserInput and OnDisconnect; the agent owns the
// call state, timing and termination sequencing in between.
type InboundAgent struct {
	logger      *slog.Logger
	detector    *termination.Detector
	callSession *CallSession

	mu           sync.Mutex
	session      SpeechSession
	room         RoomConnection
	state        CallState
	metadata     map[string]any
	isSpeaking   bool
	isListening  bool
	cleanupHooks []func() error
	failedHooks  []func() error
}

// New creates an InboundAgent in the Idle state.
func New(cfg Config) *InboundAgent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &InboundAgent{
		logger:      logger,
		detector:    termination.NewDetector(cfg.TerminationPhrases),
		callSession: NewCallSession(),
		session:     cfg.Session,
		state:       StateIdle,
		metadata:    make(map[string]any),
	}
}

// State returns the current call state.
func (a *InboundAgent) State() CallState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Metadata returns a copy of the accumulated call metadata.
func (a *InboundAgent) Metadata() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]any, len(a.metadata))
	for k, v := range a.metadata {
		out[k] = v
	}
	return out
}

// CallSession exposes the call timing tracker.
func (a *InboundAgent) CallSession() *CallSession {
	return a.callSession
}

// SetRoom attaches the transport connection for the current call.
func (a *InboundAgent) SetRoom(room RoomConnection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.room = room
}

// Room returns the attached transport connection, nil after teardown.
func (a *InboundAgent) Room() RoomConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.room
}

// IsListening reports whether the agent is accepting user speech.
func (a *InboundAgent) IsListening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isListening
}

// OnCleanup registers a resource releaser to run during call teardown.
// Hooks run in registration order; a failing hook is retried once by the
// emergency cleanup path before the failure is treated as critical.
func (a *InboundAgent) OnCleanup(hook func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupHooks = append(a.cleanupHooks, hook)
}

// Reset returns an agent in the Ended or Error state back to Idle so the
// instance can serve another call.
func (a *InboundAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateIdle
	a.metadata = make(map[string]any)
	a.isSpeaking = false
	a.isListening = false
	a.callSession.Reset()
}

// OnEnter is called when the agent enters a call. It starts call timing,
// transitions Ringing → Active and requests the initial greeting. A setup
// failure moves the call to Error and is returned to the framework.
func (a *InboundAgent) OnEnter(ctx context.Context) error {
	a.setCallState(StateRinging, nil)

	a.callSession.StartCall()
	a.logger.Info("Call started", slog.String("timestamp", a.formattedTimestamp()))

	a.mu.Lock()
	a.isSpeaking = false
	a.isListening = true
	session := a.session
	a.mu.Unlock()

	a.setCallState(StateActive, nil)

	if session != nil {
		if err := guard(func() error { return session.GenerateReply(ctx) }); err != nil {
			a.logCallError("Error during call setup", err)
			a.setCallState(StateError, map[string]any{"error": err.Error()})
			return fmt.Errorf("call setup: %w", err)
		}
	}
	return nil
}

// OnUserInput processes recognized utterance text. Termination phrases start
// the teardown sequence; all other input is answered through the speech
// session. Failures are logged but never propagate to the framework.
func (a *InboundAgent) OnUserInput(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	if a.logger.Enabled(ctx, slog.LevelDebug) {
		a.logger.Debug("Processing user input", slog.String("input_text", text))
	}

	if phrase, ok := a.detector.Detect(text); ok {
		a.logCallEvent("PHRASE_DETECTED", map[string]string{
			"phrase":     phrase,
			"input_text": text,
		})
		a.handleTerminationPhrase(ctx, phrase)
		return
	}

	if a.logger.Enabled(ctx, slog.LevelDebug) {
		a.logger.Debug("No termination phrase found", slog.String("input_text", text))
	}

	a.mu.Lock()
	session := a.session
	terminating := a.state == StateTerminating
	a.mu.Unlock()

	if session == nil || terminating {
		a.logger.Debug("Skipping reply - no active session or call is terminating")
		return
	}
	if err := guard(func() error { return session.GenerateReply(ctx) }); err != nil {
		a.logCallError("Error generating reply", err, slog.String("input_text", text))
	}
}

// OnDisconnect is called when the transport drops the call from its side.
// Idempotent once the call has ended.
func (a *InboundAgent) OnDisconnect(ctx context.Context) error {
	if a.State() == StateEnded {
		return nil
	}

	a.setCallState(StateTerminating, nil)

	a.callSession.EndCall()
	a.logger.Info("Call ended", slog.String("timestamp", a.formattedTimestamp()))

	if d, ok := a.callSession.Duration(); ok {
		a.mergeMetadata(map[string]any{"duration": d})
		a.logger.Info("Call ended", slog.String("duration", fmt.Sprintf("%.2f seconds", d)))
	} else {
		a.logger.Info("Call ended (no start or end time recorded)")
	}

	a.logCallLifecycleSummary()

	if err := guard(a.cleanupCallResources); err != nil {
		a.logCallError("Error during call termination", err)
		a.setCallState(StateError, map[string]any{"error": err.Error()})
		return fmt.Errorf("disconnect cleanup: %w", err)
	}

	// The transport already dropped; the room reference is stale.
	a.mu.Lock()
	a.room = nil
	a.mu.Unlock()

	a.setCallState(StateEnded, nil)
	return nil
}

// handleTerminationPhrase acknowledges the request and runs the teardown
// sequence. Errors are recorded rather than propagated so normal processing
// can continue if termination fails.
func (a *InboundAgent) handleTerminationPhrase(ctx context.Context, phrase string) {
	a.logCallEvent("TERMINATION_INITIATED", map[string]string{"phrase": phrase})

	a.sendImmediateTerminationResponse(ctx, phrase)

	if err := a.TerminateCall(ctx); err != nil {
		a.logCallError("Error during call termination", err, slog.String("phrase", phrase))
	}
}

// sendImmediateTerminationResponse speaks a short contextual farewell before
// teardown starts. Failures here are logged and never block termination.
func (a *InboundAgent) sendImmediateTerminationResponse(ctx context.Context, phrase string) {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()

	if session == nil {
		a.logger.Debug("No active session for immediate response")
		return
	}

	response := termination.Response(phrase)
	if err := guard(func() error { return session.Say(ctx, response) }); err != nil {
		a.logger.Warn("Error sending immediate termination response",
			slog.String("error", err.Error()))
		return
	}
	a.logger.Debug("Sent immediate termination response", slog.String("response", response))
}

// setCallState transitions to a new state, merging metadata and logging the
// transition. Transitioning to the current state is a no-op: no log line and
// no metadata merge.
func (a *InboundAgent) setCallState(newState CallState, metadata map[string]any) {
	a.mu.Lock()
	if a.state == newState {
		a.mu.Unlock()
		return
	}
	oldState := a.state
	a.state = newState
	for k, v := range metadata {
		a.metadata[k] = v
	}
	a.mu.Unlock()

	attrs := []any{
		slog.String("from", oldState.String()),
		slog.String("to", newState.String()),
	}
	for _, k := range sortedKeys(metadata) {
		attrs = append(attrs, slog.Any(k, metadata[k]))
	}
	a.logger.Info("Call state changed", attrs...)
}

func (a *InboundAgent) mergeMetadata(metadata map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range metadata {
		a.metadata[k] = v
	}
}

// formattedTimestamp returns the current time in ISO 8601 format with UTC
// timezone, matching the call event log format.
func (a *InboundAgent) formattedTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// logCallEvent emits one structured line per call event with the event name,
// timestamp and current state.
func (a *InboundAgent) logCallEvent(event string, data map[string]string) {
	attrs := []any{
		slog.String("event", event),
		slog.String("timestamp", a.formattedTimestamp()),
		slog.String("state", a.State().String()),
	}
	for _, k := range sortedKeys(data) {
		attrs = append(attrs, slog.String(k, data[k]))
	}
	a.logger.Info("call event", attrs...)
}

func (a *InboundAgent) logCallError(msg string, err error, extra ...any) {
	attrs := []any{slog.String("error", err.Error())}
	attrs = append(attrs, extra...)
	a.logger.Error(msg, attrs...)
}

// logCallLifecycleSummary logs start/end timestamps and duration in one line.
func (a *InboundAgent) logCallLifecycleSummary() {
	start, ok := a.callSession.StartTime()
	if !ok {
		a.logger.Warn("Cannot log call lifecycle: no start time recorded")
		return
	}

	durationStr := "unknown"
	if d, ok := a.callSession.Duration(); ok {
		durationStr = fmt.Sprintf("%.3f seconds", d)
	}

	a.logger.Info("Call lifecycle summary",
		slog.String("started_at", start.UTC().Format(time.RFC3339Nano)),
		slog.String("ended_at", a.formattedTimestamp()),
		slog.String("duration", durationStr))
}

// logCallDurationSummary logs the duration analytics for the ended call.
func (a *InboundAgent) logCallDurationSummary() {
	report := a.callSession.ExportData()
	if report.DurationSeconds == nil {
		a.logger.Warn("Cannot log duration summary: no valid duration data")
		return
	}

	a.logCallEvent("CALL_DURATION_SUMMARY", map[string]string{
		"duration_seconds":    fmt.Sprintf("%.3f", *report.DurationSeconds),
		"duration_formatted":  report.DurationFormatted,
		"duration_minutes":    fmt.Sprintf("%.2f", *report.DurationMinutes),
		"call_classification": report.Classification,
	})

	a.logger.Info("Call duration summary",
		slog.String("formatted", report.DurationFormatted),
		slog.String("seconds", fmt.Sprintf("%.3f", *report.DurationSeconds)),
		slog.String("classification", report.Classification))
}

// guard runs fn and converts a panic into an error so one misbehaving
// collaborator cannot take down the call handler.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
