package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSpeechSession records GenerateReply and Say invocations.
type fakeSpeechSession struct {
	mu       sync.Mutex
	replyErr error
	sayErr   error
	replies  int
	said     []string
}

func (f *fakeSpeechSession) GenerateReply(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies++
	return f.replyErr
}

func (f *fakeSpeechSession) Say(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, text)
	return f.sayErr
}

func (f *fakeSpeechSession) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replies
}

func (f *fakeSpeechSession) saidTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.said))
	copy(out, f.said)
	return out
}

// fakeRoom simulates the transport connection.
type fakeRoom struct {
	mu            sync.Mutex
	disconnectErr error
	blockFor      time.Duration
	participants  int
	disconnects   int
}

func (f *fakeRoom) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.disconnects++
	block := f.blockFor
	err := f.disconnectErr
	f.mu.Unlock()

	if block > 0 {
		time.Sleep(block)
	}
	return err
}

func (f *fakeRoom) RemoteParticipantCount() int {
	return f.participants
}

func (f *fakeRoom) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func TestAgent_New(t *testing.T) {
	a := New(Config{Logger: quietLogger()})

	if a.State() != StateIdle {
		t.Errorf("expected initial state Idle, got %v", a.State())
	}
	if len(a.Metadata()) != 0 {
		t.Errorf("expected empty metadata, got %v", a.Metadata())
	}
}

func TestAgent_OnEnter(t *testing.T) {
	session := &fakeSpeechSession{}
	a := New(Config{Session: session, Logger: quietLogger()})

	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.State() != StateActive {
		t.Errorf("expected Active state, got %v", a.State())
	}
	if !a.IsListening() {
		t.Error("expected agent to be listening after entering the call")
	}
	if _, ok := a.CallSession().StartTime(); !ok {
		t.Error("expected call timing to be started")
	}
	if session.replyCount() != 1 {
		t.Errorf("expected one greeting reply, got %d", session.replyCount())
	}
}

func TestAgent_OnEnter_SetupFailure(t *testing.T) {
	session := &fakeSpeechSession{replyErr: errors.New("model unavailable")}
	a := New(Config{Session: session, Logger: quietLogger()})

	err := a.OnEnter(context.Background())
	if err == nil {
		t.Fatal("expected setup error")
	}
	if a.State() != StateError {
		t.Errorf("expected Error state, got %v", a.State())
	}
	if _, ok := a.Metadata()["error"]; !ok {
		t.Error("expected error recorded in call metadata")
	}
}

func TestAgent_SetStateIdempotent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	a := New(Config{Logger: logger})

	a.setCallState(StateActive, map[string]any{"caller": "alice"})
	a.callSession.StartCall()
	start, _ := a.callSession.StartTime()

	before := strings.Count(buf.String(), "Call state changed")

	// Re-entering the current state produces no log line and no merge.
	a.setCallState(StateActive, map[string]any{"caller": "mallory"})

	after := strings.Count(buf.String(), "Call state changed")
	if after != before {
		t.Errorf("expected no duplicate transition log, got %d new lines", after-before)
	}
	if got := a.Metadata()["caller"]; got != "alice" {
		t.Errorf("expected metadata preserved, got %v", got)
	}
	if now, _ := a.callSession.StartTime(); !now.Equal(start) {
		t.Error("expected call start time untouched")
	}
}

func TestAgent_MetadataMergedAcrossTransitions(t *testing.T) {
	a := New(Config{Logger: quietLogger()})

	a.setCallState(StateRinging, map[string]any{"caller": "alice"})
	a.setCallState(StateActive, map[string]any{"track": "mic"})

	md := a.Metadata()
	if md["caller"] != "alice" || md["track"] != "mic" {
		t.Errorf("expected additive metadata merge, got %v", md)
	}
}

func TestAgent_OnUserInput(t *testing.T) {
	session := &fakeSpeechSession{}
	a := New(Config{Session: session, Logger: quietLogger()})
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}
	greetings := session.replyCount()

	a.OnUserInput(context.Background(), "what are your hours?")
	if session.replyCount() != greetings+1 {
		t.Errorf("expected a reply for ordinary input, got %d calls", session.replyCount())
	}

	// Blank input is ignored entirely.
	a.OnUserInput(context.Background(), "   ")
	if session.replyCount() != greetings+1 {
		t.Error("expected no reply for blank input")
	}
}

func TestAgent_OnUserInput_SkipsReplyWhileTerminating(t *testing.T) {
	session := &fakeSpeechSession{}
	a := New(Config{Session: session, Logger: quietLogger()})
	a.setCallState(StateTerminating, nil)

	a.OnUserInput(context.Background(), "hello?")
	if session.replyCount() != 0 {
		t.Error("expected no reply while the call is terminating")
	}
}

func TestAgent_TerminationFlow(t *testing.T) {
	session := &fakeSpeechSession{}
	room := &fakeRoom{participants: 1}
	a := New(Config{Session: session, Logger: quietLogger()})
	a.SetRoom(room)

	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}

	a.OnUserInput(context.Background(), "ok goodbye")

	if a.State() != StateEnded {
		t.Fatalf("expected Ended state, got %v", a.State())
	}
	if a.Room() != nil {
		t.Error("expected room reference cleared")
	}
	if room.disconnectCount() != 1 {
		t.Errorf("expected one disconnect, got %d", room.disconnectCount())
	}

	d, ok := a.CallSession().Duration()
	if !ok || d < 0 {
		t.Errorf("expected non-negative recorded duration, got %f (ok=%v)", d, ok)
	}

	said := session.saidTexts()
	if len(said) != 1 || !strings.Contains(said[0], "Goodbye") {
		t.Errorf("expected contextual farewell spoken, got %v", said)
	}
}

func TestAgent_TerminateCall_Idempotent(t *testing.T) {
	room := &fakeRoom{}
	a := New(Config{Logger: quietLogger()})
	a.SetRoom(room)
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := a.TerminateCall(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.TerminateCall(context.Background()); err != nil {
		t.Fatalf("second termination should be a no-op, got %v", err)
	}

	if a.State() != StateEnded {
		t.Errorf("expected Ended state, got %v", a.State())
	}
	if room.disconnectCount() != 1 {
		t.Errorf("expected a single disconnect attempt, got %d", room.disconnectCount())
	}
}

func TestAgent_TerminateCall_DisconnectError(t *testing.T) {
	room := &fakeRoom{disconnectErr: errors.New("network down")}
	a := New(Config{Logger: quietLogger()})
	a.SetRoom(room)
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := a.TerminateCall(context.Background()); err != nil {
		t.Fatalf("disconnect failure should not fail termination, got %v", err)
	}

	if a.State() != StateEnded {
		t.Fatalf("expected Ended state despite disconnect failure, got %v", a.State())
	}
	if a.Room() != nil {
		t.Error("expected room reference force-cleared")
	}

	warnings, ok := a.Metadata()["warnings"].(map[string]string)
	if !ok {
		t.Fatalf("expected warnings metadata, got %v", a.Metadata())
	}
	if _, ok := warnings["room_disconnect"]; !ok {
		t.Errorf("expected room_disconnect warning, got %v", warnings)
	}
}

func TestAgent_TerminateCall_DisconnectTimeout(t *testing.T) {
	room := &fakeRoom{blockFor: 300 * time.Millisecond}
	a := New(Config{Logger: quietLogger()})
	a.SetRoom(room)
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A parent deadline shorter than the disconnect bound forces the
	// timeout branch without waiting the full five seconds.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := a.TerminateCall(ctx); err != nil {
		t.Fatalf("timeout should not fail termination, got %v", err)
	}

	if a.State() != StateEnded {
		t.Fatalf("expected Ended state after timed-out disconnect, got %v", a.State())
	}
	if a.Room() != nil {
		t.Error("expected room reference force-cleared after timeout")
	}
	warnings, ok := a.Metadata()["warnings"].(map[string]string)
	if !ok || warnings["room_disconnect"] == "" {
		t.Errorf("expected recorded disconnect warning, got %v", a.Metadata())
	}
}

func TestAgent_TerminateCall_SayFailureDoesNotBlock(t *testing.T) {
	session := &fakeSpeechSession{sayErr: errors.New("tts offline")}
	room := &fakeRoom{}
	a := New(Config{Session: session, Logger: quietLogger()})
	a.SetRoom(room)
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}

	a.OnUserInput(context.Background(), "bye")

	if a.State() != StateEnded {
		t.Errorf("expected Ended state despite Say failure, got %v", a.State())
	}
}

func TestAgent_TerminateCall_CleanupHookRetried(t *testing.T) {
	attempts := 0
	a := New(Config{Logger: quietLogger()})
	a.OnCleanup(func() error {
		attempts++
		if attempts == 1 {
			return errors.New("resource busy")
		}
		return nil
	})
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The hook fails once, the emergency path retries it and succeeds, so
	// the call still ends with a warning rather than an error.
	if err := a.TerminateCall(context.Background()); err != nil {
		t.Fatalf("recovered cleanup should not fail termination, got %v", err)
	}
	if a.State() != StateEnded {
		t.Errorf("expected Ended state, got %v", a.State())
	}
	if attempts != 2 {
		t.Errorf("expected hook retried once, ran %d times", attempts)
	}
	warnings, ok := a.Metadata()["warnings"].(map[string]string)
	if !ok || warnings["resource_cleanup"] == "" {
		t.Errorf("expected resource_cleanup warning, got %v", a.Metadata())
	}
}

func TestAgent_TerminateCall_CriticalFailure(t *testing.T) {
	a := New(Config{Logger: quietLogger()})
	a.OnCleanup(func() error {
		return errors.New("handle leaked")
	})
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := a.TerminateCall(context.Background())
	if !errors.Is(err, ErrTerminationFailed) {
		t.Fatalf("expected ErrTerminationFailed, got %v", err)
	}
	if a.State() != StateError {
		t.Errorf("expected Error state for critical failure, got %v", a.State())
	}
	if _, ok := a.Metadata()["operation_errors"]; !ok {
		t.Errorf("expected operation errors in metadata, got %v", a.Metadata())
	}
}

func TestAgent_TerminateCall_PanickingRoom(t *testing.T) {
	a := New(Config{Logger: quietLogger()})
	a.SetRoom(panicRoom{})
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A panicking disconnect is contained by the step guard; the call
	// still terminates with a warning.
	if err := a.TerminateCall(context.Background()); err != nil {
		t.Fatalf("expected contained panic, got %v", err)
	}
	if a.State() != StateEnded {
		t.Errorf("expected Ended state, got %v", a.State())
	}
	if a.Room() != nil {
		t.Error("expected room reference cleared")
	}
}

type panicRoom struct{}

func (panicRoom) Disconnect(ctx context.Context) error { panic("sdk bug") }
func (panicRoom) RemoteParticipantCount() int          { return 0 }

func TestAgent_OnDisconnect(t *testing.T) {
	a := New(Config{Logger: quietLogger()})
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := a.OnDisconnect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.State() != StateEnded {
		t.Errorf("expected Ended state, got %v", a.State())
	}

	// Already ended: a second disconnect is a no-op.
	if err := a.OnDisconnect(context.Background()); err != nil {
		t.Fatalf("expected no-op for ended call, got %v", err)
	}
}

func TestAgent_Reset(t *testing.T) {
	a := New(Config{Logger: quietLogger()})
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.TerminateCall(context.Background()); err != nil {
		t.Fatal(err)
	}

	a.Reset()
	if a.State() != StateIdle {
		t.Errorf("expected Idle after reset, got %v", a.State())
	}
	if _, ok := a.CallSession().StartTime(); ok {
		t.Error("expected call session cleared after reset")
	}

	// The agent can serve a fresh call after reset.
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatalf("unexpected error on reuse: %v", err)
	}
	if a.State() != StateActive {
		t.Errorf("expected Active on reuse, got %v", a.State())
	}
}

func TestAgent_ConcurrentTermination(t *testing.T) {
	// The room blocks long enough that every goroutine is in flight while
	// the first one tears down; only that one may run the sequence.
	room := &fakeRoom{blockFor: 50 * time.Millisecond}
	a := New(Config{Logger: quietLogger()})
	a.SetRoom(room)
	if err := a.OnEnter(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.TerminateCall(context.Background())
		}()
	}
	wg.Wait()

	if a.State() != StateEnded {
		t.Errorf("expected Ended state, got %v", a.State())
	}
	if n := room.disconnectCount(); n != 1 {
		t.Errorf("expected a single room disconnect, got %d", n)
	}
}

func TestCallState_String(t *testing.T) {
	tests := []struct {
		state    CallState
		expected string
	}{
		{StateIdle, "Idle"},
		{StateRinging, "Ringing"},
		{StateActive, "Active"},
		{StateTerminating, "Terminating"},
		{StateEnded, "Ended"},
		{StateError, "Error"},
		{CallState(42), "Unknown(42)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}
