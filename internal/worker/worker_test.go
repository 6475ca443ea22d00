package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestWorker_New(t *testing.T) {
	is := is.New(t)

	logger := slog.Default()
	config := Config{
		URL:       "wss://dispatch.example.com",
		Token:     "test-token",
		AgentName: "inbound-agent",
	}

	worker := New(config, logger)

	is.Equal(worker.url, config.URL)             // worker URL should match config
	is.Equal(worker.token, config.Token)         // worker token should match config
	is.Equal(worker.agentName, config.AgentName) // agent name should match config
	is.True(worker.in != nil)                    // in channel should be initialized
	is.True(worker.out != nil)                   // out channel should be initialized
}

func TestWorker_IsConnected(t *testing.T) {
	is := is.New(t)

	worker := New(Config{URL: "wss://dispatch.example.com", Token: "test"}, slog.Default())

	is.True(!worker.IsConnected()) // worker should start disconnected

	worker.setConnected(true)
	is.True(worker.IsConnected()) // connected after setConnected(true)

	worker.setConnected(false)
	is.True(!worker.IsConnected()) // disconnected after setConnected(false)
}

func TestWorker_HandleSignal_Ping(t *testing.T) {
	worker := New(Config{URL: "wss://dispatch.example.com", Token: "test"}, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	worker.handleSignal(ctx, &Signal{
		Type: SignalTypePing,
		Data: map[string]any{"id": "test-ping"},
	})

	select {
	case cmd := <-worker.out:
		if cmd.Type != SignalTypePong {
			t.Errorf("expected pong response, got %s", cmd.Type)
		}
		if cmd.Data["id"] != "test-ping" {
			t.Errorf("expected pong to echo ping data, got %v", cmd.Data)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected pong response within 100ms")
	}
}

func TestWorker_HandleSignal_StartCall(t *testing.T) {
	is := is.New(t)

	var handled int32
	got := make(chan Dispatch, 1)

	worker := New(Config{
		URL:   "wss://dispatch.example.com",
		Token: "test",
		Handler: func(ctx context.Context, d Dispatch) error {
			atomic.AddInt32(&handled, 1)
			got <- d
			return nil
		},
	}, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	worker.handleSignal(ctx, &Signal{
		Type: SignalTypeStartCall,
		Data: map[string]any{
			"call_id":         "call_1",
			"room_name":       "inbound-call-1",
			"room_token":      "room-token",
			"caller_identity": "caller-123",
		},
	})

	select {
	case d := <-got:
		is.Equal(d.CallID, "call_1")                // call id should be parsed
		is.Equal(d.RoomName, "inbound-call-1")      // room name should be parsed
		is.Equal(d.RoomToken, "room-token")         // room token should be parsed
		is.Equal(d.CallerIdentity, "caller-123")    // caller identity should be parsed
	case <-time.After(time.Second):
		t.Fatal("handler should have received the dispatch")
	}
}

func TestWorker_HandleSignal_StartCall_MissingRoom(t *testing.T) {
	var handled int32
	worker := New(Config{
		URL:   "wss://dispatch.example.com",
		Token: "test",
		Handler: func(ctx context.Context, d Dispatch) error {
			atomic.AddInt32(&handled, 1)
			return nil
		},
	}, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Assignments without a room are dropped.
	worker.handleSignal(ctx, &Signal{
		Type: SignalTypeStartCall,
		Data: map[string]any{"call_id": "call_1"},
	})
	worker.activeCalls.Wait()

	if atomic.LoadInt32(&handled) != 0 {
		t.Error("handler should not run for an assignment without a room")
	}
}

func TestWorker_HandleSignal_PanickingHandler(t *testing.T) {
	worker := New(Config{
		URL:   "wss://dispatch.example.com",
		Token: "test",
		Handler: func(ctx context.Context, d Dispatch) error {
			panic("handler bug")
		},
	}, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// A panicking handler must not take down the signal loop.
	worker.handleSignal(ctx, &Signal{
		Type: SignalTypeStartCall,
		Data: map[string]any{"call_id": "call_1", "room_name": "inbound-call-1"},
	})
	worker.activeCalls.Wait()
}

func TestWorker_HandleSignal_Unknown(t *testing.T) {
	worker := New(Config{URL: "wss://dispatch.example.com", Token: "test"}, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	worker.handleSignal(ctx, &Signal{
		Type: "unknownType",
		Data: map[string]any{"foo": "bar"},
	})

	select {
	case <-worker.out:
		t.Error("no response expected for unknown signal type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWorker_Register(t *testing.T) {
	is := is.New(t)

	worker := New(Config{
		URL:       "wss://dispatch.example.com",
		Token:     "test",
		AgentName: "inbound-agent",
	}, slog.Default())

	worker.register()

	select {
	case cmd := <-worker.out:
		is.Equal(cmd.Type, CommandTypeRegister)        // registration command expected
		is.Equal(cmd.Data["agent_name"], "inbound-agent") // agent name should be announced
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected registration command")
	}
}

func TestBackoffCalculation(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},  // capped at 10s
		{10, 10 * time.Second}, // still capped
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			worker := New(Config{URL: "wss://dispatch.example.com", Token: "test"}, slog.Default())

			worker.mu.Lock()
			worker.backoffAttempt = tt.attempt - 1
			worker.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			err := worker.backoffDelay(ctx)
			duration := time.Since(start)

			if err != context.DeadlineExceeded {
				t.Errorf("expected context deadline exceeded, got %v", err)
			}
			if duration < 40*time.Millisecond {
				t.Errorf("backoff should have waited at least 40ms, waited %v", duration)
			}
		})
	}
}
