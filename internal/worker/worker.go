// Package worker maintains the registration with the dispatch server and
// hands incoming call assignments to the call handler.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Signal and command type constants.
const (
	SignalTypePing      = "ping"
	SignalTypePong      = "pong"
	SignalTypeStartCall = "startCall"
	SignalTypeShutdown  = "shutdown"

	CommandTypeRegister = "register"
)

// Dispatch carries one call assignment from the dispatch server.
type Dispatch struct {
	CallID         string
	RoomName       string
	RoomToken      string
	CallerIdentity string
}

// CallHandler serves one dispatched call until it ends.
type CallHandler func(ctx context.Context, d Dispatch) error

type Worker struct {
	url       string
	token     string
	agentName string
	handler   CallHandler
	wsClient  *WebSocketClient
	logger    *slog.Logger
	in        chan *Signal
	out       chan *Command

	mu             sync.RWMutex
	connected      bool
	backoffAttempt int
	activeCalls    sync.WaitGroup
}

type Config struct {
	URL       string
	Token     string
	AgentName string
	Handler   CallHandler
}

func New(config Config, logger *slog.Logger) *Worker {
	return &Worker{
		url:       config.URL,
		token:     config.Token,
		agentName: config.AgentName,
		handler:   config.Handler,
		logger:    logger,
		in:        make(chan *Signal, 100),
		out:       make(chan *Command, 100),
		wsClient:  NewWebSocketClient(config.URL, config.Token, logger),
	}
}

// Run keeps the worker registered until ctx is cancelled, reconnecting
// with exponential backoff after connection failures.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("url", w.url),
		slog.String("agent_name", w.agentName))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker shutting down")
			return w.shutdown()
		default:
			if err := w.connectAndRun(ctx); err != nil {
				w.logger.Error("Worker connection failed", slog.String("error", err.Error()))

				if err := w.backoffDelay(ctx); err != nil {
					return err
				}
				continue
			}
		}
	}
}

func (w *Worker) connectAndRun(ctx context.Context) error {
	w.logger.Info("Connecting to dispatch server")

	if err := w.wsClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := w.wsClient.Close(); err != nil {
			w.logger.Error("Error closing connection during cleanup", slog.String("error", err.Error()))
		}
	}()

	w.setConnected(true)
	defer w.setConnected(false)

	w.register()

	readCtx, readCancel := context.WithCancel(ctx)
	defer readCancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.readSignals(readCtx); err != nil {
			errCh <- fmt.Errorf("read signals: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.writeCommands(readCtx); err != nil {
			errCh <- fmt.Errorf("write commands: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.processSignals(readCtx)
	}()

	select {
	case err := <-errCh:
		readCancel()
		wg.Wait()
		return err
	case <-ctx.Done():
		readCancel()
		wg.Wait()
		return nil
	}
}

// register announces this worker's agent name so the dispatcher can
// route inbound calls to it.
func (w *Worker) register() {
	cmd := &Command{
		Type: CommandTypeRegister,
		Data: map[string]any{"agent_name": w.agentName},
	}
	select {
	case w.out <- cmd:
	default:
		w.logger.Warn("Command queue full, registration not sent")
	}
}

func (w *Worker) readSignals(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			signal, err := w.wsClient.ReadSignal(ctx)
			if err != nil {
				return err
			}

			select {
			case w.in <- signal:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (w *Worker) writeCommands(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-w.out:
			if err := w.wsClient.WriteCommand(ctx, cmd); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) processSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-w.in:
			w.handleSignal(ctx, signal)
		}
	}
}

func (w *Worker) handleSignal(ctx context.Context, signal *Signal) {
	w.logger.Debug("Processing signal", slog.String("type", signal.Type))

	switch signal.Type {
	case SignalTypePing:
		pong := &Command{
			Type: SignalTypePong,
			Data: signal.Data,
		}
		select {
		case w.out <- pong:
		case <-ctx.Done():
		default:
		}

	case SignalTypeStartCall:
		dispatch := dispatchFromSignal(signal)
		w.logger.Info("Received call assignment",
			slog.String("call_id", dispatch.CallID),
			slog.String("room_name", dispatch.RoomName))
		w.startCall(ctx, dispatch)

	case SignalTypeShutdown:
		w.logger.Info("Received shutdown signal")

	default:
		w.logger.Warn("Unknown signal type", slog.String("type", signal.Type))
	}
}

// startCall runs the handler for one assignment without blocking the
// signal loop.
func (w *Worker) startCall(ctx context.Context, dispatch Dispatch) {
	if w.handler == nil {
		w.logger.Warn("No call handler configured, dropping assignment",
			slog.String("call_id", dispatch.CallID))
		return
	}
	if dispatch.RoomName == "" {
		w.logger.Warn("Call assignment missing room name, dropping",
			slog.String("call_id", dispatch.CallID))
		return
	}

	w.activeCalls.Add(1)
	go func() {
		defer w.activeCalls.Done()
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Call handler panicked",
					slog.String("call_id", dispatch.CallID),
					slog.Any("panic", r))
			}
		}()

		if err := w.handler(ctx, dispatch); err != nil {
			w.logger.Error("Call handler failed",
				slog.String("call_id", dispatch.CallID),
				slog.String("error", err.Error()))
		}
	}()
}

func dispatchFromSignal(signal *Signal) Dispatch {
	str := func(key string) string {
		if v, ok := signal.Data[key].(string); ok {
			return v
		}
		return ""
	}
	return Dispatch{
		CallID:         str("call_id"),
		RoomName:       str("room_name"),
		RoomToken:      str("room_token"),
		CallerIdentity: str("caller_identity"),
	}
}

func (w *Worker) backoffDelay(ctx context.Context) error {
	w.mu.Lock()
	w.backoffAttempt++
	attempt := w.backoffAttempt
	w.mu.Unlock()

	// Exponential backoff: 1s, 2s, 4s, 8s, up to 10s max
	delay := time.Duration(math.Min(math.Pow(2, float64(attempt-1)), 10)) * time.Second

	w.logger.Info("Reconnecting with backoff",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) setConnected(connected bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if connected && !w.connected {
		// Reset backoff on successful connection
		w.backoffAttempt = 0
		w.logger.Info("Worker connected successfully")
	}

	w.connected = connected
}

func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *Worker) shutdown() error {
	w.logger.Info("Shutting down worker")

	// Let in-flight calls finish their teardown before closing out.
	w.activeCalls.Wait()

	close(w.out)

	if err := w.wsClient.Close(); err != nil {
		w.logger.Error("Error closing connection", slog.String("error", err.Error()))
		return err
	}

	w.logger.Info("Worker shutdown complete")
	return nil
}
