// Package job manages the lifecycle of one inbound call assignment. A
// CallJob covers the period between the dispatcher handing the call to
// this process and the room being torn down.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ShutdownHookTimeout bounds how long shutdown hooks may run.
const ShutdownHookTimeout = 5 * time.Second

// DefaultCallTimeout caps a single inbound call.
const DefaultCallTimeout = 30 * time.Minute

// CallJob is one inbound call assignment.
type CallJob struct {
	// ID uniquely identifies this assignment.
	ID string

	// RoomName is the room carrying the call.
	RoomName string

	// CallerIdentity is the participant identity of the caller, when the
	// dispatcher knows it.
	CallerIdentity string

	// Context coordinates shutdown for everything serving the call.
	Context *Context
}

// Config configures a new CallJob.
type Config struct {
	ID             string
	RoomName       string
	CallerIdentity string
	Timeout        time.Duration
	Logger         *slog.Logger
}

// New creates a call job. An empty ID gets a generated one; a zero
// timeout applies DefaultCallTimeout.
func New(parent context.Context, cfg Config) (*CallJob, error) {
	if cfg.RoomName == "" {
		return nil, fmt.Errorf("room name is required")
	}

	id := cfg.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)

	j := &CallJob{
		ID:             id,
		RoomName:       cfg.RoomName,
		CallerIdentity: cfg.CallerIdentity,
		Context:        newContext(ctx, cancel, logger),
	}

	logger.Info("Created call job",
		slog.String("job_id", id),
		slog.String("room_name", cfg.RoomName),
		slog.Duration("timeout", timeout))
	return j, nil
}

// Shutdown ends the call job with the given reason.
func (j *CallJob) Shutdown(reason string) {
	j.Context.logger.Info("Shutting down call job",
		slog.String("job_id", j.ID),
		slog.String("reason", reason))
	j.Context.Shutdown(reason)
}

// Wait blocks until the job's context is cancelled and returns its
// error.
func (j *CallJob) Wait() error {
	<-j.Context.Done()
	return j.Context.Err()
}

// IsActive reports whether the call is still being served.
func (j *CallJob) IsActive() bool {
	return !j.Context.IsShutdown()
}

func (j *CallJob) String() string {
	status := "active"
	if j.Context.IsShutdown() {
		status = "shutdown"
	}
	return fmt.Sprintf("CallJob{ID: %s, Room: %s, Status: %s}", j.ID, j.RoomName, status)
}

// Context coordinates shutdown across the room connection, the voice
// pipeline and the agent serving one call.
type Context struct {
	// Ctx is cancelled when the call ends.
	Ctx context.Context

	logger *slog.Logger
	cancel context.CancelFunc

	mu       sync.Mutex
	hooks    []func(reason string)
	shutdown bool
}

func newContext(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) *Context {
	return &Context{Ctx: ctx, cancel: cancel, logger: logger}
}

// Shutdown runs the registered hooks and cancels the context. Idempotent;
// hooks run exactly once, each isolated from panics, bounded by
// ShutdownHookTimeout as a group.
func (c *Context) Shutdown(reason string) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	hooks := c.hooks
	c.mu.Unlock()

	c.logger.Info("Call shutdown initiated", slog.String("reason", reason))

	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(h func(string)) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Shutdown hook panicked", slog.Any("panic", r))
				}
			}()
			h(reason)
		}(hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Debug("All shutdown hooks completed")
	case <-time.After(ShutdownHookTimeout):
		c.logger.Warn("Shutdown hooks timed out",
			slog.Duration("timeout", ShutdownHookTimeout))
	}

	c.cancel()
}

// OnShutdown registers a callback for call teardown. When the call has
// already shut down the callback runs immediately.
func (c *Context) OnShutdown(callback func(reason string)) {
	c.mu.Lock()
	already := c.shutdown
	if !already {
		c.hooks = append(c.hooks, callback)
	}
	c.mu.Unlock()

	if already {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Shutdown callback panicked", slog.Any("panic", r))
				}
			}()
			callback("call already shut down")
		}()
	}
}

// IsShutdown reports whether the call has ended.
func (c *Context) IsShutdown() bool {
	select {
	case <-c.Ctx.Done():
		return true
	default:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.shutdown
	}
}

// Done exposes the cancellation channel for the call.
func (c *Context) Done() <-chan struct{} {
	return c.Ctx.Done()
}

// Err returns the context error once the call has ended.
func (c *Context) Err() error {
	return c.Ctx.Err()
}
