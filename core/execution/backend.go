package execution

import (
	"context"
	"time"

	"timebox/core/channel"
)

// WorkerBackend is implemented by all worker adapters. It is intentionally
// minimal so backends can be swapped without touching the engine.
type WorkerBackend interface {
	Name() string
	Prepare(ctx context.Context) error
	Start(req channel.Request) (Worker, error)
}

// Worker is the handle for one isolated process running exactly one invocation.
type Worker interface {
	ID() string
	PID() int
	// Join blocks until the worker finished and its message (if any) was
	// delivered, the timeout elapsed, or ctx is done. It reports whether the
	// worker finished. A non-positive timeout returns immediately.
	Join(ctx context.Context, timeout time.Duration) bool
	// Receive returns the worker's message without blocking.
	Receive() (channel.Message, bool)
	Alive() bool
	// Terminate kills the worker unconditionally.
	Terminate() error
	// Release reaps the worker and tears down the channel.
	Release() error
}
