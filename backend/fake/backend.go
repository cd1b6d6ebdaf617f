package fake

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"timebox/core/channel"
	"timebox/core/execution"
	"timebox/core/failure"
)

// Backend is a configurable fake backend useful for engine contract tests.
// Each Start returns a Worker scripted by the backend's fields.
type Backend struct {
	// Message is delivered by the worker when it finishes. Nil means the
	// worker finishes without writing anything.
	Message *channel.Message
	// Hang keeps the worker running until it is terminated.
	Hang bool
	// Delay is how long the worker runs before finishing.
	Delay      time.Duration
	PrepareErr error
	StartErr   error
	ReleaseErr error
	Extra      []string

	mu       sync.Mutex
	requests []channel.Request
	workers  []*Worker
}

func New() *Backend {
	return &Backend{}
}

// Returning sets a successful result.
func (b *Backend) Returning(v any) *Backend {
	raw, _ := json.Marshal(v)
	msg := channel.Ok(raw)
	b.Message = &msg
	return b
}

// Failing sets a failure result.
func (b *Backend) Failing(d failure.Descriptor) *Backend {
	msg := channel.Fail(d)
	b.Message = &msg
	return b
}

func (b *Backend) Name() string { return "fake" }

func (b *Backend) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.PrepareErr
}

func (b *Backend) Start(req channel.Request) (execution.Worker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.StartErr != nil {
		return nil, b.StartErr
	}
	w := &Worker{
		id:         req.ID,
		mailbox:    channel.NewMailbox(),
		exited:     make(chan struct{}),
		killed:     make(chan struct{}),
		releaseErr: b.ReleaseErr,
		extra:      append([]string(nil), b.Extra...),
	}
	b.workers = append(b.workers, w)
	go w.run(b.Message, b.Hang, b.Delay)
	return w, nil
}

// Requests returns every request the backend was asked to start.
func (b *Backend) Requests() []channel.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]channel.Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Workers returns every worker started so far.
func (b *Backend) Workers() []*Worker {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Worker, len(b.workers))
	copy(out, b.workers)
	return out
}

// Worker is an in-memory stand-in for a worker process.
type Worker struct {
	id         string
	mailbox    *channel.Mailbox
	exited     chan struct{}
	killed     chan struct{}
	killOnce   sync.Once
	releaseErr error
	extra      []string

	mu         sync.Mutex
	terminated bool
	released   bool
}

func (w *Worker) run(msg *channel.Message, hang bool, delay time.Duration) {
	defer close(w.exited)
	if hang {
		<-w.killed
		w.mailbox.Close()
		return
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-w.killed:
			w.mailbox.Close()
			return
		}
	}
	if msg != nil {
		w.mailbox.Deliver(*msg)
	}
	w.mailbox.Close()
}

func (w *Worker) ID() string { return "fake-" + w.id }
func (w *Worker) PID() int   { return 0 }

func (w *Worker) Join(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		return w.finished()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.exited:
		<-w.mailbox.Settled()
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) finished() bool {
	select {
	case <-w.exited:
		return true
	default:
		return false
	}
}

func (w *Worker) Receive() (channel.Message, bool) {
	return w.mailbox.TryReceive()
}

func (w *Worker) Alive() bool {
	return !w.finished()
}

func (w *Worker) Terminate() error {
	w.mu.Lock()
	w.terminated = true
	w.mu.Unlock()
	w.killOnce.Do(func() { close(w.killed) })
	return nil
}

func (w *Worker) Release() error {
	<-w.exited
	w.mailbox.Close()
	w.mu.Lock()
	w.released = true
	w.mu.Unlock()
	return w.releaseErr
}

// Terminated reports whether the engine had to kill the worker.
func (w *Worker) Terminated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}

// Released reports whether the engine released the worker.
func (w *Worker) Released() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

func (w *Worker) ExtraErrors() []string {
	if len(w.extra) == 0 {
		return nil
	}
	out := make([]string, len(w.extra))
	copy(out, w.extra)
	return out
}

var _ execution.WorkerBackend = (*Backend)(nil)
var _ execution.Worker = (*Worker)(nil)
var _ execution.ExtraErrorProvider = (*Worker)(nil)
