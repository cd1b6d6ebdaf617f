package execution

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Invocation describes a single bounded call: which target to run, with what
// arguments, and how long the worker may take. It is substrate-agnostic and
// used by all backends.
type Invocation struct {
	ID      string
	Target  string
	Args    []any
	Kwargs  map[string]any
	Timeout time.Duration
}

// NewInvocation returns an Invocation with a fresh ID.
func NewInvocation(target string, timeout time.Duration, args []any, kwargs map[string]any) Invocation {
	return Invocation{
		ID:      uuid.NewString(),
		Target:  target,
		Args:    args,
		Kwargs:  kwargs,
		Timeout: timeout,
	}
}

func (inv Invocation) validate() error {
	if inv.Target == "" {
		return errors.New("no target provided")
	}
	return nil
}

// Outcome is the terminal classification of an invocation.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// Result is the engine-reported outcome. Value is only set for OutcomeOK and
// holds the JSON-encoded return value of the target.
type Result struct {
	InvocationID string
	Target       string
	Outcome      Outcome
	Value        json.RawMessage
	Err          error
	WorkerID     string
	StartedAt    time.Time
	CompletedAt  time.Time
	States       []State
	Resources    Resources
}

// TimedOut reports whether the worker produced no message before the deadline.
func (r Result) TimedOut() bool { return r.Outcome == OutcomeTimeout }

// Decode unmarshals the returned value into v.
func (r Result) Decode(v any) error {
	if r.Outcome != OutcomeOK {
		return errors.New("no value: invocation did not complete ok")
	}
	return json.Unmarshal(r.Value, v)
}

// Duration is the wall-clock time spent between spawn and cleanup.
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Resources is the worker's resource usage, when the backend can report it.
type Resources struct {
	CPUTimeMs int64 `json:"cpu_time_ms"`
	MaxRSSKB  int64 `json:"max_rss_kb"`
}
