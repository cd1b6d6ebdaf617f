package execution_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"timebox/backend/fake"
	"timebox/core/execution"
	"timebox/core/failure"
)

type names map[string]bool

func (n names) Has(name string) bool { return n[name] }

func quietLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetOutput(io.Discard)
	return logger, hook
}

func TestEngineReturnsValue(t *testing.T) {
	b := fake.New().Returning(55)
	logger, _ := quietLogger()
	engine := execution.Engine{Backend: b, Logger: logger}

	inv := execution.NewInvocation("fib", 10*time.Second, []any{10}, nil)
	result, err := engine.Execute(context.Background(), inv)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Outcome != execution.OutcomeOK {
		t.Fatalf("outcome %q", result.Outcome)
	}
	var got int
	if err := result.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 55 {
		t.Fatalf("value %d, want 55", got)
	}
	wantStates := []execution.State{
		execution.StateCreated,
		execution.StateRunning,
		execution.StateCompletedOK,
		execution.StateCleanedUp,
	}
	if !equalStates(result.States, wantStates) {
		t.Fatalf("states %v, want %v", result.States, wantStates)
	}
	w := b.Workers()[0]
	if !w.Released() {
		t.Fatal("worker not released")
	}
	if w.Terminated() {
		t.Fatal("finished worker should not be terminated")
	}
}

func TestEnginePropagatesWorkerFailure(t *testing.T) {
	msg := "fib_thrower doesn't like the value 8675309!"
	b := fake.New().Failing(failure.Descriptor{Kind: failure.KindError, Type: "value", Message: msg})
	logger, _ := quietLogger()
	engine := execution.Engine{Backend: b, Logger: logger}

	result, err := engine.Execute(context.Background(), execution.NewInvocation("fib_thrower", time.Second, []any{8675309}, nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != msg {
		t.Fatalf("error %q, want %q", err.Error(), msg)
	}
	var ferr *failure.Error
	if !errors.As(err, &ferr) || ferr.Type != "value" {
		t.Fatalf("error type lost: %#v", err)
	}
	if result.Outcome != execution.OutcomeError {
		t.Fatalf("outcome %q", result.Outcome)
	}
	if last := result.States[len(result.States)-1]; last != execution.StateCleanedUp {
		t.Fatalf("last state %q", last)
	}
}

func TestEngineTimeoutTerminatesWorker(t *testing.T) {
	b := fake.New()
	b.Hang = true
	logger, hook := quietLogger()
	engine := execution.Engine{Backend: b, Logger: logger}

	result, err := engine.Execute(context.Background(), execution.NewInvocation("spin", 20*time.Millisecond, nil, nil))
	if err != nil {
		t.Fatalf("timeout should not be an error: %v", err)
	}
	if !result.TimedOut() {
		t.Fatalf("outcome %q", result.Outcome)
	}
	if result.Value != nil {
		t.Fatalf("unexpected value %s", result.Value)
	}
	w := b.Workers()[0]
	if !w.Terminated() || !w.Released() {
		t.Fatalf("worker terminated=%v released=%v", w.Terminated(), w.Released())
	}
	if w.Alive() {
		t.Fatal("worker still alive after execute")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Message != "invocation timed out" {
		t.Fatalf("missing timeout notice: %+v", entry)
	}
}

func TestEngineSilentExitCollapsesToTimeout(t *testing.T) {
	b := fake.New()
	logger, _ := quietLogger()
	engine := execution.Engine{Backend: b, Logger: logger}

	result, err := engine.Execute(context.Background(), execution.NewInvocation("crash", time.Second, nil, nil))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.TimedOut() {
		t.Fatalf("outcome %q", result.Outcome)
	}
}

func TestEngineZeroTimeoutNeverHangs(t *testing.T) {
	b := fake.New().Returning(1)
	logger, _ := quietLogger()
	engine := execution.Engine{Backend: b, Logger: logger}

	done := make(chan execution.Result, 1)
	go func() {
		result, _ := engine.Execute(context.Background(), execution.NewInvocation("echo", 0, nil, nil))
		done <- result
	}()
	select {
	case result := <-done:
		if result.Outcome != execution.OutcomeOK && result.Outcome != execution.OutcomeTimeout {
			t.Fatalf("outcome %q", result.Outcome)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("zero timeout hung")
	}
}

func TestEngineContextCancel(t *testing.T) {
	b := fake.New()
	b.Hang = true
	logger, _ := quietLogger()
	engine := execution.Engine{Backend: b, Logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	result, err := engine.Execute(ctx, execution.NewInvocation("spin", time.Minute, nil, nil))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err %v, want context.Canceled", err)
	}
	if !b.Workers()[0].Terminated() {
		t.Fatal("worker not terminated on cancel")
	}
	if last := result.States[len(result.States)-1]; last != execution.StateCleanedUp {
		t.Fatalf("last state %q", last)
	}
}

func TestEngineRejectsUnknownTarget(t *testing.T) {
	b := fake.New().Returning(1)
	engine := execution.Engine{Backend: b, Targets: names{"fib": true}}

	_, err := engine.Execute(context.Background(), execution.NewInvocation("nope", time.Second, nil, nil))
	if !errors.Is(err, failure.ErrUnknownTarget) {
		t.Fatalf("err %v, want ErrUnknownTarget", err)
	}
	if len(b.Requests()) != 0 {
		t.Fatal("worker spawned for unknown target")
	}
}

func TestEngineSerializationErrorBeforeSpawn(t *testing.T) {
	b := fake.New().Returning(1)
	engine := execution.Engine{Backend: b}

	_, err := engine.Execute(context.Background(), execution.NewInvocation("echo", time.Second, []any{make(chan int)}, nil))
	if !errors.Is(err, failure.ErrSerialization) {
		t.Fatalf("err %v, want ErrSerialization", err)
	}
	if len(b.Requests()) != 0 {
		t.Fatal("worker spawned for unencodable args")
	}
}

func TestEnginePropagatesStartError(t *testing.T) {
	b := fake.New()
	b.StartErr = errors.New("fork failed")
	engine := execution.Engine{Backend: b}

	_, err := engine.Execute(context.Background(), execution.NewInvocation("echo", time.Second, nil, nil))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEngineReportsReleaseError(t *testing.T) {
	b := fake.New().Returning(1)
	b.ReleaseErr = errors.New("close pipe")
	logger, _ := quietLogger()
	engine := execution.Engine{Backend: b, Logger: logger}

	_, err := engine.Execute(context.Background(), execution.NewInvocation("echo", time.Second, nil, nil))
	if err == nil {
		t.Fatal("expected release error")
	}
}

func TestEngineRequiresTarget(t *testing.T) {
	engine := execution.Engine{Backend: fake.New()}
	if _, err := engine.Execute(context.Background(), execution.Invocation{}); err == nil {
		t.Fatal("expected error for empty target")
	}
}

func TestEngineIdempotentOutcome(t *testing.T) {
	b := fake.New().Returning("same")
	logger, _ := quietLogger()
	engine := execution.Engine{Backend: b, Logger: logger}

	inv := execution.NewInvocation("echo", time.Second, []any{"same"}, nil)
	first, _ := engine.Execute(context.Background(), inv)
	second, _ := engine.Execute(context.Background(), inv)
	if first.Outcome != second.Outcome {
		t.Fatalf("outcomes differ: %q vs %q", first.Outcome, second.Outcome)
	}
	if len(b.Workers()) != 2 {
		t.Fatalf("workers %d, want a fresh worker per call", len(b.Workers()))
	}
}

func equalStates(a, b []execution.State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
