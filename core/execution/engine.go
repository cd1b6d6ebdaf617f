package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"timebox/core/channel"
	"timebox/core/failure"
)

// Resolver reports whether a target name can be run by a worker.
type Resolver interface {
	Has(name string) bool
}

// Engine runs one invocation in one worker under a wall-clock budget and
// always cleans the worker up before returning.
type Engine struct {
	Backend WorkerBackend
	Targets Resolver
	Logger  logrus.FieldLogger
}

// Execute runs inv and returns its result. A timeout is not an error: the
// result has OutcomeTimeout and a nil error. A target failure is returned as
// a *failure.Error with OutcomeError.
func (e Engine) Execute(ctx context.Context, inv Invocation) (result Result, err error) {
	result = Result{InvocationID: inv.ID, Target: inv.Target}
	if err := inv.validate(); err != nil {
		result.Err = err
		return result, err
	}
	if e.Backend == nil {
		err := errors.New("backend required")
		result.Err = err
		return result, err
	}
	if e.Targets != nil && !e.Targets.Has(inv.Target) {
		err := failure.UnknownTarget(inv.Target)
		result.Err = err
		return result, err
	}

	req, err := channel.NewRequest(inv.ID, inv.Target, inv.Args, inv.Kwargs)
	if err != nil {
		result.Err = err
		return result, err
	}

	if err := e.Backend.Prepare(ctx); err != nil {
		result.Err = err
		return result, err
	}

	lc := newLifecycle()
	result.StartedAt = time.Now()
	w, err := e.Backend.Start(req)
	if err != nil {
		err = fmt.Errorf("start worker: %w", err)
		result.Err = err
		result.States = lc.history()
		return result, err
	}
	result.WorkerID = w.ID()
	_ = lc.advance(StateRunning)

	defer func() {
		if cleanupErr := e.cleanup(w); cleanupErr != nil {
			e.logger().WithError(cleanupErr).WithFields(logrus.Fields{
				"invocation": inv.ID,
				"worker":     w.ID(),
			}).Error("worker cleanup failed")
			if err == nil {
				err = cleanupErr
				result.Err = err
			}
		}
		_ = lc.advance(StateCleanedUp)
		result.CompletedAt = time.Now()
		result.States = lc.history()
		result.Resources = ResourcesFromWorker(w)
	}()

	w.Join(ctx, inv.Timeout)

	msg, ok := w.Receive()
	switch {
	case !ok:
		_ = lc.advance(StateTimedOut)
		result.Outcome = OutcomeTimeout
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Err = ctxErr
			return result, ctxErr
		}
		e.logger().WithFields(logrus.Fields{
			"invocation": inv.ID,
			"target":     inv.Target,
			"timeout":    inv.Timeout.String(),
		}).Warn("invocation timed out")
		return result, nil
	case msg.Failed():
		_ = lc.advance(StateCompletedError)
		result.Outcome = OutcomeError
		ferr := failure.FromDescriptor(*msg.Err)
		result.Err = ferr
		return result, ferr
	default:
		_ = lc.advance(StateCompletedOK)
		result.Outcome = OutcomeOK
		result.Value = msg.Value
		return result, nil
	}
}

func (e Engine) cleanup(w Worker) error {
	var errs []error
	if w.Alive() {
		if err := w.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("terminate worker: %w", err))
		}
	}
	if err := w.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release worker: %w", err))
	}
	if extra, ok := w.(ExtraErrorProvider); ok {
		for _, msg := range extra.ExtraErrors() {
			e.logger().WithField("worker", w.ID()).Debug(msg)
		}
	}
	return errors.Join(errs...)
}

func (e Engine) logger() logrus.FieldLogger {
	if e.Logger != nil {
		return e.Logger
	}
	return logrus.StandardLogger()
}
