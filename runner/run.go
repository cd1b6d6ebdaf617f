package runner

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"timebox/backend/process"
	"timebox/core/execution"
	"timebox/core/target"
)

// Runner drives a caller-controlled loop of invocations, one worker at a
// time. A failing or timed-out invocation never aborts the loop.
type Runner struct {
	Engine execution.Engine
	Logger logrus.FieldLogger
}

// New returns a Runner backed by the process backend and reg. A nil reg uses target.Default.
func New(reg *target.Registry, opts process.Options, logger logrus.FieldLogger) *Runner {
	if reg == nil {
		reg = target.Default
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		Engine: execution.Engine{
			Backend: process.New(opts),
			Targets: reg,
			Logger:  logger,
		},
		Logger: logger,
	}
}

// Run executes one invocation and folds any failure into the report.
func (r *Runner) Run(ctx context.Context, inv execution.Invocation) Report {
	if inv.ID == "" {
		inv = execution.NewInvocation(inv.Target, inv.Timeout, inv.Args, inv.Kwargs)
	}
	result, err := r.Engine.Execute(ctx, inv)
	report := newReport(inv, result, err)

	log := r.logger().WithFields(logrus.Fields{
		"invocation": inv.ID,
		"target":     inv.Target,
		"outcome":    report.Outcome,
		"duration":   result.Duration().String(),
	})
	if err != nil {
		log.WithError(err).Info("invocation failed")
	} else {
		log.Debug("invocation finished")
	}
	return report
}

// RunAll executes invocations sequentially. It stops early only when ctx is done.
func (r *Runner) RunAll(ctx context.Context, invs []execution.Invocation) []Report {
	reports := make([]Report, 0, len(invs))
	for _, inv := range invs {
		if ctx.Err() != nil {
			break
		}
		reports = append(reports, r.Run(ctx, inv))
	}
	return reports
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Logger != nil {
		return r.Logger
	}
	return logrus.StandardLogger()
}

// Execute runs the named target from target.Default in a fresh worker
// process. It returns the encoded value, nil on timeout, or the target's
// failure.
func Execute(ctx context.Context, name string, timeout time.Duration, args []any, kwargs map[string]any) (json.RawMessage, error) {
	r := New(nil, process.Options{}, nil)
	result, err := r.Engine.Execute(ctx, execution.NewInvocation(name, timeout, args, kwargs))
	if err != nil {
		return nil, err
	}
	if result.TimedOut() {
		return nil, nil
	}
	return result.Value, nil
}

// Call is Execute with the value decoded into T. ok is false on timeout.
func Call[T any](ctx context.Context, name string, timeout time.Duration, args []any, kwargs map[string]any) (value T, ok bool, err error) {
	raw, err := Execute(ctx, name, timeout, args, kwargs)
	if err != nil || raw == nil {
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, errors.Join(errors.New("decode result"), err)
	}
	return value, true, nil
}
