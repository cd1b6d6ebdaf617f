// Package worker is the child side of a bounded invocation: it reads one
// request, runs the named target, and writes exactly one message back.
package worker

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"timebox/core/channel"
	"timebox/core/failure"
	"timebox/core/target"
)

const (
	// EnvWorker marks a process launched as a worker.
	EnvWorker = "TIMEBOX_WORKER"
	// EnvInvocation carries the invocation id, for diagnostics.
	EnvInvocation = "TIMEBOX_INVOCATION"

	// RequestFD and ChannelFD are the inherited descriptors (ExtraFiles 0 and 1).
	RequestFD = 3
	ChannelFD = 4
)

// IsChild reports whether this process was launched as a worker.
func IsChild() bool {
	return os.Getenv(EnvWorker) == "1"
}

// Main serves the single request handed to this worker process and exits.
// Call it before anything else in main or TestMain when IsChild is true.
func Main(reg *target.Registry) {
	log := logrus.WithFields(logrus.Fields{
		"invocation": os.Getenv(EnvInvocation),
		"pid":        os.Getpid(),
	})
	req := os.NewFile(RequestFD, "timebox-request")
	res := os.NewFile(ChannelFD, "timebox-channel")
	if req == nil || res == nil {
		log.Error("worker started without channel descriptors")
		os.Exit(2)
	}
	err := Serve(context.Background(), req, res, reg)
	_ = req.Close()
	if closeErr := res.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		log.WithError(err).Error("worker could not deliver its message")
		os.Exit(1)
	}
	os.Exit(0)
}

// Serve reads one request from r, runs it against reg, and writes exactly one
// message to w. Every failure of the target, including panics and results
// that cannot be encoded, is written as a failure message. The returned error
// only reports a failure to write.
func Serve(ctx context.Context, r io.Reader, w io.Writer, reg *target.Registry) error {
	return channel.WriteMessage(w, handle(ctx, r, reg))
}

func handle(ctx context.Context, r io.Reader, reg *target.Registry) channel.Message {
	req, err := channel.ReadRequest(r)
	if err != nil {
		return channel.Fail(failure.Describe(err))
	}
	if reg == nil {
		reg = target.Default
	}
	fn, err := reg.Lookup(req.Target)
	if err != nil {
		return channel.Fail(failure.UnknownTarget(req.Target).Descriptor)
	}
	return invoke(ctx, fn, target.Call{Args: req.Args, Kwargs: req.Kwargs})
}

func invoke(ctx context.Context, fn target.Func, call target.Call) (msg channel.Message) {
	defer func() {
		if p := recover(); p != nil {
			msg = channel.Fail(failure.DescribePanic(p))
		}
	}()
	value, err := fn(ctx, call)
	if err != nil {
		return channel.Fail(failure.Describe(err))
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return channel.Fail(failure.Serialization("encode result: %v", err).Descriptor)
	}
	return channel.Ok(raw)
}
