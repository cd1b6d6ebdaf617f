package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"timebox/core/channel"
	"timebox/core/execution"
	"timebox/core/identity"
	"timebox/worker"
)

// DefaultReapTimeout bounds how long Release waits for a killed worker to be reaped.
const DefaultReapTimeout = 5 * time.Second

type Options struct {
	// Executable is the worker binary. It defaults to the running executable,
	// which must call worker.Main when worker.IsChild reports true.
	Executable string
	// Args are passed to the worker binary.
	Args []string
	// Env is appended to the parent's environment.
	Env         []string
	Stdout      io.Writer
	Stderr      io.Writer
	ReapTimeout time.Duration
}

// Backend launches one worker process per invocation by re-executing a
// binary in worker mode. The request travels on fd 3 and the one-shot
// channel on fd 4.
type Backend struct {
	opts Options
}

func New(opts Options) *Backend {
	if opts.ReapTimeout <= 0 {
		opts.ReapTimeout = DefaultReapTimeout
	}
	return &Backend{opts: opts}
}

func (b *Backend) Name() string { return "process" }

func (b *Backend) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exe, err := b.executable()
	if err != nil {
		return err
	}
	if _, err := os.Stat(exe); err != nil {
		return fmt.Errorf("worker executable: %w", err)
	}
	return nil
}

func (b *Backend) Start(req channel.Request) (execution.Worker, error) {
	exe, err := b.executable()
	if err != nil {
		return nil, err
	}

	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("request pipe: %w", err)
	}
	resR, resW, err := os.Pipe()
	if err != nil {
		closeAll(reqR, reqW)
		return nil, fmt.Errorf("channel pipe: %w", err)
	}

	cmd := exec.Command(exe, b.opts.Args...)
	cmd.Env = append(os.Environ(), b.opts.Env...)
	cmd.Env = append(cmd.Env,
		worker.EnvWorker+"=1",
		worker.EnvInvocation+"="+req.ID,
	)
	stdout := b.opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := b.opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	w := &procWorker{
		invocation:  req.ID,
		cmd:         cmd,
		mailbox:     channel.NewMailbox(),
		exited:      make(chan struct{}),
		finished:    make(chan struct{}),
		reqW:        reqW,
		resR:        resR,
		reapTimeout: b.opts.ReapTimeout,
	}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, &w.stderrBuf)
	cmd.ExtraFiles = []*os.File{reqR, resW}
	cmd.WaitDelay = b.opts.ReapTimeout
	configureWorker(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(reqR, reqW, resR, resW)
		return nil, err
	}
	// The worker holds its own copies now; keeping ours open would hide EOF.
	closeAll(reqR, resW)

	w.id = identity.ForPID(cmd.Process.Pid)

	go w.sendRequest(req)
	go w.readChannel()
	go w.wait()
	go func() {
		<-w.exited
		<-w.mailbox.Settled()
		close(w.finished)
	}()

	return w, nil
}

func (b *Backend) executable() (string, error) {
	if b.opts.Executable != "" {
		return b.opts.Executable, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve worker executable: %w", err)
	}
	return exe, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

var _ execution.WorkerBackend = (*Backend)(nil)
