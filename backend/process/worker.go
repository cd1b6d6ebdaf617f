package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"timebox/core/channel"
	"timebox/core/execution"
	"timebox/core/identity"
)

type procWorker struct {
	id          identity.WorkerID
	invocation  string
	cmd         *exec.Cmd
	mailbox     *channel.Mailbox
	exited      chan struct{}
	finished    chan struct{}
	reqW        *os.File
	resR        *os.File
	reapTimeout time.Duration
	stderrBuf   bytes.Buffer

	mu       sync.Mutex
	waitErr  error
	extra    []string
	released bool

	releaseOnce sync.Once
	releaseErr  error
}

func (w *procWorker) ID() string { return w.id.String() }
func (w *procWorker) PID() int   { return int(w.id.PID) }

func (w *procWorker) sendRequest(req channel.Request) {
	err := channel.WriteRequest(w.reqW, req)
	_ = w.reqW.Close()
	if err != nil && !w.isReleased() {
		w.addExtra(fmt.Sprintf("request: %v", err))
	}
}

func (w *procWorker) readChannel() {
	defer w.mailbox.Close()
	msg, err := channel.ReadMessage(w.resR)
	if err == nil {
		w.mailbox.Deliver(msg)
		return
	}
	if !errors.Is(err, io.EOF) && !w.isReleased() {
		w.addExtra(fmt.Sprintf("channel: %v", err))
	}
}

func (w *procWorker) wait() {
	err := w.cmd.Wait()
	w.mu.Lock()
	w.waitErr = err
	w.mu.Unlock()
	close(w.exited)
}

func (w *procWorker) Join(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-w.finished:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.finished:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *procWorker) Receive() (channel.Message, bool) {
	return w.mailbox.TryReceive()
}

func (w *procWorker) Alive() bool {
	select {
	case <-w.exited:
		return false
	default:
		return true
	}
}

func (w *procWorker) Terminate() error {
	if w.cmd.Process == nil {
		return nil
	}
	_ = killGroup(w.cmd.Process.Pid)
	if err := w.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Release waits for the worker to be reaped, kills anything left in its
// process group, and tears the channel down. Messages written after this
// point are discarded.
func (w *procWorker) Release() error {
	w.releaseOnce.Do(func() {
		w.mu.Lock()
		w.released = true
		w.mu.Unlock()

		timer := time.NewTimer(w.reapTimeout)
		defer timer.Stop()
		select {
		case <-w.exited:
		case <-timer.C:
			w.releaseErr = fmt.Errorf("worker %s not reaped after %s", w.id, w.reapTimeout)
		}
		if w.cmd.Process != nil {
			if err := killGroup(w.cmd.Process.Pid); err != nil {
				w.addExtra(fmt.Sprintf("kill group: %v", err))
			}
		}
		w.mailbox.Close()
		closeAll(w.reqW, w.resR)
	})
	return w.releaseErr
}

func (w *procWorker) isReleased() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

func (w *procWorker) addExtra(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extra = append(w.extra, msg)
}

func (w *procWorker) ExtraErrors() []string {
	w.mu.Lock()
	out := append([]string(nil), w.extra...)
	waitErr := w.waitErr
	w.mu.Unlock()

	if w.Alive() {
		return out
	}
	if waitErr != nil {
		out = append(out, fmt.Sprintf("exit: %v", waitErr))
	}
	if tail := strings.TrimSpace(w.stderrBuf.String()); tail != "" {
		out = append(out, "stderr: "+lastLine(tail))
	}
	return out
}

// ProcessState is only available once the worker was reaped.
func (w *procWorker) ProcessState() *os.ProcessState {
	if w.Alive() {
		return nil
	}
	return w.cmd.ProcessState
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

var _ execution.Worker = (*procWorker)(nil)
var _ execution.ExtraErrorProvider = (*procWorker)(nil)
var _ execution.ProcessStateProvider = (*procWorker)(nil)
