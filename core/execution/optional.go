package execution

import (
	"os"
	"syscall"
)

// ProcessStateProvider is implemented by workers that can expose process resource usage.
type ProcessStateProvider interface {
	ProcessState() *os.ProcessState
}

// ExtraErrorProvider allows workers to surface non-fatal errors collected while running.
type ExtraErrorProvider interface {
	ExtraErrors() []string
}

// ResourcesFromWorker reads CPU time and max RSS from a reaped worker.
func ResourcesFromWorker(w Worker) Resources {
	if psProvider, ok := w.(ProcessStateProvider); ok {
		if ps := psProvider.ProcessState(); ps != nil {
			cpu := ps.UserTime() + ps.SystemTime()
			resources := Resources{
				CPUTimeMs: cpu.Milliseconds(),
			}
			if usage, ok := ps.SysUsage().(*syscall.Rusage); ok {
				resources.MaxRSSKB = int64(usage.Maxrss)
			}
			return resources
		}
	}
	return Resources{}
}
