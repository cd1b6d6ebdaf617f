package identity

import (
	"fmt"
	"strconv"
	"strings"
)

// WorkerID identifies one worker process. The start time disambiguates pid reuse.
type WorkerID struct {
	PID       uint32
	StartTime uint64
}

// ForPID resolves the start time of a running pid. When the start time cannot
// be read the id falls back to the bare pid.
func ForPID(pid int) WorkerID {
	id := WorkerID{PID: uint32(pid)}
	if start, err := ProcessStartTime(uint32(pid)); err == nil {
		id.StartTime = start
	}
	return id
}

func (id WorkerID) IsZero() bool {
	return id.PID == 0
}

func (id WorkerID) String() string {
	if id.PID == 0 {
		return ""
	}
	if id.StartTime == 0 {
		return fmt.Sprintf("pid:%d", id.PID)
	}
	return fmt.Sprintf("pid:%d:start:%d", id.PID, id.StartTime)
}

// ParseWorkerID decodes a worker id string (pid:<pid> or pid:<pid>:start:<start>).
func ParseWorkerID(value string) (WorkerID, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "pid:") {
		return WorkerID{}, fmt.Errorf("unknown worker id format")
	}
	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 && (len(parts) != 4 || parts[2] != "start") {
		return WorkerID{}, fmt.Errorf("invalid pid worker id format")
	}
	pid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return WorkerID{}, err
	}
	id := WorkerID{PID: uint32(pid)}
	if len(parts) == 4 {
		start, err := strconv.ParseUint(parts[3], 10, 64)
		if err != nil {
			return WorkerID{}, err
		}
		id.StartTime = start
	}
	return id, nil
}

// Running reports whether the process named by id still exists and is the
// same process, i.e. its pid was not recycled.
func (id WorkerID) Running() bool {
	if id.PID == 0 || !Alive(int(id.PID)) {
		return false
	}
	if id.StartTime == 0 {
		return true
	}
	start, err := ProcessStartTime(id.PID)
	if err != nil {
		return false
	}
	return start == id.StartTime
}
