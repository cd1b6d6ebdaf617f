//go:build linux

package identity

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type procStat struct {
	state     byte
	startTime uint64
}

func readStat(pid uint32) (procStat, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return procStat{}, err
	}
	// pid (comm) state ppid ... starttime ...; comm may contain spaces and parens.
	payload := string(data)
	idx := strings.LastIndex(payload, ") ")
	if idx == -1 {
		return procStat{}, fmt.Errorf("invalid stat format")
	}
	fields := strings.Fields(payload[idx+2:])
	// starttime is field 22 overall, index 19 after comm.
	if len(fields) < 20 || len(fields[0]) == 0 {
		return procStat{}, fmt.Errorf("short stat payload")
	}
	start, err := strconv.ParseUint(fields[19], 10, 64)
	if err != nil {
		return procStat{}, err
	}
	return procStat{state: fields[0][0], startTime: start}, nil
}

// ProcessStartTime returns the kernel start time (clock ticks since boot) for pid.
func ProcessStartTime(pid uint32) (uint64, error) {
	st, err := readStat(pid)
	if err != nil {
		return 0, err
	}
	return st.startTime, nil
}

// Zombie reports whether pid has exited but not been reaped yet.
func Zombie(pid uint32) bool {
	st, err := readStat(pid)
	if err != nil {
		return false
	}
	return st.state == 'Z'
}
