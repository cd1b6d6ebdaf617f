//go:build unix

package identity

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Alive probes the process table with signal 0. Zombies count as alive until reaped.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
