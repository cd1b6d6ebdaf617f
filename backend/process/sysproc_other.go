//go:build !unix

package process

import "os/exec"

func configureWorker(cmd *exec.Cmd) {}

func killGroup(pid int) error {
	_ = pid
	return nil
}
