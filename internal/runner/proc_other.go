//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// Terminate stops p. There is no graceful signal to send here.
func Terminate(p *os.Process) error {
	return p.Kill()
}

func Kill(p *os.Process) error {
	return p.Kill()
}

func exitCode(ps *os.ProcessState) (int, bool) {
	if ps == nil {
		return 0, false
	}
	return ps.ExitCode(), true
}
