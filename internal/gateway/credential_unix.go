//go:build unix

package gateway

import (
	"os/exec"
	"syscall"
)

// setCredential makes cmd start as c. Supplementary groups are dropped.
func setCredential(cmd *exec.Cmd, c *Credential) error {
	if c == nil {
		return nil
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: c.UID, Gid: c.GID},
	}
	return nil
}
