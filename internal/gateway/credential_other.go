//go:build !unix

package gateway

import (
	"errors"
	"os/exec"
)

func setCredential(_ *exec.Cmd, c *Credential) error {
	if c == nil {
		return nil
	}
	return errors.New("run_as is not supported on this platform")
}
