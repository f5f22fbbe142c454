//go:build windows

package platform

import (
	"errors"
	"os/exec"
	"syscall"
)

func openCommand(path string) (*exec.Cmd, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	cmd := exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	return cmd, nil
}
