//go:build !windows

package platform

import (
	"errors"
	"os/exec"
	"runtime"
)

func openCommand(path string) (*exec.Cmd, error) {
	if path == "" {
		return nil, errors.New("empty path")
	}
	if runtime.GOOS == "darwin" {
		return exec.Command("open", path), nil
	}
	return exec.Command("xdg-open", path), nil
}
