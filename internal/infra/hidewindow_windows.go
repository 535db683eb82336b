//go:build windows

package infra

import (
	"os/exec"
	"syscall"
)

// hideWindow keeps the tool from flashing a console window.
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
