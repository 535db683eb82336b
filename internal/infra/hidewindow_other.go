//go:build !windows

package infra

import "os/exec"

// hideWindow is a no-op outside Windows; there is no console window to
// suppress.
func hideWindow(cmd *exec.Cmd) {}
