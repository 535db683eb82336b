// Package infra implements infrastructure concerns (process, fingerprint,
// tool invocation, persistence).
package infra

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/quietloop/repackmon/internal/domain"
)

// ProcessControllerImpl implements domain.ProcessController using gopsutil.
type ProcessControllerImpl struct{}

// NewProcessController creates a new process controller.
func NewProcessController() domain.ProcessController {
	return &ProcessControllerImpl{}
}

// FindRunning returns a handle to the first process whose name exactly
// matches the given name. The match is case-sensitive: the target
// executable name is a fixed constant, not a pattern.
func (pc *ProcessControllerImpl) FindRunning(name string) (*domain.ProcessHandle, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if pname == name {
			return &domain.ProcessHandle{PID: int(p.Pid), Name: pname}, nil
		}
	}

	return nil, nil
}

// Terminate force-kills the process behind the handle (SIGKILL).
func (pc *ProcessControllerImpl) Terminate(handle *domain.ProcessHandle) error {
	if handle == nil {
		return fmt.Errorf("nil process handle")
	}

	p, err := process.NewProcess(int32(handle.PID))
	if err != nil {
		return fmt.Errorf("process %d not found: %w", handle.PID, err)
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("failed to kill pid %d: %w", handle.PID, err)
	}
	return nil
}

// Ensure ProcessControllerImpl implements domain.ProcessController.
var _ domain.ProcessController = (*ProcessControllerImpl)(nil)
