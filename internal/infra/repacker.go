package infra

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/quietloop/repackmon/internal/domain"
)

// External tool layout constants. The tool installs itself under the user
// local-data directory with a versioned "current" subfolder. The marker
// file's mere presence switches the tool into unattended mode; its content
// is irrelevant.
const (
	ToolDirName    = "AutoPak"
	ToolSubdir     = "current"
	MarkerFileName = ".headless"

	// DefaultToolTimeout is the ceiling for one tool invocation. A run
	// that exceeds it is force-killed and treated as completed but
	// unverified.
	DefaultToolTimeout = 30 * time.Second
)

// ToolExecutableName returns the platform-specific tool binary name.
func ToolExecutableName() string {
	if runtime.GOOS == "windows" {
		return "AutoPak.exe"
	}
	return "AutoPak"
}

// DefaultToolRoot resolves the tool's installation root under the user
// local-data path.
func DefaultToolRoot() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, ToolDirName)
}

// ToolRunnerImpl implements domain.ToolRunner by shelling out to the
// repacking tool with a bounded wait. No failure escapes Run: everything
// is folded into the ToolResult.
type ToolRunnerImpl struct {
	root    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewToolRunner creates a tool runner against the default install root.
func NewToolRunner(logger *zap.Logger) *ToolRunnerImpl {
	return NewToolRunnerWithRoot(DefaultToolRoot(), DefaultToolTimeout, logger)
}

// NewToolRunnerWithRoot creates a tool runner with a custom root and
// timeout (for testing).
func NewToolRunnerWithRoot(root string, timeout time.Duration, logger *zap.Logger) *ToolRunnerImpl {
	return &ToolRunnerImpl{root: root, timeout: timeout, logger: logger}
}

// ExecutablePath returns the resolved path of the tool binary.
func (tr *ToolRunnerImpl) ExecutablePath() string {
	return filepath.Join(tr.root, ToolSubdir, ToolExecutableName())
}

// Run invokes the tool with the watch target directory as its single
// argument and waits up to the ceiling, force-killing on timeout.
func (tr *ToolRunnerImpl) Run(ctx context.Context, targetDir string) domain.ToolResult {
	tr.ensureMarker()

	exePath := tr.ExecutablePath()
	if _, err := os.Stat(exePath); err != nil {
		return domain.ToolResult{
			Outcome: domain.ToolLaunchFailed,
			Err:     err,
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, tr.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, exePath, targetDir)
	hideWindow(cmd)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return domain.ToolResult{
			Outcome:  domain.ToolTimedOutAndKilled,
			Err:      runCtx.Err(),
			Duration: elapsed,
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Tool ran to completion with a non-zero exit code.
			return domain.ToolResult{
				Outcome:  domain.ToolCompleted,
				ExitCode: exitErr.ExitCode(),
				Duration: elapsed,
			}
		}
		return domain.ToolResult{
			Outcome:  domain.ToolLaunchFailed,
			Err:      err,
			Duration: elapsed,
		}
	}

	return domain.ToolResult{
		Outcome:  domain.ToolCompleted,
		ExitCode: 0,
		Duration: elapsed,
	}
}

// ensureMarker creates the unattended-mode marker at the tool root if
// absent. Failure to create it is logged, not fatal: the tool still runs,
// possibly interactively.
func (tr *ToolRunnerImpl) ensureMarker() {
	markerPath := filepath.Join(tr.root, MarkerFileName)
	if _, err := os.Stat(markerPath); err == nil {
		return
	}
	if err := os.MkdirAll(tr.root, 0o755); err != nil {
		tr.logWarn("could not create tool root for marker", zap.Error(err))
		return
	}
	if err := os.WriteFile(markerPath, nil, 0o644); err != nil {
		tr.logWarn("could not create unattended marker", zap.Error(err))
	}
}

func (tr *ToolRunnerImpl) logWarn(msg string, fields ...zap.Field) {
	if tr.logger != nil {
		tr.logger.Warn(msg, fields...)
	}
}

// Ensure ToolRunnerImpl implements domain.ToolRunner.
var _ domain.ToolRunner = (*ToolRunnerImpl)(nil)
