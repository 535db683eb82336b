package infra

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quietloop/repackmon/internal/domain"
)

// installFakeTool drops a shell script in the expected current/ layout.
func installFakeTool(t *testing.T, root, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("script-based tool fixtures require a POSIX shell")
	}
	dir := filepath.Join(root, ToolSubdir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, ToolExecutableName())
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
}

func TestToolRunner_MissingExecutable(t *testing.T) {
	tr := NewToolRunnerWithRoot(t.TempDir(), time.Second, zap.NewNop())

	result := tr.Run(context.Background(), t.TempDir())

	assert.Equal(t, domain.ToolLaunchFailed, result.Outcome)
	assert.Error(t, result.Err)
}

func TestToolRunner_Completed(t *testing.T) {
	root := t.TempDir()
	installFakeTool(t, root, "exit 0")
	tr := NewToolRunnerWithRoot(root, 5*time.Second, zap.NewNop())

	result := tr.Run(context.Background(), t.TempDir())

	assert.Equal(t, domain.ToolCompleted, result.Outcome)
	assert.Equal(t, 0, result.ExitCode)
}

func TestToolRunner_NonZeroExitIsCompleted(t *testing.T) {
	root := t.TempDir()
	installFakeTool(t, root, "exit 3")
	tr := NewToolRunnerWithRoot(root, 5*time.Second, zap.NewNop())

	result := tr.Run(context.Background(), t.TempDir())

	assert.Equal(t, domain.ToolCompleted, result.Outcome)
	assert.Equal(t, 3, result.ExitCode)
}

func TestToolRunner_TimedOutAndKilled(t *testing.T) {
	root := t.TempDir()
	installFakeTool(t, root, "sleep 30")
	tr := NewToolRunnerWithRoot(root, 200*time.Millisecond, zap.NewNop())

	start := time.Now()
	result := tr.Run(context.Background(), t.TempDir())

	assert.Equal(t, domain.ToolTimedOutAndKilled, result.Outcome)
	assert.Less(t, time.Since(start), 5*time.Second, "timeout must force-kill the tool")
}

func TestToolRunner_ReceivesTargetDirArgument(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "args.txt")
	installFakeTool(t, root, `printf '%s' "$1" > `+out)
	tr := NewToolRunnerWithRoot(root, 5*time.Second, zap.NewNop())

	target := t.TempDir()
	result := tr.Run(context.Background(), target)
	require.Equal(t, domain.ToolCompleted, result.Outcome)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, target, string(got))
}

func TestToolRunner_CreatesMarker(t *testing.T) {
	root := t.TempDir()
	installFakeTool(t, root, "exit 0")
	tr := NewToolRunnerWithRoot(root, 5*time.Second, zap.NewNop())

	tr.Run(context.Background(), t.TempDir())

	_, err := os.Stat(filepath.Join(root, MarkerFileName))
	assert.NoError(t, err, "unattended marker should exist after a run")

	// Creation is idempotent.
	tr.Run(context.Background(), t.TempDir())
	_, err = os.Stat(filepath.Join(root, MarkerFileName))
	assert.NoError(t, err)
}

func TestToolRunner_MarkerCreatedEvenWithoutExecutable(t *testing.T) {
	root := t.TempDir()
	tr := NewToolRunnerWithRoot(root, time.Second, zap.NewNop())

	result := tr.Run(context.Background(), t.TempDir())
	assert.Equal(t, domain.ToolLaunchFailed, result.Outcome)

	_, err := os.Stat(filepath.Join(root, MarkerFileName))
	assert.NoError(t, err)
}
