package infra

import (
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/quietloop/repackmon/internal/domain"
)

// DefaultLaunchURL is the store-protocol command that relaunches the
// watched game through its store client.
const DefaultLaunchURL = "steam://rungameid/489830"

// CommandStarter abstracts fire-and-forget command execution for testing.
type CommandStarter interface {
	Start(name string, args ...string) error
}

// RealCommandStarter starts real system commands without waiting.
type RealCommandStarter struct{}

// Start launches a command and does not wait for it to complete.
func (r *RealCommandStarter) Start(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// StoreLauncher implements domain.Launcher by handing the store-protocol
// URL to the platform opener. The store client takes it from there;
// failures are reported but never retried.
type StoreLauncher struct {
	url     string
	starter CommandStarter
	logger  *zap.Logger
}

// NewStoreLauncher creates a launcher for the given store-protocol URL.
func NewStoreLauncher(url string, logger *zap.Logger) *StoreLauncher {
	return &StoreLauncher{url: url, starter: &RealCommandStarter{}, logger: logger}
}

// NewStoreLauncherWithStarter creates a launcher with an injectable
// command starter (for testing).
func NewStoreLauncherWithStarter(url string, starter CommandStarter, logger *zap.Logger) *StoreLauncher {
	return &StoreLauncher{url: url, starter: starter, logger: logger}
}

// Launch fires the launch command once.
func (l *StoreLauncher) Launch() error {
	name, args := openerCommand(l.url)
	if err := l.starter.Start(name, args...); err != nil {
		return fmt.Errorf("failed to launch %s: %w", l.url, err)
	}
	if l.logger != nil {
		l.logger.Info("launch command fired", zap.String("url", l.url))
	}
	return nil
}

// openerCommand returns the platform command that dispatches a protocol
// URL to its registered handler.
func openerCommand(url string) (string, []string) {
	switch runtime.GOOS {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}

// Ensure StoreLauncher implements domain.Launcher.
var _ domain.Launcher = (*StoreLauncher)(nil)
