package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogPath returns the per-user log file location.
func DefaultLogPath() string {
	return filepath.Join(os.TempDir(), "repackmon.log")
}

// New builds the daemon logger: production JSON config writing to the
// given file with ISO8601 timestamps, every entry mirrored into the feed.
// Falls back to stdout if file logging cannot be set up.
func New(logPath string, feed *Feed) *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{logPath}
	config.ErrorOutputPaths = []string{logPath}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	opts := []zap.Option{}
	if feed != nil {
		opts = append(opts, zap.Hooks(feed.Hook))
	}

	logger, err := config.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction(opts...)
	}
	return logger
}
