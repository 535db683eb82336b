package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/quietloop/repackmon/internal/domain"
)

// Configuration record keys. The file is a single key-value record; the
// watch target is the only value written back by the daemon.
const (
	configFileName = "repackmon.yaml"

	keyWatchTarget = "watch_target"
	keyProcessName = "process_name"
	keyLaunchURL   = "launch_url"
	keyToolRoot    = "tool_root"
	keyListenAddr  = "listen_addr"
)

// DefaultProcessName is the exact, case-sensitive executable name of the
// watched game process.
const DefaultProcessName = "SkyrimSE.exe"

// Settings is the resolved daemon configuration: the persisted watch
// target plus the fixed external constants, overridable for off-target
// testing.
type Settings struct {
	WatchTarget string
	ProcessName string
	LaunchURL   string
	ToolRoot    string
	ListenAddr  string
	PollEvery   time.Duration
}

// ViperTargetStore implements domain.TargetStore on a viper-backed
// key-value file in the user config dir.
type ViperTargetStore struct {
	v    *viper.Viper
	path string
}

// NewTargetStore creates a store against the default config location.
func NewTargetStore() (*ViperTargetStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return NewTargetStoreWithPath(filepath.Join(dir, "repackmon", configFileName))
}

// NewTargetStoreWithPath creates a store against a specific config file
// (for testing).
func NewTargetStoreWithPath(path string) (*ViperTargetStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault(keyProcessName, DefaultProcessName)
	v.SetDefault(keyLaunchURL, DefaultLaunchURL)
	v.SetDefault(keyToolRoot, DefaultToolRoot())
	v.SetDefault(keyListenAddr, "127.0.0.1:7737")

	if err := v.ReadInConfig(); err != nil {
		// A missing file just means nothing has been saved yet.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	return &ViperTargetStore{v: v, path: path}, nil
}

// Load reads the saved watch target. An empty path means no target has
// been saved yet.
func (s *ViperTargetStore) Load() (domain.WatchTarget, error) {
	return domain.WatchTarget{Path: s.v.GetString(keyWatchTarget)}, nil
}

// Save writes the watch target back to the record.
func (s *ViperTargetStore) Save(target domain.WatchTarget) error {
	s.v.Set(keyWatchTarget, target.Path)
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write config %s: %w", s.path, err)
	}
	return nil
}

// Settings resolves the full daemon configuration with defaults applied.
func (s *ViperTargetStore) Settings() Settings {
	return Settings{
		WatchTarget: s.v.GetString(keyWatchTarget),
		ProcessName: s.v.GetString(keyProcessName),
		LaunchURL:   s.v.GetString(keyLaunchURL),
		ToolRoot:    s.v.GetString(keyToolRoot),
		ListenAddr:  s.v.GetString(keyListenAddr),
		PollEvery:   5 * time.Second,
	}
}

// Path returns the config file location (for status output).
func (s *ViperTargetStore) Path() string {
	return s.path
}

// Ensure ViperTargetStore implements domain.TargetStore.
var _ domain.TargetStore = (*ViperTargetStore)(nil)
