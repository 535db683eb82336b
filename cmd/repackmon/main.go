// Package main is the CLI entry point for repackmon.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quietloop/repackmon/internal/api"
	"github.com/quietloop/repackmon/internal/domain"
	"github.com/quietloop/repackmon/internal/infra"
	"github.com/quietloop/repackmon/internal/logging"
	"github.com/quietloop/repackmon/internal/watcher"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "repackmon",
	Short: "Watches a mod directory and repacks it on each game launch",
	Long: `repackmon is a daemon that watches for the game to launch. When the
mod directory changed since the last check it kills the game, runs the
AutoPak repacking tool against the directory, and relaunches the game
through its store client. The very first detected launch of a session is
left alone.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the watcher loop in the foreground",
	Long: `Runs the polling loop until interrupted. Also serves the local status
API (status, logs, history, target selection, metrics) on the loopback
interface.`,
	RunE: runRun,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watcher status",
	Long:  `Queries the running daemon's status API and prints the current state.`,
	RunE:  runStatus,
}

var targetCmd = &cobra.Command{
	Use:   "target [path]",
	Short: "Show or save the watch target directory",
	Long: `Without an argument, prints the saved watch target. With a path,
saves it as the new watch target: the running daemon picks it up
atomically and will force one unconditional repack on the next detected
launch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTarget,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent repack cycles",
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	jsonOutput   bool
	historyLimit int
)

func init() {
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of cycles to show")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	store, err := infra.NewTargetStore()
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	settings := store.Settings()

	feed := logging.NewFeed()
	logger := logging.New(logging.DefaultLogPath(), feed)
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	metrics := watcher.NewMetrics(registry)

	var history domain.HistoryStore
	if journal, err := infra.NewHistoryStore(dataDir()); err != nil {
		// The journal is an observer; run degraded without it.
		logger.Warn("history journal unavailable", zap.Error(err))
	} else {
		history = journal
		defer journal.Close()
	}

	w := watcher.New(
		watcher.DefaultConfig(settings.ProcessName),
		infra.NewProcessController(),
		infra.NewDirFingerprinter(),
		infra.NewToolRunnerWithRoot(settings.ToolRoot, infra.DefaultToolTimeout, logger),
		infra.NewStoreLauncher(settings.LaunchURL, logger),
		history,
		metrics,
		logger,
	)

	if settings.WatchTarget != "" {
		if err := w.SetTarget(settings.WatchTarget); err != nil {
			logger.Warn("saved watch target unusable, waiting for a new one",
				zap.String("path", settings.WatchTarget),
				zap.Error(err))
		}
	} else {
		logger.Info("no watch target saved yet, waiting for selection")
	}

	srv := api.NewServer(w, feed, history, store, registry, logger, api.ServerOptions{
		Addr: settings.ListenAddr,
	})
	srv.Start()

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	err = w.Run(ctx)

	if stopErr := srv.Stop(context.Background()); stopErr != nil {
		logger.Warn("api shutdown failed", zap.Error(stopErr))
	}

	if err == context.Canceled {
		return nil
	}
	return err
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status struct {
		Target            string `json:"target"`
		SkipFirstKill     bool   `json:"skip_first_kill"`
		HasRepackedOnce   bool   `json:"has_repacked_once"`
		WarnedKillFailure bool   `json:"warned_kill_failure"`
		TargetRunning     bool   `json:"target_running"`
		LastFingerprint   string `json:"last_fingerprint"`
	}
	if err := apiGet("/v1/status", &status); err != nil {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'repackmon run' to start watching.")
		return nil
	}

	fmt.Println("\n=== repackmon Status ===")
	fmt.Println("Status: RUNNING")
	if status.Target == "" {
		fmt.Println("Watch target: (none saved)")
	} else {
		fmt.Printf("Watch target: %s\n", status.Target)
	}
	fmt.Printf("Game running: %v\n", status.TargetRunning)
	fmt.Printf("First launch pending: %v\n", status.SkipFirstKill)
	fmt.Printf("Repacked this session: %v\n", status.HasRepackedOnce)
	if status.WarnedKillFailure {
		fmt.Println("Warning: could not terminate the game this session")
	}
	if status.LastFingerprint != "" {
		fmt.Printf("Last fingerprint: %s\n", status.LastFingerprint[:12])
	}
	fmt.Println("========================")
	return nil
}

func runTarget(cmd *cobra.Command, args []string) error {
	store, err := infra.NewTargetStore()
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}

	if len(args) == 0 {
		target, _ := store.Load()
		if target.Path == "" {
			fmt.Println("No watch target saved.")
		} else {
			fmt.Println(target.Path)
		}
		return nil
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watch target unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch target %s is not a directory", path)
	}

	// A running daemon applies the save atomically and persists it; fall
	// back to writing the config directly when the daemon is down.
	if err := apiPut("/v1/target", map[string]string{"path": path}); err == nil {
		fmt.Printf("Watch target saved: %s\n", path)
		fmt.Println("The next detected launch will force a repack.")
		return nil
	}

	if err := store.Save(domain.WatchTarget{Path: path}); err != nil {
		return err
	}
	fmt.Printf("Watch target saved: %s (daemon not running)\n", path)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	var records []struct {
		Action      string    `json:"Action"`
		Fingerprint string    `json:"Fingerprint"`
		ToolOutcome string    `json:"ToolOutcome"`
		Relaunched  bool      `json:"Relaunched"`
		ExecutedAt  time.Time `json:"ExecutedAt"`
		DurationMs  int64     `json:"DurationMs"`
	}
	if err := apiGet(fmt.Sprintf("/v1/history?limit=%d", historyLimit), &records); err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No repack cycles recorded yet.")
		return nil
	}

	fmt.Println("\n=== Repack History ===")
	for _, r := range records {
		fp := r.Fingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}
		fmt.Printf("%s  %-20s  tool=%-22s relaunched=%-5v fp=%s\n",
			r.ExecutedAt.Format(time.RFC3339), r.Action, r.ToolOutcome, r.Relaunched, fp)
	}
	fmt.Println("======================")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("repackmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// dataDir is where the history journal and its key live.
func dataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "repackmon")
	}
	return filepath.Join(dir, "repackmon")
}

func apiBase() string {
	store, err := infra.NewTargetStore()
	if err != nil {
		return "http://" + api.DefaultAddress
	}
	return "http://" + store.Settings().ListenAddr
}

func apiGet(path string, out any) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(apiBase() + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiPut(path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, apiBase()+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
