// Package watcher implements the polling loop and rising-edge state
// machine that sequences fingerprinting, termination, repacking and
// relaunch.
package watcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quietloop/repackmon/internal/domain"
)

// DefaultPollInterval is the fixed cadence between poll ticks. Work time
// is additive to it: the next tick is scheduled after the previous one
// finishes, so ticks never overlap.
const DefaultPollInterval = 5 * time.Second

// Config holds watcher configuration.
type Config struct {
	ProcessName  string        // Exact, case-sensitive target process name
	PollInterval time.Duration // Cadence between ticks
}

// DefaultConfig returns the default watcher configuration for the given
// target process name.
func DefaultConfig(processName string) Config {
	return Config{
		ProcessName:  processName,
		PollInterval: DefaultPollInterval,
	}
}

// Snapshot is a consistent read-only view of the watcher for status
// reporting. It is copied under the same lock the tick loop holds, so it
// is never observed torn.
type Snapshot struct {
	Target    domain.WatchTarget
	State     domain.SessionState
	LastCycle *domain.CycleResult
}

// Watcher owns the poll loop and all session state. Target saves and
// status reads synchronize with the loop through one mutex, so a save
// that swaps the path and resets flags is observed by the next tick as a
// single atomic update.
type Watcher struct {
	config        Config
	controller    domain.ProcessController
	fingerprinter domain.Fingerprinter
	tool          domain.ToolRunner
	launcher      domain.Launcher
	history       domain.HistoryStore
	metrics       *Metrics
	logger        *zap.Logger

	mu        sync.Mutex
	target    domain.WatchTarget
	state     domain.SessionState
	lastCycle *domain.CycleResult
}

// New creates a watcher. history and metrics may be nil; both are
// best-effort observers of the cycle, never participants in it.
func New(
	config Config,
	controller domain.ProcessController,
	fingerprinter domain.Fingerprinter,
	tool domain.ToolRunner,
	launcher domain.Launcher,
	history domain.HistoryStore,
	metrics *Metrics,
	logger *zap.Logger,
) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Watcher{
		config:        config,
		controller:    controller,
		fingerprinter: fingerprinter,
		tool:          tool,
		launcher:      launcher,
		history:       history,
		metrics:       metrics,
		logger:        logger,
		state:         domain.NewSessionState(),
	}
}

// SetTarget atomically installs a new watch target: the session flags are
// reset so the next detected launch forces one unconditional repack, and
// the stored fingerprint is recomputed eagerly. The directory must exist.
func (w *Watcher) SetTarget(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watch target unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch target %s is not a directory", path)
	}

	fp, err := w.fingerprinter.Fingerprint(path)
	if err != nil {
		// Comparison unavailable; the sentinel guarantees the next real
		// comparison reads as a change.
		w.logger.Warn("fingerprint unavailable for new target", zap.Error(err))
		fp = domain.Fingerprint("")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.target = domain.WatchTarget{Path: path}
	w.state = domain.NewSessionState()
	w.state.LastFingerprint = fp

	w.logger.Info("watch target saved",
		zap.String("path", path),
		zap.Bool("fingerprint_available", !fp.IsZero()))
	return nil
}

// Snapshot returns a consistent view of the watcher state.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := Snapshot{Target: w.target, State: w.state}
	if w.lastCycle != nil {
		c := *w.lastCycle
		snap.LastCycle = &c
	}
	return snap
}

// Run drives the poll loop until the context is canceled. No tick failure
// escapes the loop: every error is logged and converted into a deferred
// or degraded action.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher started",
		zap.String("process", w.config.ProcessName),
		zap.Duration("poll_interval", w.config.PollInterval))

	for {
		w.Tick(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return ctx.Err()
		case <-time.After(w.config.PollInterval):
		}
	}
}

// Tick performs one poll cycle. Exported so tests and one-shot commands
// can drive the state machine without the loop.
func (w *Watcher) Tick(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.Ticks.Inc()
	}

	next, cycle := w.advance(ctx, w.state, w.target)
	w.state = next
	if cycle != nil {
		w.lastCycle = cycle
		w.record(*cycle)
	}
}

// advance is the transition function: given the current session state and
// watch target it performs one tick's worth of work and returns the next
// state plus the cycle result if a rising edge was handled.
func (w *Watcher) advance(ctx context.Context, st domain.SessionState, target domain.WatchTarget) (domain.SessionState, *domain.CycleResult) {
	handle, err := w.controller.FindRunning(w.config.ProcessName)
	if err != nil {
		// Cannot tell presence this tick; leave the edge detector alone.
		w.logger.Warn("process query failed", zap.Error(err))
		return st, nil
	}

	if handle == nil {
		st.WarnedKillFailure = false
		st.WasRunning = false
		return st, nil
	}

	if st.WasRunning {
		// Already handled this presence-session's edge.
		return st, nil
	}

	// Rising edge: absent -> present.
	start := time.Now()

	if st.SkipFirstKill {
		st.SkipFirstKill = false
		st.WasRunning = true
		w.logger.Info("skip: first detected launch of session",
			zap.Int("pid", handle.PID))
		return st, &domain.CycleResult{
			Action:      domain.ActionSkippedFirstLaunch,
			Fingerprint: st.LastFingerprint,
			ExecutedAt:  start,
			Duration:    time.Since(start),
		}
	}

	if err := w.controller.Terminate(handle); err != nil {
		// Kill is retried on the next poll of this presence-session, but
		// the user is warned only once.
		if !st.WarnedKillFailure {
			st.WarnedKillFailure = true
			w.logger.Error("could not terminate target process, repack deferred",
				zap.Int("pid", handle.PID),
				zap.Error(err))
		}
		if w.metrics != nil {
			w.metrics.KillFailures.Inc()
		}
		return st, &domain.CycleResult{
			Action:     domain.ActionKillDeferred,
			ExecutedAt: start,
			Duration:   time.Since(start),
		}
	}
	st.WasRunning = true

	cycle := w.repackAndRelaunch(ctx, &st, target)
	cycle.ExecutedAt = start
	cycle.Duration = time.Since(start)
	return st, cycle
}

// repackAndRelaunch runs after a successful termination: forced repack on
// the first cycle of a session, conditional thereafter, then relaunch.
func (w *Watcher) repackAndRelaunch(ctx context.Context, st *domain.SessionState, target domain.WatchTarget) *domain.CycleResult {
	fp, err := w.fingerprinter.Fingerprint(target.Path)
	if err != nil {
		w.logger.Warn("fingerprint unavailable, comparison skipped", zap.Error(err))
		fp = domain.Fingerprint("")
	}

	if !st.HasRepackedOnce {
		return w.forcedRepack(ctx, st, target, fp)
	}
	return w.conditionalRepack(ctx, st, target, fp)
}

// forcedRepack runs the tool unconditionally, ignoring content state.
func (w *Watcher) forcedRepack(ctx context.Context, st *domain.SessionState, target domain.WatchTarget, fp domain.Fingerprint) *domain.CycleResult {
	w.logger.Info("forced repack: first cycle of session",
		zap.String("target", target.Path))

	result := w.runTool(ctx, target)
	if result.Outcome != domain.ToolLaunchFailed {
		st.HasRepackedOnce = true
		st.LastFingerprint = fp
		if w.metrics != nil {
			w.metrics.Repacks.WithLabelValues("forced").Inc()
		}
	}

	return &domain.CycleResult{
		Action:      domain.ActionForcedRepack,
		Fingerprint: fp,
		Tool:        &result,
		Relaunched:  w.relaunch(),
	}
}

// conditionalRepack runs the tool only when the fingerprint moved.
func (w *Watcher) conditionalRepack(ctx context.Context, st *domain.SessionState, target domain.WatchTarget, fp domain.Fingerprint) *domain.CycleResult {
	if fp.IsZero() {
		// Comparison unavailable: store the sentinel so the next real
		// comparison reads as a change, and relaunch without repacking.
		st.LastFingerprint = fp
		return &domain.CycleResult{
			Action:     domain.ActionNoChanges,
			Relaunched: w.relaunch(),
		}
	}

	if fp == st.LastFingerprint {
		w.logger.Info("no changes detected, skipping repack",
			zap.String("target", target.Path))
		return &domain.CycleResult{
			Action:      domain.ActionNoChanges,
			Fingerprint: fp,
			Relaunched:  w.relaunch(),
		}
	}

	w.logger.Info("content changed, repacking",
		zap.String("target", target.Path))

	result := w.runTool(ctx, target)
	if result.Outcome != domain.ToolLaunchFailed {
		st.LastFingerprint = fp
		if w.metrics != nil {
			w.metrics.Repacks.WithLabelValues("conditional").Inc()
		}
	}

	return &domain.CycleResult{
		Action:      domain.ActionConditionalRepack,
		Fingerprint: fp,
		Tool:        &result,
		Relaunched:  w.relaunch(),
	}
}

// runTool invokes the external tool and logs the outcome. Failures are
// values; the cycle continues regardless.
func (w *Watcher) runTool(ctx context.Context, target domain.WatchTarget) domain.ToolResult {
	result := w.tool.Run(ctx, target.Path)

	switch result.Outcome {
	case domain.ToolCompleted:
		w.logger.Info("repack tool completed",
			zap.Int("exit_code", result.ExitCode),
			zap.Duration("duration", result.Duration))
	case domain.ToolTimedOutAndKilled:
		w.logger.Warn("repack tool timed out and was killed",
			zap.Duration("duration", result.Duration))
		if w.metrics != nil {
			w.metrics.ToolTimeouts.Inc()
		}
	case domain.ToolLaunchFailed:
		w.logger.Error("repack tool could not be launched",
			zap.Error(result.Err))
	}

	return result
}

// relaunch fires the launch command and reports whether it was accepted.
func (w *Watcher) relaunch() bool {
	if err := w.launcher.Launch(); err != nil {
		w.logger.Error("failed to relaunch target application", zap.Error(err))
		if w.metrics != nil {
			w.metrics.LaunchFailures.Inc()
		}
		return false
	}
	if w.metrics != nil {
		w.metrics.Relaunches.Inc()
	}
	return true
}

// record appends the cycle to the history journal, best effort.
func (w *Watcher) record(cycle domain.CycleResult) {
	if w.history == nil {
		return
	}

	rec := domain.RepackRecord{
		Action:      cycle.Action,
		Fingerprint: cycle.Fingerprint,
		Relaunched:  cycle.Relaunched,
		ExecutedAt:  cycle.ExecutedAt,
		DurationMs:  cycle.Duration.Milliseconds(),
	}
	if cycle.Tool != nil {
		rec.ToolOutcome = cycle.Tool.Outcome.String()
	}
	if err := w.history.Append(rec); err != nil {
		w.logger.Warn("failed to record cycle in history journal", zap.Error(err))
	}
}
