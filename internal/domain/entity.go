// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// Fingerprint is an opaque digest summarizing a directory's full file
// content in path-sorted order. Identical contents always produce an
// identical value regardless of enumeration order or platform.
// The zero value means "unavailable" and never compares equal to a
// computed digest.
type Fingerprint string

// IsZero reports whether the fingerprint is the unavailable sentinel.
func (f Fingerprint) IsZero() bool {
	return f == ""
}

// WatchTarget is the directory monitored for content changes.
type WatchTarget struct {
	Path string
}

// SessionState holds the in-memory flags the watcher carries across poll
// ticks. It is passed into and returned from each tick so the transition
// function stays pure and testable. A new target save and a
// running->absent transition both reset parts of it.
type SessionState struct {
	// SkipFirstKill suppresses the kill/repack cycle on the first
	// detected launch of a fresh session.
	SkipFirstKill bool

	// HasRepackedOnce flips to true after the first successful forced
	// repack; later cycles compare fingerprints instead.
	HasRepackedOnce bool

	// WarnedKillFailure ensures the user is warned at most once per
	// presence-session when termination fails.
	WarnedKillFailure bool

	// WasRunning tracks target presence from the previous tick so a
	// rising edge can be detected.
	WasRunning bool

	// LastFingerprint is the digest of the watch target as of the last
	// repack or target save. Zero when unavailable.
	LastFingerprint Fingerprint
}

// NewSessionState returns the initial state for a fresh session:
// the first detected launch is skipped and the next real cycle repacks
// unconditionally.
func NewSessionState() SessionState {
	return SessionState{SkipFirstKill: true}
}

// ProcessHandle references the OS process matching the target name.
// Valid only for the duration of one poll tick, never persisted.
type ProcessHandle struct {
	PID  int
	Name string
}

// ToolOutcome classifies how an external tool invocation ended.
type ToolOutcome int

const (
	// ToolCompleted means the tool exited on its own within the ceiling.
	ToolCompleted ToolOutcome = iota
	// ToolTimedOutAndKilled means the tool exceeded the ceiling and was
	// forcibly terminated. Treated as a completed-but-unverified repack.
	ToolTimedOutAndKilled
	// ToolLaunchFailed means the tool was missing or failed to start.
	ToolLaunchFailed
)

// String returns the outcome name for logs and the history journal.
func (o ToolOutcome) String() string {
	switch o {
	case ToolCompleted:
		return "completed"
	case ToolTimedOutAndKilled:
		return "timed_out_and_killed"
	case ToolLaunchFailed:
		return "launch_failed"
	default:
		return "unknown"
	}
}

// ToolResult captures everything about one external tool invocation.
// Failures are values here, never errors thrown past the invoker.
type ToolResult struct {
	Outcome  ToolOutcome
	ExitCode int
	Err      error
	Duration time.Duration
}

// CycleAction names what the watcher decided to do on a rising edge.
type CycleAction string

const (
	// ActionSkippedFirstLaunch: fresh session, flag flipped, nothing else.
	ActionSkippedFirstLaunch CycleAction = "skipped_first_launch"
	// ActionForcedRepack: first real cycle, tool ran unconditionally.
	ActionForcedRepack CycleAction = "forced_repack"
	// ActionConditionalRepack: fingerprint changed, tool ran.
	ActionConditionalRepack CycleAction = "conditional_repack"
	// ActionNoChanges: fingerprint unchanged, tool skipped, relaunched.
	ActionNoChanges CycleAction = "no_changes"
	// ActionKillDeferred: termination failed, cycle deferred to next poll.
	ActionKillDeferred CycleAction = "kill_deferred"
)

// CycleResult records one completed rising-edge cycle for the history
// journal and the status API.
type CycleResult struct {
	Action      CycleAction
	Fingerprint Fingerprint
	Tool        *ToolResult
	Relaunched  bool
	ExecutedAt  time.Time
	Duration    time.Duration
}

// RepackRecord is a persisted history journal entry.
type RepackRecord struct {
	ID          int64
	Action      CycleAction
	Fingerprint Fingerprint
	ToolOutcome string
	Relaunched  bool
	ExecutedAt  time.Time
	DurationMs  int64
}

// LogEvent is a structured log line emitted by the core and consumed by
// the presentation layer through the log feed.
type LogEvent struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}
