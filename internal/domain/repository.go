package domain

import "context"

// ProcessController detects and terminates the watched application.
// Implementation: uses gopsutil for cross-platform support.
type ProcessController interface {
	// FindRunning returns a handle to the process whose name exactly
	// matches the target name (case-sensitive), or nil when absent.
	FindRunning(name string) (*ProcessHandle, error)

	// Terminate force-kills the process behind the handle. A failure
	// must be reported, never swallowed: the caller defers the repack
	// cycle and warns the user.
	Terminate(handle *ProcessHandle) error
}

// Fingerprinter computes a deterministic digest over a directory tree.
type Fingerprinter interface {
	// Fingerprint hashes every file under path in byte-wise sorted
	// relative-path order. It fails as a whole if any file becomes
	// unreadable mid-scan; the caller treats that as "comparison
	// unavailable", not "no change".
	Fingerprint(path string) (Fingerprint, error)
}

// ToolRunner invokes the external repacking tool with a bounded wait.
// All failures are captured into the result, nothing escapes this
// boundary.
type ToolRunner interface {
	// Run invokes the tool against the watch target directory and waits
	// up to the configured ceiling, force-killing on timeout.
	Run(ctx context.Context, targetDir string) ToolResult
}

// Launcher relaunches the watched application.
type Launcher interface {
	// Launch fires the store-protocol launch command once. Failures are
	// reported to the user and never retried automatically.
	Launch() error
}

// TargetStore persists the selected watch-target path across runs.
// Implementation: key-value record in the user config dir.
type TargetStore interface {
	// Load reads the saved watch target. Returns an empty target when
	// none has been saved yet.
	Load() (WatchTarget, error)

	// Save writes the watch target on explicit user save.
	Save(target WatchTarget) error
}

// HistoryStore is the append-only journal of completed repack cycles.
// Journal failures are logged by callers and never abort a cycle.
type HistoryStore interface {
	// Append records one completed cycle.
	Append(record RepackRecord) error

	// Recent returns the newest records, most recent first.
	Recent(limit int) ([]RepackRecord, error)

	// Close releases the underlying database connection.
	Close() error
}
