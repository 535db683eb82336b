//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/quietloop/repackmon/internal/domain"
	"github.com/quietloop/repackmon/internal/infra"
	"github.com/quietloop/repackmon/internal/watcher"
)

// fakeGame simulates the watched process: presence is toggled by the
// specs, termination succeeds unless armed to fail.
type fakeGame struct {
	present bool
	killErr error
	kills   int
}

func (g *fakeGame) FindRunning(name string) (*domain.ProcessHandle, error) {
	if !g.present {
		return nil, nil
	}
	return &domain.ProcessHandle{PID: 1001, Name: name}, nil
}

func (g *fakeGame) Terminate(handle *domain.ProcessHandle) error {
	g.kills++
	if g.killErr != nil {
		return g.killErr
	}
	g.present = false
	return nil
}

// countingLauncher records relaunches; each relaunch brings the game back
// at the next poll, like the store client would.
type countingLauncher struct {
	game     *fakeGame
	launches int
}

func (l *countingLauncher) Launch() error {
	l.launches++
	l.game.present = true
	return nil
}

var _ = Describe("Watch cycle", func() {
	var (
		modDir   string
		toolRoot string
		toolLog  string
		game     *fakeGame
		launcher *countingLauncher
		w        *watcher.Watcher
		ctx      context.Context
	)

	installTool := func() {
		dir := filepath.Join(toolRoot, infra.ToolSubdir)
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		script := "#!/bin/sh\necho run >> " + toolLog + "\n"
		path := filepath.Join(dir, infra.ToolExecutableName())
		Expect(os.WriteFile(path, []byte(script), 0o755)).To(Succeed())
	}

	toolRuns := func() int {
		data, err := os.ReadFile(toolLog)
		if err != nil {
			return 0
		}
		runs := 0
		for _, b := range data {
			if b == '\n' {
				runs++
			}
		}
		return runs
	}

	writeMod := func(name, content string) {
		Expect(os.WriteFile(filepath.Join(modDir, name), []byte(content), 0o644)).To(Succeed())
	}

	BeforeEach(func() {
		if runtime.GOOS == "windows" {
			Skip("integration suite uses POSIX shell tool fixtures")
		}

		modDir = GinkgoT().TempDir()
		toolRoot = GinkgoT().TempDir()
		toolLog = filepath.Join(toolRoot, "runs.log")
		installTool()
		writeMod("armor.esp", "v1")

		game = &fakeGame{}
		launcher = &countingLauncher{game: game}
		ctx = context.Background()

		w = watcher.New(
			watcher.DefaultConfig("SkyrimSE.exe"),
			game,
			infra.NewDirFingerprinter(),
			infra.NewToolRunnerWithRoot(toolRoot, 10*time.Second, zap.NewNop()),
			launcher,
			nil,
			nil,
			zap.NewNop(),
		)
		Expect(w.SetTarget(modDir)).To(Succeed())
	})

	It("leaves the first detected launch of a session alone", func() {
		game.present = true
		w.Tick(ctx)

		Expect(game.kills).To(BeZero())
		Expect(toolRuns()).To(BeZero())
		Expect(launcher.launches).To(BeZero())
		Expect(w.Snapshot().State.SkipFirstKill).To(BeFalse())
	})

	It("forces a repack on the second launch then goes conditional", func() {
		game.present = true
		w.Tick(ctx) // first launch: skip
		game.present = false
		w.Tick(ctx) // game exits
		game.present = true
		w.Tick(ctx) // second launch: kill + forced repack + relaunch

		snap := w.Snapshot()
		Expect(game.kills).To(Equal(1))
		Expect(toolRuns()).To(Equal(1))
		Expect(launcher.launches).To(Equal(1))
		Expect(snap.State.HasRepackedOnce).To(BeTrue())
		Expect(snap.State.LastFingerprint.IsZero()).To(BeFalse())
		Expect(snap.LastCycle.Action).To(Equal(domain.ActionForcedRepack))
	})

	It("skips the tool but still relaunches when nothing changed", func() {
		game.present = true
		w.Tick(ctx)
		game.present = false
		w.Tick(ctx)
		game.present = true
		w.Tick(ctx) // forced repack

		game.present = false
		w.Tick(ctx)
		game.present = true
		w.Tick(ctx) // unchanged: no tool run, relaunch only

		Expect(toolRuns()).To(Equal(1))
		Expect(launcher.launches).To(Equal(2))
		Expect(w.Snapshot().LastCycle.Action).To(Equal(domain.ActionNoChanges))
	})

	It("repacks exactly once and advances the fingerprint when a mod changes", func() {
		game.present = true
		w.Tick(ctx)
		game.present = false
		w.Tick(ctx)
		game.present = true
		w.Tick(ctx) // forced repack
		before := w.Snapshot().State.LastFingerprint

		writeMod("armor.esp", "v2")
		game.present = false
		w.Tick(ctx)
		game.present = true
		w.Tick(ctx) // conditional repack

		snap := w.Snapshot()
		Expect(toolRuns()).To(Equal(2))
		Expect(snap.State.LastFingerprint).NotTo(Equal(before))
		Expect(snap.LastCycle.Action).To(Equal(domain.ActionConditionalRepack))
	})

	It("defers the repack and keeps the fingerprint when the kill fails", func() {
		game.present = true
		w.Tick(ctx)
		game.present = false
		w.Tick(ctx)
		game.present = true
		w.Tick(ctx) // forced repack
		before := w.Snapshot().State.LastFingerprint

		writeMod("armor.esp", "v2")
		game.present = false
		w.Tick(ctx)
		game.present = true
		game.killErr = os.ErrPermission
		w.Tick(ctx)

		snap := w.Snapshot()
		Expect(toolRuns()).To(Equal(1))
		Expect(snap.State.WarnedKillFailure).To(BeTrue())
		Expect(snap.State.LastFingerprint).To(Equal(before))
		Expect(snap.LastCycle.Action).To(Equal(domain.ActionKillDeferred))
	})

	It("forces one repack after a target save even when content is unchanged", func() {
		game.present = true
		w.Tick(ctx)
		game.present = false
		w.Tick(ctx)
		game.present = true
		w.Tick(ctx) // forced repack
		Expect(toolRuns()).To(Equal(1))

		// Re-save the same directory: session resets.
		game.present = false
		w.Tick(ctx)
		Expect(w.SetTarget(modDir)).To(Succeed())

		game.present = true
		w.Tick(ctx) // first launch after save: skip
		Expect(toolRuns()).To(Equal(1))

		game.present = false
		w.Tick(ctx)
		game.present = true
		w.Tick(ctx) // forced despite unchanged content

		Expect(toolRuns()).To(Equal(2))
		Expect(w.Snapshot().LastCycle.Action).To(Equal(domain.ActionForcedRepack))
	})
})
