//go:build integration && !windows

package integration_tests

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdown-to-latex/manager/internal/process"
	"github.com/markdown-to-latex/manager/internal/supervisor"
	"github.com/markdown-to-latex/manager/internal/watcher"
)

func startWatching(t *testing.T, dir, src string, cfg supervisor.Config, debounce time.Duration, out *syncBuffer) *supervisor.Supervisor {
	t.Helper()
	logger := newTestLogger(out)

	fw, err := watcher.NewFileWatcher(debounce, watcher.WithLogger(logger))
	require.NoError(t, err)
	fw.AddFilter(watcher.NoEditorTempFilter)
	require.NoError(t, fw.AddRecursive(src))

	cfg.Dir = dir
	sup, err := supervisor.Start(context.Background(), cfg, supervisor.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sup.Stop() })

	require.NoError(t, sup.Attach(fw))
	require.NoError(t, fw.Start(context.Background()))
	return sup
}

func TestIntegration_ChangeTriggersBuildAndPostHook(t *testing.T) {
	dir, src := createSourceTree(t)
	out := &syncBuffer{}

	hooks := process.NewRunner(process.WithDir(dir))
	sup := startWatching(t, dir, src, supervisor.Config{
		Executable: "echo build >> builds.log",
		KillPolicy: supervisor.KillPolicyKill,
		PostBuild:  supervisor.CommandHook(hooks, "echo ok >> hooks.log"),
	}, 50*time.Millisecond, out)

	writeSource(t, src, "main.md", "# Changed\n")

	waitFor(t, "post-build hook", func() bool { return countLines(t, filepath.Join(dir, "hooks.log")) == 1 })
	waitFor(t, "idle after build", func() bool { return sup.State() == supervisor.StateIdle })

	stats := sup.Stats()
	assert.Equal(t, 1, stats.Spawns)
	assert.Equal(t, 0, stats.Terminations)
	assert.Equal(t, 1, countLines(t, filepath.Join(dir, "builds.log")))
}

func TestIntegration_EditDuringBuildKillsAndRestarts(t *testing.T) {
	dir, src := createSourceTree(t)
	out := &syncBuffer{}

	sup := startWatching(t, dir, src, supervisor.Config{
		Executable: "echo start >> builds.log; sleep 5",
		KillPolicy: supervisor.KillPolicyKill,
	}, 100*time.Millisecond, out)

	writeSource(t, src, "main.md", "# One\n")
	waitFor(t, "first build", func() bool { return sup.State() == supervisor.StateBuilding })

	writeSource(t, src, "chapter.md", "# Two\n")
	waitFor(t, "respawn", func() bool { return sup.Stats().Respawns == 1 })

	stats := sup.Stats()
	assert.Equal(t, 1, stats.Terminations)
	assert.Equal(t, 2, stats.Spawns)
	waitFor(t, "second build started", func() bool { return countLines(t, filepath.Join(dir, "builds.log")) == 2 })

	require.NoError(t, sup.Stop())
	assert.Equal(t, supervisor.StateIdle, sup.State())
}

func TestIntegration_WaitPolicyLetsBuildFinish(t *testing.T) {
	dir, src := createSourceTree(t)
	out := &syncBuffer{}

	sup := startWatching(t, dir, src, supervisor.Config{
		Executable: "sleep 1",
		KillPolicy: supervisor.KillPolicyWait,
	}, 100*time.Millisecond, out)

	writeSource(t, src, "main.md", "# One\n")
	waitFor(t, "build running", func() bool { return sup.State() == supervisor.StateBuilding })
	writeSource(t, src, "main.md", "# Two\n")

	waitFor(t, "build finished", func() bool { return sup.State() == supervisor.StateIdle })

	stats := sup.Stats()
	assert.Equal(t, 1, stats.Spawns)
	assert.Zero(t, stats.Terminations)
	assert.GreaterOrEqual(t, stats.Waits, 1)
	assert.True(t, strings.Contains(out.String(), "already building, waiting"))
}
