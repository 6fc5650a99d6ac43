package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/markdown-to-latex/manager/internal/config"
	"github.com/markdown-to-latex/manager/internal/latex"
	"github.com/markdown-to-latex/manager/internal/logging"
	"github.com/markdown-to-latex/manager/internal/process"
	"github.com/markdown-to-latex/manager/internal/supervisor"
	"github.com/markdown-to-latex/manager/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Rebuild the document whenever a source file changes",
	Long: `Watch the source directories and run the compiler on every change.

While a build is running, a new change either kills it and starts over
(--kill-policy kill) or is ignored until the build finishes
(--kill-policy wait).

Examples:
  md-to-latex watch                              # Watch the configured paths
  md-to-latex watch --path src --path chapters   # Watch custom paths
  md-to-latex watch --kill-policy wait           # Never interrupt a build
  md-to-latex watch --command "npm run build"    # Run a custom command instead`,
	RunE: runWatch,
}

var (
	watchLatex     latexFlags
	watchPolicy    string
	watchDebounce  time.Duration
	watchCommand   string
	watchPaths     []string
	watchPreBuild  string
	watchPostBuild string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	addLatexFlags(watchCmd, &watchLatex)
	watchCmd.Flags().StringVarP(&watchPolicy, "kill-policy", "k", "", "What a change does to a running build: kill or wait")
	watchCmd.Flags().DurationVarP(&watchDebounce, "debounce", "d", 0, "Delay used to group rapid changes (0 disables)")
	watchCmd.Flags().StringVarP(&watchCommand, "command", "c", "", "Shell command to run instead of the LaTeX compiler")
	watchCmd.Flags().StringSliceVarP(&watchPaths, "path", "p", nil, "Path to watch (repeatable)")
	watchCmd.Flags().StringVar(&watchPreBuild, "pre-build", "", "Shell command run before every build")
	watchCmd.Flags().StringVar(&watchPostBuild, "post-build", "", "Shell command run after every successful build")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyWatchFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watch(ctx, cfg, logger, cmd.OutOrStdout())
}

func applyWatchFlags(cmd *cobra.Command, cfg *config.Config) {
	watchLatex.apply(cmd, &cfg.Latex)

	flags := cmd.Flags()
	if flags.Changed("kill-policy") {
		cfg.Watch.KillPolicy = watchPolicy
	}
	if flags.Changed("debounce") {
		cfg.Watch.Debounce = watchDebounce.String()
	}
	if flags.Changed("command") {
		cfg.Watch.Command = watchCommand
	}
	if flags.Changed("path") {
		cfg.Watch.Paths = watchPaths
	}
	if flags.Changed("pre-build") {
		cfg.Hooks.PreBuild = watchPreBuild
	}
	if flags.Changed("post-build") {
		cfg.Hooks.PostBuild = watchPostBuild
	}
}

// watch runs the supervisor until ctx is cancelled or supervision fails.
func watch(ctx context.Context, cfg *config.Config, logger logging.Logger, out io.Writer) error {
	policy, err := supervisor.ParseKillPolicy(cfg.Watch.KillPolicy)
	if err != nil {
		return err
	}
	delay, err := cfg.Watch.DebounceDuration()
	if err != nil {
		return fmt.Errorf("invalid debounce: %w", err)
	}

	supCfg, trigger, err := supervisorConfig(cfg, logger)
	if err != nil {
		return err
	}
	supCfg.KillPolicy = policy
	supCfg.OnFatal = func(err error) {
		fmt.Fprintf(out, "Build supervision stopped: %v\n", err)
	}

	fw, err := watcher.NewFileWatcher(delay, watcher.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	fw.AddFilter(watcher.IgnoreFilter(cfg.Watch.Ignore...))
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)

	watched := 0
	for _, path := range cfg.Watch.Paths {
		if err := fw.AddRecursive(path); err != nil {
			logger.Warn(ctx, err, "failed to watch path", "path", path)
			continue
		}
		fmt.Fprintf(out, "Watching %s\n", path)
		watched++
	}
	if watched == 0 {
		_ = fw.Stop()
		return errors.New("no watchable paths")
	}

	sup, err := supervisor.Start(ctx, supCfg, supervisor.WithLogger(logger))
	if err != nil {
		_ = fw.Stop()
		return err
	}
	if err := sup.Attach(fw); err != nil {
		_ = fw.Stop()
		return err
	}
	if err := fw.Start(ctx); err != nil {
		_ = sup.Stop()
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	fmt.Fprintln(out, "Watching for changes... (Press Ctrl+C to stop)")
	sup.OnChange(trigger, time.Now())

	select {
	case <-ctx.Done():
		fmt.Fprintln(out, "Stopping...")
	case <-sup.Done():
	}

	stopErr := sup.Stop()
	if err := sup.Err(); err != nil {
		return err
	}
	return stopErr
}

// supervisorConfig describes the compiler invocation. The returned trigger
// names the file reported for the initial build.
func supervisorConfig(cfg *config.Config, logger logging.Logger) (supervisor.Config, string, error) {
	builder, err := latex.NewBuilder(cfg.Latex)
	if err != nil {
		return supervisor.Config{}, "", err
	}

	supCfg := supervisor.Config{Dir: builder.Dir}
	trigger := builder.IndexFile

	if cfg.Watch.Command != "" {
		supCfg.Executable = cfg.Watch.Command
		trigger = cfg.Watch.Command
	} else {
		if err := builder.Prepare(); err != nil {
			return supervisor.Config{}, "", err
		}
		supCfg.Executable, supCfg.Args = builder.Command()
	}

	hooks := process.NewRunner(
		process.WithDir(builder.Dir),
		process.WithLogger(logger.WithComponent("hook")),
	)
	supCfg.PreBuild = supervisor.CommandHook(hooks, cfg.Hooks.PreBuild)
	supCfg.PostBuild = supervisor.CommandHook(hooks, cfg.Hooks.PostBuild)

	return supCfg, trigger, nil
}
