package cmd

import (
	"context"
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
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Compile the document once",
	Long: `Compile the document once and exit with the compiler's status.

LaTeX resolves cross references and the table of contents over several
passes; --times runs the compiler repeatedly and stops at the first
failing pass.

Examples:
  md-to-latex build                  # Single pass
  md-to-latex build --times 2        # Resolve references
  md-to-latex build --clean          # Empty the output directory first`,
	RunE: runBuild,
}

var (
	buildLatex latexFlags
	buildTimes int
	buildClean bool
)

func init() {
	rootCmd.AddCommand(buildCmd)

	addLatexFlags(buildCmd, &buildLatex)
	buildCmd.Flags().IntVarP(&buildTimes, "times", "t", 1, "Number of compiler passes")
	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "Remove the output directory before building")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	buildLatex.apply(cmd, &cfg.Latex)

	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return build(ctx, cfg.Latex, buildTimes, buildClean, logger, cmd.OutOrStdout())
}

func build(ctx context.Context, cfg config.LatexConfig, times int, clean bool, logger logging.Logger, out io.Writer) error {
	if times < 1 {
		return fmt.Errorf("--times must be at least 1, got %d", times)
	}

	builder, err := latex.NewBuilder(cfg)
	if err != nil {
		return err
	}
	if clean {
		if dir := builder.OutputDirectory(); dir != "" {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("failed to clean output directory: %w", err)
			}
		}
	}

	runner := process.NewRunner(
		process.WithDir(builder.Dir),
		process.WithLogger(logger),
	)

	start := time.Now()
	exe, argv := builder.Command()
	fmt.Fprintf(out, "Building %s with %s (%d pass(es))\n", builder.IndexFile, exe, times)
	logger.Debug(ctx, "compiler command", "command", process.CommandLine(exe, argv))

	if err := builder.Run(ctx, runner, times); err != nil {
		return err
	}
	fmt.Fprintf(out, "Build finished in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}
