package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/markdown-to-latex/manager/internal/config"
	"github.com/markdown-to-latex/manager/internal/logging"
	"github.com/markdown-to-latex/manager/internal/scaffold"
)

var initCmd = &cobra.Command{
	Use:     "init [name]",
	Aliases: []string{"i"},
	Short:   "Create a new MarkDown to LaTeX project from the boilerplate",
	Long: `Download the boilerplate into a new directory, keep the selected
features, install the Node dependencies and write a .mdlatex.yml.

Without --yes the project name and features are asked interactively.

Features:
  vscode-configs, idea-configs, github-ci-configs, gitlab-ci-configs,
  tex-examples, typescript, create-git-repository

Examples:
  md-to-latex init                                   # Interactive setup
  md-to-latex init thesis --yes                      # Default features
  md-to-latex init thesis --yes --features typescript,tex-examples
  md-to-latex init thesis --branch develop --skip-install`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initName        string
	initBranch      string
	initFeatures    []string
	initYes         bool
	initSkipInstall bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVarP(&initName, "name", "n", "", "Project name (directory to create)")
	initCmd.Flags().StringVarP(&initBranch, "branch", "b", "", "Boilerplate branch (default "+config.DefaultBranch+")")
	initCmd.Flags().StringSliceVarP(&initFeatures, "features", "f", nil, "Features to keep (default: the recommended set)")
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Do not ask questions")
	initCmd.Flags().BoolVar(&initSkipInstall, "skip-install", false, "Do not run npm install")
}

type initOptions struct {
	Name        string
	Branch      string
	Features    []string
	FeaturesSet bool
	Yes         bool
	SkipInstall bool
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	opts := initOptions{
		Name:        initName,
		Branch:      initBranch,
		Features:    initFeatures,
		FeaturesSet: cmd.Flags().Changed("features"),
		Yes:         initYes,
		SkipInstall: initSkipInstall,
	}
	if len(args) > 0 {
		opts.Name = args[0]
	}

	err = initProject(cmd.Context(), cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
	if errors.Is(err, scaffold.ErrAborted) {
		fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}
	return err
}

func initProject(ctx context.Context, cfg *config.Config, opts initOptions, in io.Reader, out io.Writer, logger logging.Logger) error {
	name := opts.Name
	features := scaffold.DefaultFeatures()
	if opts.FeaturesSet {
		parsed, err := scaffold.ParseFeatures(opts.Features)
		if err != nil {
			return err
		}
		features = parsed
	}

	if !opts.Yes {
		answers, err := scaffold.NewWizard(in, out).Run(name)
		if err != nil {
			return err
		}
		name = answers.ProjectName
		features = answers.Features
	} else if name == "" {
		return errors.New("a project name is required with --yes")
	}

	branch := opts.Branch
	if branch == "" {
		branch = cfg.Init.Branch
	}

	project, err := scaffold.NewProject(scaffold.Options{
		Dir:         name,
		Branch:      branch,
		URL:         cfg.Init.BoilerplateURL,
		Features:    features,
		SkipInstall: opts.SkipInstall,
		Logger:      logger,
		Out:         out,
	})
	if err != nil {
		return err
	}
	if err := project.Create(ctx); err != nil {
		return err
	}

	return writeProjectConfig(name, out)
}

// writeProjectConfig saves the default configuration into a new project
// unless the boilerplate already ships one.
func writeProjectConfig(dir string, out io.Writer) error {
	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", path)
	return nil
}
