package scaffold

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/sync/errgroup"

	merrors "github.com/markdown-to-latex/manager/internal/errors"
	"github.com/markdown-to-latex/manager/internal/logging"
	"github.com/markdown-to-latex/manager/internal/naming"
	"github.com/markdown-to-latex/manager/internal/process"
)

var (
	packageNamePattern = regexp.MustCompile(`"name": +"[^"]+"`)
	tsDependency       = regexp.MustCompile(`( *\n *)?"typescript": "[^"]+",?`)
	tsBuildScript      = regexp.MustCompile(`"ts-build": "[^"]+",?`)
	tsBuildInvocation  = regexp.MustCompile(`npm run ts-build && ?`)

	jsEntrypointBlock  = regexp.MustCompile(`(?s)// Entrypoint for custom script.+// END Entrypoint for custom script`)
	texEntrypointBlock = regexp.MustCompile(`(?s)% Entrypoint for custom script.+% END Entrypoint for custom script`)
	mdShowcaseNumber   = regexp.MustCompile(`\$\$ \\showcaserandomnumber \$\$`)
)

// CommandRunner runs a shell command to completion.
type CommandRunner interface {
	Run(ctx context.Context, executable string, args []string) (process.Outcome, error)
}

// Options configures project creation.
type Options struct {
	// Dir is the project directory; its base name becomes the package name.
	Dir      string
	Branch   string
	URL      string
	Features []Feature
	// SkipInstall skips npm install and prettier.
	SkipInstall bool

	HTTPClient *http.Client
	// Runner runs git and npm inside Dir. Defaults to a process.Runner.
	Runner CommandRunner
	Logger logging.Logger
	// Out receives progress messages.
	Out io.Writer
}

// Project creates and post-processes a boilerplate checkout.
type Project struct {
	opts     Options
	features FeatureSet
	runner   CommandRunner
	logger   logging.Logger
	out      io.Writer
}

// NewProject validates opts and fills in defaults.
func NewProject(opts Options) (*Project, error) {
	if opts.Dir == "" {
		return nil, merrors.NewConfigError("project directory must not be empty")
	}
	if opts.Branch == "" {
		opts.Branch = "master"
	}

	p := &Project{
		opts:     opts,
		features: NewFeatureSet(opts.Features),
		runner:   opts.Runner,
		logger:   opts.Logger,
		out:      opts.Out,
	}
	if p.logger == nil {
		p.logger = logging.Nop()
	}
	p.logger = p.logger.WithComponent("scaffold")
	if p.out == nil {
		p.out = io.Discard
	}
	if p.runner == nil {
		p.runner = process.NewRunner(
			process.WithDir(opts.Dir),
			process.WithLogger(p.logger),
			process.WithLineSink(func(_ int, _ string, line string) { fmt.Fprintln(p.out, line) }),
		)
	}
	return p, nil
}

// Create downloads the boilerplate and runs every post-processing step.
func (p *Project) Create(ctx context.Context) error {
	url := BoilerplateURL(p.opts.URL, p.opts.Branch)

	p.report("Downloading boilerplate from %s", url)
	if err := Download(ctx, p.opts.HTTPClient, url, p.opts.Branch, p.opts.Dir); err != nil {
		return err
	}
	p.report("Filled the directory %s", p.opts.Dir)

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"package.json", p.UpdatePackageJSON},
		{"features", p.ApplyFeatures},
		{"dependencies", p.InstallDependencies},
	}
	for _, step := range steps {
		op := logging.StartOperation(p.logger, step.name)
		if err := step.fn(ctx); err != nil {
			op.EndWithError(ctx, err, "scaffold step failed")
			return err
		}
		op.End(ctx, "scaffold step finished")
	}

	p.report("Project %s has been created. Run `md-to-latex watch` or `npm run build` inside it", p.opts.Dir)
	return nil
}

// UpdatePackageJSON renames the package after the project directory and
// drops TypeScript tooling when the TypeScript feature is not selected.
func (p *Project) UpdatePackageJSON(context.Context) error {
	path := filepath.Join(p.opts.Dir, "package.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return merrors.NewScaffoldError("package.json", err)
	}

	text := packageNamePattern.ReplaceAllLiteralString(string(data),
		fmt.Sprintf(`"name": "%s"`, naming.Slug(p.opts.Dir)))

	if !p.features.Has(FeatureTypeScript) {
		text = tsDependency.ReplaceAllString(text, "")
		text = tsBuildScript.ReplaceAllString(text, "")
		text = tsBuildInvocation.ReplaceAllString(text, "")
		p.report("Removed TypeScript feature from package.json")
	}

	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return merrors.NewScaffoldError("package.json", err)
	}
	return nil
}

// ApplyFeatures removes the parts of the boilerplate that were not
// selected and sets up the selected ones.
func (p *Project) ApplyFeatures(ctx context.Context) error {
	p.report("Setting up features")

	removals := map[Feature][]string{
		FeatureGitHubCIConfigs: {".github"},
		FeatureGitLabCIConfigs: {".gitlab-ci.yml"},
		FeatureVSCodeConfigs:   {".vscode"},
		FeatureIdeaConfigs:     {".idea-configs"},
		FeatureExamples:        {filepath.Join("src", "md")},
		FeatureTypeScript:      {filepath.Join("src", "ts")},
	}

	g, _ := errgroup.WithContext(ctx)
	for feature, paths := range removals {
		if p.features.Has(feature) {
			continue
		}
		for _, rel := range paths {
			target := filepath.Join(p.opts.Dir, rel)
			g.Go(func() error {
				if err := os.RemoveAll(target); err != nil {
					return fmt.Errorf("removing %s: %w", rel, err)
				}
				return nil
			})
		}
		p.report("Removed %s feature", feature)
	}
	if err := g.Wait(); err != nil {
		return merrors.NewScaffoldError("features", err)
	}

	if p.features.Has(FeatureIdeaConfigs) {
		from := filepath.Join(p.opts.Dir, ".idea-configs")
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, filepath.Join(p.opts.Dir, ".idea")); err != nil {
				return merrors.NewScaffoldError("features", err)
			}
			p.report("Installed IDEA feature")
		}
	}

	if !p.features.Has(FeatureTypeScript) {
		if err := p.stripTypeScriptEntrypoint(); err != nil {
			return merrors.NewScaffoldError("features", err)
		}
	}

	if p.features.Has(FeatureCreateGitRepository) {
		p.createGitRepository(ctx)
	}

	p.report("Features setup complete")
	return nil
}

func (p *Project) stripTypeScriptEntrypoint() error {
	edits := []struct {
		rel     string
		pattern *regexp.Regexp
		repl    string
		enabled bool
	}{
		{filepath.Join("scripts", "tex-generate.js"), jsEntrypointBlock, "", true},
		{filepath.Join("src", "tex", "main.tex"), texEntrypointBlock, "", true},
		{filepath.Join("src", "md", "main.md"), mdShowcaseNumber, "Nothing", p.features.Has(FeatureExamples)},
	}

	for _, edit := range edits {
		if !edit.enabled {
			continue
		}
		if err := rewriteFile(filepath.Join(p.opts.Dir, edit.rel), edit.pattern, edit.repl); err != nil {
			if os.IsNotExist(err) {
				p.logger.Debug(context.Background(), "file not in boilerplate, skipping", "file", edit.rel)
				continue
			}
			return err
		}
	}
	p.report("Removed TypeScript entrypoint")
	return nil
}

func (p *Project) createGitRepository(ctx context.Context) {
	outcome, err := p.runner.Run(ctx, "git", []string{"init"})
	switch {
	case merrors.IsSpawnError(err):
		p.report("Git not found. Cannot initialize repository")
	case err != nil:
		p.logger.Warn(ctx, err, "git init failed")
	case !outcome.Success():
		p.logger.Warn(ctx, merrors.NewBuildFailedError(outcome.Code()), "git init failed")
	default:
		p.report("Created Git repository")
	}
}

// InstallDependencies installs the npm dev dependencies and formats the
// project with prettier.
func (p *Project) InstallDependencies(ctx context.Context) error {
	if p.opts.SkipInstall {
		p.report("Skipped installing Node modules")
		return nil
	}

	p.report("Downloading Node modules")
	for _, command := range []string{"npm install -D", "npm run prettier-fix"} {
		outcome, err := p.runner.Run(ctx, command, nil)
		if err != nil {
			return merrors.NewScaffoldError("dependencies", err)
		}
		if !outcome.Success() {
			return merrors.NewScaffoldError("dependencies",
				fmt.Errorf("%q exited with code %d", command, outcome.Code()))
		}
	}
	p.report("Node modules prepared")
	return nil
}

func (p *Project) report(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(p.out, msg)
	p.logger.Debug(context.Background(), msg)
}

func rewriteFile(path string, pattern *regexp.Regexp, repl string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, pattern.ReplaceAll(data, []byte(repl)), info.Mode().Perm())
}
