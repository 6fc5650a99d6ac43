package cmd

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdown-to-latex/manager/internal/config"
	"github.com/markdown-to-latex/manager/internal/logging"
	"github.com/markdown-to-latex/manager/internal/scaffold"
	"github.com/markdown-to-latex/manager/internal/version"
)

// resetFlags restores every flag of cmd to its default once the test ends.
func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	t.Cleanup(func() {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	})
}

func TestRootRegistersCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"watch", "build", "init", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	for _, flag := range []string{"config", "log-level", "log-format"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestNewLogger(t *testing.T) {
	oldLevel, oldFormat := logLevel, logFormat
	t.Cleanup(func() { logLevel, logFormat = oldLevel, oldFormat })

	var buf bytes.Buffer
	logLevel, logFormat = "debug", "json"
	logger, err := newLogger(&buf)
	require.NoError(t, err)
	logger.Debug(context.Background(), "hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	logFormat = "xml"
	_, err = newLogger(&buf)
	assert.Error(t, err)

	logLevel, logFormat = "loud", "text"
	_, err = newLogger(&buf)
	assert.Error(t, err)
}

func TestApplyWatchFlags(t *testing.T) {
	resetFlags(t, watchCmd)

	require.NoError(t, watchCmd.Flags().Set("kill-policy", "wait"))
	require.NoError(t, watchCmd.Flags().Set("debounce", "1s"))
	require.NoError(t, watchCmd.Flags().Set("path", "src"))
	require.NoError(t, watchCmd.Flags().Set("path", "chapters"))
	require.NoError(t, watchCmd.Flags().Set("post-build", "cp out/index.pdf ."))
	require.NoError(t, watchCmd.Flags().Set("executable", "lualatex"))

	cfg := config.Default()
	cfg.Hooks.PreBuild = "make figures"
	applyWatchFlags(watchCmd, cfg)

	assert.Equal(t, "wait", cfg.Watch.KillPolicy)
	assert.Equal(t, "1s", cfg.Watch.Debounce)
	assert.Equal(t, []string{"src", "chapters"}, cfg.Watch.Paths)
	assert.Equal(t, "cp out/index.pdf .", cfg.Hooks.PostBuild)
	assert.Equal(t, "make figures", cfg.Hooks.PreBuild)
	assert.Equal(t, "lualatex", cfg.Latex.Executable)
	assert.Empty(t, cfg.Watch.Command)
}

func TestApplyWatchFlagsLeavesConfigWhenUnset(t *testing.T) {
	resetFlags(t, watchCmd)

	cfg := config.Default()
	applyWatchFlags(watchCmd, cfg)
	assert.Equal(t, config.Default(), cfg)
}

func TestWatchRejectsInvalidSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Watch.KillPolicy = "pause"
	err := watch(context.Background(), cfg, logging.Nop(), &bytes.Buffer{})
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Watch.Debounce = "soon"
	err = watch(context.Background(), cfg, logging.Nop(), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestWatchRequiresAPath(t *testing.T) {
	cfg := config.Default()
	cfg.Latex.Cwd = t.TempDir()
	cfg.Watch.Paths = []string{filepath.Join(cfg.Latex.Cwd, "missing")}
	cfg.Watch.Command = "echo never"

	err := watch(context.Background(), cfg, logging.Nop(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no watchable paths")
}

func TestSupervisorConfigUsesLatexCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Latex.Cwd = dir
	cfg.Latex.IndexFile = "main.tex"
	cfg.Hooks.PostBuild = "echo done"

	supCfg, trigger, err := supervisorConfig(cfg, logging.Nop())
	require.NoError(t, err)

	assert.Equal(t, "xelatex", supCfg.Executable)
	assert.Equal(t, "main.tex", supCfg.Args[len(supCfg.Args)-1])
	assert.Equal(t, dir, supCfg.Dir)
	assert.Equal(t, "main.tex", trigger)
	assert.Nil(t, supCfg.PreBuild)
	assert.NotNil(t, supCfg.PostBuild)
}

func TestSupervisorConfigUsesCustomCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Latex.Cwd = t.TempDir()
	cfg.Watch.Command = "npm run build"

	supCfg, trigger, err := supervisorConfig(cfg, logging.Nop())
	require.NoError(t, err)
	assert.Equal(t, "npm run build", supCfg.Executable)
	assert.Empty(t, supCfg.Args)
	assert.Equal(t, "npm run build", trigger)
}

func TestBuildRejectsZeroPasses(t *testing.T) {
	err := build(context.Background(), config.Default().Latex, 0, false, logging.Nop(), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestShowConfig(t *testing.T) {
	cfg := config.Default()

	var yamlOut bytes.Buffer
	require.NoError(t, showConfig(&yamlOut, cfg, "yaml"))
	assert.Contains(t, yamlOut.String(), "kill_policy: kill")
	assert.Contains(t, yamlOut.String(), "executable: xelatex")

	var jsonOut bytes.Buffer
	require.NoError(t, showConfig(&jsonOut, cfg, "json"))
	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &decoded))
	assert.Equal(t, "index.tex", decoded["latex"]["index_file"])

	assert.Error(t, showConfig(&bytes.Buffer{}, cfg, "toml"))
}

func TestValidateConfigFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yml")
	require.NoError(t, config.Default().Save(good))
	assert.NoError(t, validateConfigFile(good))

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("latex:\n  packet: mactex\n"), 0644))
	err := validateConfigFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latex.packet")

	err = validateConfigFile(filepath.Join(dir, "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config init")
}

func TestPrintVersion(t *testing.T) {
	info := version.Info{Version: "v1.2.3", Commit: "abcdef123456", GoVersion: "go1.24.4", Platform: "linux/amd64"}

	var out bytes.Buffer
	require.NoError(t, printVersion(&out, info, "text", true))
	assert.Equal(t, "v1.2.3 (abcdef1)\n", out.String())

	out.Reset()
	require.NoError(t, printVersion(&out, info, "text", false))
	assert.Contains(t, out.String(), "md-to-latex v1.2.3")
	assert.Contains(t, out.String(), "platform: linux/amd64")

	out.Reset()
	require.NoError(t, printVersion(&out, info, "json", false))
	assert.Contains(t, out.String(), `"version": "v1.2.3"`)

	assert.Error(t, printVersion(&out, info, "xml", false))
}

func serveBoilerplate(t *testing.T) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"boilerplate-master/package.json":      "{\n  \"name\": \"boilerplate\",\n  \"scripts\": {}\n}\n",
		"boilerplate-master/src/md/main.md":    "# Title\n",
		"boilerplate-master/src/tex/main.tex":  "\\begin{document}\\end{document}\n",
		"boilerplate-master/.vscode/settings":  "{}\n",
		"boilerplate-master/.gitlab-ci.yml":    "build:\n",
		"boilerplate-master/.github/ci.yml":    "on: push\n",
		"boilerplate-master/.idea-configs/x":   "<x/>\n",
		"boilerplate-master/scripts/README.md": "scripts\n",
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/master.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInitProjectNonInteractive(t *testing.T) {
	srv := serveBoilerplate(t)
	cfg := config.Default()
	cfg.Init.BoilerplateURL = srv.URL + "/%s.zip"
	dir := filepath.Join(t.TempDir(), "MyThesis")

	var out bytes.Buffer
	err := initProject(context.Background(), cfg, initOptions{
		Name:        dir,
		Features:    []string{"tex-examples", "vscode-configs"},
		FeaturesSet: true,
		Yes:         true,
		SkipInstall: true,
	}, strings.NewReader(""), &out, logging.Nop())
	require.NoError(t, err)

	pkg, err := os.ReadFile(filepath.Join(dir, "package.json"))
	require.NoError(t, err)
	assert.Contains(t, string(pkg), `"name": "my-thesis"`)

	assert.DirExists(t, filepath.Join(dir, ".vscode"))
	assert.NoDirExists(t, filepath.Join(dir, ".github"))
	assert.NoFileExists(t, filepath.Join(dir, ".gitlab-ci.yml"))
	assert.FileExists(t, filepath.Join(dir, config.FileName))
	assert.Contains(t, out.String(), "Wrote")
}

func TestInitProjectRequiresNameWithYes(t *testing.T) {
	err := initProject(context.Background(), config.Default(), initOptions{Yes: true},
		strings.NewReader(""), &bytes.Buffer{}, logging.Nop())
	assert.Error(t, err)
}

func TestInitProjectRejectsUnknownFeature(t *testing.T) {
	err := initProject(context.Background(), config.Default(), initOptions{
		Name:        filepath.Join(t.TempDir(), "p"),
		Features:    []string{"emacs"},
		FeaturesSet: true,
		Yes:         true,
	}, strings.NewReader(""), &bytes.Buffer{}, logging.Nop())
	assert.Error(t, err)
}

func TestInitProjectWizardAbort(t *testing.T) {
	existing := t.TempDir()

	err := initProject(context.Background(), config.Default(), initOptions{},
		strings.NewReader(existing+"\nn\n"), &bytes.Buffer{}, logging.Nop())
	assert.ErrorIs(t, err, scaffold.ErrAborted)
}

func TestWriteProjectConfigKeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("watch:\n  kill_policy: wait\n"), 0644))

	require.NoError(t, writeProjectConfig(dir, &bytes.Buffer{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "watch:\n  kill_policy: wait\n", string(data))
}
