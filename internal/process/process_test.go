package process

import (
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "github.com/markdown-to-latex/manager/internal/errors"
)

func intPtr(i int) *int { return &i }

func TestOutcome(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		success bool
		code    int
	}{
		{"clean exit", Outcome{ExitCode: intPtr(0)}, true, 0},
		{"failed exit", Outcome{ExitCode: intPtr(1)}, false, 1},
		{"signalled", Outcome{KilledByUs: true}, false, -1},
		{"killed with code", Outcome{ExitCode: intPtr(0), KilledByUs: true}, false, 0},
		{"wait error", Outcome{ExitCode: intPtr(0), Err: errors.New("io")}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.success, tt.outcome.Success())
			assert.Equal(t, tt.code, tt.outcome.Code())
		})
	}
}

func TestCommandLinePOSIX(t *testing.T) {
	tests := []struct {
		name       string
		executable string
		args       []string
		expected   string
	}{
		{"plain", "xelatex", []string{"-interaction=nonstopmode", "index.tex"}, "xelatex -interaction=nonstopmode index.tex"},
		{"executable with own args", "npm run build", nil, "npm run build"},
		{"space in arg", "xelatex", []string{"my thesis.tex"}, "xelatex 'my thesis.tex'"},
		{"single quote", "echo", []string{"it's"}, `echo 'it'\''s'`},
		{"empty arg", "echo", []string{""}, "echo ''"},
		{"shell metachar", "echo", []string{"a;rm -rf"}, "echo 'a;rm -rf'"},
		{"trimmed executable", "  latexmk ", []string{"-pdf"}, "latexmk -pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, commandLine("linux", tt.executable, tt.args))
		})
	}
}

func TestCommandLineWindows(t *testing.T) {
	assert.Equal(t, `xelatex "my thesis.tex"`, commandLine("windows", "xelatex", []string{"my thesis.tex"}))
	assert.Equal(t, `echo "say \"hi\""`, commandLine("windows", "echo", []string{`say "hi"`}))
	assert.Equal(t, `echo ""`, commandLine("windows", "echo", []string{""}))
	assert.Equal(t, `xelatex -output-directory=./out`, commandLine("windows", "xelatex", []string{"-output-directory=./out"}))
}

func TestStartEmptyCommand(t *testing.T) {
	r := NewRunner()

	_, err := r.Start("   ", nil, nil)
	require.Error(t, err)
	assert.True(t, merrors.IsSpawnError(err))
}

func TestStartExecutableNotFound(t *testing.T) {
	r := NewRunner()
	r.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }

	h, err := r.Start("xelatex", []string{"index.tex"}, func(Outcome) {
		t.Fatal("exit callback must not run for a failed spawn")
	})
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, merrors.IsSpawnError(err))
	assert.True(t, merrors.IsRecoverable(err))
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestCheckTargetSkipsShellSyntax(t *testing.T) {
	for _, line := range []string{
		"cd . && true",
		"FOO=1 true",
		"export FOO=1; latexmk",
		"source env.sh && xelatex",
		`"my tool" --flag`,
		"$LATEX index.tex",
		"(cd out && make)",
		"{ true; }",
		"~/bin/latexmk",
		"",
	} {
		_, ok := checkTarget(line, "")
		assert.False(t, ok, line)
	}
}

func TestCheckTargetResolvesAgainstDir(t *testing.T) {
	dir := t.TempDir()

	target, ok := checkTarget("xelatex index.tex", dir)
	require.True(t, ok)
	assert.Equal(t, "xelatex", target)

	target, ok = checkTarget("true && true", dir)
	require.True(t, ok)
	assert.Equal(t, "true", target)

	target, ok = checkTarget(filepath.Join(".", "scripts", "build.sh")+" --fast", dir)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "scripts", "build.sh"), target)

	abs := filepath.Join(dir, "bin", "tool")
	target, ok = checkTarget(abs, "elsewhere")
	require.True(t, ok)
	assert.Equal(t, abs, target)
}

func TestStartLooksUpBareProgramNames(t *testing.T) {
	r := NewRunner()
	var looked []string
	r.lookPath = func(name string) (string, error) {
		looked = append(looked, name)
		return "", exec.ErrNotFound
	}

	_, err := r.Start("xelatex", nil, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"xelatex"}, looked)
}

type foreignHandle struct{}

func (foreignHandle) Pid() int              { return 1 }
func (foreignHandle) Done() <-chan struct{} { return nil }

func TestTerminateForeignHandle(t *testing.T) {
	err := NewRunner().Terminate(foreignHandle{})
	require.Error(t, err)

	var me *merrors.ManagerError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, merrors.ErrCodeTerminate, me.Code)
}

type recordingTerminator struct {
	prepared int
	killed   []int
}

func (r *recordingTerminator) Prepare(*exec.Cmd)       { r.prepared++ }
func (r *recordingTerminator) Terminate(pid int) error { r.killed = append(r.killed, pid); return nil }

func TestTerminateFinishedProcessIsNoop(t *testing.T) {
	term := &recordingTerminator{}
	r := NewRunner(WithTerminator(term))

	p := &Process{pid: 99, done: make(chan struct{})}
	close(p.done)

	require.NoError(t, r.Terminate(p))
	assert.Empty(t, term.killed)
	assert.False(t, p.killRequested.Load())
}
