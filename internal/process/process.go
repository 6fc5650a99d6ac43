// Package process starts external compiler processes through the platform
// shell, forwards their output line by line, and terminates them with the
// OS-appropriate forced kill.
package process

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	merrors "github.com/markdown-to-latex/manager/internal/errors"
	"github.com/markdown-to-latex/manager/internal/logging"
)

// maxLineSize bounds a single forwarded output line. LaTeX can print very
// long overfull-box lines.
const maxLineSize = 1024 * 1024

// Outcome describes how a spawned process ended.
type Outcome struct {
	// ExitCode is nil when the process was ended by a signal.
	ExitCode *int
	// KilledByUs is true when the process died because of our own
	// terminate request.
	KilledByUs bool
	// Err carries a wait failure that is not a plain non-zero exit.
	Err error
}

// Success reports a natural exit with code 0.
func (o Outcome) Success() bool {
	return !o.KilledByUs && o.Err == nil && o.ExitCode != nil && *o.ExitCode == 0
}

// notFound reports the exit code the shell uses for an unknown command.
func (o Outcome) notFound() bool {
	return !o.KilledByUs && o.ExitCode != nil && *o.ExitCode == shellNotFoundCode
}

// Code returns the exit code, or -1 when there is none.
func (o Outcome) Code() int {
	if o.ExitCode == nil {
		return -1
	}
	return *o.ExitCode
}

// Handle references a spawned process.
type Handle interface {
	Pid() int
	// Done is closed after the process has been reaped and its exit
	// callback has returned.
	Done() <-chan struct{}
}

// Terminator is the platform kill capability.
type Terminator interface {
	// Prepare adjusts the command before start, e.g. to give it its own
	// process group.
	Prepare(cmd *exec.Cmd)
	// Terminate requests a forced kill of pid and its children. It does
	// not wait for the process to die.
	Terminate(pid int) error
}

// LineSink receives one line of child output. stream is "stdout" or "stderr".
type LineSink func(pid int, stream, line string)

// Process is a running (or finished) child started by a Runner.
type Process struct {
	cmd           *exec.Cmd
	pid           int
	commandLine   string
	killRequested atomic.Bool
	done          chan struct{}
	outcome       Outcome
}

// Pid returns the OS process id.
func (p *Process) Pid() int { return p.pid }

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// CommandLine returns the shell line the process was started with.
func (p *Process) CommandLine() string { return p.commandLine }

// Outcome returns the exit outcome. It is only meaningful after Done.
func (p *Process) Outcome() Outcome {
	<-p.done
	return p.outcome
}

// Runner spawns and terminates compiler processes.
type Runner struct {
	dir        string
	env        []string
	logger     logging.Logger
	sink       LineSink
	terminator Terminator
	lookPath   func(string) (string, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithDir sets the working directory of spawned processes.
func WithDir(dir string) Option {
	return func(r *Runner) { r.dir = dir }
}

// WithEnv appends KEY=VALUE entries to the inherited environment.
func WithEnv(env ...string) Option {
	return func(r *Runner) { r.env = append(r.env, env...) }
}

// WithLogger sets the logger used for lifecycle messages and, unless a
// LineSink is given, for child output.
func WithLogger(logger logging.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithLineSink overrides where child output lines go.
func WithLineSink(sink LineSink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithTerminator replaces the platform kill implementation.
func WithTerminator(t Terminator) Option {
	return func(r *Runner) { r.terminator = t }
}

// NewRunner creates a runner using the platform terminator.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger:     logging.Nop(),
		terminator: newPlatformTerminator(),
		lookPath:   exec.LookPath,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("process")
	if r.sink == nil {
		compiler := r.logger.WithComponent("compiler")
		r.sink = func(pid int, stream, line string) {
			compiler.Info(context.Background(), line, "stream", stream, "pid", pid)
		}
	}
	return r
}

// Start spawns executable with args through the platform shell and returns
// without waiting for it. executable may itself be a shell command line
// ("npm run build"); args are quoted. onExit, when non-nil, is called
// exactly once from a background goroutine after the output streams have
// been drained and the process has been reaped.
func (r *Runner) Start(executable string, args []string, onExit func(Outcome)) (Handle, error) {
	if strings.TrimSpace(executable) == "" {
		return nil, merrors.NewSpawnError(executable, errors.New("empty command"))
	}
	line := CommandLine(executable, args)
	if target, ok := checkTarget(line, r.dir); ok {
		if _, err := r.lookPath(target); err != nil {
			return nil, merrors.NewSpawnError(target, err)
		}
	}

	cmd := shellCommand(line)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}
	r.terminator.Prepare(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, merrors.NewMissingStreamsError(executable, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, merrors.NewMissingStreamsError(executable, err)
	}

	if err := cmd.Start(); err != nil {
		if isFatalSpawn(err) {
			return nil, merrors.NewFatalSpawnError(executable, err)
		}
		return nil, merrors.NewSpawnError(executable, err)
	}

	p := &Process{
		cmd:         cmd,
		pid:         cmd.Process.Pid,
		commandLine: line,
		done:        make(chan struct{}),
	}
	r.logger.Debug(context.Background(), "process started", "pid", p.pid, "command", line)

	go r.wait(p, stdout, stderr, onExit)

	return p, nil
}

func (r *Runner) wait(p *Process, stdout, stderr io.Reader, onExit func(Outcome)) {
	var g errgroup.Group
	g.Go(func() error { return r.pump(p.pid, "stdout", stdout) })
	g.Go(func() error { return r.pump(p.pid, "stderr", stderr) })
	if err := g.Wait(); err != nil {
		r.logger.Warn(context.Background(), err, "output stream read failed", "pid", p.pid)
	}

	waitErr := p.cmd.Wait()
	p.outcome = r.outcome(p, waitErr)

	r.logger.Debug(context.Background(), "process exited",
		"pid", p.pid,
		"exit_code", p.outcome.Code(),
		"killed_by_us", p.outcome.KilledByUs)
	if p.outcome.notFound() {
		r.logger.Warn(context.Background(), nil, "shell could not find the command",
			"pid", p.pid, "command", p.commandLine)
	}

	if onExit != nil {
		onExit(p.outcome)
	}
	close(p.done)
}

func (r *Runner) outcome(p *Process, waitErr error) Outcome {
	var out Outcome
	state := p.cmd.ProcessState

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			out.Err = waitErr
		}
	}

	if state != nil {
		if killedBySignal(state) {
			out.KilledByUs = p.killRequested.Load()
		} else {
			code := state.ExitCode()
			out.ExitCode = &code
			out.KilledByUs = p.killRequested.Load() && forcedExitIsIndistinguishable
		}
	}

	return out
}

func (r *Runner) pump(pid int, stream string, rd io.Reader) error {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		r.sink(pid, stream, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		// keep draining so the child never blocks on a full pipe
		_, _ = io.Copy(io.Discard, rd)
		return err
	}
	return nil
}

// Terminate requests a forced kill of the process behind h. It returns
// immediately; the exit callback reports the death.
func (r *Runner) Terminate(h Handle) error {
	p, ok := h.(*Process)
	if !ok || p == nil {
		return merrors.NewTerminateError(-1, errors.New("handle was not created by this runner"))
	}

	select {
	case <-p.done:
		return nil
	default:
	}

	p.killRequested.Store(true)
	if err := r.terminator.Terminate(p.pid); err != nil {
		return merrors.NewTerminateError(p.pid, err)
	}
	r.logger.Debug(context.Background(), "terminate requested", "pid", p.pid)
	return nil
}

// Run starts the command and blocks until it exits. Cancelling ctx
// terminates the process; Run still waits for it to be reaped. A command
// the shell could not find is reported as a spawn error.
func (r *Runner) Run(ctx context.Context, executable string, args []string) (Outcome, error) {
	h, err := r.Start(executable, args, nil)
	if err != nil {
		return Outcome{}, err
	}
	p := h.(*Process)

	select {
	case <-p.done:
		if p.outcome.notFound() {
			return p.outcome, merrors.NewSpawnError(executable, errors.New("command not found"))
		}
		return p.outcome, nil
	case <-ctx.Done():
		if err := r.Terminate(p); err != nil {
			r.logger.Warn(ctx, err, "terminate failed")
		}
		<-p.done
		return p.outcome, ctx.Err()
	}
}
