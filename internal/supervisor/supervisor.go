// Package supervisor runs the compiler in response to file changes. A
// single control goroutine owns the build state; change notifications and
// process exits are funnelled to it through one channel.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	merrors "github.com/markdown-to-latex/manager/internal/errors"
	"github.com/markdown-to-latex/manager/internal/logging"
	"github.com/markdown-to-latex/manager/internal/process"
)

// DefaultStopTimeout bounds how long Stop waits for the last process to
// exit after it was killed.
const DefaultStopTimeout = 10 * time.Second

// Hook runs around a build. Errors and panics are logged and swallowed.
type Hook func(ctx context.Context) error

// ProcessRunner spawns and kills compiler processes.
type ProcessRunner interface {
	Start(executable string, args []string, onExit func(process.Outcome)) (process.Handle, error)
	Terminate(h process.Handle) error
}

// Feed delivers change notifications, e.g. a file watcher.
type Feed interface {
	Notify(fn func(path string, at time.Time))
	Stop() error
}

// Config describes what to run and how to react to changes.
type Config struct {
	Executable string
	Args       []string
	Dir        string
	KillPolicy KillPolicy
	PreBuild   Hook
	PostBuild  Hook
	// OnFatal is called once when supervision ends because processes can
	// no longer be spawned. It runs after the feeds are stopped and before
	// Done is closed.
	OnFatal     func(err error)
	StopTimeout time.Duration
}

func (c *Config) validate() error {
	if len(strings.Fields(c.Executable)) == 0 {
		return merrors.NewConfigError("executable must not be empty")
	}
	if c.KillPolicy != KillPolicyKill && c.KillPolicy != KillPolicyWait {
		return merrors.NewConfigError(fmt.Sprintf("invalid kill policy %d", c.KillPolicy))
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return nil
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRunner replaces the process runner.
func WithRunner(r ProcessRunner) Option {
	return func(s *Supervisor) { s.runner = r }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

type eventKind int

const (
	eventChange eventKind = iota
	eventExit
)

type event struct {
	kind       eventKind
	path       string
	at         time.Time
	generation uint64
	outcome    process.Outcome
	reply      chan struct{}
}

// Supervisor reacts to change notifications by starting, killing and
// restarting the compiler.
type Supervisor struct {
	cfg    Config
	runner ProcessRunner
	logger logging.Logger
	errs   *merrors.ErrorHandler

	events  chan event
	stopc   chan struct{}
	closing chan struct{}
	done    chan struct{}

	stopped  atomic.Bool
	stopOnce sync.Once
	// set while OnFatal runs, after everything but closing done
	finishing atomic.Bool

	// owned by the control goroutine
	build  BuildContext
	counts Stats

	mu       sync.Mutex
	stats    Stats
	feeds    []Feed
	fatalErr error
	stopErr  error

	ctx    context.Context
	cancel context.CancelFunc
}

// Start validates cfg and starts the control goroutine. Cancelling ctx
// stops the supervisor.
func Start(ctx context.Context, cfg Config, opts ...Option) (*Supervisor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Supervisor{
		cfg:     cfg,
		logger:  logging.Nop(),
		events:  make(chan event),
		stopc:   make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("supervisor")
	s.errs = merrors.NewErrorHandler(s.logger)
	if s.runner == nil {
		s.runner = process.NewRunner(process.WithDir(cfg.Dir), process.WithLogger(s.logger))
	}

	s.build = BuildContext{
		Executable: cfg.Executable,
		Args:       append([]string(nil), cfg.Args...),
		KillPolicy: cfg.KillPolicy,
		State:      StateIdle,
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	go s.loop()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.done:
		}
	}()

	s.logger.Debug(ctx, "supervisor started",
		"executable", cfg.Executable,
		"kill_policy", cfg.KillPolicy.String())
	return s, nil
}

// OnChange reports a changed path. It returns once the change has been
// acted upon. Changes after Stop are dropped.
func (s *Supervisor) OnChange(path string, at time.Time) {
	if s.stopped.Load() {
		s.logger.Debug(context.Background(), "change after stop ignored", "path", path)
		return
	}

	reply := make(chan struct{})
	select {
	case s.events <- event{kind: eventChange, path: path, at: at, reply: reply}:
	case <-s.closing:
		return
	}

	select {
	case <-reply:
	case <-s.closing:
	}
}

// Attach subscribes the supervisor to feed. The feed is stopped when
// supervision ends.
func (s *Supervisor) Attach(feed Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		return merrors.ErrSupervisorClosed
	}
	feed.Notify(s.OnChange)
	s.feeds = append(s.feeds, feed)
	return nil
}

// Stop kills the running build, detaches all feeds and waits for the
// control goroutine to finish. It is safe to call more than once, and from
// hooks and OnFatal. A hook that is still running when Stop is called has
// its context cancelled and is not waited for.
func (s *Supervisor) Stop() error {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.stopc <- struct{}{}
	})
	if !s.finishing.Load() {
		<-s.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopErr
}

// Done is closed when supervision has ended.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended supervision, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// State returns the current build state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.State
}

// Stats returns a snapshot of the counters.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Supervisor) loop() {
	defer s.shutdown()

	var stopTimeout <-chan time.Time
	for {
		if s.build.Stopped && s.build.Running == nil {
			return
		}

		select {
		case ev := <-s.events:
			switch ev.kind {
			case eventChange:
				s.handleChange(ev)
			case eventExit:
				s.handleExit(ev)
			}
			s.publish()
			if ev.reply != nil {
				close(ev.reply)
			}
		case <-s.stopc:
			s.handleStop()
			s.publish()
		case <-stopTimeout:
			s.logger.Warn(s.ctx, nil, "process did not exit after stop, abandoning it",
				"pid", s.build.Running.Pid())
			return
		}

		if s.build.Stopped && s.build.Running != nil && stopTimeout == nil {
			stopTimeout = time.After(s.cfg.StopTimeout)
		}
	}
}

func (s *Supervisor) handleChange(ev event) {
	b := &s.build
	s.counts.Changes++
	b.lastChange = ev.path

	s.logger.Info(s.ctx, "file updated", "path", ev.path, "at", ev.at.Format(time.RFC3339Nano))

	switch DecideChange(b.State, b.KillPolicy, b.Stopped) {
	case ActionStart:
		s.spawn()
	case ActionTerminate:
		s.terminate()
	case ActionWait:
		s.counts.Waits++
		s.logger.Info(s.ctx, "already building, waiting", "pid", b.Running.Pid())
	default:
		s.counts.Ignored++
		s.logger.Debug(s.ctx, "change ignored", "state", b.State.String(), "stopped", b.Stopped)
	}
}

func (s *Supervisor) handleExit(ev event) {
	b := &s.build
	if b.Running == nil || ev.generation != b.generation {
		s.logger.Debug(s.ctx, "exit of replaced process ignored", "generation", ev.generation)
		return
	}

	prev := b.State
	pid := b.Running.Pid()
	op := b.operation
	b.Running = nil
	b.operation = nil
	s.counts.Exits++

	outcome := ev.outcome
	action := DecideExit(prev, outcome.KilledByUs, b.Stopped)
	b.State = Next(prev, ActionClear)

	if prev == StateTerminating && !outcome.KilledByUs {
		s.errs.Handle(s.ctx, merrors.NewTerminationRace(pid))
	}

	switch {
	case outcome.KilledByUs:
		op.Info(s.ctx, "build terminated", "pid", pid)
	case outcome.Err != nil:
		s.counts.Failures++
		op.EndWithError(s.ctx, outcome.Err, "build could not be waited for", "pid", pid)
	case outcome.Success():
		op.End(s.ctx, "build finished", "pid", pid, "exit_code", 0)
	default:
		s.counts.Failures++
		op.EndWithError(s.ctx, merrors.NewBuildFailedError(outcome.Code()), "build failed",
			"pid", pid, "exit_code", outcome.Code())
	}

	if action == ActionRespawn {
		s.counts.Respawns++
		s.logger.Info(s.ctx, "restarting build", "path", b.lastChange)
		s.spawn()
		return
	}

	if outcome.Success() && !b.Stopped {
		s.runHook("post-build", s.cfg.PostBuild)
	}
}

func (s *Supervisor) handleStop() {
	b := &s.build
	b.Stopped = true
	s.logger.Debug(s.ctx, "stop requested", "state", b.State.String())

	if b.Running != nil && b.State == StateBuilding {
		s.terminate()
	}
}

func (s *Supervisor) spawn() {
	b := &s.build
	s.runHook("pre-build", s.cfg.PreBuild)
	if b.Stopped {
		b.State = StateIdle
		return
	}

	b.generation++
	gen := b.generation
	h, err := s.runner.Start(b.Executable, b.Args, func(o process.Outcome) {
		s.post(event{kind: eventExit, generation: gen, outcome: o})
	})
	if err != nil {
		if merrors.IsFatal(err) {
			s.fail(err)
			return
		}
		s.counts.Failures++
		s.errs.Handle(s.ctx, err, "path", b.lastChange)
		b.State = StateIdle
		return
	}

	b.Running = h
	b.State = StateBuilding
	b.operation = logging.StartOperation(s.logger, "build")
	s.counts.Spawns++
	s.logger.Info(s.ctx, "build started", "pid", h.Pid(), "executable", b.Executable)
}

func (s *Supervisor) terminate() {
	b := &s.build
	if err := s.runner.Terminate(b.Running); err != nil {
		// still Building: the next change retries
		s.errs.Handle(s.ctx, err)
		return
	}
	b.State = StateTerminating
	s.counts.Terminations++
	s.logger.Info(s.ctx, "terminating running build", "pid", b.Running.Pid())
}

// runHook runs hook on its own goroutine so a stop request, including one
// made by the hook itself, is still served while it runs.
func (s *Supervisor) runHook(name string, hook Hook) {
	if hook == nil {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- merrors.RecoverHook(name, func() error { return hook(ctx) })
	}()

	select {
	case err := <-result:
		if err != nil {
			s.counts.HookFailures++
			s.errs.Handle(s.ctx, err)
		}
	case <-s.stopc:
		s.logger.Debug(s.ctx, "stop requested during hook, not waiting for it", "hook", name)
		s.handleStop()
	}
}

func (s *Supervisor) fail(err error) {
	s.errs.Handle(s.ctx, err)
	s.build.Stopped = true
	s.build.State = StateIdle
	s.stopped.Store(true)

	s.mu.Lock()
	s.fatalErr = err
	s.mu.Unlock()
}

func (s *Supervisor) notifyFatal(err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(context.Background(), fmt.Errorf("panic: %v", r), "fatal callback panicked")
		}
	}()
	s.cfg.OnFatal(err)
}

// post delivers an event unless the control goroutine has finished.
func (s *Supervisor) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.closing:
	}
}

func (s *Supervisor) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = s.counts
	s.stats.State = s.build.State
	s.stats.Stopped = s.build.Stopped
}

func (s *Supervisor) shutdown() {
	s.stopped.Store(true)
	close(s.closing)
	s.cancel()

	s.mu.Lock()
	feeds := s.feeds
	s.feeds = nil
	s.mu.Unlock()
	s.publish()

	var errs []error
	for _, feed := range feeds {
		if err := feed.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.stopErr = merrors.Join(errs...)
	fatalErr := s.fatalErr
	s.mu.Unlock()

	if fatalErr != nil && s.cfg.OnFatal != nil {
		s.finishing.Store(true)
		s.notifyFatal(fatalErr)
	}

	s.logger.Debug(context.Background(), "supervisor stopped")
	close(s.done)
}
