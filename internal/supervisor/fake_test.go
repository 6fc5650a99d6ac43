package supervisor

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/markdown-to-latex/manager/internal/logging"
	"github.com/markdown-to-latex/manager/internal/process"
)

type fakeProc struct {
	pid    int
	onExit func(process.Outcome)
	done   chan struct{}
	once   sync.Once
}

func (p *fakeProc) Pid() int              { return p.pid }
func (p *fakeProc) Done() <-chan struct{} { return p.done }

func (p *fakeProc) exit(o process.Outcome) {
	p.once.Do(func() {
		if p.onExit != nil {
			p.onExit(o)
		}
		close(p.done)
	})
}

// fakeRunner records spawns and kills. With killExits set, Terminate makes
// the process exit as killed from a separate goroutine.
type fakeRunner struct {
	mu         sync.Mutex
	procs      []*fakeProc
	terminated []int
	startErr   error
	termErr    error
	killExits  bool
	nextPid    int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{nextPid: 1000}
}

func (r *fakeRunner) Start(_ string, _ []string, onExit func(process.Outcome)) (process.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.startErr != nil {
		return nil, r.startErr
	}
	r.nextPid++
	p := &fakeProc{pid: r.nextPid, onExit: onExit, done: make(chan struct{})}
	r.procs = append(r.procs, p)
	return p, nil
}

func (r *fakeRunner) Terminate(h process.Handle) error {
	r.mu.Lock()
	if r.termErr != nil {
		r.mu.Unlock()
		return r.termErr
	}
	r.terminated = append(r.terminated, h.Pid())
	killExits := r.killExits
	r.mu.Unlock()

	if killExits {
		go h.(*fakeProc).exit(process.Outcome{KilledByUs: true})
	}
	return nil
}

func (r *fakeRunner) spawned() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

func (r *fakeRunner) terminations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.terminated)
}

func (r *fakeRunner) last() *fakeProc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.procs[len(r.procs)-1]
}

func (r *fakeRunner) setStartErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
}

type fakeFeed struct {
	mu      sync.Mutex
	fn      func(string, time.Time)
	stopped int
}

func (f *fakeFeed) Notify(fn func(string, time.Time)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
}

func (f *fakeFeed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeFeed) emit(path string) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	fn(path, time.Now())
}

func exitCode(code int) process.Outcome {
	return process.Outcome{ExitCode: &code}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger(out *syncBuffer) logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:  logging.LevelDebug,
		Format: "text",
		Output: out,
	})
}

func startSupervisor(t *testing.T, cfg Config, runner ProcessRunner, opts ...Option) *Supervisor {
	t.Helper()
	if cfg.Executable == "" {
		cfg.Executable = "xelatex"
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = time.Second
	}
	s, err := Start(t.Context(), cfg, append([]Option{WithRunner(runner)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
