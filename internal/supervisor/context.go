package supervisor

import (
	"github.com/markdown-to-latex/manager/internal/logging"
	"github.com/markdown-to-latex/manager/internal/process"
)

// BuildContext is the mutable build state of one supervisor. Only the
// control goroutine touches it.
type BuildContext struct {
	Executable string
	Args       []string
	KillPolicy KillPolicy
	State      State
	Running    process.Handle
	Stopped    bool

	// generation numbers spawns so exit notifications of replaced
	// processes can be recognised.
	generation uint64
	lastChange string
	operation  *logging.Operation
}

// Stats counts what a supervisor has done so far.
type Stats struct {
	State        State
	Stopped      bool
	Changes      int
	Spawns       int
	Respawns     int
	Terminations int
	Waits        int
	Ignored      int
	Exits        int
	Failures     int
	HookFailures int
}
