//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// A SIGKILL shows up as a signal in the wait status, so natural exits and
// our kills can be told apart.
const forcedExitIsIndistinguishable = false

// shellNotFoundCode is the exit code of a shell asked to run an unknown
// command.
const shellNotFoundCode = 127

type signalTerminator struct{}

func newPlatformTerminator() Terminator {
	return signalTerminator{}
}

// Prepare puts the shell in its own process group so the compiler it
// starts is killed together with it.
func (signalTerminator) Prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Terminate sends SIGKILL to the process group, falling back to the
// process itself.
func (signalTerminator) Terminate(pid int) error {
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}

func shellCommand(line string) *exec.Cmd {
	return exec.Command("/bin/sh", "-c", line)
}

func killedBySignal(state *os.ProcessState) bool {
	ws, ok := state.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled()
}

func isFatalSpawn(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOMEM)
}
