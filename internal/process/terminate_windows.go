//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// taskkill /F makes the process exit with code 1, which looks like any
// other failing exit; a pending kill request decides.
const forcedExitIsIndistinguishable = true

// shellNotFoundCode is the exit code of a shell asked to run an unknown
// command.
const shellNotFoundCode = 9009

type taskkillTerminator struct{}

func newPlatformTerminator() Terminator {
	return taskkillTerminator{}
}

func (taskkillTerminator) Prepare(*exec.Cmd) {}

// Terminate runs taskkill against the whole process tree. The utility is
// started and reaped in the background.
func (taskkillTerminator) Terminate(pid int) error {
	kill := exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T", "/F")
	if err := kill.Start(); err != nil {
		return err
	}
	go func() { _ = kill.Wait() }()
	return nil
}

func shellCommand(line string) *exec.Cmd {
	cmd := exec.Command("cmd.exe")
	// cmd.exe does its own parsing; hand it the line untouched.
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: "cmd.exe /C " + line}
	return cmd
}

func killedBySignal(*os.ProcessState) bool {
	return false
}

func isFatalSpawn(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_ENOUGH_MEMORY) ||
		errors.Is(err, windows.ERROR_NO_SYSTEM_RESOURCES)
}
