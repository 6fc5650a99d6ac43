package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/markdown-to-latex/manager/internal/process"
)

// CommandRunner runs a command to completion. *process.Runner implements it.
type CommandRunner interface {
	Run(ctx context.Context, executable string, args []string) (process.Outcome, error)
}

// CommandHook returns a Hook that runs command through runner and fails
// when it exits non-zero. An empty command yields a nil Hook.
func CommandHook(runner CommandRunner, command string) Hook {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}

	return func(ctx context.Context) error {
		outcome, err := runner.Run(ctx, command, nil)
		if err != nil {
			return err
		}
		if !outcome.Success() {
			return fmt.Errorf("command %q exited with code %d", command, outcome.Code())
		}
		return nil
	}
}
