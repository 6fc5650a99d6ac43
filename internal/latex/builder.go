package latex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/markdown-to-latex/manager/internal/config"
	merrors "github.com/markdown-to-latex/manager/internal/errors"
	"github.com/markdown-to-latex/manager/internal/process"
)

// Runner runs a command to completion.
type Runner interface {
	Run(ctx context.Context, executable string, args []string) (process.Outcome, error)
}

// Builder assembles the compiler invocation for one document.
type Builder struct {
	IndexFile  string
	Executable string
	Packet     Packet
	// Dir is the directory the compiler runs in.
	Dir   string
	Flags Flags
}

// NewBuilder creates a Builder from configuration. Configured flags
// replace the defaults.
func NewBuilder(cfg config.LatexConfig) (*Builder, error) {
	packet, err := ParsePacket(cfg.Packet)
	if err != nil {
		return nil, merrors.WrapConfig(err, "invalid latex.packet")
	}

	flags := DefaultFlags()
	if len(cfg.Flags) > 0 {
		flags, err = FlagsFromMap(cfg.Flags)
		if err != nil {
			return nil, merrors.WrapConfig(err, "invalid latex.flags")
		}
	}

	b := &Builder{
		IndexFile:  cfg.IndexFile,
		Executable: cfg.Executable,
		Packet:     packet,
		Dir:        cfg.Cwd,
		Flags:      flags,
	}
	if b.IndexFile == "" {
		b.IndexFile = config.DefaultIndexFile
	}
	if b.Executable == "" {
		b.Executable = config.DefaultExecutable
	}
	if b.Dir == "" {
		b.Dir = config.DefaultCwd
	}
	return b, nil
}

// Command returns the executable and its arguments: the flags the
// distribution supports followed by the index file.
func (b *Builder) Command() (string, []string) {
	args := b.Flags.Filter(b.Packet).Args()
	return b.Executable, append(args, b.IndexFile)
}

// OutputDirectory returns the configured output directory resolved
// against Dir, or "" when none is configured.
func (b *Builder) OutputDirectory() string {
	flag, ok := b.Flags.Get("output-directory")
	if !ok {
		return ""
	}
	dir, ok := flag.Value.(string)
	if !ok || dir == "" {
		return ""
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(b.Dir, dir)
}

// Prepare creates the output directory.
func (b *Builder) Prepare() error {
	dir := b.OutputDirectory()
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Run prepares the output directory and compiles the document times times,
// stopping at the first failing pass. LaTeX needs repeated passes to
// resolve references.
func (b *Builder) Run(ctx context.Context, runner Runner, times int) error {
	if times < 1 {
		times = 1
	}
	if err := b.Prepare(); err != nil {
		return err
	}

	exe, args := b.Command()
	for pass := 1; pass <= times; pass++ {
		outcome, err := runner.Run(ctx, exe, args)
		if err != nil {
			return err
		}
		if !outcome.Success() {
			return merrors.NewBuildFailedError(outcome.Code()).
				WithContext("pass", pass).
				WithContext("passes", times)
		}
	}
	return nil
}
