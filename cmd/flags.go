package cmd

import (
	"github.com/spf13/cobra"

	"github.com/markdown-to-latex/manager/internal/config"
)

// latexFlags override the latex section of the configuration for build and
// watch.
type latexFlags struct {
	IndexFile  string
	Executable string
	Packet     string
	Cwd        string
}

func addLatexFlags(cmd *cobra.Command, flags *latexFlags) {
	cmd.Flags().StringVarP(&flags.IndexFile, "index", "i", "", "Root .tex file (default "+config.DefaultIndexFile+")")
	cmd.Flags().StringVarP(&flags.Executable, "executable", "e", "", "LaTeX compiler (default "+config.DefaultExecutable+")")
	cmd.Flags().StringVar(&flags.Packet, "packet", "", "TeX distribution: texlive or miktex")
	cmd.Flags().StringVar(&flags.Cwd, "cwd", "", "Directory the compiler runs in")
}

// apply copies flags the user set onto cfg.
func (f *latexFlags) apply(cmd *cobra.Command, cfg *config.LatexConfig) {
	set := func(name string, dst *string, value string) {
		if cmd.Flags().Changed(name) {
			*dst = value
		}
	}
	set("index", &cfg.IndexFile, f.IndexFile)
	set("executable", &cfg.Executable, f.Executable)
	set("packet", &cfg.Packet, f.Packet)
	set("cwd", &cfg.Cwd, f.Cwd)
}
