package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markdown-to-latex/manager/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the version, commit, build date, Go version and platform of
this md-to-latex binary.

Examples:
  md-to-latex version                # Full version information
  md-to-latex version --short        # Version only
  md-to-latex version --format json  # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	return printVersion(cmd.OutOrStdout(), version.Get(), versionFormat, versionShort)
}

func printVersion(out io.Writer, info version.Info, format string, short bool) error {
	switch format {
	case "json":
		data, err := info.JSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "text":
		if short {
			_, err := fmt.Fprintln(out, info.Short())
			return err
		}
		_, err := fmt.Fprintln(out, info.String())
		return err
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
	}
}
