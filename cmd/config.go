package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/markdown-to-latex/manager/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create md-to-latex configuration",
	Long: `Inspect and create md-to-latex configuration files.

Examples:
  md-to-latex config show                 # Effective configuration as YAML
  md-to-latex config show --format json   # ... or as JSON
  md-to-latex config validate             # Check .mdlatex.yml
  md-to-latex config init                 # Write a default .mdlatex.yml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration resolved from all sources (file, MDLATEX_*
environment variables, defaults).`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default spelled out",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var (
	configFormat string
	configFile   string
	configForce  bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configValidateCmd, configInitCmd)

	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "Output format (yaml, json)")
	configValidateCmd.Flags().StringVar(&configFile, "file", "", "Configuration file to validate (default "+config.FileName+")")
	configInitCmd.Flags().StringVarP(&configFile, "output", "o", config.FileName, "File to write")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return showConfig(cmd.OutOrStdout(), cfg, configFormat)
}

func showConfig(out io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "yaml", "yml":
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", format)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	target := configFile
	if target == "" {
		target = config.FileName
	}
	if err := validateConfigFile(target); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", target)
	return nil
}

func validateConfigFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("configuration file %s does not exist; run 'md-to-latex config init' to create one", path)
		}
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}
	if _, err := config.LoadFrom(v); err != nil {
		var ve *config.ValidationError
		if errors.As(err, &ve) && len(ve.Suggestions) > 0 {
			return fmt.Errorf("%w (try: %s)", err, ve.Suggestions[0])
		}
		return err
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configFile); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configFile)
	}
	if err := config.Default().Save(configFile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configFile)
	return nil
}
