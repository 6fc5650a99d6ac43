// Package cmd provides the command-line interface for md-to-latex.
//
// Configuration System:
//
//	Settings are resolved with the following precedence:
//	1. Command-line flags (--kill-policy, --debounce, etc.) - highest priority
//	2. MDLATEX_* environment variables (MDLATEX_WATCH_KILL_POLICY, ...)
//	3. The configuration file (--config, MDLATEX_CONFIG_FILE or .mdlatex.yml)
//	4. Built-in defaults - lowest priority
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/markdown-to-latex/manager/internal/config"
	"github.com/markdown-to-latex/manager/internal/logging"
)

const envPrefix = "MDLATEX"

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "md-to-latex",
	Short: "Build manager for MarkDown to LaTeX projects",
	Long: `md-to-latex creates MarkDown to LaTeX projects and keeps their PDF
up to date while you write.

Quick Start:
  md-to-latex init thesis         Create a project from the boilerplate
  md-to-latex watch               Rebuild on every change
  md-to-latex build --times 2     Compile once, resolving references

Documentation: https://github.com/markdown-to-latex/manager`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .mdlatex.yml, can also use MDLATEX_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

// initConfig points viper at the configuration file and binds the
// MDLATEX_ environment variables. A missing default file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(envPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mdlatex")
	}

	if err := config.BindEnv(viper.GetViper(), envPrefix); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintln(os.Stderr, "Warning: failed to read config file:", err)
		}
	}
}

// loadConfig returns the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process-wide logger from --log-level and --log-format.
func newLogger(out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	switch logFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("unsupported log format: %s (supported: text, json)", logFormat)
	}

	return logging.NewLogger(&logging.Config{
		Level:  level,
		Format: logFormat,
		Output: out,
	}), nil
}
