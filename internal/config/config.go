// Package config provides configuration management for the md-to-latex
// manager using Viper for flexible loading from files, environment
// variables, and command-line flags.
//
// The configuration covers the LaTeX compiler invocation, the watch
// supervisor (paths, debounce, kill policy, build hooks) and the
// boilerplate used by `md-to-latex init`.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the default configuration file looked up in the project root.
const FileName = ".mdlatex.yml"

// Config is the complete manager configuration.
type Config struct {
	Latex LatexConfig `mapstructure:"latex" json:"latex" yaml:"latex"`
	Watch WatchConfig `mapstructure:"watch" json:"watch" yaml:"watch"`
	Hooks HooksConfig `mapstructure:"hooks" json:"hooks" yaml:"hooks"`
	Init  InitConfig  `mapstructure:"init" json:"init" yaml:"init"`
}

// LatexConfig describes how the LaTeX compiler is invoked.
type LatexConfig struct {
	IndexFile  string `mapstructure:"index_file" json:"index_file" yaml:"index_file"`
	Executable string `mapstructure:"executable" json:"executable" yaml:"executable"`
	// Packet is the TeX distribution: texlive or miktex.
	Packet string `mapstructure:"packet" json:"packet" yaml:"packet"`
	Cwd    string `mapstructure:"cwd" json:"cwd" yaml:"cwd"`
	// Flags replaces the default compiler flags when set. Keys are
	// kebab-case flag names; a null or empty value renders a bare flag.
	Flags map[string]interface{} `mapstructure:"flags" json:"flags,omitempty" yaml:"flags,omitempty"`
}

// WatchConfig configures the build supervisor and its file watcher.
type WatchConfig struct {
	Paths  []string `mapstructure:"paths" json:"paths" yaml:"paths"`
	Ignore []string `mapstructure:"ignore" json:"ignore" yaml:"ignore"`
	// Debounce is a Go duration string; "0" disables debouncing.
	Debounce string `mapstructure:"debounce" json:"debounce" yaml:"debounce"`
	// KillPolicy is kill or wait.
	KillPolicy string `mapstructure:"kill_policy" json:"kill_policy" yaml:"kill_policy"`
	// Command, when set, is run through the shell instead of the LaTeX
	// invocation built from LatexConfig.
	Command string `mapstructure:"command" json:"command,omitempty" yaml:"command,omitempty"`
}

// HooksConfig holds optional shell commands run around each build.
type HooksConfig struct {
	PreBuild  string `mapstructure:"pre_build" json:"pre_build,omitempty" yaml:"pre_build,omitempty"`
	PostBuild string `mapstructure:"post_build" json:"post_build,omitempty" yaml:"post_build,omitempty"`
}

// InitConfig configures project scaffolding.
type InitConfig struct {
	Branch         string `mapstructure:"branch" json:"branch" yaml:"branch"`
	BoilerplateURL string `mapstructure:"boilerplate_url" json:"boilerplate_url" yaml:"boilerplate_url"`
}

// Defaults
const (
	DefaultIndexFile      = "index.tex"
	DefaultExecutable     = "xelatex"
	DefaultPacket         = "texlive"
	DefaultCwd            = "."
	DefaultDebounce       = "300ms"
	DefaultKillPolicy     = "kill"
	DefaultBranch         = "master"
	DefaultBoilerplateURL = "https://codeload.github.com/markdown-to-latex/boilerplate/zip/refs/heads/%s"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, nil)
	return cfg
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals, defaults and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config, v)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *Config, v *viper.Viper) {
	isSet := func(key string) bool { return v != nil && v.IsSet(key) }

	if config.Latex.IndexFile == "" {
		config.Latex.IndexFile = DefaultIndexFile
	}
	if config.Latex.Executable == "" {
		config.Latex.Executable = DefaultExecutable
	}
	if config.Latex.Packet == "" {
		config.Latex.Packet = DefaultPacket
	}
	if config.Latex.Cwd == "" {
		config.Latex.Cwd = DefaultCwd
	}

	// Handle slices set via env vars (workaround for viper slice handling)
	if isSet("watch.paths") && len(config.Watch.Paths) == 0 {
		config.Watch.Paths = v.GetStringSlice("watch.paths")
	}
	if len(config.Watch.Paths) == 0 {
		config.Watch.Paths = []string{"src"}
	}
	if isSet("watch.ignore") && len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = v.GetStringSlice("watch.ignore")
	}
	if len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = []string{"out", "dist", ".git", "node_modules"}
	}
	if config.Watch.Debounce == "" && !isSet("watch.debounce") {
		config.Watch.Debounce = DefaultDebounce
	}
	if config.Watch.KillPolicy == "" {
		config.Watch.KillPolicy = DefaultKillPolicy
	}

	if config.Init.Branch == "" {
		config.Init.Branch = DefaultBranch
	}
	if config.Init.BoilerplateURL == "" {
		config.Init.BoilerplateURL = DefaultBoilerplateURL
	}
}

// DebounceDuration parses the configured debounce delay.
func (w WatchConfig) DebounceDuration() (time.Duration, error) {
	if w.Debounce == "" || w.Debounce == "0" {
		return 0, nil
	}
	return time.ParseDuration(w.Debounce)
}

// FlagNames returns the configured flag names in a stable order.
func (l LatexConfig) FlagNames() []string {
	names := make([]string, 0, len(l.Flags))
	for name := range l.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	return nil
}

// Keys lists every configuration key. Viper only unmarshals keys it knows
// about, so environment overrides need them bound explicitly.
var Keys = []string{
	"latex.index_file",
	"latex.executable",
	"latex.packet",
	"latex.cwd",
	"watch.paths",
	"watch.ignore",
	"watch.debounce",
	"watch.kill_policy",
	"watch.command",
	"hooks.pre_build",
	"hooks.post_build",
	"init.branch",
	"init.boilerplate_url",
}

// BindEnv binds every key to its prefixed environment variable, e.g.
// MDLATEX_WATCH_KILL_POLICY.
func BindEnv(v *viper.Viper, prefix string) error {
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range Keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}
	return nil
}
