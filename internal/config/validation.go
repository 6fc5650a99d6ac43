package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateLatexConfig(&config.Latex); err != nil {
		return fmt.Errorf("latex config: %w", err)
	}

	if err := validateWatchConfig(&config.Watch); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	return nil
}

// Validate re-runs validation, for configurations built in code.
func (c *Config) Validate() error {
	return validateConfig(c)
}

func validateLatexConfig(config *LatexConfig) error {
	if strings.TrimSpace(config.Executable) == "" {
		return &ValidationError{
			Field:       "latex.executable",
			Value:       config.Executable,
			Message:     "executable cannot be empty",
			Suggestions: []string{"use xelatex, pdflatex or lualatex"},
		}
	}

	if strings.TrimSpace(config.IndexFile) == "" {
		return &ValidationError{
			Field:   "latex.index_file",
			Value:   config.IndexFile,
			Message: "index file cannot be empty",
		}
	}

	switch config.Packet {
	case "texlive", "miktex":
	default:
		return &ValidationError{
			Field:       "latex.packet",
			Value:       config.Packet,
			Message:     fmt.Sprintf("unknown packet %q", config.Packet),
			Suggestions: []string{"texlive", "miktex"},
		}
	}

	for name := range config.Flags {
		if name == "" || strings.ContainsAny(name, " =;&|$`") {
			return &ValidationError{
				Field:   "latex.flags",
				Value:   name,
				Message: fmt.Sprintf("invalid flag name %q", name),
			}
		}
	}

	return nil
}

func validateWatchConfig(config *WatchConfig) error {
	switch strings.ToLower(config.KillPolicy) {
	case "kill", "wait":
	default:
		return &ValidationError{
			Field:       "watch.kill_policy",
			Value:       config.KillPolicy,
			Message:     fmt.Sprintf("unknown kill policy %q", config.KillPolicy),
			Suggestions: []string{"kill", "wait"},
		}
	}

	d, err := config.DebounceDuration()
	if err != nil {
		return &ValidationError{
			Field:       "watch.debounce",
			Value:       config.Debounce,
			Message:     err.Error(),
			Suggestions: []string{"300ms", "1s", "0 to disable"},
		}
	}
	if d < 0 {
		return &ValidationError{
			Field:   "watch.debounce",
			Value:   config.Debounce,
			Message: "debounce cannot be negative",
		}
	}

	for _, path := range config.Paths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid watch path '%s': %w", path, err)
		}
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
