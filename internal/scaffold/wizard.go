package scaffold

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrAborted is returned when the user declines a confirmation.
var ErrAborted = errors.New("aborted by user")

// Answers holds the wizard results.
type Answers struct {
	ProjectName string
	Features    []Feature
}

// Wizard asks for the project name and features interactively.
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and writing prompts
// to out.
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run executes the interactive setup. defaultName is offered as the
// project name.
func (w *Wizard) Run(defaultName string) (*Answers, error) {
	fmt.Fprintln(w.out, "MarkDown To LaTeX project setup")
	fmt.Fprintln(w.out, "===============================")

	name, err := w.askRequired("Enter the project name", defaultName)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(name); err == nil {
		fmt.Fprintf(w.out, "Directory %s already exists. Run this inside an empty directory.\n", name)
		if !w.askBool("Are you sure you want to continue", false) {
			return nil, ErrAborted
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Select features")
	var features []Feature
	for _, f := range Features {
		if w.askBool("  "+f.Name, f.Default) {
			features = append(features, f.Key)
		}
	}

	abs, err := filepath.Abs(name)
	if err != nil {
		abs = name
	}
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Are you going to:")
	fmt.Fprintf(w.out, " -> Create directory %s\n", abs)
	fmt.Fprintln(w.out, " -> Download boilerplate into mentioned directory")
	fmt.Fprintln(w.out, " -> Use features listed above")
	if !w.askBool("Continue", true) {
		return nil, ErrAborted
	}

	return &Answers{ProjectName: name, Features: features}, nil
}

func (w *Wizard) askString(prompt, defaultValue string) (string, error) {
	if defaultValue != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	input, err := w.reader.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return defaultValue, err
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

func (w *Wizard) askRequired(prompt, defaultValue string) (string, error) {
	for {
		value, err := w.askString(prompt, defaultValue)
		if value != "" {
			return value, nil
		}
		if err != nil {
			return "", fmt.Errorf("%s: no answer: %w", strings.ToLower(prompt), err)
		}
		fmt.Fprintln(w.out, "A value is required.")
	}
}

func (w *Wizard) askBool(prompt string, defaultValue bool) bool {
	defaultStr := "y/N"
	if defaultValue {
		defaultStr = "Y/n"
	}

	fmt.Fprintf(w.out, "%s [%s]: ", prompt, defaultStr)

	input, err := w.reader.ReadString('\n')
	if err != nil && input == "" {
		return defaultValue
	}

	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultValue
	}

	return input == "y" || input == "yes" || input == "true"
}
