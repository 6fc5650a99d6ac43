package scaffold

import (
	"fmt"
	"strings"
)

// Feature is an optional part of the boilerplate.
type Feature string

const (
	FeatureVSCodeConfigs       Feature = "vscode-configs"
	FeatureIdeaConfigs         Feature = "idea-configs"
	FeatureGitHubCIConfigs     Feature = "github-ci-configs"
	FeatureGitLabCIConfigs     Feature = "gitlab-ci-configs"
	FeatureExamples            Feature = "tex-examples"
	FeatureTypeScript          Feature = "typescript"
	FeatureCreateGitRepository Feature = "create-git-repository"
)

// FeatureInfo describes a feature for the wizard.
type FeatureInfo struct {
	Key     Feature
	Name    string
	Default bool
}

// Features lists every feature in wizard order.
var Features = []FeatureInfo{
	{Key: FeatureVSCodeConfigs, Name: "VSCode Configs", Default: true},
	{Key: FeatureIdeaConfigs, Name: "IDEA Configs"},
	{Key: FeatureGitHubCIConfigs, Name: "GitHub CI Configs"},
	{Key: FeatureGitLabCIConfigs, Name: "GitLab CI Configs", Default: true},
	{Key: FeatureExamples, Name: "Example MarkDown files", Default: true},
	{Key: FeatureTypeScript, Name: "Entrypoint for TypeScript code"},
	{Key: FeatureCreateGitRepository, Name: "Automatically create Git repository", Default: true},
}

// DefaultFeatures returns the features selected when nothing is chosen.
func DefaultFeatures() []Feature {
	var out []Feature
	for _, f := range Features {
		if f.Default {
			out = append(out, f.Key)
		}
	}
	return out
}

// ParseFeatures validates feature keys. Duplicates are dropped.
func ParseFeatures(keys []string) ([]Feature, error) {
	known := make(map[Feature]bool, len(Features))
	for _, f := range Features {
		known[f.Key] = true
	}

	seen := make(map[Feature]bool)
	out := make([]Feature, 0, len(keys))
	for _, key := range keys {
		f := Feature(strings.ToLower(strings.TrimSpace(key)))
		if f == "" || seen[f] {
			continue
		}
		if !known[f] {
			return nil, fmt.Errorf("unknown feature %q", key)
		}
		seen[f] = true
		out = append(out, f)
	}
	return out, nil
}

// FeatureSet answers membership questions about selected features.
type FeatureSet map[Feature]bool

// NewFeatureSet builds a set from a list.
func NewFeatureSet(features []Feature) FeatureSet {
	set := make(FeatureSet, len(features))
	for _, f := range features {
		set[f] = true
	}
	return set
}

// Has reports whether f is selected.
func (s FeatureSet) Has(f Feature) bool {
	return s[f]
}
