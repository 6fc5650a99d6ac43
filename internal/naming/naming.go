// Package naming converts identifiers and project names between the
// spellings used by the CLI, the compiler and package.json.
package naming

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CamelToKebab lowers the first letter and turns every later upper-case
// letter into a dash followed by its lower-case form:
// "fileLineError" becomes "file-line-error".
func CamelToKebab(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsUpper(r):
			b.WriteByte('-')
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Slug turns a project directory into a package name: the last path
// element, kebab-cased, case-folded, with runs of other characters
// collapsed into single dashes.
func Slug(name string) string {
	base := filepath.Base(filepath.Clean(strings.TrimSpace(name)))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}

	folded := cases.Fold().String(CamelToKebab(base))
	folded = cases.Lower(language.Und).String(folded)

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if r == '.' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
