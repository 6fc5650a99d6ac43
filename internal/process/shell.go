package process

import (
	"path/filepath"
	"runtime"
	"strings"
)

// CommandLine joins executable and the quoted args into the line handed to
// the platform shell. executable is kept verbatim so it may carry its own
// arguments.
func CommandLine(executable string, args []string) string {
	return commandLine(runtime.GOOS, executable, args)
}

func commandLine(goos, executable string, args []string) string {
	quote := posixQuote
	if goos == "windows" {
		quote = windowsQuote
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(executable))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(quote(arg))
	}
	return b.String()
}

func posixQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if strings.IndexFunc(arg, func(r rune) bool { return !posixSafe(r) }) < 0 {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

func posixSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("_@%+=:,./-", r)
}

func windowsQuote(arg string) string {
	if arg == "" {
		return `""`
	}
	if !strings.ContainsAny(arg, " \t\"&|<>^%") {
		return arg
	}
	return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
}

// shellWords are handled by the shell itself and never live on PATH in a
// form worth checking. Both POSIX sh and cmd.exe names are listed.
var shellWords = map[string]bool{
	".": true, ":": true, "[": true, "!": true, "{": true, "(": true,
	"alias": true, "break": true, "call": true, "case": true, "cd": true,
	"chdir": true, "command": true, "continue": true, "copy": true,
	"del": true, "dir": true, "eval": true, "exec": true, "exit": true,
	"export": true, "for": true, "if": true, "md": true, "mkdir": true,
	"popd": true, "pushd": true, "read": true, "readonly": true,
	"rem": true, "return": true, "set": true, "setlocal": true,
	"shift": true, "source": true, "start": true, "test": true,
	"then": true, "trap": true, "type": true, "ulimit": true,
	"umask": true, "unset": true, "until": true, "wait": true,
	"while": true,
}

// checkTarget returns the program worth resolving before the shell runs
// line, or false when the first word is shell syntax: a builtin, a
// variable assignment, a quoted or expanded word. Relative paths are
// anchored at dir because the shell resolves them from there.
func checkTarget(line, dir string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	word := fields[0]
	if shellWords[strings.ToLower(word)] {
		return "", false
	}
	if strings.HasPrefix(word, "~") || strings.ContainsAny(word, "=\"'`$*?&|;<>(){}%") {
		return "", false
	}
	if !strings.ContainsAny(word, `/\`) || filepath.IsAbs(word) {
		return word, true
	}
	base, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	return filepath.Join(base, word), true
}
