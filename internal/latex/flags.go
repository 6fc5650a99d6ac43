// Package latex builds and runs LaTeX compiler invocations.
package latex

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/markdown-to-latex/manager/internal/naming"
)

// Packet is the TeX distribution the compiler belongs to.
type Packet string

const (
	PacketTeXLive Packet = "texlive"
	PacketMiKTeX  Packet = "miktex"
)

// ParsePacket validates a distribution name.
func ParsePacket(s string) (Packet, error) {
	switch Packet(strings.ToLower(strings.TrimSpace(s))) {
	case "", PacketTeXLive:
		return PacketTeXLive, nil
	case PacketMiKTeX:
		return PacketMiKTeX, nil
	default:
		return "", fmt.Errorf("unknown TeX distribution %q (supported: texlive, miktex)", s)
	}
}

// miktexUnsupported lists flags MiKTeX compilers reject.
var miktexUnsupported = map[string]bool{
	"file-line-error": true,
	"output-format":   true,
}

// Flag is one compiler switch. Value is a string, a number, a bool or nil;
// nil renders a bare switch.
type Flag struct {
	Name  string
	Value interface{}
}

// String renders the flag as a command-line argument.
func (f Flag) String() string {
	switch v := f.Value.(type) {
	case nil:
		return "-" + f.Name
	case string:
		return "-" + f.Name + "=" + v
	case bool:
		if v {
			return "-" + f.Name + "=1"
		}
		return "-" + f.Name + "=0"
	case int:
		return "-" + f.Name + "=" + strconv.Itoa(v)
	case int64:
		return "-" + f.Name + "=" + strconv.FormatInt(v, 10)
	case float64:
		return "-" + f.Name + "=" + strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("-%s=%v", f.Name, v)
	}
}

// Flags is an ordered list of compiler switches.
type Flags []Flag

// DefaultFlags returns the switches used when none are configured.
func DefaultFlags() Flags {
	return Flags{
		{Name: "file-line-error"},
		{Name: "interaction", Value: "nonstopmode"},
		{Name: "shell-escape"},
		{Name: "halt-on-error"},
		{Name: "output-format", Value: "pdf"},
		{Name: "output-directory", Value: "./out"},
	}
}

// FlagsFromMap converts configured flags into Flags sorted by name. Names
// are kebab-cased; an empty string value renders a bare switch.
func FlagsFromMap(m map[string]interface{}) (Flags, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	flags := make(Flags, 0, len(m))
	for _, name := range names {
		value, err := normalizeValue(m[name])
		if err != nil {
			return nil, fmt.Errorf("flag %q: %w", name, err)
		}
		flags = append(flags, Flag{Name: naming.CamelToKebab(name), Value: value})
	}
	return flags, nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		return val, nil
	case bool, int64, float64:
		return val, nil
	case int:
		return val, nil
	case int32:
		return int64(val), nil
	case uint:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	case float32:
		return float64(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// Args renders every flag.
func (f Flags) Args() []string {
	args := make([]string, 0, len(f))
	for _, flag := range f {
		args = append(args, flag.String())
	}
	return args
}

// Filter drops the switches the distribution does not understand.
func (f Flags) Filter(packet Packet) Flags {
	out := make(Flags, 0, len(f))
	for _, flag := range f {
		if packet == PacketMiKTeX && miktexUnsupported[flag.Name] {
			continue
		}
		out = append(out, flag)
	}
	return out
}

// Get looks up a flag by name.
func (f Flags) Get(name string) (Flag, bool) {
	for _, flag := range f {
		if flag.Name == name {
			return flag, true
		}
	}
	return Flag{}, false
}
