// Package mode selects how the engine reads a source string.
//
// YAMLScript treats untagged input as plain YAML data. The code and data
// modes prepend the matching YAMLScript tag so the same source is evaluated
// as a program or as data with embedded expressions.
package mode

import (
	"fmt"
	"strings"
)

// Tag prefixes understood by the engine.
const (
	TagCode = "!yamlscript/v0"
	TagData = "!yamlscript/v0/data"
)

// Mode is an input mode.
type Mode struct {
	name string
	tag  string
}

var (
	// Bare passes source through unchanged.
	Bare = Mode{name: "bare"}
	// Code evaluates source as a YAMLScript program.
	Code = Mode{name: "code", tag: TagCode}
	// Data evaluates source as YAML data with ! expressions.
	Data = Mode{name: "data", tag: TagData}
)

var modes = []Mode{Bare, Code, Data}

// Name returns "bare", "code" or "data".
func (m Mode) Name() string {
	return m.name
}

// Tag returns the tag the mode prepends, or "" for Bare.
func (m Mode) Tag() string {
	return m.tag
}

func (m Mode) String() string {
	return m.name
}

// Wrap prepends the mode's tag to code. Source that already declares a
// YAMLScript tag is returned unchanged.
func (m Mode) Wrap(code string) string {
	if m.tag == "" || HasTag(code) {
		return code
	}
	return m.tag + "\n" + code
}

// HasTag reports whether the first significant line of code is a
// YAMLScript tag, optionally after a document start marker. Blank lines and
// comments, including a shebang line, are skipped.
func HasTag(code string) bool {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "---"))
		return strings.HasPrefix(line, "!yamlscript/")
	}
	return false
}

// Parse returns the mode called name.
func Parse(name string) (Mode, error) {
	for _, m := range modes {
		if m.name == name {
			return m, nil
		}
	}
	return Mode{}, fmt.Errorf("unknown mode %q (available: %s)", name, strings.Join(Names(), ", "))
}

// Names lists the available mode names.
func Names() []string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = m.name
	}
	return names
}
