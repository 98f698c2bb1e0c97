package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// LookAt is the file-system object class a Rule's events are allowed to
// concern: the "LOOKAT" key in the block dialect, "lookat" in the
// structured one.
type LookAt int

const (
	// LookAtUnset marks a Rule that has not had LOOKAT set yet; Validate
	// rejects it.
	LookAtUnset LookAt = iota
	LookAtDirs
	LookAtFiles
	LookAtSymlinks
)

func (l LookAt) String() string {
	switch l {
	case LookAtDirs:
		return "DIRS"
	case LookAtFiles:
		return "FILES"
	case LookAtSymlinks:
		return "SYMLINKS"
	default:
		return "UNSET"
	}
}

// ParseLookAt parses a LOOKAT/lookat value, case-insensitively.
func ParseLookAt(s string) (LookAt, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DIRS":
		return LookAtDirs, nil
	case "FILES":
		return LookAtFiles, nil
	case "SYMLINKS":
		return LookAtSymlinks, nil
	default:
		return LookAtUnset, errors.Errorf("invalid value for lookat: %q", s)
	}
}

// MaxRecursiveDepth is the largest value RECURSIVE_DEPTH/depth may take.
const MaxRecursiveDepth = 127

// Rule is one user rule: an immutable binding between a target directory, the
// event kinds worth reacting to there, a command template to run, and the
// filters (file-type class, leaf-name regex, recursion depth) that narrow
// which events actually trigger it.
type Rule struct {
	// Index is the rule's 1-based position in its source file, used in
	// diagnostics exactly as the original's "rule index" failures are.
	Index int

	// Description is an optional human label; only the structured dialect
	// carries it, and the core engine never reads it back.
	Description string

	Target  string
	Events  EventMask
	Command string

	LookAt LookAt

	RegexSource string
	Regex       *regexp.Regexp

	// Depth is in [0, MaxRecursiveDepth]. 0 means watch only Target.
	Depth int
}

// UsesEntry reports whether Command references $ENTRY (as opposed to only
// $ENTRY_RELATIVE, or neither). This mirrors uses_entry_variable in the
// original watch_entry and governs the stat-failure filter decision in
// dispatch (§4.4 step 5).
func (r Rule) UsesEntry() bool {
	return strings.Contains(strings.ReplaceAll(r.Command, "$ENTRY_RELATIVE", ""), "$ENTRY")
}

// Validate checks that every field required by §4.1 is populated and
// internally consistent. r.Index is used only to annotate the error.
func Validate(r *Rule) error {
	if strings.TrimSpace(r.Target) == "" {
		return errors.Errorf("rule %d: target is required", r.Index)
	}
	if !strings.HasPrefix(r.Target, "/") {
		return errors.Errorf("rule %d: target %q must be an absolute path", r.Index, r.Target)
	}
	if r.Events == 0 {
		return errors.Errorf("rule %d: watches is required", r.Index)
	}
	if strings.TrimSpace(r.Command) == "" {
		return errors.Errorf("rule %d: spawn is required", r.Index)
	}
	if r.LookAt == LookAtUnset {
		return errors.Errorf("rule %d: lookat is required", r.Index)
	}
	if r.Depth < 0 || r.Depth > MaxRecursiveDepth {
		return errors.Errorf("rule %d: depth %d out of range [0, %d]", r.Index, r.Depth, MaxRecursiveDepth)
	}
	if r.Regex == nil {
		return errors.Errorf("rule %d: regex failed to compile", r.Index)
	}
	return nil
}

// ParseDepth implements the RECURSIVE_DEPTH keyword aliases from the block
// dialect: NO -> 0, YES -> MaxRecursiveDepth, otherwise a decimal integer.
func ParseDepth(s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NO":
		return 0, nil
	case "YES":
		return MaxRecursiveDepth, nil
	}
	var n int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err != nil {
		return 0, errors.Wrapf(err, "invalid depth %q", s)
	}
	if n < 0 || n > MaxRecursiveDepth {
		return 0, errors.Errorf("depth %d out of range [0, %d]", n, MaxRecursiveDepth)
	}
	return n, nil
}
