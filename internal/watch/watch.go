// Package watch implements the watch engine: the data model binding a Rule
// to one or more kernel watch descriptors (Watch), the Registry that indexes
// them, the Subtree Installer that creates and rebuilds them, and the Event
// Dispatcher that reads the kernel's inotify stream and matches records
// against them.
//
// Grounded on fsnotify's backend_inotify.go (the watches/watch types and the
// raw-buffer read loop) and on the original gobolinux/Listener C sources
// (the rule-bound semantics: mask union, subtree rebuild, first-match
// dispatch).
package watch

import (
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/watchrules/listener/internal/rule"
)

// nextWatchID hands out process-unique, monotonically increasing Watch IDs.
// Subtree identity is tracked by a stable ID rather than a raw pointer, so
// that subtree rebuild never has to
// chase (and accidentally invalidate) a pointer into the Registry.
var nextWatchID uint64

func allocWatchID() uint64 { return atomic.AddUint64(&nextWatchID, 1) }

// Watch is one kernel registration: the live binding between an inotify
// watch descriptor and the Rule-derived parameters that govern how events on
// it are filtered and acted on.
type Watch struct {
	// ID is this Watch's process-unique identity; never reused.
	ID uint64
	// RootID is the ID of the subtree root Watch this one belongs to. For a
	// Watch that is itself a subtree root, RootID == ID.
	RootID uint64

	// Descriptor is the kernel-assigned watch descriptor. The kernel hands
	// out one per watched path, may reuse it once freed, and several Watch
	// values on the same path share it (see Registry).
	Descriptor uint32

	// Path is the absolute directory path this watch is attached to.
	Path string

	// Events is the Rule's requested event set, used for the mask-match
	// filter step. EffectiveMask is the (possibly broader) mask actually
	// registered with the kernel for Path: Events unioned with the system
	// mask when Depth > 0, further unioned with whatever other Rules have
	// already registered interest in the same Path.
	Events        rule.EventMask
	EffectiveMask rule.EventMask

	Command string
	LookAt  rule.LookAt
	Depth   int

	// RegexSource/Regex are this Watch's own compiled copy of the Rule's
	// regex; each Watch clones it independently so that destroying one
	// Watch never affects another that happens to share a Rule.
	RegexSource string
	Regex       *regexp.Regexp
}

// IsRoot reports whether w is the subtree root Watch (i.e. the Watch created
// directly from a Rule's Target, as opposed to one of its recursively
// discovered descendants).
func (w *Watch) IsRoot() bool { return w.RootID == w.ID }

// UsesEntry reports whether Command references $ENTRY, mirroring
// rule.Rule.UsesEntry for the per-event value copy handed to a worker.
func (w *Watch) UsesEntry() bool {
	return strings.Contains(strings.ReplaceAll(w.Command, "$ENTRY_RELATIVE", ""), "$ENTRY")
}

// cloneFrom copies the Rule-derived fields of src into a new Watch with a
// freshly compiled regex, fresh ID, and the given path/root/descriptor. This
// is how the Subtree Installer replicates a root Watch's parameters onto
// each descendant directory (§4.3 step 3).
func cloneFrom(src *Watch, path string, descriptor uint32, rootID uint64) *Watch {
	var re *regexp.Regexp
	if src.Regex != nil {
		re = regexp.MustCompilePOSIX(src.RegexSource)
	}
	return &Watch{
		ID:            allocWatchID(),
		RootID:        rootID,
		Descriptor:    descriptor,
		Path:          path,
		Events:        src.Events,
		EffectiveMask: src.EffectiveMask,
		Command:       src.Command,
		LookAt:        src.LookAt,
		Depth:         src.Depth,
		RegexSource:   src.RegexSource,
		Regex:         re,
	}
}

// fromRule builds the (not-yet-registered) root Watch for a Rule.
func fromRule(r *rule.Rule) *Watch {
	id := allocWatchID()
	return &Watch{
		ID:            id,
		RootID:        id,
		Path:          r.Target,
		Events:        r.Events,
		Command:       r.Command,
		LookAt:        r.LookAt,
		Depth:         r.Depth,
		RegexSource:   r.RegexSource,
		Regex:         regexp.MustCompilePOSIX(r.RegexSource),
	}
}
