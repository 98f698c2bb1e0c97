// Package rule holds the typed representation of one user rule (the
// TARGET/WATCHES/SPAWN/LOOKAT/ACCEPT_REGEX/RECURSIVE_DEPTH tuple) and the
// loader that turns a rule file into a sequence of them.
package rule

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// EventMask is a set of inotify event kinds, stored as the raw kernel bits so
// that it can be handed to inotify_add_watch without translation.
type EventMask uint32

// The event kinds a Rule may ask to be watched for. These map 1:1 onto the
// IN_* flags accepted by inotify_add_watch(2).
const (
	Access       EventMask = EventMask(unix.IN_ACCESS)
	Modify       EventMask = EventMask(unix.IN_MODIFY)
	Attrib       EventMask = EventMask(unix.IN_ATTRIB)
	CloseWrite   EventMask = EventMask(unix.IN_CLOSE_WRITE)
	CloseNoWrite EventMask = EventMask(unix.IN_CLOSE_NOWRITE)
	Open         EventMask = EventMask(unix.IN_OPEN)
	MovedFrom    EventMask = EventMask(unix.IN_MOVED_FROM)
	MovedTo      EventMask = EventMask(unix.IN_MOVED_TO)
	Create       EventMask = EventMask(unix.IN_CREATE)
	Delete       EventMask = EventMask(unix.IN_DELETE)
	DeleteSelf   EventMask = EventMask(unix.IN_DELETE_SELF)
	MoveSelf     EventMask = EventMask(unix.IN_MOVE_SELF)

	// DontFollow is not a user-selectable event kind; it is folded into every
	// kernel registration (see ParseEvents) so that a symlink leaf within a
	// watched directory is never
	// followed by the kernel when it reports on it.
	DontFollow EventMask = EventMask(unix.IN_DONT_FOLLOW)

	// Overflow and IsDir are never requested by a Rule; they show up only on
	// inbound kernel records.
	Overflow EventMask = EventMask(unix.IN_Q_OVERFLOW)
	IsDir    EventMask = EventMask(unix.IN_ISDIR)
	Ignored  EventMask = EventMask(unix.IN_IGNORED)
)

// SystemMask is the set of events needed to notice directory-structure
// changes so that a recursive watch's subtree can be kept in sync.
const SystemMask = MovedFrom | MovedTo | Create | Delete | DeleteSelf | MoveSelf

// namedBits pairs every user-selectable event with the WATCHES keyword that
// names it, in the order the original mask_name() in listener.c prints them.
var namedBits = []struct {
	name string
	bit  EventMask
}{
	{"ACCESS", Access},
	{"MODIFY", Modify},
	{"ATTRIB", Attrib},
	{"CLOSE_WRITE", CloseWrite},
	{"CLOSE_NOWRITE", CloseNoWrite},
	{"OPEN", Open},
	{"MOVED_FROM", MovedFrom},
	{"MOVED_TO", MovedTo},
	{"CREATE", Create},
	{"DELETE", Delete},
	{"DELETE_SELF", DeleteSelf},
	{"MOVE_SELF", MoveSelf},
}

// Has reports whether every bit in want is set in m.
func (m EventMask) Has(want EventMask) bool { return m&want == want }

// Intersects reports whether m and other share any bit.
func (m EventMask) Intersects(other EventMask) bool { return m&other != 0 }

// String renders m as a "a | b | c" list in the style of the original
// mask_name(), e.g. "CREATE | MOVED_TO". Bits with no user-facing keyword
// (DontFollow, Overflow, IsDir, Ignored) are never printed.
func (m EventMask) String() string {
	var parts []string
	for _, nb := range namedBits {
		if m.Has(nb.bit) {
			parts = append(parts, nb.name)
		}
	}
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, " | ")
}

// ParseEvents parses a WATCHES value — a space-separated list of event
// keywords — into an EventMask. IN_DONT_FOLLOW is always folded in, matching
// parse_masks() in the original rules.c. An empty list, or any unrecognized
// keyword in it, yields a zero mask and a non-nil error.
func ParseEvents(fields []string) (EventMask, error) {
	var mask EventMask
	for _, f := range fields {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		var found bool
		for _, nb := range namedBits {
			if nb.name == f {
				mask |= nb.bit
				found = true
				break
			}
		}
		if !found {
			return 0, &InvalidEventError{Name: f}
		}
	}
	if mask == 0 {
		return 0, &InvalidEventError{Name: "(empty)"}
	}
	return mask | DontFollow, nil
}

// InvalidEventError reports an unrecognized WATCHES/watches keyword.
type InvalidEventError struct{ Name string }

func (e *InvalidEventError) Error() string {
	return "unknown event kind " + strconv.Quote(e.Name)
}
