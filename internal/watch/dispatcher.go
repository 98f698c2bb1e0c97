package watch

import (
	"os"

	"github.com/watchrules/listener/internal/logging"
	"github.com/watchrules/listener/internal/rule"
)

// deletionMask is the set of event kinds that legitimately leave nothing to
// stat: the path named by the event no longer exists at that location.
const deletionMask = rule.Delete | rule.DeleteSelf | rule.MovedFrom

// selfEventMask is the set of event kinds that concern the watched entry
// itself rather than a leaf within it; their offending name is Watch.Path.
const selfEventMask = rule.DeleteSelf | rule.MoveSelf

// rebuildMask is the set of event kinds that change the watched directory's
// structure enough to require rediscovering descendants, per §4.4 step 6.
// DeleteSelf/MoveSelf are deliberately excluded: those concern the watched
// entry itself, not a structural change within it.
const rebuildMask = rule.Create | rule.Delete | rule.MovedFrom | rule.MovedTo

// Spawned is the value-copy handoff record described in §4.4 step 7 (the
// original's ThreadInfo): a snapshot of the Watch plus the offending leaf
// name, safe for a worker goroutine to read without touching the Registry.
type Spawned struct {
	Watch Watch
	Name  string
}

// SpawnFunc hands a matched event off to the Worker Spawner. It must return
// quickly: the dispatcher calls it inline and does not wait for the child
// process it starts.
type SpawnFunc func(Spawned)

// Dispatcher owns the kernel event source and the Registry and runs the
// single read/match/spawn loop described in §4.4. It is not safe for
// concurrent use; only the goroutine running Run touches it.
type Dispatcher struct {
	reg   *Registry
	k     *kernel
	log   *logging.Logger
	spawn SpawnFunc
}

// NewDispatcher builds a Dispatcher over an already-populated Registry.
func NewDispatcher(reg *Registry, k *kernel, spawn SpawnFunc, log *logging.Logger) *Dispatcher {
	return &Dispatcher{reg: reg, k: k, spawn: spawn, log: log}
}

// Run executes the outer loop: wait for the kernel fd or a Stop call to be
// readable, and if it was the kernel fd, read a batch and process every
// record in it. It returns when Stop unblocks the wait.
func (d *Dispatcher) Run() error {
	for {
		ready, err := d.k.wait()
		if err != nil {
			return err
		}
		if !ready {
			return nil
		}

		records, err := d.k.readBatch()
		if err != nil {
			return err
		}
		for _, rec := range records {
			d.process(rec)
		}
	}
}

// process implements §4.4's eight per-record steps in order.
func (d *Dispatcher) process(rec record) {
	if rec.Mask&rule.Overflow != 0 {
		d.log.Warnf("inotify queue overflow; some events were not reported")
		return
	}

	// 1. Lookup.
	bucket := d.reg.Bucket(rec.Wd)
	if len(bucket) == 0 {
		return
	}

	// Tie-break: the first Watch in the bucket whose Events intersects the
	// record's mask wins; no second match is attempted for this record.
	var w *Watch
	for _, candidate := range bucket {
		// 2. Mask match.
		if candidate.Events.Intersects(rec.Mask) {
			w = candidate
			break
		}
	}
	if w == nil {
		return
	}

	selfEvent := rec.Mask&selfEventMask != 0

	var name string
	if selfEvent {
		// 3. Self-events short-circuit: regex/stat filtering skipped.
		name = w.Path
	} else {
		name = rec.Name

		// 4. Regex filter.
		if w.Regex != nil && !w.Regex.MatchString(name) {
			return
		}

		// 5. Type filter. A deletion event legitimately leaves no object to
		// stat, so a stat failure on one bypasses the class check rather
		// than dropping the event.
		full := w.Path + "/" + name
		fi, err := os.Lstat(full)
		switch {
		case err != nil && rec.Mask&deletionMask != 0:
			// fall through to spawn.
		case err != nil:
			if w.UsesEntry() {
				d.log.Debugf("stat %q for %q: %v", full, w.Command, err)
			}
			return
		case classify(fi) != w.LookAt:
			return
		}
	}

	// 6. Rebuild trigger.
	rebuild := w.Depth > 0 && rec.Mask.Intersects(rebuildMask)

	// 7. Spawn.
	if d.spawn != nil {
		d.spawn(Spawned{Watch: *w, Name: name})
	}

	// 8. Rebuild, deferred: runs after the handoff, before the next record.
	// w may be a descendant Watch (the event fired on a subdirectory's own
	// descriptor), so the root to reinstall is resolved via RootID rather
	// than reusing w itself — rebuilding from a descendant would re-root the
	// whole subtree at that descendant's path and lose everything above it.
	if rebuild {
		root, ok := d.reg.RootByID(w.RootID)
		if !ok {
			d.log.Errorf("rebuilding subtree: root %d for %q no longer registered", w.RootID, w.Path)
			return
		}
		if _, err := Rebuild(d.reg, d.k, root, d.log); err != nil {
			d.log.Errorf("rebuilding subtree at %q: %v", root.Path, err)
		}
	}
}

// classify maps a stat result onto the LookAt class it belongs to.
func classify(fi os.FileInfo) rule.LookAt {
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		return rule.LookAtSymlinks
	case fi.IsDir():
		return rule.LookAtDirs
	default:
		return rule.LookAtFiles
	}
}
