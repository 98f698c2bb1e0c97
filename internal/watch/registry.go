package watch

import "sync"

// Registry indexes every live Watch by its kernel descriptor. Unlike
// fsnotify's watches type (one *watch per wd), a descriptor here may carry
// more than one Watch: two Rules that target the same path end up sharing
// one kernel registration (inotify_add_watch on an already-watched path just
// widens its mask) while still needing independent dispatch state — their
// own Command, Regex, LookAt. The Registry therefore buckets by descriptor,
// matching the original's watch_index chained-list-per-wd structure.
type Registry struct {
	mu      sync.RWMutex
	byDescr map[uint32][]*Watch
	byPath  map[string]uint32
	ordered []*Watch // insertion order, for deterministic shutdown/listing
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byDescr: make(map[uint32][]*Watch),
		byPath:  make(map[string]uint32),
	}
}

// Bucket returns the Watches registered under descriptor d, in insertion
// order. The returned slice must not be mutated.
func (r *Registry) Bucket(d uint32) []*Watch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byDescr[d]
}

// DescriptorFor returns the kernel descriptor already registered for path,
// if any.
func (r *Registry) DescriptorFor(path string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byPath[path]
	return d, ok
}

// Add inserts w into the registry under w.Descriptor, recording the
// path→descriptor mapping. Callers must set w.Descriptor (from the kernel's
// inotify_add_watch return value) before calling Add.
func (r *Registry) Add(w *Watch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDescr[w.Descriptor] = append(r.byDescr[w.Descriptor], w)
	r.byPath[w.Path] = w.Descriptor
	r.ordered = append(r.ordered, w)
}

// RootByID returns the subtree root Watch whose ID is rootID, if it is still
// registered. Used by the dispatcher to resolve a triggering Watch (which may
// be a descendant) back to the root that Rebuild must reinstall.
func (r *Registry) RootByID(rootID uint64) (*Watch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.ordered {
		if w.ID == rootID && w.IsRoot() {
			return w, true
		}
	}
	return nil, false
}

// RemoveRoot removes every Watch whose RootID equals rootID (the subtree
// root plus all of its descendants), grouped by descriptor so the caller can
// issue one inotify_rm_watch per descriptor that has no remaining
// referents. It returns the distinct descriptors that became fully
// unreferenced.
func (r *Registry) RemoveRoot(rootID uint64) (emptied []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	touched := make(map[uint32]bool)
	var kept []*Watch
	for _, w := range r.ordered {
		if w.RootID == rootID {
			touched[w.Descriptor] = true
			continue
		}
		kept = append(kept, w)
	}
	r.ordered = kept

	for d := range touched {
		var remain []*Watch
		for _, w := range r.byDescr[d] {
			if w.RootID != rootID {
				remain = append(remain, w)
			}
		}
		if len(remain) == 0 {
			delete(r.byDescr, d)
			emptied = append(emptied, d)
		} else {
			r.byDescr[d] = remain
		}
	}
	for path, d := range r.byPath {
		if touched[d] && len(r.byDescr[d]) == 0 {
			delete(r.byPath, path)
		}
	}
	return emptied
}

// All returns every registered Watch in insertion order.
func (r *Registry) All() []*Watch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Watch, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// RootIDs returns the RootID of every distinct subtree currently registered.
func (r *Registry) RootIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[uint64]bool)
	var ids []uint64
	for _, w := range r.ordered {
		if !seen[w.RootID] {
			seen[w.RootID] = true
			ids = append(ids, w.RootID)
		}
	}
	return ids
}
