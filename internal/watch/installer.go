package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/watchrules/listener/internal/logging"
	"github.com/watchrules/listener/internal/rule"
)

// Install registers a Rule's root watch and, for depth > 0, every existing
// descendant directory up to Rule.Depth levels down. It implements §4.3's
// protocol verbatim: failure on the root is returned to the caller (a fatal
// startup error); failure on a descendant is logged and its siblings still
// get a chance to register.
func Install(reg *Registry, k *kernel, r *rule.Rule, log *logging.Logger) (*Watch, error) {
	base := r.Events
	if r.Depth > 0 {
		base |= rule.SystemMask
	}

	root := fromRule(r)
	wd, mask, err := registerPath(reg, k, r.Target, base)
	if err != nil {
		return nil, err
	}
	root.Descriptor = wd
	root.EffectiveMask = mask
	reg.Add(root)

	if r.Depth > 0 {
		installDescendants(reg, k, root, base, log)
	}
	return root, nil
}

// installDescendants walks the subtree rooted at root.Path, registering a
// clone of root for every directory within root.Depth levels. Symlinks are
// never followed, matching §4.3's "symlinks are not followed when installing
// watches". base is the same Rule-derived mask (events, plus the system mask
// when depth > 0) used for the root registration.
func installDescendants(reg *Registry, k *kernel, root *Watch, base rule.EventMask, log *logging.Logger) {
	_ = filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, err error) error {
		if path == root.Path {
			return nil
		}
		if err != nil {
			log.Debugf("walking %q: %v", path, err)
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		depth := descendantDepth(root.Path, path)
		if depth > root.Depth {
			return fs.SkipDir
		}

		w := cloneFrom(root, path, 0, root.RootID)
		wd, mask, err := registerPath(reg, k, path, base)
		if err != nil {
			log.Warnf("registering watch on %q: %v", path, err)
			return nil
		}
		w.Descriptor = wd
		w.EffectiveMask = mask
		reg.Add(w)
		return nil
	})
}

// descendantDepth returns how many directory levels path is below root (an
// immediate child is depth 1).
func descendantDepth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(os.PathSeparator)) + 1
}

// registerPath computes the effective mask for path (base unioned with
// whatever is already registered there, per §4.3 step 1 / Testable Property
// 3) and registers it with the kernel, widening an existing registration
// with IN_MASK_ADD rather than replacing it.
func registerPath(reg *Registry, k *kernel, path string, base rule.EventMask) (uint32, rule.EventMask, error) {
	mask := base
	existed := false
	if d, ok := reg.DescriptorFor(path); ok {
		existed = true
		for _, w := range reg.Bucket(d) {
			mask |= w.EffectiveMask
		}
	}
	wd, err := k.addWatch(path, mask, existed)
	if err != nil {
		return 0, 0, err
	}
	return wd, mask, nil
}

// Rebuild implements §4.4 step 8: tear down every Watch belonging to root's
// subtree and reinstall it from scratch. Between the removal and the
// reinstall the Registry is momentarily inconsistent (root's old Watches
// already gone); events targeting the torn-down descriptors are dropped by
// the dispatcher's lookup-miss rule.
func Rebuild(reg *Registry, k *kernel, root *Watch, log *logging.Logger) (*Watch, error) {
	emptied := reg.RemoveRoot(root.RootID)
	for _, d := range emptied {
		if err := k.RmWatch(d); err != nil {
			log.Debugf("rm_watch during rebuild: %v", err)
		}
	}

	r := &rule.Rule{
		Target:      root.Path,
		Events:      root.Events,
		Command:     root.Command,
		LookAt:      root.LookAt,
		RegexSource: root.RegexSource,
		Regex:       regexp.MustCompilePOSIX(root.RegexSource),
		Depth:       root.Depth,
	}
	if err := rule.Validate(r); err != nil {
		return nil, err
	}
	return Install(reg, k, r, log)
}
