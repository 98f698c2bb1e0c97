package watch

import (
	"testing"

	"github.com/watchrules/listener/internal/rule"
)

func newTestWatch(path string, descriptor uint32, rootID uint64) *Watch {
	id := allocWatchID()
	if rootID == 0 {
		rootID = id
	}
	return &Watch{
		ID:            id,
		RootID:        rootID,
		Descriptor:    descriptor,
		Path:          path,
		Events:        rule.Create,
		EffectiveMask: rule.Create,
		LookAt:        rule.LookAtFiles,
	}
}

func TestRegistryBucketingSharedDescriptor(t *testing.T) {
	reg := NewRegistry()

	w1 := newTestWatch("/tmp/T", 7, 0)
	w2 := newTestWatch("/tmp/T", 7, 0) // a second Rule targeting the same path
	reg.Add(w1)
	reg.Add(w2)

	bucket := reg.Bucket(7)
	if len(bucket) != 2 {
		t.Fatalf("expected 2 watches sharing descriptor 7, got %d", len(bucket))
	}
	if bucket[0] != w1 || bucket[1] != w2 {
		t.Error("bucket order should be insertion order")
	}

	d, ok := reg.DescriptorFor("/tmp/T")
	if !ok || d != 7 {
		t.Errorf("DescriptorFor = %d, %v; want 7, true", d, ok)
	}
}

func TestRegistryRemoveRootRefcounts(t *testing.T) {
	reg := NewRegistry()

	root := newTestWatch("/tmp/T", 7, 0)
	child := newTestWatch("/tmp/T/a", 8, root.RootID)
	// A second rule's root watch happens to land on the same descendant path
	// and thus shares descriptor 8 with child, but belongs to a different
	// subtree.
	other := newTestWatch("/tmp/T/a", 8, 0)
	reg.Add(root)
	reg.Add(child)
	reg.Add(other)

	emptied := reg.RemoveRoot(root.RootID)
	if len(emptied) != 1 || emptied[0] != 7 {
		t.Errorf("descriptor 7 (root only, not shared) should be emptied, got %v", emptied)
	}

	if len(reg.Bucket(7)) != 0 {
		t.Error("descriptor 7 bucket should be empty after RemoveRoot")
	}
	if len(reg.Bucket(8)) != 1 || reg.Bucket(8)[0] != other {
		t.Errorf("descriptor 8 should still carry the unrelated watch, got %v", reg.Bucket(8))
	}

	all := reg.All()
	if len(all) != 1 || all[0] != other {
		t.Errorf("All() after RemoveRoot = %v, want [other]", all)
	}
}

func TestRegistryRootIDs(t *testing.T) {
	reg := NewRegistry()
	root1 := newTestWatch("/tmp/T", 7, 0)
	child1 := newTestWatch("/tmp/T/a", 8, root1.RootID)
	root2 := newTestWatch("/tmp/U", 9, 0)
	reg.Add(root1)
	reg.Add(child1)
	reg.Add(root2)

	ids := reg.RootIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct roots, got %d", len(ids))
	}
}
