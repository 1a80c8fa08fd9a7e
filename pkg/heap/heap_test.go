package heap

import (
	"testing"

	"github.com/emberlang/ember/pkg/value"
)

func newTestHeap() *Heap {
	cfg := DefaultConfig()
	cfg.MinThreshold = 1 // force ShouldCollect to be meaningful in tests
	return New(cfg)
}

func TestInternDedupesByContent(t *testing.T) {
	h := newTestHeap()
	a := h.Intern([]byte("hello"))
	b := h.Intern([]byte("hello"))
	if a != b {
		t.Fatalf("want same interned pointer for equal content, got %p != %p", a, b)
	}
	c := h.Intern([]byte("world"))
	if a == c {
		t.Fatalf("want distinct pointers for different content")
	}
}

func TestCollectFreesUnreachableList(t *testing.T) {
	h := newTestHeap()
	reachable := &value.List{}
	h.Track(reachable, 32)
	unreachable := &value.List{}
	h.Track(unreachable, 32)

	before := h.Allocated()
	stats := h.Collect(func(mark func(value.Obj)) {
		mark(reachable)
	})
	if stats.Freed == 0 {
		t.Fatalf("want nonzero freed bytes, got %#v", stats)
	}
	if h.Allocated() >= before {
		t.Fatalf("want allocated to shrink after collecting unreachable object, before=%d after=%d", before, h.Allocated())
	}
	if reachable.Header().Marked {
		t.Fatalf("want mark bit cleared on survivor after sweep")
	}
}

func TestCollectTracesListElements(t *testing.T) {
	h := newTestHeap()
	inner := &value.List{Object: value.Object{Kind: value.KList}}
	h.Track(inner, 16)
	outer := &value.List{Object: value.Object{Kind: value.KList}, Items: []value.Value{value.ObjectValue(inner)}}
	h.Track(outer, 32)

	h.Collect(func(mark func(value.Obj)) {
		mark(outer)
	})

	if inner.Header().Marked {
		t.Fatalf("expected marks cleared after sweep")
	}
	// inner must have survived sweep since it's reachable through outer.
	found := false
	for cur := h.head; cur != nil; cur = cur.Header().Next {
		if cur == value.Obj(inner) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected inner list to survive collection via outer's reference")
	}
}

func TestWeakenDropsUnmarkedInternedStrings(t *testing.T) {
	h := newTestHeap()
	s := h.Intern([]byte("transient"))
	h.Collect(func(mark func(value.Obj)) {})
	if _, ok := h.strings.FindByContent(s.Hash, s.Bytes); ok {
		t.Fatalf("want unreferenced interned string removed from the weak table after collection")
	}
}

func TestThresholdGrowsWithAllocated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinThreshold = 100
	cfg.HeapGrowRate = 2.0
	h := New(cfg)
	big := &value.List{}
	h.Track(big, 1000)
	h.Collect(func(mark func(value.Obj)) { mark(big) })
	if h.NextGC() != 2000 {
		t.Fatalf("want next_gc 2000 (1000 * 2.0), got %d", h.NextGC())
	}
}
