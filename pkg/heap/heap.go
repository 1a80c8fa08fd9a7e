// Package heap implements ember's allocator and precise, tracing
// mark-and-sweep garbage collector, per spec.md §4.5.
//
// A Heap tracks total allocated bytes against a moving next_gc threshold,
// threads every live object into one intrusive allocation list (via each
// object's embedded value.Object header), and runs a mark phase from a
// caller-supplied root set followed by a sweep phase that frees anything
// left unmarked. The VM owns the Heap and supplies roots (the value stack,
// each frame's closure, open upvalues, the current module and its globals,
// the module registry, and the built-in exception classes) through a
// RootFunc callback at collection time; interned strings are not roots,
// the intern table is weak — pkg/heap itself knows nothing about frames or the
// VM's call stack, only how to walk value.Obj references.
package heap

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/emberlang/ember/pkg/value"
)

// Config carries the tunables spec.md §4.5 names, with its defaults.
// Never hardcode past these; an embedder passes its own Config to api.New
// (the CLI uses api.NewDefault, which takes DefaultConfig as is).
type Config struct {
	// MinThreshold is the floor next_gc never drops below. Default 20 MiB.
	MinThreshold uint64
	// HeapGrowRate scales allocated bytes into the next next_gc. Default 2.
	HeapGrowRate float64
	// StackCapacity bounds the VM's value stack depth.
	StackCapacity int
	// MaxFrames bounds call-frame recursion depth.
	MaxFrames int
	// MaxReentrant bounds nested host-API re-entry into the interpreter.
	MaxReentrant int
}

// DefaultConfig returns spec.md's defaults: 20 MiB minimum threshold, 2x
// growth rate, and stack/frame/reentrancy limits sized for a scripting
// workload running embedded in a host process rather than as a standalone
// runtime with its own address space to spend.
func DefaultConfig() Config {
	return Config{
		MinThreshold:  20 * 1024 * 1024,
		HeapGrowRate:  2.0,
		StackCapacity: 1 << 16,
		MaxFrames:     1024,
		MaxReentrant:  64,
	}
}

// RootFunc enumerates a collection's root set by calling mark once per
// reachable value.Obj. The VM supplies this at Collect time; pkg/heap
// never reaches into VM state itself.
type RootFunc func(mark func(value.Obj))

// Stats summarizes one completed collection, per spec.md §4.5's "allocated,
// next_gc" diagnostic surface.
type Stats struct {
	Allocated uint64
	NextGC    uint64
	Freed     uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("allocated=%s next_gc=%s freed=%s",
		humanize.Bytes(s.Allocated), humanize.Bytes(s.NextGC), humanize.Bytes(s.Freed))
}

// Heap owns the allocation-accounting state, the intrusive allocation
// list, and the weak string-intern table, per spec.md §3/§4.5.
type Heap struct {
	cfg       Config
	allocated uint64
	nextGC    uint64
	head      value.Obj
	strings   *value.StringTable
	gray      []value.Obj
}

// New creates an empty Heap with next_gc initialized to cfg.MinThreshold.
func New(cfg Config) *Heap {
	return &Heap{cfg: cfg, nextGC: cfg.MinThreshold, strings: value.NewStringTable()}
}

func (h *Heap) Allocated() uint64 { return h.allocated }
func (h *Heap) NextGC() uint64    { return h.nextGC }

// ShouldCollect reports whether the next allocation should trigger a
// collection first, per spec.md §4.5's "on every allocation where
// allocated > next_gc" rule.
func (h *Heap) ShouldCollect() bool { return h.allocated > h.nextGC }

// Track threads a freshly allocated object into the allocation list in
// unmarked state and adds size to the allocated-bytes total, per spec.md
// §4.5's Lifecycle rule. Callers allocate the concrete Go object
// themselves with its Object.Kind set (for example
// `&value.List{Object: value.Object{Kind: value.KList}}`), since the mark
// phase picks each object's children by that tag, and hand it to Track
// once, immediately, before it can become unreachable.
func (h *Heap) Track(o value.Obj, size uint64) {
	hdr := o.Header()
	hdr.Marked = false
	hdr.Next = h.head
	hdr.Size = uint32(size)
	h.head = o
	h.allocated += size
}

// Intern returns the canonical *value.String for bytes, allocating and
// tracking a new one only if no live string with this content is already
// interned. Per spec.md §3 invariant 3, two ember strings with equal
// content are always the same heap object after interning.
func (h *Heap) Intern(bytes []byte) *value.String {
	hash := value.FNV1a32(bytes)
	if s, ok := h.strings.FindByContent(hash, bytes); ok {
		return s
	}
	s := &value.String{Bytes: append([]byte(nil), bytes...), Hash: hash}
	h.Track(s, uint64(len(bytes))+16)
	h.strings.Put(s, value.NullValue)
	return s
}

// Collect runs one full mark-and-sweep cycle: mark from roots, weaken the
// string-intern table, sweep unmarked objects, then update next_gc. It
// returns Stats describing the result.
func (h *Heap) Collect(roots RootFunc) Stats {
	h.gray = h.gray[:0]
	roots(h.Mark)
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(o)
	}
	h.strings.Weaken()
	freed := h.sweep()
	h.updateThreshold()
	return Stats{Allocated: h.allocated, NextGC: h.nextGC, Freed: freed}
}

// Mark marks o reached and pushes it to the gray stack for blackening,
// the entry point every root (and every blacken call) feeds objects
// through. Marking an already-marked object is a no-op, which is what
// keeps a cyclic object graph from looping the mark phase forever.
func (h *Heap) Mark(o value.Obj) {
	if o == nil {
		return
	}
	hdr := o.Header()
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	h.gray = append(h.gray, o)
}

// MarkValue marks v's object payload, if it has one; null/bool/number/
// handle values have nothing for the GC to reach.
func (h *Heap) MarkValue(v value.Value) {
	if v.IsObj() {
		h.Mark(v.AsObject())
	}
}

// blacken recursively marks every object a gray object references, per
// spec.md §4.5's per-kind list. Dispatch is an explicit switch on the kind
// tag, matching pkg/value's own polymorphism rule (see object.go).
func (h *Heap) blacken(o value.Obj) {
	switch o.Header().Kind {
	case value.KString, value.KNative, value.KStackTrace, value.KUserdata:
		// no Value-shaped children to mark

	case value.KList:
		l := o.(*value.List)
		for _, v := range l.Items {
			h.MarkValue(v)
		}

	case value.KTuple:
		t := o.(*value.Tuple)
		for _, v := range t.Items {
			h.MarkValue(v)
		}

	case value.KTable:
		t := o.(*value.Table)
		t.Table.Each(func(k, v value.Value) {
			h.MarkValue(k)
			h.MarkValue(v)
		})

	case value.KFunction:
		fn := o.(*value.Function)
		for _, c := range fn.Constants {
			h.MarkValue(c)
		}
		for _, d := range fn.Defaults {
			h.MarkValue(d)
		}
		if fn.Module != nil {
			h.Mark(fn.Module)
		}

	case value.KClosure:
		c := o.(*value.Closure)
		h.Mark(c.Fn)
		for _, uv := range c.Upvalues {
			if uv != nil {
				h.Mark(uv)
			}
		}

	case value.KClass:
		cls := o.(*value.Class)
		if cls.Super != nil {
			h.Mark(cls.Super)
		}
		cls.Methods.Each(func(k *value.String, v value.Value) {
			h.Mark(k)
			h.MarkValue(v)
		})

	case value.KInstance:
		inst := o.(*value.Instance)
		h.Mark(inst.Class)
		inst.Fields.Each(func(k *value.String, v value.Value) {
			h.Mark(k)
			h.MarkValue(v)
		})

	case value.KModule:
		m := o.(*value.Module)
		m.Globals.Each(func(k *value.String, v value.Value) {
			h.Mark(k)
			h.MarkValue(v)
		})

	case value.KBoundMethod:
		bm := o.(*value.BoundMethod)
		h.MarkValue(bm.Receiver)
		h.MarkValue(bm.Method)

	case value.KUpvalue:
		uv := o.(*value.Upvalue)
		if uv.IsOpen() {
			h.MarkValue(*uv.Location)
		} else {
			h.MarkValue(uv.Closed)
		}
	}
}

// sweep walks the intrusive allocation list, unlinking and freeing every
// object left unmarked, and clears the mark bit on every survivor so the
// next cycle starts clean, per spec.md §4.5.
func (h *Heap) sweep() uint64 {
	var freed uint64
	var prev value.Obj
	cur := h.head
	for cur != nil {
		hdr := cur.Header()
		next := hdr.Next
		if hdr.Marked {
			hdr.Marked = false
			prev = cur
			cur = next
			continue
		}
		freed += uint64(hdr.Size)
		if prev == nil {
			h.head = next
		} else {
			prev.Header().Next = next
		}
		if ud, ok := cur.(*value.Userdata); ok && ud.Finalizer != nil {
			ud.Finalizer(ud)
		}
		cur = next
	}
	h.allocated -= freed
	return freed
}

// updateThreshold implements spec.md §4.5's "next_gc = max(min_threshold,
// allocated * heap_grow_rate)" rule.
func (h *Heap) updateThreshold() {
	grown := uint64(float64(h.allocated) * h.cfg.HeapGrowRate)
	h.nextGC = h.cfg.MinThreshold
	if grown > h.nextGC {
		h.nextGC = grown
	}
}
