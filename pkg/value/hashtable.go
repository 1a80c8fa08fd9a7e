package value

// Hash tables are open-addressed, power-of-two sized, linear-probing, and
// tombstone-deleting (never shrink, never shift a run on delete) — the
// same design spec.md §4.1 prescribes for both the string-keyed tables
// used as Class/Instance field tables and the general value-keyed tables
// backing the Table object kind. A table grows (doubles) when the load
// factor, counting tombstones as occupied, would exceed 0.75.

const loadFactorLimit = 0.75

// entryState distinguishes a truly empty slot from one vacated by Delete;
// probing must continue through tombstones, and Put may reuse one.
type entryState byte

const (
	slotEmpty entryState = iota
	slotTombstone
	slotLive
)

// StringTable maps *String keys (already interned, so comparable by
// pointer) to Values. Used for Class method tables, Instance field
// tables, and Module globals.
type StringTable struct {
	entries []stringEntry
	count   int // live entries
	used    int // live + tombstones
}

type stringEntry struct {
	state entryState
	key   *String
	value Value
}

// NewStringTable returns an empty table with its initial power-of-two
// capacity.
func NewStringTable() *StringTable {
	return &StringTable{entries: make([]stringEntry, 8)}
}

func (t *StringTable) Len() int { return t.count }

func (t *StringTable) Get(key *String) (Value, bool) {
	if len(t.entries) == 0 {
		return Value{}, false
	}
	idx, found := t.find(key)
	if !found {
		return Value{}, false
	}
	return t.entries[idx].value, true
}

// Put inserts or overwrites key -> v, growing the table first if that
// would push the load factor (including tombstones) past the limit.
func (t *StringTable) Put(key *String, v Value) {
	if float64(t.used+1) > float64(len(t.entries))*loadFactorLimit {
		t.grow()
	}
	idx, found := t.find(key)
	if found {
		t.entries[idx].value = v
		return
	}
	if t.entries[idx].state == slotEmpty {
		t.used++
	}
	t.entries[idx] = stringEntry{state: slotLive, key: key, value: v}
	t.count++
}

// Delete removes key if present, leaving a tombstone so later probes for
// other keys that collided with it still find them.
func (t *StringTable) Delete(key *String) bool {
	idx, found := t.find(key)
	if !found {
		return false
	}
	t.entries[idx] = stringEntry{state: slotTombstone}
	t.count--
	return true
}

// find returns the slot index for key: either the slot holding it (found
// true) or the first empty/reusable slot the probe sequence reaches
// (found false), per spec.md §4.1's linear-probe-past-tombstones rule.
func (t *StringTable) find(key *String) (int, bool) {
	mask := uint64(len(t.entries) - 1)
	idx := uint64(key.Hash) & mask
	var firstTombstone = -1
	for {
		e := &t.entries[idx]
		switch e.state {
		case slotEmpty:
			if firstTombstone != -1 {
				return firstTombstone, false
			}
			return int(idx), false
		case slotTombstone:
			if firstTombstone == -1 {
				firstTombstone = int(idx)
			}
		case slotLive:
			if e.key == key {
				return int(idx), true
			}
		}
		idx = (idx + 1) & mask
	}
}

func (t *StringTable) grow() {
	old := t.entries
	t.entries = make([]stringEntry, len(old)*2)
	t.count, t.used = 0, 0
	for _, e := range old {
		if e.state == slotLive {
			t.Put(e.key, e.value)
		}
	}
}

// Keys returns the table's live keys as strings, sorted, for deterministic
// introspection output (REPL :globals, :class). Never used on a hot
// execution path.
func (t *StringTable) Keys() []string {
	out := make([]string, 0, t.count)
	for _, e := range t.entries {
		if e.state == slotLive {
			out = append(out, e.key.String())
		}
	}
	sortStrings(out)
	return out
}

// FindByContent looks up an entry by string content rather than pointer
// identity, comparing hash then bytes. Used only by pkg/heap's interning
// step, which is the one place a StringTable must answer "is a string with
// this content already interned" before a canonical *String pointer exists
// to probe with; every other user of StringTable already holds the
// canonical pointer and uses the pointer-identity Get/Put above.
func (t *StringTable) FindByContent(hash uint32, bytes []byte) (*String, bool) {
	if len(t.entries) == 0 {
		return nil, false
	}
	mask := uint64(len(t.entries) - 1)
	idx := uint64(hash) & mask
	for {
		e := &t.entries[idx]
		switch e.state {
		case slotEmpty:
			return nil, false
		case slotLive:
			if e.key.Hash == hash && string(e.key.Bytes) == string(bytes) {
				return e.key, true
			}
		}
		idx = (idx + 1) & mask
	}
}

// Each calls fn once per live entry, in bucket order (not sorted); used by
// pkg/heap's mark phase to blacken every key/value a table holds.
func (t *StringTable) Each(fn func(key *String, v Value)) {
	for _, e := range t.entries {
		if e.state == slotLive {
			fn(e.key, e.value)
		}
	}
}

// Weaken removes any entry whose key's Object has not been marked by the
// current GC cycle, implementing the string-intern table's weak-hash-table
// semantics (spec.md §3): entries are checked after mark, before sweep.
func (t *StringTable) Weaken() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.state == slotLive && !e.key.Marked {
			e.state = slotTombstone
			t.count--
		}
	}
}

// ValueTable maps arbitrary hashable Values (per Hashable) to Values;
// backs the Table object kind.
type ValueTable struct {
	entries []valueEntry
	count   int
	used    int
}

type valueEntry struct {
	state entryState
	key   Value
	value Value
}

func NewValueTable() *ValueTable {
	return &ValueTable{entries: make([]valueEntry, 8)}
}

func (t *ValueTable) Len() int { return t.count }

func (t *ValueTable) Get(key Value) (Value, bool) {
	if len(t.entries) == 0 {
		return Value{}, false
	}
	idx, found := t.find(key)
	if !found {
		return Value{}, false
	}
	return t.entries[idx].value, true
}

func (t *ValueTable) Put(key Value, v Value) {
	if float64(t.used+1) > float64(len(t.entries))*loadFactorLimit {
		t.grow()
	}
	idx, found := t.find(key)
	if found {
		t.entries[idx].value = v
		return
	}
	if t.entries[idx].state == slotEmpty {
		t.used++
	}
	t.entries[idx] = valueEntry{state: slotLive, key: key, value: v}
	t.count++
}

func (t *ValueTable) Delete(key Value) bool {
	idx, found := t.find(key)
	if !found {
		return false
	}
	t.entries[idx] = valueEntry{state: slotTombstone}
	t.count--
	return true
}

func (t *ValueTable) find(key Value) (int, bool) {
	mask := uint64(len(t.entries) - 1)
	idx := key.HashBits() & mask
	firstTombstone := -1
	for {
		e := &t.entries[idx]
		switch e.state {
		case slotEmpty:
			if firstTombstone != -1 {
				return firstTombstone, false
			}
			return int(idx), false
		case slotTombstone:
			if firstTombstone == -1 {
				firstTombstone = int(idx)
			}
		case slotLive:
			if e.key.Equal(key) {
				return int(idx), true
			}
		}
		idx = (idx + 1) & mask
	}
}

func (t *ValueTable) grow() {
	old := t.entries
	t.entries = make([]valueEntry, len(old)*2)
	t.count, t.used = 0, 0
	for _, e := range old {
		if e.state == slotLive {
			t.Put(e.key, e.value)
		}
	}
}

// Each calls fn once per live entry, in bucket order; used by pkg/heap's
// mark phase to blacken every key/value a Table object holds.
func (t *ValueTable) Each(fn func(key, v Value)) {
	for _, e := range t.entries {
		if e.state == slotLive {
			fn(e.key, e.value)
		}
	}
}

// sortStrings is a tiny insertion sort, used only to keep Keys' own output
// deterministic. cmd/ember's :globals/:class REPL commands, which merge
// several Keys() results together, re-sort the merged slice with
// golang.org/x/exp/slices.Sort/Compact instead of pulling that import in
// here for a single already-small table.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
