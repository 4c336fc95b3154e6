// Package table implements the open-addressed hash table shared by both
// the process-wide string-intern set and each VM's global-variable
// environment, as specified: linear probing, tombstone deletion, load
// factor 0.75, capacity doubling from 8.
//
// One bucket shape, two uses:
//
//   - Intern set: keys are string objects, values are the Nil sentinel.
//     Lookup by (bytes, length, hash) via FindString is how the compiler
//     and VM deduplicate every string constant and concatenation result.
//   - Globals: keys are interned variable-name strings, values are
//     whatever the program assigned.
//
// Bucket states (see Get/Set/Delete):
//
//   - empty:     key == nil, probing stops here.
//   - tombstone: key == nil but marked deleted; probing continues past it.
//   - occupied:  key != nil.
//
// count tracks occupied+tombstone buckets (not just occupied) so the
// load-factor trigger accounts for buckets that can't be reused until a
// rehash, exactly as the reference implementation requires.
package table

import "github.com/kristofer/ember/pkg/value"

const (
	initialCapacity = 8
	maxLoad         = 0.75
)

type bucketState byte

const (
	stateEmpty bucketState = iota
	stateTombstone
	stateOccupied
)

type entry struct {
	key   *value.Obj
	val   value.Value
	state bucketState
}

// Table is an open-addressed hash map from interned string objects to
// Values. The zero Table is ready to use (capacity grows lazily on first
// Set).
type Table struct {
	entries []entry
	count   int
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// Get looks up key by reference identity and returns its value and whether
// it was found.
func (t *Table) Get(key *value.Obj) (value.Value, bool) {
	if len(t.entries) == 0 || key == nil {
		return value.Nil, false
	}
	e := t.findEntry(t.entries, key)
	if e.state != stateOccupied {
		return value.Nil, false
	}
	return e.val, true
}

// Set inserts or overwrites key's value, growing the table first if the
// load factor would exceed 0.75. Reports whether this inserted a brand new
// key (false means an existing key's value was overwritten).
func (t *Table) Set(key *value.Obj, val value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}

	e := t.findEntry(t.entries, key)
	isNew := e.state != stateOccupied
	if isNew && e.state == stateEmpty {
		t.count++
	}
	e.key = key
	e.val = val
	e.state = stateOccupied
	return isNew
}

// Delete turns key's bucket into a tombstone, preserving the probe chain
// for every other key that may have collided past it. Reports whether key
// was present.
func (t *Table) Delete(key *value.Obj) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.findEntry(t.entries, key)
	if e.state != stateOccupied {
		return false
	}
	e.key = nil
	e.val = value.Nil
	e.state = stateTombstone
	return true
}

// FindString is the interning lookup: it bypasses Value-level equality and
// compares (length, hash, bytes) directly against every occupied bucket it
// probes, terminating at the first empty bucket. Returns nil if no interned
// string with these exact bytes exists yet.
func (t *Table) FindString(chars string, hash uint32) *value.Obj {
	if len(t.entries) == 0 {
		return nil
	}
	cap := len(t.entries)
	index := int(hash) % cap
	for {
		e := &t.entries[index]
		switch e.state {
		case stateEmpty:
			return nil
		case stateOccupied:
			if e.key.Str.Length == len(chars) && e.key.Str.Hash == hash && e.key.Str.Chars == chars {
				return e.key
			}
		}
		index = (index + 1) % cap
	}
}

// Count returns the number of live (occupied) entries, excluding
// tombstones - useful for tests and diagnostics, not load-factor math.
func (t *Table) Count() int {
	n := 0
	for _, e := range t.entries {
		if e.state == stateOccupied {
			n++
		}
	}
	return n
}

// Capacity returns the current bucket array size.
func (t *Table) Capacity() int { return len(t.entries) }

// findEntry probes entries starting at key's hash, returning the first
// occupied bucket matching key by reference, or - if none matches - the
// first tombstone seen along the way (so Set can reuse it), or the
// terminating empty bucket. Probing is guaranteed to terminate because the
// load factor is kept below 1.
func (t *Table) findEntry(entries []entry, key *value.Obj) *entry {
	cap := len(entries)
	index := int(key.Str.Hash) % cap
	var tombstone *entry

	for {
		e := &entries[index]
		switch e.state {
		case stateEmpty:
			if tombstone != nil {
				return tombstone
			}
			return e
		case stateTombstone:
			if tombstone == nil {
				tombstone = e
			}
		case stateOccupied:
			if e.key == key {
				return e
			}
		}
		index = (index + 1) % cap
	}
}

// adjustCapacity rehashes every occupied bucket into a freshly sized
// array. Tombstones are dropped during rehash (they only existed to keep
// old probe chains intact) so count resets to exactly the number of live
// entries.
func (t *Table) adjustCapacity(newCapacity int) {
	fresh := make([]entry, newCapacity)
	liveCount := 0
	for _, e := range t.entries {
		if e.state != stateOccupied {
			continue
		}
		dest := findEntryIn(fresh, e.key)
		dest.key = e.key
		dest.val = e.val
		dest.state = stateOccupied
		liveCount++
	}
	t.entries = fresh
	t.count = liveCount
}

// findEntryIn is findEntry specialized for a fresh, tombstone-free array
// (used only by adjustCapacity, which never encounters tombstones in the
// destination).
func findEntryIn(entries []entry, key *value.Obj) *entry {
	cap := len(entries)
	index := int(key.Str.Hash) % cap
	for {
		e := &entries[index]
		if e.state == stateEmpty {
			return e
		}
		index = (index + 1) % cap
	}
}

// growCapacity doubles cap, starting from initialCapacity when empty.
func growCapacity(cap int) int {
	if cap < initialCapacity {
		return initialCapacity
	}
	return cap * 2
}
