package tie

import (
	"sort"

	"github.com/fabricrift/riftgo/internal/packet"
)

// Entry is one stored TIE: header plus its typed element.
type Entry struct {
	Header  packet.TIEHeader
	Element packet.Element
}

// Store is the ordered TIE database: a sorted index over a TIE-ID-keyed
// map, giving both O(log n) point lookup and in-order range scans (spec.md
// §3 "Ordered TIE store"). No pack dependency supplies a generic ordered
// map (SPEC_FULL.md §B.4); the sorted-index-plus-map shape is the stdlib
// equivalent of one.
type Store struct {
	ids     []packet.TIEID // kept sorted ascending by TIEID.Compare
	entries map[packet.TIEID]*Entry
}

// NewStore creates an empty TIE database.
func NewStore() *Store {
	return &Store{entries: make(map[packet.TIEID]*Entry)}
}

// Len returns the number of stored TIEs.
func (s *Store) Len() int { return len(s.ids) }

// Get returns the stored entry for id, if any.
func (s *Store) Get(id packet.TIEID) (*Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

func (s *Store) search(id packet.TIEID) int {
	return sort.Search(len(s.ids), func(i int) bool {
		return s.ids[i].Compare(id) >= 0
	})
}

// Put inserts or replaces the entry for e.Header.ID, maintaining the sorted
// index. Per spec.md §3, a TIE-ID appears at most once in the store.
func (s *Store) Put(e *Entry) {
	id := e.Header.ID
	if _, exists := s.entries[id]; exists {
		s.entries[id] = e
		return
	}
	i := s.search(id)
	s.ids = append(s.ids, packet.TIEID{})
	copy(s.ids[i+1:], s.ids[i:])
	s.ids[i] = id
	s.entries[id] = e
}

// Delete removes the entry for id, if present.
func (s *Store) Delete(id packet.TIEID) {
	if _, exists := s.entries[id]; !exists {
		return
	}
	i := s.search(id)
	s.ids = append(s.ids[:i], s.ids[i+1:]...)
	delete(s.entries, id)
}

// Range calls fn for every stored entry with TIE-ID in [start, end]
// inclusive, in ascending order, stopping early if fn returns false.
// Required by TIDE processing (spec.md §3, §4.4).
func (s *Store) Range(start, end packet.TIEID, fn func(*Entry) bool) {
	i := s.search(start)
	for ; i < len(s.ids); i++ {
		id := s.ids[i]
		if id.Compare(end) > 0 {
			return
		}
		if !fn(s.entries[id]) {
			return
		}
	}
}

// All returns every stored entry in ascending TIE-ID order. Used by the CLI
// ("TIE database listing", spec.md §6) and by TIDE generation.
func (s *Store) All() []*Entry {
	out := make([]*Entry, 0, len(s.ids))
	s.Range(packet.MinTIEID, packet.MaxTIEID, func(e *Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// NextSeqNr returns the sequence number to use the next time id is
// (re)originated: one greater than the currently stored seq_nr, or 1 if
// nothing is stored yet.
func (s *Store) NextSeqNr(id packet.TIEID) uint32 {
	if e, ok := s.entries[id]; ok {
		return e.Header.SeqNr + 1
	}
	return 1
}

// AgeResult is the outcome of one aging pass.
type AgeResult struct {
	// Removed lists the TIE-IDs flushed this pass (remaining_lifetime hit
	// zero).
	Removed []packet.TIEID
}

// Age decrements remaining_lifetime by deltaSeconds on every stored TIE and
// removes any that reach zero, per spec.md §4.3 ("Aging": "Every 1 s,
// decrement remaining_lifetime of every stored TIE; remove any TIE reaching
// 0, and trigger SPF"). The caller is responsible for triggering SPF on a
// non-empty result.
func (s *Store) Age(deltaSeconds uint32) AgeResult {
	var result AgeResult
	// Snapshot first: Delete mutates s.ids mid-range, which Range does not
	// tolerate.
	ids := make([]packet.TIEID, len(s.ids))
	copy(ids, s.ids)

	for _, id := range ids {
		e := s.entries[id]
		if e.Header.RemainingLifetime <= deltaSeconds {
			s.Delete(id)
			result.Removed = append(result.Removed, id)
			continue
		}
		e.Header.RemainingLifetime -= deltaSeconds
	}
	return result
}
