// Package flooding implements the per-neighbor flooding engine described in
// spec.md §4.4: ordered TX/RTX/REQ/ACK queues, the direction-scoped flood
// filter matrix, TIDE/TIE/TIRE receive-path comparison, and periodic queue
// servicing.
package flooding

import (
	"container/list"

	"github.com/fabricrift/riftgo/internal/packet"
)

// Queue is an ordered, TIE-ID-unique queue: container/list for FIFO order
// plus a map index for O(1) membership and removal (SPEC_FULL.md §B.4 —
// no pack dependency supplies a generic ordered-set, so this is the
// idiomatic stdlib stand-in).
type Queue struct {
	l   *list.List
	idx map[packet.TIEID]*list.Element
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{l: list.New(), idx: make(map[packet.TIEID]*list.Element)}
}

// Push appends id to the back of the queue if it is not already present.
func (q *Queue) Push(id packet.TIEID) {
	if _, ok := q.idx[id]; ok {
		return
	}
	q.idx[id] = q.l.PushBack(id)
}

// Remove drops id from the queue, if present.
func (q *Queue) Remove(id packet.TIEID) {
	e, ok := q.idx[id]
	if !ok {
		return
	}
	q.l.Remove(e)
	delete(q.idx, id)
}

// Contains reports whether id is currently queued.
func (q *Queue) Contains(id packet.TIEID) bool {
	_, ok := q.idx[id]
	return ok
}

// Len returns the number of queued entries.
func (q *Queue) Len() int { return q.l.Len() }

// Items returns the queued TIE-IDs in FIFO order without removing them.
func (q *Queue) Items() []packet.TIEID {
	out := make([]packet.TIEID, 0, q.l.Len())
	for e := q.l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(packet.TIEID))
	}
	return out
}

// Drain removes and returns every queued TIE-ID, in FIFO order.
func (q *Queue) Drain() []packet.TIEID {
	out := q.Items()
	q.l.Init()
	q.idx = make(map[packet.TIEID]*list.Element)
	return out
}

// Queues holds one neighbor's four flood queues (spec.md §4.4 "Per-neighbor
// queues") plus the TIDE wrap-detection cursor for that neighbor.
type Queues struct {
	TX  *Queue
	RTX *Queue
	REQ *Queue
	ACK *Queue

	lastTIDEEnd packet.TIEID
}

// NewQueues creates four empty queues.
func NewQueues() *Queues {
	return &Queues{TX: NewQueue(), RTX: NewQueue(), REQ: NewQueue(), ACK: NewQueue(), lastTIDEEnd: packet.MinTIEID}
}

// Clear empties all four queues atomically (spec.md §5 "On interface
// leaving THREE_WAY, all four flood queues are cleared atomically").
func (q *Queues) Clear() {
	q.TX.Drain()
	q.RTX.Drain()
	q.REQ.Drain()
	q.ACK.Drain()
}

// moveTo pushes id onto dst and removes it from the other three queues, so
// a TIE-ID is never a member of more than one queue at once (spec.md §3
// "Moving a TIE between queues removes it from the others").
func (q *Queues) moveTo(dst *Queue, id packet.TIEID) {
	for _, other := range [...]*Queue{q.TX, q.RTX, q.REQ, q.ACK} {
		if other != dst {
			other.Remove(id)
		}
	}
	dst.Push(id)
}

// PushTX moves id onto the TX queue.
func (q *Queues) PushTX(id packet.TIEID) { q.moveTo(q.TX, id) }

// PushRTX moves id onto the RTX queue.
func (q *Queues) PushRTX(id packet.TIEID) { q.moveTo(q.RTX, id) }

// PushREQ moves id onto the REQ queue.
func (q *Queues) PushREQ(id packet.TIEID) { q.moveTo(q.REQ, id) }

// PushACK moves id onto the ACK queue.
func (q *Queues) PushACK(id packet.TIEID) { q.moveTo(q.ACK, id) }
