package spf

import "container/heap"

// candidate is one entry in the decrease-key-by-re-push min-heap (spec.md
// §4.5 "candidate set is a decrease-key min-heap keyed by accumulated
// cost"). Stale entries (an id pushed more than once as its cost improves)
// are left in place and skipped on pop once the id is finalized.
type candidate struct {
	id   nodeID
	cost uint32
}

type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].cost < h[j].cost }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newCandidateHeap() *candidateHeap {
	h := &candidateHeap{}
	heap.Init(h)
	return h
}

func (h *candidateHeap) push(id nodeID, cost uint32) {
	heap.Push(h, candidate{id: id, cost: cost})
}

func (h *candidateHeap) pop() (candidate, bool) {
	if h.Len() == 0 {
		return candidate{}, false
	}
	return heap.Pop(h).(candidate), true
}
