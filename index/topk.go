package index

import "container/heap"

// TopK keeps the k best-scoring results seen so far using a bounded
// min-heap: the worst retained result sits at the top and is evicted when
// something better arrives.
type TopK struct {
	k     int
	items resultHeap
}

// NewTopK creates a collector for the k best results.
func NewTopK(k int) *TopK {
	return &TopK{k: k, items: make(resultHeap, 0, k)}
}

// Push offers a result to the collector.
func (t *TopK) Push(r Result) {
	if len(t.items) < t.k {
		heap.Push(&t.items, r)
		return
	}
	if r.Score > t.items[0].Score {
		t.items[0] = r
		heap.Fix(&t.items, 0)
	}
}

// Len returns the number of retained results.
func (t *TopK) Len() int { return len(t.items) }

// Results drains the collector, best score first. The collector is empty
// afterwards.
func (t *TopK) Results() []Result {
	out := make([]Result, len(t.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.items).(Result)
	}
	return out
}

type resultHeap []Result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)         { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
