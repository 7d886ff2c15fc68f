package routing

import "math"

// MinHeap is a concrete-typed min-heap keyed by float64 priority.
// Avoids interface boxing overhead of container/heap. Decrease-key is done
// lazily: callers push duplicates and skip stale entries on pop.
type MinHeap struct {
	items []PQItem
}

// PQItem is a priority queue entry.
type PQItem struct {
	Node     uint32
	Priority float64
}

func (h *MinHeap) Len() int { return len(h.items) }

func (h *MinHeap) Push(node uint32, priority float64) {
	h.items = append(h.items, PQItem{node, priority})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap) Pop() PQItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

// Peek returns the smallest priority, or +Inf when the heap is empty.
func (h *MinHeap) Peek() float64 {
	if len(h.items) == 0 {
		return math.Inf(1)
	}
	return h.items[0].Priority
}

func (h *MinHeap) Reset() {
	h.items = h.items[:0]
}

func (h *MinHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].Priority >= h.items[parent].Priority {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.items[left].Priority < h.items[smallest].Priority {
			smallest = left
		}
		if right < n && h.items[right].Priority < h.items[smallest].Priority {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
