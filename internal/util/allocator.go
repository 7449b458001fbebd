package util

import (
	"container/heap"
	"sync"
)

// IntAllocator hands out integers in [min, max], lowest free value first.
// Values never handed out are tracked by a high-water mark; released values
// go on a free list, so memory grows with the peak number in use rather
// than with the range.
type IntAllocator struct {
	min, max int
	next     int
	free     intHeap
	inUse    map[int]struct{}
	mu       sync.Mutex
}

// NewIntAllocator creates a new integer allocator
func NewIntAllocator(min, max int) *IntAllocator {
	return &IntAllocator{
		min:   min,
		max:   max,
		next:  min,
		inUse: make(map[int]struct{}),
	}
}

// Allocate returns the lowest free integer
func (a *IntAllocator) Allocate() (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.free.Len() > 0 {
		i := heap.Pop(&a.free).(int)
		a.inUse[i] = struct{}{}
		return i, true
	}
	if a.next > a.max {
		return 0, false
	}
	i := a.next
	a.next++
	a.inUse[i] = struct{}{}
	return i, true
}

// Free releases an integer back to the pool. It reports false for values
// out of range or not currently allocated.
func (a *IntAllocator) Free(i int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.inUse[i]; !ok {
		return false
	}
	delete(a.inUse, i)

	// Shrink the high-water mark instead of growing the free list when the
	// top value comes back.
	if i == a.next-1 {
		a.next--
		for a.free.Len() > 0 && a.free.max() == a.next-1 {
			a.free.removeMax()
			a.next--
		}
		return true
	}
	heap.Push(&a.free, i)
	return true
}

// Available returns number of available integers
func (a *IntAllocator) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.max - a.min + 1 - len(a.inUse)
}

// intHeap is a min-heap of free integers
type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h intHeap) max() int {
	m := h[0]
	for _, v := range h {
		m = max(m, v)
	}
	return m
}

func (h *intHeap) removeMax() {
	idx := 0
	for i, v := range *h {
		if v > (*h)[idx] {
			idx = i
		}
	}
	heap.Remove(h, idx)
}
