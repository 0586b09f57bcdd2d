package client

import (
	"cmp"
	"container/heap"

	"github.com/nhdewitt/telemon/internal/protocol"
)

// rank orders processes busiest first: higher CPU, then higher memory,
// then lower pid. Unreadable fields rank below any value.
func rank(a, b protocol.ProcessInfo) int {
	if c := compareDesc(a.CPUPercent, b.CPUPercent); c != 0 {
		return c
	}
	if c := compareDesc(a.MemoryPercent, b.MemoryPercent); c != 0 {
		return c
	}
	return cmp.Compare(a.Pid, b.Pid)
}

func compareDesc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return cmp.Compare(*b, *a)
}

type procHeap []protocol.ProcessInfo

func (h procHeap) Len() int {
	return len(h)
}

// Less keeps the least busy process at the root.
func (h procHeap) Less(i, j int) bool {
	return rank(h[i], h[j]) > 0
}

func (h procHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *procHeap) Push(x any) {
	*h = append(*h, x.(protocol.ProcessInfo))
}

func (h *procHeap) Pop() any {
	old := *h
	n := old.Len()
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// pushTopN maintains a heap of at most n entries.
func pushTopN(h *procHeap, n int, p protocol.ProcessInfo) {
	if n <= 0 {
		return
	}
	if h.Len() < n {
		heap.Push(h, p)
		return
	}
	if rank(p, (*h)[0]) < 0 {
		(*h)[0] = p
		heap.Fix(h, 0)
	}
}

// popAllSorted drains the heap busiest first.
func popAllSorted(h *procHeap) []protocol.ProcessInfo {
	out := make([]protocol.ProcessInfo, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(protocol.ProcessInfo)
	}
	return out
}

// topProcesses returns the n busiest processes without reordering procs.
func topProcesses(procs []protocol.ProcessInfo, n int) []protocol.ProcessInfo {
	h := make(procHeap, 0, max(n, 0))
	for _, p := range procs {
		pushTopN(&h, n, p)
	}
	return popAllSorted(&h)
}
