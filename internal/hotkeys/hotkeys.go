// Package hotkeys counts key accesses and reports the most requested keys.
package hotkeys

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Entry is one key with its access count.
type Entry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Tracker counts accesses per key. It is safe for concurrent use.
//
// Counts are bounded: once maxKeys distinct keys are tracked, a new key is
// only admitted after the next Decay has made room.
type Tracker struct {
	mu      sync.Mutex
	counts  map[string]int64
	maxKeys int
	window  time.Duration
}

const defaultMaxKeys = 10000

// New creates a Tracker holding at most maxKeys counters. window is the
// decay period used by Run; zero disables decay.
func New(maxKeys int, window time.Duration) *Tracker {
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	return &Tracker{
		counts:  make(map[string]int64),
		maxKeys: maxKeys,
		window:  window,
	}
}

// Record counts one access to key.
func (t *Tracker) Record(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.counts[key]; !ok && len(t.counts) >= t.maxKeys {
		return
	}
	t.counts[key]++
}

// Top returns up to n keys by descending count. Ties are ordered by key.
func (t *Tracker) Top(n int) []Entry {
	if n <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	h := &entryHeap{}
	for key, cnt := range t.counts {
		e := Entry{Key: key, Count: cnt}
		if h.Len() < n {
			heap.Push(h, e)
		} else if less((*h)[0], e) {
			(*h)[0] = e
			heap.Fix(h, 0)
		}
	}

	result := make([]Entry, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(Entry)
	}
	return result
}

// Decay halves every counter and forgets keys that reach zero, so the
// ranking follows recent traffic.
func (t *Tracker) Decay() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, cnt := range t.counts {
		if cnt /= 2; cnt == 0 {
			delete(t.counts, key)
		} else {
			t.counts[key] = cnt
		}
	}
}

// Reset clears all counters.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.counts = make(map[string]int64)
	t.mu.Unlock()
}

// Size returns the number of tracked keys.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}

// Run decays the counters every window until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	if t.window <= 0 {
		return
	}
	ticker := time.NewTicker(t.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Decay()
		}
	}
}

// less orders entries by count, then by reverse key so that the smaller
// key wins a tie.
func less(a, b Entry) bool {
	if a.Count != b.Count {
		return a.Count < b.Count
	}
	return a.Key > b.Key
}

// min-heap for top-N selection

type entryHeap []Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(Entry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
