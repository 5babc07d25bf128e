package rules

// Window is a bounded FIFO buffer of accepted combinations' subset keys,
// used to rate-limit repeated pairs and triples across a session.
//
// Each Add records one accepted combination's keys; once more than capacity
// combinations are tracked, the oldest combination's keys are evicted in
// acceptance order.
//
// INVARIANT: the window never tracks more than capacity combinations, and a
// key's count always equals its occurrences among the tracked combinations.
//
// Thread-safety: NOT safe for concurrent use. The owning session serializes
// access; see engine.Session.
type Window struct {
	capacity int
	counts   map[string]int
	fifo     [][]string
	head     int // index of the oldest entry in fifo
}

// NewWindow creates a window tracking at most capacity accepted combinations.
// A capacity of 0 disables tracking entirely.
func NewWindow(capacity int) *Window {
	return &Window{
		capacity: capacity,
		counts:   make(map[string]int),
	}
}

// Add records the subset keys of one accepted combination, evicting the
// oldest combination when the window is full.
func (w *Window) Add(keys []string) {
	if w.capacity == 0 {
		return
	}
	if w.Size() == w.capacity {
		w.evictOldest()
	}
	w.fifo = append(w.fifo, keys)
	for _, k := range keys {
		w.counts[k]++
	}
}

// Count returns how many tracked combinations contain the given key.
func (w *Window) Count(key string) int {
	return w.counts[key]
}

// Size returns the number of combinations currently tracked.
func (w *Window) Size() int {
	return len(w.fifo) - w.head
}

// Capacity returns the configured capacity.
func (w *Window) Capacity() int {
	return w.capacity
}

func (w *Window) evictOldest() {
	oldest := w.fifo[w.head]
	for _, k := range oldest {
		if w.counts[k] <= 1 {
			delete(w.counts, k)
		} else {
			w.counts[k]--
		}
	}
	w.fifo[w.head] = nil
	w.head++

	// Compact once the dead prefix dominates, so memory stays proportional
	// to the capacity rather than the total accepted count.
	if w.head > w.capacity {
		w.fifo = append([][]string(nil), w.fifo[w.head:]...)
		w.head = 0
	}
}
