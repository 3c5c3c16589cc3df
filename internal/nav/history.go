package nav

// History is the bounded back-navigation memory of a session: previously
// visited node indices, most-recent-last, never containing the current node.
// On overflow the oldest entry is dropped, matching the codec's truncation
// policy so the two never disagree about which end survives.
type History struct {
	max     int
	entries []int
}

// NewHistory creates a history bounded to max entries.
func NewHistory(max int) *History {
	if max < 1 {
		max = 1
	}
	return &History{max: max}
}

// NewHistoryFrom restores a history from decoded token entries, applying the
// bound to the oldest end.
func NewHistoryFrom(max int, entries []int) *History {
	h := NewHistory(max)
	for _, e := range entries {
		h.Push(e)
	}
	return h
}

// Push appends a node index, dropping the oldest entry when full.
func (h *History) Push(idx int) {
	if len(h.entries) == h.max {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, idx)
}

// Pop removes and returns the most recent entry. ok is false when empty;
// BACK at empty history is the caller's no-op, not an error.
func (h *History) Pop() (idx int, ok bool) {
	if len(h.entries) == 0 {
		return 0, false
	}
	idx = h.entries[len(h.entries)-1]
	h.entries = h.entries[:len(h.entries)-1]
	return idx, true
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the stored entries, oldest first.
func (h *History) Entries() []int {
	out := make([]int, len(h.entries))
	copy(out, h.entries)
	return out
}

// Clear removes all entries.
func (h *History) Clear() {
	h.entries = h.entries[:0]
}
