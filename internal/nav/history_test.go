package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryPushPop(t *testing.T) {
	h := NewHistory(4)
	assert.Equal(t, 0, h.Len())

	h.Push(1)
	h.Push(2)
	h.Push(3)
	assert.Equal(t, []int{1, 2, 3}, h.Entries())

	idx, ok := h.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 2, h.Len())
}

func TestHistoryPopEmpty(t *testing.T) {
	h := NewHistory(4)
	_, ok := h.Pop()
	assert.False(t, ok)
}

func TestHistoryDropsOldestOnOverflow(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Push(i)
	}
	assert.Equal(t, []int{3, 4, 5}, h.Entries())
}

func TestHistoryMinimumBound(t *testing.T) {
	h := NewHistory(0)
	h.Push(1)
	h.Push(2)
	assert.Equal(t, []int{2}, h.Entries())
}

func TestNewHistoryFromAppliesBound(t *testing.T) {
	h := NewHistoryFrom(2, []int{1, 2, 3, 4})
	assert.Equal(t, []int{3, 4}, h.Entries())
}

func TestHistoryEntriesIsACopy(t *testing.T) {
	h := NewHistory(4)
	h.Push(1)
	entries := h.Entries()
	entries[0] = 99
	assert.Equal(t, []int{1}, h.Entries())
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory(4)
	h.Push(1)
	h.Push(2)
	h.Clear()
	assert.Equal(t, 0, h.Len())
}
