package router

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedding maps keyword buckets to fixed unit vectors so similarity
// scores are deterministic without a network.
func stubEmbedding(_ context.Context, text string) ([]float32, error) {
	switch {
	case strings.Contains(text, "washing"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(text, "spinning"):
		return []float32{0.6, 0.8, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher(stubEmbedding)
	require.NoError(t, err)
	return m
}

func TestBestMatchEmptyIndex(t *testing.T) {
	m := newTestMatcher(t)

	got, err := m.BestMatch(context.Background(), "washing machine leaks")
	require.NoError(t, err)
	assert.Zero(t, got.Score)
	assert.Empty(t, got.Topic)
}

func TestBestMatchScoresByEmbedding(t *testing.T) {
	m := newTestMatcher(t)
	require.NoError(t, m.Index(context.Background(), []MatchDoc{
		{ID: "v1", Topic: "washing-machine", Title: "Washer will not start", Content: "washing machine"},
	}))

	exact, err := m.BestMatch(context.Background(), "washing machine will not start")
	require.NoError(t, err)
	assert.Equal(t, "washing-machine", exact.Topic)
	assert.Equal(t, "v1", exact.DocID)
	assert.InDelta(t, 1.0, exact.Score, 0.001)

	partial, err := m.BestMatch(context.Background(), "drum not spinning")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, partial.Score, 0.001)

	unrelated, err := m.BestMatch(context.Background(), "no display on the microwave")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, unrelated.Score, 0.001)
}

func TestRemoveDropsDocument(t *testing.T) {
	m := newTestMatcher(t)
	require.NoError(t, m.Index(context.Background(), []MatchDoc{
		{ID: "v1", Topic: "washing-machine", Title: "Washer", Content: "washing machine"},
	}))
	require.NoError(t, m.Remove(context.Background(), "v1"))

	got, err := m.BestMatch(context.Background(), "washing machine")
	require.NoError(t, err)
	assert.Zero(t, got.Score)
}
