package corpus

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline/internal/diagram"
	"github.com/faultline/faultline/internal/store"
	"github.com/faultline/faultline/internal/store/storetest"
)

const ovenSource = `title: Oven not heating
topic: oven
root: a

[step] a: "Check the clock is set; many ovens refuse to heat without it"
[terminal] b: "Set the clock and retry"

a -> b
`

func newTestRegistry(t *testing.T) (*Registry, *storetest.MemStore) {
	t.Helper()
	st := storetest.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(st, diagram.NewCompiler(), logger), st
}

func TestRegisterAssignsStoreIndex(t *testing.T) {
	r, _ := newTestRegistry(t)

	gv, g, err := r.Register(context.Background(), ovenSource)
	require.NoError(t, err)
	assert.Greater(t, gv.Index, int64(0))
	assert.Equal(t, g.Hash, gv.Hash)
	assert.Equal(t, "oven", gv.Topic)
	assert.Equal(t, store.VersionActive, gv.Status)
}

func TestRegisterIsIdempotentByContent(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	gv1, _, err := r.Register(ctx, ovenSource)
	require.NoError(t, err)
	gv2, _, err := r.Register(ctx, ovenSource)
	require.NoError(t, err)
	assert.Equal(t, gv1.Index, gv2.Index)

	versions, err := r.store.ListGraphVersions(ctx, store.VersionFilter{})
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestRegisterSupersedesPreviousTopicVersion(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	gv1, _, err := r.Register(ctx, ovenSource)
	require.NoError(t, err)
	gv2, _, err := r.Register(ctx, ovenSource+"\n# revised\n")
	require.NoError(t, err)
	assert.Greater(t, gv2.Index, gv1.Index)

	old, err := st.GetGraphVersion(ctx, gv1.Index)
	require.NoError(t, err)
	assert.Equal(t, store.VersionSuperseded, old.Status)

	latest, err := st.LatestGraphVersion(ctx, "oven")
	require.NoError(t, err)
	assert.Equal(t, gv2.Index, latest.Index)
}

func TestByIndexRecompilesFromStore(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	gv, _, err := r.Register(ctx, ovenSource)
	require.NoError(t, err)

	// A fresh registry (another instance) resolves the same index from the
	// shared store.
	other := NewRegistry(st, diagram.NewCompiler(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	g, err := other.ByIndex(ctx, gv.Index)
	require.NoError(t, err)
	assert.Equal(t, gv.Hash, g.Hash)
	assert.Equal(t, "a", g.RootID)
}

func TestByIndexUnknownVersion(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.ByIndex(context.Background(), 404)
	require.Error(t, err)
}

func TestSupersededVersionStaysResolvable(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	gv1, _, err := r.Register(ctx, ovenSource)
	require.NoError(t, err)
	_, _, err = r.Register(ctx, ovenSource+"\n# revised\n")
	require.NoError(t, err)

	// Pinned sessions keep navigating the superseded version.
	g, err := r.ByIndex(ctx, gv1.Index)
	require.NoError(t, err)
	assert.Equal(t, gv1.Hash, g.Hash)
}

func TestEvictForcesReload(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	gv, _, err := r.Register(ctx, ovenSource)
	require.NoError(t, err)

	r.Evict(gv.Index)
	g, err := r.ByIndex(ctx, gv.Index)
	require.NoError(t, err)
	assert.Equal(t, gv.Hash, g.Hash)
}
