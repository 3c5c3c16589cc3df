package corpus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline/internal/store"
	"github.com/faultline/faultline/internal/store/storetest"
	"github.com/faultline/faultline/pkg/schema"
)

func newTestSweeper(t *testing.T, retention, sla time.Duration) (*Sweeper, *Registry, *storetest.MemStore) {
	t.Helper()
	r, st := newTestRegistry(t)
	s, err := NewSweeper(st, r, "0 * * * *", retention, sla, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s, r, st
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	r, st := newTestRegistry(t)
	_, err := NewSweeper(st, r, "not a cron spec", time.Hour, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestSweepRemovesExpiredSupersededVersions(t *testing.T) {
	s, r, st := newTestSweeper(t, time.Hour, time.Hour)
	ctx := context.Background()

	gv1, _, err := r.Register(ctx, ovenSource)
	require.NoError(t, err)
	gv2, _, err := r.Register(ctx, ovenSource+"\n# revised\n")
	require.NoError(t, err)

	// Age the superseded version past retention.
	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, st.SupersedeGraphVersion(ctx, gv1.Index, old))

	s.Sweep(ctx)

	_, err = st.GetGraphVersion(ctx, gv1.Index)
	require.Error(t, err, "expired superseded version is gone")
	_, err = st.GetGraphVersion(ctx, gv2.Index)
	require.NoError(t, err, "the active version survives")

	// The cache was evicted too: resolving now fails.
	_, err = r.ByIndex(ctx, gv1.Index)
	require.Error(t, err)
}

func TestSweepKeepsVersionsWithRecentSessions(t *testing.T) {
	s, r, st := newTestSweeper(t, time.Hour, time.Hour)
	ctx := context.Background()

	gv1, _, err := r.Register(ctx, ovenSource)
	require.NoError(t, err)
	_, _, err = r.Register(ctx, ovenSource+"\n# revised\n")
	require.NoError(t, err)
	require.NoError(t, st.SupersedeGraphVersion(ctx, gv1.Index, time.Now().UTC().Add(-2*time.Hour)))

	// A session pinned to the old version was active minutes ago.
	require.NoError(t, st.UpsertSessionSnapshot(ctx, &store.SessionSnapshot{
		ID:         "sess-1",
		GraphIndex: gv1.Index,
		UpdatedAt:  time.Now().UTC().Add(-5 * time.Minute),
	}))

	s.Sweep(ctx)

	_, err = st.GetGraphVersion(ctx, gv1.Index)
	require.NoError(t, err, "a version with live tokens is never collected")
}

func TestSweepKeepsRecentlySuperseded(t *testing.T) {
	s, r, st := newTestSweeper(t, time.Hour, time.Hour)
	ctx := context.Background()

	gv1, _, err := r.Register(ctx, ovenSource)
	require.NoError(t, err)
	_, _, err = r.Register(ctx, ovenSource+"\n# revised\n")
	require.NoError(t, err)
	require.NoError(t, st.SupersedeGraphVersion(ctx, gv1.Index, time.Now().UTC()))

	s.Sweep(ctx)

	_, err = st.GetGraphVersion(ctx, gv1.Index)
	require.NoError(t, err)
}

func TestSweepFlagsOverdueEscalations(t *testing.T) {
	s, _, st := newTestSweeper(t, time.Hour, time.Hour)
	ctx := context.Background()

	gap := &store.GapRecord{
		ID:        uuid.NewString(),
		Equipment: "boiler",
		Problem:   "smell of gas",
		Route:     schema.RouteEscalate,
		Status:    schema.StatusGapLogged,
		CreatedAt: time.Now().UTC().Add(-3 * time.Hour),
	}
	require.NoError(t, st.CreateGap(ctx, gap))

	s.Sweep(ctx)

	got, err := st.GetGap(ctx, gap.ID)
	require.NoError(t, err)
	assert.True(t, got.Overdue)
}

func TestSweeperStartStop(t *testing.T) {
	s, _, _ := newTestSweeper(t, time.Hour, time.Hour)

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()), "double start is rejected")
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "stop is idempotent")
}
