package nav

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultline/faultline/internal/corpus"
	"github.com/faultline/faultline/internal/diagram"
	"github.com/faultline/faultline/internal/store/storetest"
	"github.com/faultline/faultline/internal/token"
	"github.com/faultline/faultline/pkg/schema"
)

const dryerSource = `title: Dryer makes a grinding noise
topic: dryer
root: a

[step] a: "Unplug the dryer and empty the drum"
[decision] b: "Does the drum spin freely by hand?"
[step] c: "Check the drum rollers for wear"
[terminal] d: "Contact service for a bearing replacement"

a -> b
b -> c : "Yes"
b -> d : "No"
c -> d
`

func newTestNavigator(t *testing.T) (*Navigator, *corpus.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := corpus.NewRegistry(storetest.New(), diagram.NewCompiler(), logger)
	_, _, err := registry.Register(context.Background(), dryerSource)
	require.NoError(t, err)
	return NewNavigator(registry, 8, logger), registry
}

func encodeState(t *testing.T, s *State) string {
	t.Helper()
	idx, ok := s.Graph.Index(s.CurrentID)
	require.True(t, ok)
	tok, err := token.Encode(token.State{
		VersionIndex: uint64(s.VersionIndex),
		NodeIndex:    idx,
		History:      s.History.Entries(),
	})
	require.NoError(t, err)
	return tok
}

func act(t *testing.T, n *Navigator, res *Result, action schema.UserAction) *Result {
	t.Helper()
	out, err := n.Act(context.Background(), ActRequest{
		SessionID: res.SessionID,
		MessageID: res.Render.MessageID,
		Token:     res.Render.Token,
		Action:    action,
		Topic:     "dryer",
	})
	require.NoError(t, err)
	return out
}

func TestStartRendersRoot(t *testing.T) {
	n, _ := newTestNavigator(t)

	res, err := n.Start(context.Background(), "sess-1", "msg-1", "dryer")
	require.NoError(t, err)

	assert.Equal(t, "a", res.State.CurrentID)
	assert.Equal(t, "Unplug the dryer and empty the drum", res.Render.Text)
	assert.Equal(t, "msg-1", res.Render.MessageID)
	assert.NotEmpty(t, res.Render.Token)
	assert.Empty(t, res.Render.Notice)

	// Root has no history: no BACK anywhere in the grid.
	for _, row := range res.Render.Buttons {
		for _, b := range row {
			assert.NotEqual(t, schema.ActionBack, b.Action.Kind)
		}
	}
}

func TestSelectSelectBackBack(t *testing.T) {
	n, _ := newTestNavigator(t)

	res, err := n.Start(context.Background(), "sess-1", "msg-1", "dryer")
	require.NoError(t, err)

	res = act(t, n, res, schema.UserAction{Kind: schema.ActionSelect, Label: "Continue"})
	assert.Equal(t, "b", res.State.CurrentID)

	res = act(t, n, res, schema.UserAction{Kind: schema.ActionSelect, Label: "Yes"})
	assert.Equal(t, "c", res.State.CurrentID)

	res = act(t, n, res, schema.UserAction{Kind: schema.ActionBack})
	assert.Equal(t, "b", res.State.CurrentID)

	res = act(t, n, res, schema.UserAction{Kind: schema.ActionBack})
	assert.Equal(t, "a", res.State.CurrentID)
	assert.Empty(t, res.Render.Notice)
}

func TestBackAtEmptyHistoryIsNoop(t *testing.T) {
	n, _ := newTestNavigator(t)

	res, err := n.Start(context.Background(), "sess-1", "msg-1", "dryer")
	require.NoError(t, err)

	res = act(t, n, res, schema.UserAction{Kind: schema.ActionBack})
	assert.Equal(t, "a", res.State.CurrentID)
	assert.Empty(t, res.Render.Notice)
	assert.NotEmpty(t, res.Render.Token)
}

func TestStaleChoiceReRendersCurrentNode(t *testing.T) {
	n, _ := newTestNavigator(t)

	res, err := n.Start(context.Background(), "sess-1", "msg-1", "dryer")
	require.NoError(t, err)
	res = act(t, n, res, schema.UserAction{Kind: schema.ActionSelect, Label: "Continue"})

	// A label from a superseded render no longer matches any edge.
	res = act(t, n, res, schema.UserAction{Kind: schema.ActionSelect, Label: "Maybe"})
	assert.Equal(t, "b", res.State.CurrentID)
	assert.Equal(t, NoticeStaleChoice, res.Render.Notice)
}

func TestSelectOnTerminalIsStale(t *testing.T) {
	n, _ := newTestNavigator(t)

	res, err := n.Start(context.Background(), "sess-1", "msg-1", "dryer")
	require.NoError(t, err)
	res = act(t, n, res, schema.UserAction{Kind: schema.ActionSelect, Label: "Continue"})
	res = act(t, n, res, schema.UserAction{Kind: schema.ActionSelect, Label: "No"})
	require.Equal(t, "d", res.State.CurrentID)

	res = act(t, n, res, schema.UserAction{Kind: schema.ActionSelect, Label: "No"})
	assert.Equal(t, "d", res.State.CurrentID)
	assert.Equal(t, NoticeStaleChoice, res.Render.Notice)
}

func TestMalformedTokenResetsToRoot(t *testing.T) {
	n, _ := newTestNavigator(t)

	res, err := n.Act(context.Background(), ActRequest{
		SessionID: "sess-1",
		MessageID: "msg-1",
		Token:     "not-a-real-token-!!!",
		Action:    schema.UserAction{Kind: schema.ActionSelect, Label: "Yes"},
		Topic:     "dryer",
	})
	require.NoError(t, err)
	assert.Equal(t, "a", res.State.CurrentID)
	assert.Equal(t, NoticeReset, res.Render.Notice)
}

func TestUnknownVersionResetsToRoot(t *testing.T) {
	n, _ := newTestNavigator(t)

	res, err := n.Start(context.Background(), "sess-1", "msg-1", "dryer")
	require.NoError(t, err)

	// Forge a token pinned to a version that was never registered.
	forged := *res.State
	forged.VersionIndex = 424242
	out, err := n.Act(context.Background(), ActRequest{
		SessionID: "sess-1",
		MessageID: "msg-1",
		Token:     encodeState(t, &forged),
		Action:    schema.UserAction{Kind: schema.ActionSelect, Label: "Continue"},
		Topic:     "dryer",
	})
	require.NoError(t, err)
	assert.Equal(t, "a", out.State.CurrentID)
	assert.Equal(t, NoticeReset, out.Render.Notice)
}

func TestRestartAdoptsLatestVersion(t *testing.T) {
	n, registry := newTestNavigator(t)

	res, err := n.Start(context.Background(), "sess-1", "msg-1", "dryer")
	require.NoError(t, err)
	pinned := res.State.VersionIndex

	res = act(t, n, res, schema.UserAction{Kind: schema.ActionSelect, Label: "Continue"})

	// Author publishes a new version of the same topic. The pinned session
	// keeps navigating the old one.
	updated := dryerSource + "\n# revised\n"
	gv2, _, err := registry.Register(context.Background(), updated)
	require.NoError(t, err)
	require.NotEqual(t, pinned, gv2.Index)

	res = act(t, n, res, schema.UserAction{Kind: schema.ActionSelect, Label: "Yes"})
	assert.Equal(t, pinned, res.State.VersionIndex)

	// RESTART is the adoption point.
	res = act(t, n, res, schema.UserAction{Kind: schema.ActionRestart})
	assert.Equal(t, gv2.Index, res.State.VersionIndex)
	assert.Equal(t, "a", res.State.CurrentID)
	assert.Equal(t, 0, res.State.History.Len())
}

func TestGenerationSupersedesOlderRenders(t *testing.T) {
	n, _ := newTestNavigator(t)

	first, err := n.Start(context.Background(), "sess-1", "msg-1", "dryer")
	require.NoError(t, err)
	assert.True(t, n.IsCurrent("sess-1", first.Generation))

	second := act(t, n, first, schema.UserAction{Kind: schema.ActionSelect, Label: "Continue"})
	assert.False(t, n.IsCurrent("sess-1", first.Generation))
	assert.True(t, n.IsCurrent("sess-1", second.Generation))
}

func TestSessionsAreIndependent(t *testing.T) {
	n, _ := newTestNavigator(t)

	res1, err := n.Start(context.Background(), "sess-1", "msg-1", "dryer")
	require.NoError(t, err)
	res2, err := n.Start(context.Background(), "sess-2", "msg-2", "dryer")
	require.NoError(t, err)

	res1 = act(t, n, res1, schema.UserAction{Kind: schema.ActionSelect, Label: "Continue"})
	assert.Equal(t, "b", res1.State.CurrentID)
	assert.True(t, n.IsCurrent("sess-2", res2.Generation))
}

func TestTokenAloneRebuildsSession(t *testing.T) {
	n, _ := newTestNavigator(t)

	res, err := n.Start(context.Background(), "sess-1", "msg-1", "dryer")
	require.NoError(t, err)
	res = act(t, n, res, schema.UserAction{Kind: schema.ActionSelect, Label: "Continue"})
	tok := res.Render.Token

	// A different instance (fresh serialization state) restores from the
	// token alone.
	n.Forget("sess-1")
	out, err := n.Act(context.Background(), ActRequest{
		SessionID: "sess-1",
		MessageID: "msg-1",
		Token:     tok,
		Action:    schema.UserAction{Kind: schema.ActionBack},
		Topic:     "dryer",
	})
	require.NoError(t, err)
	assert.Equal(t, "a", out.State.CurrentID)
}
