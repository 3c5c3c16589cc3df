package nav

import (
	"context"
	"log/slog"
	"sync"

	"github.com/faultline/faultline/internal/corpus"
	"github.com/faultline/faultline/internal/logging"
	"github.com/faultline/faultline/internal/token"
	"github.com/faultline/faultline/pkg/schema"
)

// One-line user notices emitted on locally recovered failures.
const (
	NoticeReset       = "Your session was restarted from the beginning."
	NoticeStaleChoice = "That option is no longer available — here is the current step."
)

// State is a session's position in a pinned graph version, reconstructible
// from the navigation token alone.
type State struct {
	Graph        *schema.DecisionGraph
	VersionIndex int64
	CurrentID    string
	History      *History
}

// Result is one navigation outcome: the render instruction to apply as an
// edit of the session's message, plus the generation that produced it.
// A result whose generation has been superseded must be discarded, never
// delivered.
type Result struct {
	SessionID  string
	Generation uint64
	State      *State
	Render     *schema.RenderInstruction
}

// ActRequest is a user action arriving from the transport as
// (message identity, token, selected payload).
type ActRequest struct {
	SessionID string
	MessageID string
	Token     string
	Action    schema.UserAction
	Topic     string // reset target when the token cannot be restored
}

// Navigator owns per-session navigation state transitions. Transitions for
// one session are serialized in arrival order; sessions never block each
// other, and graphs are immutable so concurrent readers never contend.
type Navigator struct {
	registry   *corpus.Registry
	historyMax int
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu  sync.Mutex
	gen uint64
}

// NewNavigator creates a Navigator over the given graph registry.
func NewNavigator(registry *corpus.Registry, historyMax int, logger *slog.Logger) *Navigator {
	return &Navigator{
		registry:   registry,
		historyMax: historyMax,
		logger:     logger,
		sessions:   make(map[string]*session),
	}
}

// Start binds a new session to the latest active graph version for a topic
// and renders its root. The very first interaction is the only point where
// the transport sends a new message; everything after is an edit.
func (n *Navigator) Start(ctx context.Context, sessionID, messageID, topic string) (*Result, error) {
	sess := n.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	gv, g, err := n.registry.Latest(ctx, topic)
	if err != nil {
		return nil, err
	}
	state := &State{
		Graph:        g,
		VersionIndex: gv.Index,
		CurrentID:    g.RootID,
		History:      NewHistory(n.historyMax),
	}
	return n.finish(ctx, sess, sessionID, messageID, state, "")
}

// Act applies one user action. All runtime navigation failures are locally
// recovered: a stale or malformed token resets to the root with a notice,
// a stale button re-renders the current node with a fresh token.
func (n *Navigator) Act(ctx context.Context, req ActRequest) (*Result, error) {
	sess := n.session(req.SessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	state, notice, err := n.restore(ctx, req)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithGraphHash(logging.WithNodeID(ctx, state.CurrentID), state.Graph.Hash)

	if notice == "" {
		notice = n.apply(ctx, state, req)
	}
	return n.finish(ctx, sess, req.SessionID, req.MessageID, state, notice)
}

// IsCurrent reports whether a result's generation is still the session's
// latest. The delivery layer must drop superseded results so a double-tap
// never produces two diverging edits of the same message.
func (n *Navigator) IsCurrent(sessionID string, generation uint64) bool {
	sess := n.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.gen == generation
}

// Forget releases a session's in-memory serialization state.
func (n *Navigator) Forget(sessionID string) {
	n.mu.Lock()
	delete(n.sessions, sessionID)
	n.mu.Unlock()
}

// restore rebuilds NavigationState from the wire token. The session store is
// only a cache; the token must be sufficient on its own.
func (n *Navigator) restore(ctx context.Context, req ActRequest) (*State, string, error) {
	ts, err := token.Decode(req.Token)
	if err != nil {
		n.logger.WarnContext(ctx, "token decode failed, resetting session", slog.String("error", err.Error()))
		state, rerr := n.resetState(ctx, req.Topic)
		return state, NoticeReset, rerr
	}

	g, err := n.registry.ByIndex(ctx, int64(ts.VersionIndex))
	if err != nil {
		// Unknown or evicted version: the token outlived its graph.
		stale := schema.NewErrorf(schema.ErrCodeStaleToken, "version index %d is not resolvable", ts.VersionIndex).WithCause(err)
		n.logger.WarnContext(ctx, "stale navigation token, resetting session", slog.String("error", stale.Error()))
		state, rerr := n.resetState(ctx, req.Topic)
		return state, NoticeReset, rerr
	}

	node := g.NodeAt(ts.NodeIndex)
	if node == nil {
		n.logger.WarnContext(ctx, "token node index out of range, resetting session", slog.Int("node_index", ts.NodeIndex))
		state, rerr := n.resetState(ctx, req.Topic)
		return state, NoticeReset, rerr
	}

	history := NewHistory(n.historyMax)
	for _, h := range ts.History {
		if g.NodeAt(h) != nil {
			history.Push(h)
		}
	}

	return &State{
		Graph:        g,
		VersionIndex: int64(ts.VersionIndex),
		CurrentID:    node.ID,
		History:      history,
	}, "", nil
}

// resetState builds a fresh root state on the latest active version.
func (n *Navigator) resetState(ctx context.Context, topic string) (*State, error) {
	gv, g, err := n.registry.Latest(ctx, topic)
	if err != nil {
		return nil, err
	}
	return &State{
		Graph:        g,
		VersionIndex: gv.Index,
		CurrentID:    g.RootID,
		History:      NewHistory(n.historyMax),
	}, nil
}

// apply mutates state for one action and returns a notice when the action
// was recovered rather than applied.
func (n *Navigator) apply(ctx context.Context, state *State, req ActRequest) string {
	node := state.Graph.Node(state.CurrentID)

	switch req.Action.Kind {
	case schema.ActionSelect:
		if node.IsTerminal() || node.SafetyCritical() {
			// No forward transition exists here; the button came from a
			// superseded render.
			return NoticeStaleChoice
		}
		edge, ok := node.EdgeByLabel(req.Action.Label)
		if !ok {
			n.logger.InfoContext(ctx, "invalid transition recovered",
				slog.String("label", req.Action.Label))
			return NoticeStaleChoice
		}
		if idx, ok := state.Graph.Index(state.CurrentID); ok {
			state.History.Push(idx)
		}
		state.CurrentID = edge.Target

	case schema.ActionBack:
		// No-op at empty history: re-render the current node unchanged.
		if idx, ok := state.History.Pop(); ok {
			state.CurrentID = state.Graph.NodeAt(idx).ID
		}

	case schema.ActionRestart:
		// RESTART is the version adoption point: move to the root of the
		// latest active version when one exists, else the pinned one.
		if fresh, err := n.resetState(ctx, req.Topic); err == nil {
			*state = *fresh
		} else {
			state.CurrentID = state.Graph.RootID
			state.History.Clear()
		}

	default:
		// Referral and save are session-level actions owned by the engine;
		// the node renders unchanged.
	}
	return ""
}

// finish encodes the new token, renders the node, and advances the session
// generation.
func (n *Navigator) finish(ctx context.Context, sess *session, sessionID, messageID string, state *State, notice string) (*Result, error) {
	idx, ok := state.Graph.Index(state.CurrentID)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeEncoding, "node %q has no index", state.CurrentID)
	}
	tok, err := token.Encode(token.State{
		VersionIndex: uint64(state.VersionIndex),
		NodeIndex:    idx,
		History:      state.History.Entries(),
	})
	if err != nil {
		// The compiler guarantees every node of an accepted graph fits.
		return nil, err
	}

	node := state.Graph.Node(state.CurrentID)
	render := &schema.RenderInstruction{
		MessageID: messageID,
		Text:      node.Text,
		MediaRef:  node.MediaRef,
		Safety:    node.Safety,
		Notice:    notice,
		Buttons:   Layout(node, LayoutOptions{HasHistory: state.History.Len() > 0}),
		Token:     tok,
	}

	sess.gen++
	n.logger.DebugContext(ctx, "transition rendered",
		slog.String("node", state.CurrentID),
		slog.Uint64("generation", sess.gen))

	return &Result{SessionID: sessionID, Generation: sess.gen, State: state, Render: render}, nil
}

func (n *Navigator) session(id string) *session {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[id]
	if !ok {
		s = &session{}
		n.sessions[id] = s
	}
	return s
}
