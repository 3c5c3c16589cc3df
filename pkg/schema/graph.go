package schema

// NodeKind enumerates the kinds of nodes in a decision graph.
// Closed enumeration: per-kind validity rules live in the compiler
// (only decision nodes may branch, terminals never do), not in
// polymorphic dispatch.
type NodeKind string

const (
	NodeKindStep     NodeKind = "step"
	NodeKindDecision NodeKind = "decision"
	NodeKindTerminal NodeKind = "terminal"
	NodeKindMedia    NodeKind = "media"
	NodeKindSafety   NodeKind = "safety"
)

// ValidNodeKinds is the set of recognized node kinds.
var ValidNodeKinds = map[NodeKind]bool{
	NodeKindStep:     true,
	NodeKindDecision: true,
	NodeKindTerminal: true,
	NodeKindMedia:    true,
	NodeKindSafety:   true,
}

// DiagramEdge is a directed, labeled transition between two nodes.
// The label is the text shown on the corresponding choice button.
type DiagramEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
	Line   int    `json:"-"` // source line, for compile errors
}

// DiagramNode is a single diagnostic step in a decision graph.
type DiagramNode struct {
	ID       string        `json:"id"`
	Kind     NodeKind      `json:"kind"`
	Text     string        `json:"text"`
	MediaRef string        `json:"media_ref,omitempty"`
	Safety   bool          `json:"safety,omitempty"` // independent of kind
	Edges    []DiagramEdge `json:"edges,omitempty"`  // outgoing, declared order
	Line     int           `json:"-"`
}

// EdgeByLabel returns the outgoing edge with the given label, if any.
func (n *DiagramNode) EdgeByLabel(label string) (DiagramEdge, bool) {
	for _, e := range n.Edges {
		if e.Label == label {
			return e, true
		}
	}
	return DiagramEdge{}, false
}

// IsTerminal reports whether the node accepts no forward transition.
func (n *DiagramNode) IsTerminal() bool {
	return n.Kind == NodeKindTerminal
}

// SafetyCritical reports whether the node is a hazard stop: it renders the
// referral-only layout and accepts no forward transition. The Safety flag on
// other kinds marks a caution step that stays navigable but renders in a
// distinct block.
func (n *DiagramNode) SafetyCritical() bool {
	return n.Kind == NodeKindSafety
}

// DecisionGraph is the compiled, versioned, immutable representation of an
// authored flowchart. Never mutated after compilation; a source change
// produces a new graph with a new content hash.
type DecisionGraph struct {
	Title  string                  `json:"title,omitempty"`
	Topic  string                  `json:"topic,omitempty"`
	RootID string                  `json:"root"`
	Nodes  map[string]*DiagramNode `json:"nodes"`
	Order  []string                `json:"order"` // declaration order; position = node index
	Hash   string                  `json:"hash"`  // sha256 of canonical source

	index map[string]int
}

// Finalize builds the node index lookup. Called once by the compiler;
// the graph is read-only afterwards.
func (g *DecisionGraph) Finalize() {
	g.index = make(map[string]int, len(g.Order))
	for i, id := range g.Order {
		g.index[id] = i
	}
}

// Node returns the node with the given ID, or nil.
func (g *DecisionGraph) Node(id string) *DiagramNode {
	return g.Nodes[id]
}

// Root returns the root node.
func (g *DecisionGraph) Root() *DiagramNode {
	return g.Nodes[g.RootID]
}

// Index returns the compact numeric index of a node, stable within this
// graph version. Used by the navigation codec.
func (g *DecisionGraph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// NodeAt returns the node at the given index, or nil if out of range.
func (g *DecisionGraph) NodeAt(i int) *DiagramNode {
	if i < 0 || i >= len(g.Order) {
		return nil
	}
	return g.Nodes[g.Order[i]]
}

// Len returns the number of nodes in the graph.
func (g *DecisionGraph) Len() int {
	return len(g.Order)
}
