package diagram

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/faultline/faultline/internal/token"
	"github.com/faultline/faultline/pkg/schema"
)

// DefaultEdgeLabel is assigned to the single outgoing edge of a non-decision
// node when the author omits a label.
const DefaultEdgeLabel = "Continue"

// Compiler turns flowchart source into validated decision graphs.
// Compilation is pure and deterministic: identical source never recompiles
// and always yields an identical graph. Safe for concurrent use.
type Compiler struct {
	mu    sync.RWMutex
	cache map[string]*schema.DecisionGraph // source hash → graph
}

// NewCompiler creates a Compiler with an empty source cache.
func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[string]*schema.DecisionGraph)}
}

// Compile parses and validates flowchart source, returning the cached graph
// when the same source has been compiled before.
func (c *Compiler) Compile(source string) (*schema.DecisionGraph, error) {
	hash := SourceHash(source)

	c.mu.RLock()
	if g, ok := c.cache[hash]; ok {
		c.mu.RUnlock()
		return g, nil
	}
	c.mu.RUnlock()

	g, err := compile(source, hash)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check after acquiring write lock.
	if cached, ok := c.cache[hash]; ok {
		return cached, nil
	}
	c.cache[hash] = g
	return g, nil
}

// SourceHash returns the content hash that versions a graph.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// compile builds and validates a DecisionGraph from parsed declarations.
func compile(source, hash string) (*schema.DecisionGraph, error) {
	doc, err := parse(source)
	if err != nil {
		return nil, err
	}

	if len(doc.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeParse, "flowchart has no nodes")
	}

	g := &schema.DecisionGraph{
		Title:  doc.Title,
		Topic:  doc.Topic,
		RootID: doc.RootID,
		Nodes:  make(map[string]*schema.DiagramNode, len(doc.Nodes)),
		Order:  make([]string, 0, len(doc.Nodes)),
		Hash:   hash,
	}

	// First pass: register nodes in declaration order. The position in
	// Order is the node's codec index, so ordering must be deterministic.
	for _, d := range doc.Nodes {
		if _, exists := g.Nodes[d.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeParse, "duplicate node id %q", d.ID).
				WithNode(d.ID).WithLine(d.Line)
		}
		g.Nodes[d.ID] = &schema.DiagramNode{
			ID:       d.ID,
			Kind:     d.Kind,
			Text:     d.Text,
			MediaRef: d.MediaRef,
			Safety:   d.Safety,
			Line:     d.Line,
		}
		g.Order = append(g.Order, d.ID)
	}

	if g.Nodes[g.RootID] == nil {
		return nil, schema.NewErrorf(schema.ErrCodeDanglingEdge, "root references undeclared node %q", g.RootID).
			WithNode(g.RootID)
	}

	// Second pass: attach edges in declared order.
	for _, e := range doc.Edges {
		src := g.Nodes[e.Source]
		if src == nil {
			return nil, schema.NewErrorf(schema.ErrCodeDanglingEdge, "edge source %q is not declared", e.Source).
				WithNode(e.Source).WithLine(e.Line)
		}
		if g.Nodes[e.Target] == nil {
			return nil, schema.NewErrorf(schema.ErrCodeDanglingEdge, "edge target %q is not declared", e.Target).
				WithNode(e.Target).WithLine(e.Line)
		}
		src.Edges = append(src.Edges, schema.DiagramEdge{
			Source: e.Source,
			Target: e.Target,
			Label:  e.Label,
			Line:   e.Line,
		})
	}

	// Third pass: per-kind validity rules and label ambiguity.
	for _, id := range g.Order {
		if err := validateNode(g.Nodes[id]); err != nil {
			return nil, err
		}
	}

	// Reachability sweep from the root. Any node not reached is an orphan;
	// the error names the first one in declaration order.
	reachable := sweep(g)
	for _, id := range g.Order {
		if !reachable[id] {
			return nil, schema.NewErrorf(schema.ErrCodeOrphanNode, "node %q is unreachable from root %q", id, g.RootID).
				WithNode(id).WithLine(g.Nodes[id].Line)
		}
	}

	// A graph must guarantee every node's token fits the wire budget,
	// including after a restart of history. Reject at compile time rather
	// than lose navigability at runtime.
	if err := token.CheckGraphBudget(len(g.Order)); err != nil {
		return nil, err
	}

	g.Finalize()
	return g, nil
}

// validateNode enforces the per-kind edge rules.
func validateNode(n *schema.DiagramNode) error {
	switch n.Kind {
	case schema.NodeKindTerminal, schema.NodeKindSafety:
		// Safety nodes end the forward path like terminals: their render
		// offers referral and restart, never a continuation.
		if len(n.Edges) > 0 {
			return schema.NewErrorf(schema.ErrCodeValidation, "%s node %q has %d outgoing edges", string(n.Kind), n.ID, len(n.Edges)).
				WithNode(n.ID).WithLine(n.Line)
		}
		return nil

	case schema.NodeKindDecision:
		if len(n.Edges) < 2 {
			return schema.NewErrorf(schema.ErrCodeAmbiguousRoute, "decision node %q has %d outgoing edges, need at least 2", n.ID, len(n.Edges)).
				WithNode(n.ID).WithLine(n.Line)
		}
		seen := make(map[string]bool, len(n.Edges))
		for i := range n.Edges {
			label := n.Edges[i].Label
			if label == "" {
				return schema.NewErrorf(schema.ErrCodeAmbiguousRoute, "decision node %q has an unlabeled edge", n.ID).
					WithNode(n.ID).WithLine(n.Edges[i].Line)
			}
			if seen[label] {
				return schema.NewErrorf(schema.ErrCodeAmbiguousRoute, "decision node %q has duplicate edge label %q", n.ID, label).
					WithNode(n.ID).WithLine(n.Edges[i].Line)
			}
			seen[label] = true
		}
		return nil

	default: // step, media: linear nodes
		if len(n.Edges) > 1 {
			return schema.NewErrorf(schema.ErrCodeAmbiguousRoute, "%s node %q has %d outgoing edges, only decision nodes may branch", string(n.Kind), n.ID, len(n.Edges)).
				WithNode(n.ID).WithLine(n.Line)
		}
		if len(n.Edges) == 0 {
			return schema.NewErrorf(schema.ErrCodeValidation, "%s node %q is a dead end, only terminal nodes may have no outgoing edges", string(n.Kind), n.ID).
				WithNode(n.ID).WithLine(n.Line)
		}
		if n.Edges[0].Label == "" {
			n.Edges[0].Label = DefaultEdgeLabel
		}
		return nil
	}
}

// sweep runs a BFS from the root following outgoing edges.
func sweep(g *schema.DecisionGraph) map[string]bool {
	reachable := map[string]bool{g.RootID: true}
	queue := []string{g.RootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Nodes[id].Edges {
			if !reachable[e.Target] {
				reachable[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return reachable
}
