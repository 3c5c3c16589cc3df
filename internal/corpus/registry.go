package corpus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/faultline/faultline/internal/diagram"
	"github.com/faultline/faultline/internal/store"
	"github.com/faultline/faultline/pkg/schema"
)

// Registry is the content-hash-addressed graph version corpus. Versions are
// immutable once registered: an author edit registers a new version and
// supersedes the old one, which stays decodable for pinned sessions until
// the retention sweep removes it.
//
// The version index carried in navigation tokens is assigned by the store,
// so every instance resolves the same token to the same graph.
type Registry struct {
	store    store.Store
	compiler *diagram.Compiler
	logger   *slog.Logger

	mu      sync.RWMutex
	byIndex map[int64]*schema.DecisionGraph
}

// NewRegistry creates a Registry backed by the given store.
func NewRegistry(s store.Store, c *diagram.Compiler, logger *slog.Logger) *Registry {
	return &Registry{
		store:    s,
		compiler: c,
		logger:   logger,
		byIndex:  make(map[int64]*schema.DecisionGraph),
	}
}

// Register compiles flowchart source and records it as the active version
// for its topic, superseding any previous active version. Registering
// already-known source is idempotent and returns the existing version.
func (r *Registry) Register(ctx context.Context, source string) (*store.GraphVersion, *schema.DecisionGraph, error) {
	g, err := r.compiler.Compile(source)
	if err != nil {
		return nil, nil, err
	}

	if existing, err := r.store.GetGraphVersionByHash(ctx, g.Hash); err == nil {
		r.cache(existing.Index, g)
		return existing, g, nil
	}

	// Supersede the current active version of the same topic. Pinned
	// sessions keep navigating it; only RESTART adopts the new version.
	if prev, err := r.store.LatestGraphVersion(ctx, g.Topic); err == nil {
		now := time.Now().UTC()
		if err := r.store.SupersedeGraphVersion(ctx, prev.Index, now); err != nil {
			return nil, nil, schema.NewError(schema.ErrCodeStore, "supersede previous version").WithCause(err)
		}
		r.logger.InfoContext(ctx, "graph version superseded",
			slog.Int64("index", prev.Index), slog.String("topic", g.Topic))
	}

	gv := &store.GraphVersion{
		Hash:      g.Hash,
		Topic:     g.Topic,
		Title:     g.Title,
		Source:    source,
		Status:    store.VersionActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateGraphVersion(ctx, gv); err != nil {
		return nil, nil, err
	}
	r.cache(gv.Index, g)

	r.logger.InfoContext(ctx, "graph version registered",
		slog.Int64("index", gv.Index),
		slog.String("hash", g.Hash),
		slog.String("topic", g.Topic),
		slog.Int("nodes", g.Len()))
	return gv, g, nil
}

// ByIndex resolves a version index to its compiled graph, loading and
// recompiling from the store on a cache miss. Superseded versions resolve
// normally; only unknown or deleted indices fail.
func (r *Registry) ByIndex(ctx context.Context, index int64) (*schema.DecisionGraph, error) {
	r.mu.RLock()
	if g, ok := r.byIndex[index]; ok {
		r.mu.RUnlock()
		return g, nil
	}
	r.mu.RUnlock()

	gv, err := r.store.GetGraphVersion(ctx, index)
	if err != nil {
		return nil, err
	}
	g, err := r.compiler.Compile(gv.Source)
	if err != nil {
		// A stored version that no longer compiles means the compiler
		// changed incompatibly; treat as unresolvable, not fatal.
		return nil, schema.NewErrorf(schema.ErrCodeStore, "stored version %d no longer compiles", index).WithCause(err)
	}
	r.cache(index, g)
	return g, nil
}

// Latest returns the active version and compiled graph for a topic.
func (r *Registry) Latest(ctx context.Context, topic string) (*store.GraphVersion, *schema.DecisionGraph, error) {
	gv, err := r.store.LatestGraphVersion(ctx, topic)
	if err != nil {
		return nil, nil, err
	}
	g, err := r.ByIndex(ctx, gv.Index)
	if err != nil {
		return nil, nil, err
	}
	return gv, g, nil
}

// Evict drops a version from the in-memory cache. Called by the retention
// sweep after the stored version is deleted.
func (r *Registry) Evict(index int64) {
	r.mu.Lock()
	delete(r.byIndex, index)
	r.mu.Unlock()
}

func (r *Registry) cache(index int64, g *schema.DecisionGraph) {
	r.mu.Lock()
	r.byIndex[index] = g
	r.mu.Unlock()
}
