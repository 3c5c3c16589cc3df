// Package storetest provides an in-memory Store implementation for tests
// that exercise components above the persistence layer.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/faultline/faultline/internal/store"
	"github.com/faultline/faultline/pkg/schema"
)

// MemStore is a thread-safe in-memory store.Store. Version indices are
// assigned sequentially from 1, mirroring the libsql AUTOINCREMENT rowid.
type MemStore struct {
	mu        sync.Mutex
	nextIndex int64
	versions  map[int64]*store.GraphVersion
	gaps      map[string]*store.GapRecord
	guides    map[string]*store.GuideRecord
	drafts    map[string]*store.DraftRecord
	sessions  map[string]*store.SessionSnapshot
}

// New creates an empty MemStore.
func New() *MemStore {
	return &MemStore{
		versions: make(map[int64]*store.GraphVersion),
		gaps:     make(map[string]*store.GapRecord),
		guides:   make(map[string]*store.GuideRecord),
		drafts:   make(map[string]*store.DraftRecord),
		sessions: make(map[string]*store.SessionSnapshot),
	}
}

var _ store.Store = (*MemStore)(nil)

func notFound(kind, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %s not found", kind, id)
}

func (m *MemStore) CreateGraphVersion(_ context.Context, gv *store.GraphVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.Hash == gv.Hash {
			return schema.NewErrorf(schema.ErrCodeConflict, "version with hash %s exists", gv.Hash)
		}
	}
	m.nextIndex++
	gv.Index = m.nextIndex
	cp := *gv
	m.versions[gv.Index] = &cp
	return nil
}

func (m *MemStore) GetGraphVersion(_ context.Context, index int64) (*store.GraphVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[index]
	if !ok {
		return nil, notFound("graph version", "")
	}
	cp := *v
	return &cp, nil
}

func (m *MemStore) GetGraphVersionByHash(_ context.Context, hash string) (*store.GraphVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.Hash == hash {
			cp := *v
			return &cp, nil
		}
	}
	return nil, notFound("graph version", hash)
}

func (m *MemStore) LatestGraphVersion(_ context.Context, topic string) (*store.GraphVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *store.GraphVersion
	for _, v := range m.versions {
		if v.Status != store.VersionActive || v.Topic != topic {
			continue
		}
		if best == nil || v.Index > best.Index {
			best = v
		}
	}
	if best == nil {
		return nil, notFound("active version for topic", topic)
	}
	cp := *best
	return &cp, nil
}

func (m *MemStore) ListGraphVersions(_ context.Context, filter store.VersionFilter) ([]*store.GraphVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.GraphVersion
	for _, v := range m.versions {
		if filter.Topic != "" && v.Topic != filter.Topic {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemStore) SupersedeGraphVersion(_ context.Context, index int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[index]
	if !ok {
		return notFound("graph version", "")
	}
	v.Status = store.VersionSuperseded
	v.SupersededAt = &at
	return nil
}

func (m *MemStore) DeleteGraphVersion(_ context.Context, index int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.versions[index]; !ok {
		return notFound("graph version", "")
	}
	delete(m.versions, index)
	return nil
}

func (m *MemStore) CreateGap(_ context.Context, gap *store.GapRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *gap
	m.gaps[gap.ID] = &cp
	return nil
}

func (m *MemStore) GetGap(_ context.Context, id string) (*store.GapRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gaps[id]
	if !ok {
		return nil, notFound("gap", id)
	}
	cp := *g
	return &cp, nil
}

func (m *MemStore) UpdateGapStatus(_ context.Context, id string, status schema.GuideStatus, reviewedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gaps[id]
	if !ok {
		return notFound("gap", id)
	}
	g.Status = status
	g.ReviewedAt = reviewedAt
	return nil
}

func (m *MemStore) ListGaps(_ context.Context, filter store.GapFilter) ([]*store.GapRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.GapRecord
	for _, g := range m.gaps {
		if filter.Route != "" && g.Route != filter.Route {
			continue
		}
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		if filter.OverdueOnly && !g.Overdue {
			continue
		}
		if filter.Since != nil && g.CreatedAt.Before(*filter.Since) {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemStore) MarkGapsOverdue(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, g := range m.gaps {
		if g.Route == schema.RouteEscalate && g.ReviewedAt == nil && !g.Overdue && g.CreatedAt.Before(cutoff) {
			g.Overdue = true
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CreateGuide(_ context.Context, g *store.GuideRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.guides[g.ID] = &cp
	return nil
}

func (m *MemStore) GetGuide(_ context.Context, id string) (*store.GuideRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guides[id]
	if !ok {
		return nil, notFound("guide", id)
	}
	cp := *g
	return &cp, nil
}

func (m *MemStore) UpdateGuideStatus(_ context.Context, id string, status schema.GuideStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guides[id]
	if !ok {
		return notFound("guide", id)
	}
	g.Status = status
	return nil
}

func (m *MemStore) ListGuides(_ context.Context, filter store.GuideFilter) ([]*store.GuideRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.GuideRecord
	for _, g := range m.guides {
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		if filter.GapID != "" && g.GapID != filter.GapID {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemStore) CreateDraft(_ context.Context, d *store.DraftRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.drafts[d.ID] = &cp
	return nil
}

func (m *MemStore) GetDraft(_ context.Context, id string) (*store.DraftRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, notFound("draft", id)
	}
	cp := *d
	return &cp, nil
}

func (m *MemStore) ListDrafts(_ context.Context, status schema.GuideStatus, limit int) ([]*store.DraftRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.DraftRecord
	for _, d := range m.drafts {
		if status != "" && d.Status != status {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) UpsertSessionSnapshot(_ context.Context, s *store.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemStore) GetSessionSnapshot(_ context.Context, id string) (*store.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, notFound("session snapshot", id)
	}
	cp := *s
	return &cp, nil
}

func (m *MemStore) DeleteSessionSnapshot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemStore) CountActiveSessions(_ context.Context, graphIndex int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.GraphIndex == graphIndex && s.UpdatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) Migrate(context.Context) error { return nil }
func (m *MemStore) Vacuum(context.Context) error  { return nil }
func (m *MemStore) Close() error                  { return nil }
