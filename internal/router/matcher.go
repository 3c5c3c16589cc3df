package router

import (
	"context"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/faultline/faultline/pkg/schema"
)

// MatchDoc is one indexable flowchart entry: the topic string plus the
// author-facing title, scored against free-text queries.
type MatchDoc struct {
	ID      string
	Topic   string
	Title   string
	Content string
}

// Match is the best similarity result for a query.
type Match struct {
	DocID string
	Topic string
	Score float64
}

// Matcher scores free-text queries against the indexed flowchart corpus
// using vector similarity. The embedding function is injected so tests can
// run without a network.
type Matcher struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
	topics     map[string]string // doc id → topic
}

// NewMatcher creates an in-memory matcher over the given embedding function.
func NewMatcher(embed chromem.EmbeddingFunc) (*Matcher, error) {
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection("flowcharts", nil, embed)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "creating matcher collection").WithCause(err)
	}
	return &Matcher{
		db:         db,
		collection: collection,
		embed:      embed,
		topics:     make(map[string]string),
	}, nil
}

// Index adds or replaces documents in the similarity index. Called by the
// registry whenever a graph version is registered, so query scoring always
// reflects the live corpus.
func (m *Matcher) Index(ctx context.Context, docs []MatchDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range docs {
		content := d.Content
		if content == "" {
			content = d.Title
		}
		err := m.collection.AddDocument(ctx, chromem.Document{
			ID:      d.ID,
			Content: content,
			Metadata: map[string]string{
				"topic": d.Topic,
				"title": d.Title,
			},
		})
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "indexing document %q", d.ID).WithCause(err)
		}
		m.topics[d.ID] = d.Topic
	}
	return nil
}

// Remove drops a document from the index, e.g. when its version is retired.
func (m *Matcher) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.collection.Delete(ctx, nil, nil, id); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "removing document %q", id).WithCause(err)
	}
	delete(m.topics, id)
	return nil
}

// BestMatch returns the highest-similarity document for a query. An empty
// index yields a zero score, which downstream routing treats as CLARIFY.
func (m *Matcher) BestMatch(ctx context.Context, query string) (Match, error) {
	m.mu.Lock()
	count := m.collection.Count()
	m.mu.Unlock()

	if count == 0 {
		return Match{}, nil
	}

	results, err := m.collection.Query(ctx, query, 1, nil, nil)
	if err != nil {
		return Match{}, schema.NewError(schema.ErrCodeStore, "similarity query failed").WithCause(err)
	}
	if len(results) == 0 {
		return Match{}, nil
	}

	r := results[0]
	return Match{
		DocID: r.ID,
		Topic: r.Metadata["topic"],
		Score: float64(r.Similarity),
	}, nil
}
