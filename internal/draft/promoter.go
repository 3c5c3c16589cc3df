package draft

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/faultline/faultline/internal/diagram"
	"github.com/faultline/faultline/internal/store"
	"github.com/faultline/faultline/pkg/schema"
)

// Promoter converts accepted fallback guides into draft graph fragments.
// The generated fragment is a linear chain closed by a terminal node; it is
// compiled through the same pipeline as authored flowcharts so a draft that
// would not validate never reaches the store. Drafts stay unreachable from
// any live root until a human activates them.
type Promoter struct {
	store    store.Store
	compiler *diagram.Compiler
	logger   *slog.Logger
}

// NewPromoter creates a Promoter.
func NewPromoter(s store.Store, c *diagram.Compiler, logger *slog.Logger) *Promoter {
	return &Promoter{store: s, compiler: c, logger: logger}
}

// Promote renders an accepted guide as flowchart source, compiles it, and
// persists the draft record. Only accepted guides are promotable.
func (p *Promoter) Promote(ctx context.Context, guide *schema.FallbackGuide) (*store.DraftRecord, error) {
	if guide.Status != schema.StatusAccepted {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"guide %s is %s, only accepted guides can be promoted", guide.ID, guide.Status)
	}
	if len(guide.Steps) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "guide %s has no steps", guide.ID)
	}

	source := Render(guide)

	// Compiling the fragment reuses every structural check authored
	// flowcharts get; a guide the renderer mangles fails here, not in a
	// user's session.
	g, err := p.compiler.Compile(source)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"promoted guide %s does not compile", guide.ID).WithCause(err)
	}

	rec := &store.DraftRecord{
		ID:        uuid.NewString(),
		GuideID:   guide.ID,
		Source:    source,
		Hash:      g.Hash,
		Status:    schema.StatusDraft,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.CreateDraft(ctx, rec); err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "guide promoted to draft",
		slog.String("guide_id", guide.ID),
		slog.String("draft_id", rec.ID),
		slog.Int("steps", len(guide.Steps)))
	return rec, nil
}

// Render emits flowchart source for a guide: one [step] node per guide step
// in order, a closing [terminal], and the first step as root. Safety-flagged
// steps carry the !safety marker so their renders suppress forward actions.
func Render(guide *schema.FallbackGuide) string {
	var b strings.Builder

	title := guide.Problem
	if title == "" {
		title = "Generated guide"
	}
	fmt.Fprintf(&b, "title: %s\n", sanitizeHeader(title))
	if guide.Equipment != "" {
		fmt.Fprintf(&b, "topic: %s\n", sanitizeHeader(guide.Equipment))
	}
	fmt.Fprintf(&b, "root: step_1\n\n")

	for i, step := range guide.Steps {
		fmt.Fprintf(&b, "[step] step_%d: \"%s\"", i+1, sanitizeText(step.Text))
		if step.Safety {
			b.WriteString(" !safety")
		}
		b.WriteString("\n")
	}
	b.WriteString("[terminal] done: \"You have completed all suggested steps.\"\n\n")

	for i := 1; i < len(guide.Steps); i++ {
		fmt.Fprintf(&b, "step_%d -> step_%d\n", i, i+1)
	}
	fmt.Fprintf(&b, "step_%d -> done\n", len(guide.Steps))

	return b.String()
}

// sanitizeHeader strips newlines from header values; the grammar is
// line-oriented.
func sanitizeHeader(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sanitizeText additionally drops double quotes, which would terminate the
// quoted node text early.
func sanitizeText(s string) string {
	return sanitizeHeader(strings.ReplaceAll(s, `"`, "'"))
}
