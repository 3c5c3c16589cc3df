package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faultline/faultline/internal/corpus"
	"github.com/faultline/faultline/internal/draft"
	"github.com/faultline/faultline/internal/fallback"
	"github.com/faultline/faultline/internal/logging"
	"github.com/faultline/faultline/internal/nav"
	"github.com/faultline/faultline/internal/router"
	"github.com/faultline/faultline/internal/store"
	"github.com/faultline/faultline/pkg/schema"
)

// User-facing messages for routes that do not land on a graph node.
const (
	msgClarify  = "I couldn't match that to a known procedure. Could you describe the equipment and the problem in a bit more detail?"
	msgEscalate = "This sounds like it could be hazardous. Please stop and contact a qualified specialist before doing anything else."
)

// Service orchestrates the full troubleshooting surface: flowchart
// registration, session navigation, query routing, guide generation, and
// draft promotion. It is the only component that writes knowledge gaps.
type Service struct {
	store     store.Store
	registry  *corpus.Registry
	navigator *nav.Navigator
	matcher   *router.Matcher
	safety    *router.SafetyRules
	generator *fallback.Generator
	promoter  *draft.Promoter
	logger    *slog.Logger
}

// Config collects the service's collaborators.
type Config struct {
	Store     store.Store
	Registry  *corpus.Registry
	Navigator *nav.Navigator
	Matcher   *router.Matcher
	Safety    *router.SafetyRules
	Generator *fallback.Generator // nil degrades RESEARCH to CLARIFY
	Promoter  *draft.Promoter
	Logger    *slog.Logger
}

// NewService wires a Service from its collaborators.
func NewService(cfg Config) *Service {
	return &Service{
		store:     cfg.Store,
		registry:  cfg.Registry,
		navigator: cfg.Navigator,
		matcher:   cfg.Matcher,
		safety:    cfg.Safety,
		generator: cfg.Generator,
		promoter:  cfg.Promoter,
		logger:    cfg.Logger,
	}
}

// Compile registers flowchart source as the active version for its topic and
// indexes it for query matching.
func (s *Service) Compile(ctx context.Context, source string) (*store.GraphVersion, error) {
	gv, g, err := s.registry.Register(ctx, source)
	if err != nil {
		return nil, err
	}

	if err := s.matcher.Index(ctx, []router.MatchDoc{{
		ID:      gv.Hash,
		Topic:   g.Topic,
		Title:   g.Title,
		Content: g.Title + " " + g.Topic,
	}}); err != nil {
		// The graph is live either way; matching just won't find it until
		// the next registration refresh.
		s.logger.WarnContext(ctx, "indexing registered graph failed",
			slog.String("hash", gv.Hash), slog.String("error", err.Error()))
	}
	return gv, nil
}

// Start opens a navigation session on the latest version of a topic.
func (s *Service) Start(ctx context.Context, sessionID, messageID, topic string) (*nav.Result, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	res, err := s.navigator.Start(ctx, sessionID, messageID, topic)
	if err != nil {
		return nil, err
	}
	s.snapshot(ctx, res, messageID)
	return res, nil
}

// Act applies one user action to a session.
func (s *Service) Act(ctx context.Context, req nav.ActRequest) (*nav.Result, error) {
	ctx = logging.WithSessionID(ctx, req.SessionID)
	res, err := s.navigator.Act(ctx, req)
	if err != nil {
		return nil, err
	}
	s.snapshot(ctx, res, req.MessageID)
	return res, nil
}

// IsCurrent reports whether a result is still the session's latest render.
// Superseded results must be discarded by the delivery layer.
func (s *Service) IsCurrent(sessionID string, generation uint64) bool {
	return s.navigator.IsCurrent(sessionID, generation)
}

// AskRequest is a free-text troubleshooting query.
type AskRequest struct {
	Equipment string
	Problem   string
	Context   string
}

// AskResult is the routed outcome of a query. Exactly one of Topic (LOOKUP),
// Guide (RESEARCH success), or Message (CLARIFY/ESCALATE and degraded
// RESEARCH) carries the user-facing payload.
type AskResult struct {
	Route   schema.Route          `json:"route"`
	Score   float64               `json:"score"`
	Topic   string                `json:"topic,omitempty"`
	GapID   string                `json:"gap_id,omitempty"`
	Guide   *schema.FallbackGuide `json:"guide,omitempty"`
	Message string                `json:"message,omitempty"`
}

// Ask routes a free-text query. Every non-LOOKUP outcome writes a knowledge
// gap record, including generation failures, so coverage analysis sees the
// full demand.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	query := req.Problem
	if req.Context != "" {
		query += " " + req.Context
	}

	hazardous := s.safety.Match(query, req.Equipment)

	match, err := s.matcher.BestMatch(ctx, query)
	if err != nil {
		s.logger.WarnContext(ctx, "similarity scoring failed, treating as no match",
			slog.String("error", err.Error()))
		match = router.Match{}
	}

	route := router.Decide(match.Score, hazardous)
	res := &AskResult{Route: route, Score: match.Score}

	if route == schema.RouteLookup {
		res.Topic = match.Topic
		return res, nil
	}

	gap := &schema.KnowledgeGap{
		ID:        uuid.NewString(),
		Equipment: req.Equipment,
		Problem:   req.Problem,
		Context:   req.Context,
		Score:     match.Score,
		Route:     route,
		Status:    schema.StatusGapLogged,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateGap(ctx, gapRecord(gap)); err != nil {
		// The route still resolves; losing the gap record is an analytics
		// loss, not a user-facing failure.
		s.logger.ErrorContext(ctx, "writing knowledge gap failed",
			slog.String("error", err.Error()))
	} else {
		res.GapID = gap.ID
	}

	switch route {
	case schema.RouteEscalate:
		res.Message = msgEscalate
	case schema.RouteClarify:
		res.Message = msgClarify
	case schema.RouteResearch:
		s.research(ctx, req, gap, res)
	}
	return res, nil
}

// research runs the RESEARCH route and degrades to CLARIFY on any failure.
// The raw backend error never reaches the user.
func (s *Service) research(ctx context.Context, req AskRequest, gap *schema.KnowledgeGap, res *AskResult) {
	if s.generator == nil {
		s.logger.InfoContext(ctx, "no research backend configured, degrading to clarify")
		res.Route = schema.RouteClarify
		res.Message = msgClarify
		return
	}

	guide, err := s.generator.Generate(ctx, fallback.Request{
		Equipment: req.Equipment,
		Problem:   req.Problem,
		Context:   req.Context,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "guide generation failed, degrading to clarify",
			slog.String("gap_id", gap.ID), slog.String("error", err.Error()))
		res.Route = schema.RouteClarify
		res.Message = msgClarify
		return
	}

	guide.GapID = gap.ID
	guide.Confidence = res.Score
	if err := s.store.CreateGuide(ctx, guideRecord(guide)); err != nil {
		s.logger.ErrorContext(ctx, "persisting generated guide failed",
			slog.String("gap_id", gap.ID), slog.String("error", err.Error()))
		res.Route = schema.RouteClarify
		res.Message = msgClarify
		return
	}
	if err := s.store.UpdateGapStatus(ctx, gap.ID, schema.StatusGuideGenerated, nil); err != nil {
		s.logger.WarnContext(ctx, "updating gap status failed",
			slog.String("gap_id", gap.ID), slog.String("error", err.Error()))
	}

	res.Guide = guide
}

// AcceptGuide marks a generated guide accepted and promotes it to a draft
// graph fragment. Promotion never makes the draft reachable from a live
// root; that takes an explicit ActivateDraft.
func (s *Service) AcceptGuide(ctx context.Context, guideID string) (*store.DraftRecord, error) {
	rec, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return nil, err
	}
	if !schema.IsValidGuideTransition(rec.Status, schema.StatusAccepted) {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"guide %s is %s, cannot accept", guideID, rec.Status)
	}
	if err := s.store.UpdateGuideStatus(ctx, guideID, schema.StatusAccepted); err != nil {
		return nil, err
	}

	guide := guideFromRecord(rec)
	guide.Status = schema.StatusAccepted
	d, err := s.promoter.Promote(ctx, guide)
	if err != nil {
		return nil, err
	}

	if rec.GapID != "" {
		now := time.Now().UTC()
		if err := s.store.UpdateGapStatus(ctx, rec.GapID, schema.StatusAccepted, &now); err != nil {
			s.logger.WarnContext(ctx, "updating gap after acceptance failed",
				slog.String("gap_id", rec.GapID), slog.String("error", err.Error()))
		}
	}
	return d, nil
}

// RejectGuide marks a generated guide rejected. The knowledge gap record
// stays for coverage analysis.
func (s *Service) RejectGuide(ctx context.Context, guideID string) error {
	rec, err := s.store.GetGuide(ctx, guideID)
	if err != nil {
		return err
	}
	if !schema.IsValidGuideTransition(rec.Status, schema.StatusRejected) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"guide %s is %s, cannot reject", guideID, rec.Status)
	}
	if err := s.store.UpdateGuideStatus(ctx, guideID, schema.StatusRejected); err != nil {
		return err
	}

	if rec.GapID != "" {
		now := time.Now().UTC()
		if err := s.store.UpdateGapStatus(ctx, rec.GapID, schema.StatusRejected, &now); err != nil {
			s.logger.WarnContext(ctx, "updating gap after rejection failed",
				slog.String("gap_id", rec.GapID), slog.String("error", err.Error()))
		}
	}
	return nil
}

// ActivateDraft registers a reviewed draft fragment as a live graph version.
func (s *Service) ActivateDraft(ctx context.Context, draftID string) (*store.GraphVersion, error) {
	d, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	return s.Compile(ctx, d.Source)
}

// Query surface for review tooling.

func (s *Service) ListGaps(ctx context.Context, filter store.GapFilter) ([]*schema.KnowledgeGap, error) {
	recs, err := s.store.ListGaps(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*schema.KnowledgeGap, len(recs))
	for i, r := range recs {
		out[i] = gapFromRecord(r)
	}
	return out, nil
}

func (s *Service) ListGuides(ctx context.Context, filter store.GuideFilter) ([]*store.GuideRecord, error) {
	return s.store.ListGuides(ctx, filter)
}

func (s *Service) ListVersions(ctx context.Context, filter store.VersionFilter) ([]*store.GraphVersion, error) {
	return s.store.ListGraphVersions(ctx, filter)
}

func (s *Service) ListDrafts(ctx context.Context, status schema.GuideStatus, limit int) ([]*store.DraftRecord, error) {
	return s.store.ListDrafts(ctx, status, limit)
}

// snapshot caches the session position. The navigation token stays the
// source of truth; a snapshot write failure is logged and ignored.
func (s *Service) snapshot(ctx context.Context, res *nav.Result, messageID string) {
	state := res.State
	idx, ok := state.Graph.Index(state.CurrentID)
	if !ok {
		return
	}
	err := s.store.UpsertSessionSnapshot(ctx, &store.SessionSnapshot{
		ID:         res.SessionID,
		MessageID:  messageID,
		GraphIndex: state.VersionIndex,
		NodeIndex:  idx,
		History:    state.History.Entries(),
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "session snapshot write failed",
			slog.String("session_id", res.SessionID), slog.String("error", err.Error()))
	}
}

func gapRecord(g *schema.KnowledgeGap) *store.GapRecord {
	return &store.GapRecord{
		ID:         g.ID,
		Equipment:  g.Equipment,
		Problem:    g.Problem,
		Context:    g.Context,
		Score:      g.Score,
		Route:      g.Route,
		Status:     g.Status,
		Overdue:    g.Overdue,
		CreatedAt:  g.CreatedAt,
		ReviewedAt: g.ReviewedAt,
	}
}

func gapFromRecord(r *store.GapRecord) *schema.KnowledgeGap {
	return &schema.KnowledgeGap{
		ID:         r.ID,
		Equipment:  r.Equipment,
		Problem:    r.Problem,
		Context:    r.Context,
		Score:      r.Score,
		Route:      r.Route,
		Status:     r.Status,
		Overdue:    r.Overdue,
		CreatedAt:  r.CreatedAt,
		ReviewedAt: r.ReviewedAt,
	}
}

func guideRecord(g *schema.FallbackGuide) *store.GuideRecord {
	return &store.GuideRecord{
		ID:         g.ID,
		GapID:      g.GapID,
		Equipment:  g.Equipment,
		Problem:    g.Problem,
		Context:    g.Context,
		Steps:      g.Steps,
		RawSource:  g.RawSource,
		Confidence: g.Confidence,
		Status:     g.Status,
		CreatedAt:  g.CreatedAt,
	}
}

func guideFromRecord(r *store.GuideRecord) *schema.FallbackGuide {
	return &schema.FallbackGuide{
		ID:         r.ID,
		GapID:      r.GapID,
		Equipment:  r.Equipment,
		Problem:    r.Problem,
		Context:    r.Context,
		Steps:      r.Steps,
		RawSource:  r.RawSource,
		Confidence: r.Confidence,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
	}
}
