package schema

import "time"

// Route is the confidence-scored outcome for a query with no matching graph.
type Route string

const (
	RouteLookup   Route = "LOOKUP"
	RouteResearch Route = "RESEARCH"
	RouteClarify  Route = "CLARIFY"
	RouteEscalate Route = "ESCALATE"
)

// GuideStatus tracks a fallback guide through its review lifecycle.
type GuideStatus string

const (
	StatusGapLogged      GuideStatus = "gap_logged"
	StatusGuideGenerated GuideStatus = "guide_generated"
	StatusDraft          GuideStatus = "draft"
	StatusAccepted       GuideStatus = "accepted"
	StatusRejected       GuideStatus = "rejected"
)

// ValidGuideTransitions defines the allowed status transitions for guides.
// Promotion to draft requires an explicit acceptance step, never automatic.
var ValidGuideTransitions = map[GuideStatus][]GuideStatus{
	StatusGapLogged:      {StatusGuideGenerated},
	StatusGuideGenerated: {StatusAccepted, StatusRejected},
	StatusAccepted:       {StatusDraft},
	StatusDraft:          {},
	StatusRejected:       {},
}

// IsValidGuideTransition reports whether a guide status change is allowed.
func IsValidGuideTransition(from, to GuideStatus) bool {
	for _, a := range ValidGuideTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// GuideStep is one ordered step of a generated guide.
type GuideStep struct {
	Text   string `json:"text"`
	Safety bool   `json:"safety,omitempty"`
}

// FallbackGuide is a generated troubleshooting guide produced by the
// RESEARCH route. Provisional content until explicitly accepted.
type FallbackGuide struct {
	ID         string      `json:"id"`
	GapID      string      `json:"gap_id,omitempty"`
	Equipment  string      `json:"equipment_descriptor"`
	Problem    string      `json:"problem_text"`
	Context    string      `json:"context,omitempty"`
	Steps      []GuideStep `json:"steps"`
	RawSource  string      `json:"raw_source_text,omitempty"`
	Confidence float64     `json:"confidence"`
	Status     GuideStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// KnowledgeGap records a query that did not directly match existing content.
// Written for every RESEARCH/CLARIFY/ESCALATE outcome, even failures, to
// support offline coverage analysis. ESCALATE gaps require human review
// within the configured SLA window.
type KnowledgeGap struct {
	ID         string      `json:"id"`
	Equipment  string      `json:"equipment_descriptor"`
	Problem    string      `json:"problem_text"`
	Context    string      `json:"context,omitempty"`
	Score      float64     `json:"score"`
	Route      Route       `json:"route"`
	Status     GuideStatus `json:"status"`
	Overdue    bool        `json:"overdue,omitempty"` // ESCALATE past SLA without review
	CreatedAt  time.Time   `json:"created_at"`
	ReviewedAt *time.Time  `json:"reviewed_at,omitempty"`
}
