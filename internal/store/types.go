package store

import (
	"time"

	"github.com/faultline/faultline/pkg/schema"
)

// Graph version lifecycle states. Drafts live in their own table and only
// become versions on activation, so there is no draft state here.
const (
	VersionActive     = "active"
	VersionSuperseded = "superseded"
)

// GraphVersion is the persisted record of a compiled graph version.
// The Index is assigned by the store at creation and is the compact
// identifier carried in navigation tokens, so it must be identical on
// every instance decoding the same token.
type GraphVersion struct {
	Index        int64      `json:"index"`
	Hash         string     `json:"hash"`
	Topic        string     `json:"topic,omitempty"`
	Title        string     `json:"title,omitempty"`
	Source       string     `json:"source"`
	Status       string     `json:"status"` // active, superseded
	CreatedAt    time.Time  `json:"created_at"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
}

// GapRecord is the persisted form of a schema.KnowledgeGap.
type GapRecord struct {
	ID         string             `json:"id"`
	Equipment  string             `json:"equipment_descriptor"`
	Problem    string             `json:"problem_text"`
	Context    string             `json:"context,omitempty"`
	Score      float64            `json:"score"`
	Route      schema.Route       `json:"route"`
	Status     schema.GuideStatus `json:"status"`
	Overdue    bool               `json:"overdue"`
	CreatedAt  time.Time          `json:"created_at"`
	ReviewedAt *time.Time         `json:"reviewed_at,omitempty"`
}

// GuideRecord is the persisted form of a schema.FallbackGuide.
type GuideRecord struct {
	ID         string             `json:"id"`
	GapID      string             `json:"gap_id,omitempty"`
	Equipment  string             `json:"equipment_descriptor"`
	Problem    string             `json:"problem_text"`
	Context    string             `json:"context,omitempty"`
	Steps      []schema.GuideStep `json:"steps"`
	RawSource  string             `json:"raw_source_text,omitempty"`
	Confidence float64            `json:"confidence"`
	Status     schema.GuideStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
}

// DraftRecord is an unpublished graph fragment pending human review.
// Never reachable from a live root until explicitly activated.
type DraftRecord struct {
	ID        string             `json:"id"`
	GuideID   string             `json:"guide_id"`
	Source    string             `json:"source"` // flowchart DSL of the fragment
	Hash      string             `json:"hash"`
	Status    schema.GuideStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

// SessionSnapshot caches a session's last known position. The navigation
// token is the source of truth; this record only warms restarts and feeds
// the retention sweep's activity check.
type SessionSnapshot struct {
	ID         string    `json:"id"`
	MessageID  string    `json:"message_id"`
	GraphIndex int64     `json:"graph_index"`
	NodeIndex  int       `json:"node_index"`
	History    []int     `json:"history"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GapFilter specifies criteria for listing knowledge gaps.
type GapFilter struct {
	Route       schema.Route       `json:"route,omitempty"`
	Status      schema.GuideStatus `json:"status,omitempty"`
	OverdueOnly bool               `json:"overdue_only,omitempty"`
	Since       *time.Time         `json:"since,omitempty"`
	Limit       int                `json:"limit,omitempty"`
}

// GuideFilter specifies criteria for listing guides.
type GuideFilter struct {
	Status schema.GuideStatus `json:"status,omitempty"`
	GapID  string             `json:"gap_id,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

// VersionFilter specifies criteria for listing graph versions.
type VersionFilter struct {
	Topic  string `json:"topic,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}
