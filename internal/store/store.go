package store

import (
	"context"
	"time"

	"github.com/faultline/faultline/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Graph versions
	CreateGraphVersion(ctx context.Context, gv *GraphVersion) error // assigns gv.Index
	GetGraphVersion(ctx context.Context, index int64) (*GraphVersion, error)
	GetGraphVersionByHash(ctx context.Context, hash string) (*GraphVersion, error)
	LatestGraphVersion(ctx context.Context, topic string) (*GraphVersion, error)
	ListGraphVersions(ctx context.Context, filter VersionFilter) ([]*GraphVersion, error)
	SupersedeGraphVersion(ctx context.Context, index int64, at time.Time) error
	DeleteGraphVersion(ctx context.Context, index int64) error

	// Knowledge gaps
	CreateGap(ctx context.Context, gap *GapRecord) error
	GetGap(ctx context.Context, id string) (*GapRecord, error)
	UpdateGapStatus(ctx context.Context, id string, status schema.GuideStatus, reviewedAt *time.Time) error
	ListGaps(ctx context.Context, filter GapFilter) ([]*GapRecord, error)
	MarkGapsOverdue(ctx context.Context, cutoff time.Time) (int64, error)

	// Fallback guides
	CreateGuide(ctx context.Context, g *GuideRecord) error
	GetGuide(ctx context.Context, id string) (*GuideRecord, error)
	UpdateGuideStatus(ctx context.Context, id string, status schema.GuideStatus) error
	ListGuides(ctx context.Context, filter GuideFilter) ([]*GuideRecord, error)

	// Draft fragments
	CreateDraft(ctx context.Context, d *DraftRecord) error
	GetDraft(ctx context.Context, id string) (*DraftRecord, error)
	ListDrafts(ctx context.Context, status schema.GuideStatus, limit int) ([]*DraftRecord, error)

	// Session snapshots (cache, not source of truth)
	UpsertSessionSnapshot(ctx context.Context, s *SessionSnapshot) error
	GetSessionSnapshot(ctx context.Context, id string) (*SessionSnapshot, error)
	DeleteSessionSnapshot(ctx context.Context, id string) error
	CountActiveSessions(ctx context.Context, graphIndex int64, since time.Time) (int, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
