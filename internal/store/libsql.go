package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/faultline/faultline/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Graph versions ---

func (s *LibSQLStore) CreateGraphVersion(ctx context.Context, gv *GraphVersion) error {
	status := gv.Status
	if status == "" {
		status = VersionActive
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_versions (hash, topic, title, source, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		gv.Hash, gv.Topic, gv.Title, gv.Source, status, timeOrNow(gv.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return schema.NewErrorf(schema.ErrCodeConflict, "graph version %s already registered", gv.Hash).WithCause(err)
		}
		return err
	}
	idx, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read assigned version index: %w", err)
	}
	gv.Index = idx
	gv.Status = status
	return nil
}

func (s *LibSQLStore) GetGraphVersion(ctx context.Context, index int64) (*GraphVersion, error) {
	return s.scanGraphVersion(s.db.QueryRowContext(ctx,
		`SELECT idx, hash, topic, title, source, status, created_at, superseded_at
		 FROM graph_versions WHERE idx = ?`, index), fmt.Sprintf("%d", index))
}

func (s *LibSQLStore) GetGraphVersionByHash(ctx context.Context, hash string) (*GraphVersion, error) {
	return s.scanGraphVersion(s.db.QueryRowContext(ctx,
		`SELECT idx, hash, topic, title, source, status, created_at, superseded_at
		 FROM graph_versions WHERE hash = ?`, hash), hash)
}

func (s *LibSQLStore) LatestGraphVersion(ctx context.Context, topic string) (*GraphVersion, error) {
	return s.scanGraphVersion(s.db.QueryRowContext(ctx,
		`SELECT idx, hash, topic, title, source, status, created_at, superseded_at
		 FROM graph_versions WHERE topic = ? AND status = ? ORDER BY idx DESC LIMIT 1`,
		topic, VersionActive), topic)
}

func (s *LibSQLStore) scanGraphVersion(row *sql.Row, id string) (*GraphVersion, error) {
	gv := &GraphVersion{}
	var supersededAt sql.NullTime
	err := row.Scan(&gv.Index, &gv.Hash, &gv.Topic, &gv.Title, &gv.Source, &gv.Status, &gv.CreatedAt, &supersededAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("graph version", id)
	}
	if err != nil {
		return nil, err
	}
	if supersededAt.Valid {
		gv.SupersededAt = &supersededAt.Time
	}
	return gv, nil
}

func (s *LibSQLStore) ListGraphVersions(ctx context.Context, filter VersionFilter) ([]*GraphVersion, error) {
	query := `SELECT idx, hash, topic, title, source, status, created_at, superseded_at FROM graph_versions`
	var conds []string
	var args []any
	if filter.Topic != "" {
		conds = append(conds, "topic = ?")
		args = append(args, filter.Topic)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY idx DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GraphVersion
	for rows.Next() {
		gv := &GraphVersion{}
		var supersededAt sql.NullTime
		if err := rows.Scan(&gv.Index, &gv.Hash, &gv.Topic, &gv.Title, &gv.Source, &gv.Status, &gv.CreatedAt, &supersededAt); err != nil {
			return nil, err
		}
		if supersededAt.Valid {
			gv.SupersededAt = &supersededAt.Time
		}
		out = append(out, gv)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) SupersedeGraphVersion(ctx context.Context, index int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE graph_versions SET status = ?, superseded_at = ? WHERE idx = ? AND status = ?`,
		VersionSuperseded, at, index, VersionActive)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "graph version", fmt.Sprintf("%d", index))
}

func (s *LibSQLStore) DeleteGraphVersion(ctx context.Context, index int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM graph_versions WHERE idx = ?`, index)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "graph version", fmt.Sprintf("%d", index))
}

// --- Knowledge gaps ---

func (s *LibSQLStore) CreateGap(ctx context.Context, gap *GapRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_gaps (id, equipment, problem, context, score, route, status, overdue, created_at, reviewed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gap.ID, gap.Equipment, gap.Problem, gap.Context, gap.Score,
		string(gap.Route), string(gap.Status), boolInt(gap.Overdue),
		timeOrNow(gap.CreatedAt), nullTime(gap.ReviewedAt),
	)
	return err
}

func (s *LibSQLStore) GetGap(ctx context.Context, id string) (*GapRecord, error) {
	gap := &GapRecord{}
	var route, status string
	var overdue int
	var reviewedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, equipment, problem, context, score, route, status, overdue, created_at, reviewed_at
		 FROM knowledge_gaps WHERE id = ?`, id,
	).Scan(&gap.ID, &gap.Equipment, &gap.Problem, &gap.Context, &gap.Score, &route, &status, &overdue, &gap.CreatedAt, &reviewedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("knowledge gap", id)
	}
	if err != nil {
		return nil, err
	}
	gap.Route = schema.Route(route)
	gap.Status = schema.GuideStatus(status)
	gap.Overdue = overdue != 0
	if reviewedAt.Valid {
		gap.ReviewedAt = &reviewedAt.Time
	}
	return gap, nil
}

func (s *LibSQLStore) UpdateGapStatus(ctx context.Context, id string, status schema.GuideStatus, reviewedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_gaps SET status = ?, reviewed_at = ? WHERE id = ?`,
		string(status), nullTime(reviewedAt), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "knowledge gap", id)
}

func (s *LibSQLStore) ListGaps(ctx context.Context, filter GapFilter) ([]*GapRecord, error) {
	query := `SELECT id, equipment, problem, context, score, route, status, overdue, created_at, reviewed_at FROM knowledge_gaps`
	var conds []string
	var args []any
	if filter.Route != "" {
		conds = append(conds, "route = ?")
		args = append(args, string(filter.Route))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.OverdueOnly {
		conds = append(conds, "overdue = 1")
	}
	if filter.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.Since)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GapRecord
	for rows.Next() {
		gap := &GapRecord{}
		var route, status string
		var overdue int
		var reviewedAt sql.NullTime
		if err := rows.Scan(&gap.ID, &gap.Equipment, &gap.Problem, &gap.Context, &gap.Score, &route, &status, &overdue, &gap.CreatedAt, &reviewedAt); err != nil {
			return nil, err
		}
		gap.Route = schema.Route(route)
		gap.Status = schema.GuideStatus(status)
		gap.Overdue = overdue != 0
		if reviewedAt.Valid {
			gap.ReviewedAt = &reviewedAt.Time
		}
		out = append(out, gap)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) MarkGapsOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_gaps SET overdue = 1
		 WHERE route = ? AND reviewed_at IS NULL AND overdue = 0 AND created_at < ?`,
		string(schema.RouteEscalate), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Fallback guides ---

func (s *LibSQLStore) CreateGuide(ctx context.Context, g *GuideRecord) error {
	steps, err := json.Marshal(g.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO guides (id, gap_id, equipment, problem, context, steps, raw_source, confidence, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.GapID, g.Equipment, g.Problem, g.Context, string(steps),
		g.RawSource, g.Confidence, string(g.Status), timeOrNow(g.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetGuide(ctx context.Context, id string) (*GuideRecord, error) {
	g := &GuideRecord{}
	var steps, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, gap_id, equipment, problem, context, steps, raw_source, confidence, status, created_at
		 FROM guides WHERE id = ?`, id,
	).Scan(&g.ID, &g.GapID, &g.Equipment, &g.Problem, &g.Context, &steps, &g.RawSource, &g.Confidence, &status, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("guide", id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(steps), &g.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	g.Status = schema.GuideStatus(status)
	return g, nil
}

func (s *LibSQLStore) UpdateGuideStatus(ctx context.Context, id string, status schema.GuideStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE guides SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "guide", id)
}

func (s *LibSQLStore) ListGuides(ctx context.Context, filter GuideFilter) ([]*GuideRecord, error) {
	query := `SELECT id, gap_id, equipment, problem, context, steps, raw_source, confidence, status, created_at FROM guides`
	var conds []string
	var args []any
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.GapID != "" {
		conds = append(conds, "gap_id = ?")
		args = append(args, filter.GapID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GuideRecord
	for rows.Next() {
		g := &GuideRecord{}
		var steps, status string
		if err := rows.Scan(&g.ID, &g.GapID, &g.Equipment, &g.Problem, &g.Context, &steps, &g.RawSource, &g.Confidence, &status, &g.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(steps), &g.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps for %s: %w", g.ID, err)
		}
		g.Status = schema.GuideStatus(status)
		out = append(out, g)
	}
	return out, rows.Err()
}

// --- Draft fragments ---

func (s *LibSQLStore) CreateDraft(ctx context.Context, d *DraftRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (id, guide_id, source, hash, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.GuideID, d.Source, d.Hash, string(d.Status), timeOrNow(d.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetDraft(ctx context.Context, id string) (*DraftRecord, error) {
	d := &DraftRecord{}
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, guide_id, source, hash, status, created_at FROM drafts WHERE id = ?`, id,
	).Scan(&d.ID, &d.GuideID, &d.Source, &d.Hash, &status, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("draft", id)
	}
	if err != nil {
		return nil, err
	}
	d.Status = schema.GuideStatus(status)
	return d, nil
}

func (s *LibSQLStore) ListDrafts(ctx context.Context, status schema.GuideStatus, limit int) ([]*DraftRecord, error) {
	query := `SELECT id, guide_id, source, hash, status, created_at FROM drafts`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DraftRecord
	for rows.Next() {
		d := &DraftRecord{}
		var st string
		if err := rows.Scan(&d.ID, &d.GuideID, &d.Source, &d.Hash, &st, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Status = schema.GuideStatus(st)
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Session snapshots ---

func (s *LibSQLStore) UpsertSessionSnapshot(ctx context.Context, snap *SessionSnapshot) error {
	history, err := json.Marshal(snap.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_snapshots (id, message_id, graph_idx, node_idx, history, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   message_id = excluded.message_id,
		   graph_idx = excluded.graph_idx,
		   node_idx = excluded.node_idx,
		   history = excluded.history,
		   updated_at = excluded.updated_at`,
		snap.ID, snap.MessageID, snap.GraphIndex, snap.NodeIndex, string(history), timeOrNow(snap.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetSessionSnapshot(ctx context.Context, id string) (*SessionSnapshot, error) {
	snap := &SessionSnapshot{}
	var history string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, graph_idx, node_idx, history, updated_at FROM session_snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.MessageID, &snap.GraphIndex, &snap.NodeIndex, &history, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(history), &snap.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return snap, nil
}

func (s *LibSQLStore) DeleteSessionSnapshot(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_snapshots WHERE id = ?`, id)
	return err
}

func (s *LibSQLStore) CountActiveSessions(ctx context.Context, graphIndex int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_snapshots WHERE graph_idx = ? AND updated_at >= ?`,
		graphIndex, since,
	).Scan(&n)
	return n, err
}

// --- helpers ---

func storeNotFound(resource, id string) *schema.FaultError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
