package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/faultline/faultline/internal/store"
)

// Sweeper garbage-collects superseded graph versions once no token
// referencing them can plausibly still exist, and flags escalation gaps
// that have missed their review SLA.
type Sweeper struct {
	store     store.Store
	registry  *Registry
	schedule  cron.Schedule
	retention time.Duration // superseded versions survive at least this long
	reviewSLA time.Duration // ESCALATE gaps must be reviewed within this window
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a Sweeper. cronSpec uses the standard 5-field cron
// syntax (e.g. "0 * * * *" for hourly).
func NewSweeper(s store.Store, r *Registry, cronSpec string, retention, reviewSLA time.Duration, logger *slog.Logger) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", cronSpec, err)
	}
	return &Sweeper{
		store:     s,
		registry:  r,
		schedule:  schedule,
		retention: retention,
		reviewSLA: reviewSLA,
		logger:    logger,
	}, nil
}

// Start launches the background sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already started")
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(sweepCtx)
	s.logger.Info("retention sweeper started")
	return nil
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	next := s.schedule.Next(time.Now().UTC())
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if now.Before(next) {
				continue
			}
			s.Sweep(ctx)
			next = s.schedule.Next(now)
		}
	}
}

// Sweep runs one GC + SLA pass. Exported so operators can trigger it on demand.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	cutoff := now.Add(-s.retention)

	versions, err := s.store.ListGraphVersions(ctx, store.VersionFilter{Status: store.VersionSuperseded})
	if err != nil {
		s.logger.Error("list superseded versions", slog.String("error", err.Error()))
	} else {
		removed := 0
		for _, gv := range versions {
			if gv.SupersededAt == nil || gv.SupersededAt.After(cutoff) {
				continue
			}
			// A version with recent session activity may still be referenced
			// by a live token; keep it until the activity ages out.
			active, err := s.store.CountActiveSessions(ctx, gv.Index, cutoff)
			if err != nil {
				s.logger.Error("count active sessions", slog.Int64("index", gv.Index), slog.String("error", err.Error()))
				continue
			}
			if active > 0 {
				continue
			}
			if err := s.store.DeleteGraphVersion(ctx, gv.Index); err != nil {
				s.logger.Error("delete graph version", slog.Int64("index", gv.Index), slog.String("error", err.Error()))
				continue
			}
			s.registry.Evict(gv.Index)
			removed++
		}
		if removed > 0 {
			s.logger.Info("retention sweep removed versions", slog.Int("count", removed))
		}
	}

	overdue, err := s.store.MarkGapsOverdue(ctx, now.Add(-s.reviewSLA))
	if err != nil {
		s.logger.Error("mark overdue gaps", slog.String("error", err.Error()))
	} else if overdue > 0 {
		s.logger.Warn("escalation gaps past review SLA", slog.Int64("count", overdue))
	}
}

// Stop gracefully shuts down the sweeper.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("retention sweeper stopped")
	return nil
}
