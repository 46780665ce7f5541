// Package cleanup enforces data retention across the daemon's tables.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/showrunner-io/showrunner/pkg/config"
)

// Approvals expires stale pending rows. Satisfied by
// *services.ApprovalService.
type Approvals interface {
	ExpireOld(ctx context.Context, maxAge time.Duration) (int, error)
}

// Pruner deletes rows older than a cutoff. Satisfied by the Prune
// methods on the checkin, audit, and plan services and by
// *events.EventPublisher.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// Research prunes the research tables. Satisfied by
// *services.ResearchService.
type Research interface {
	PruneItems(ctx context.Context, olderThan time.Time) (int, error)
	PruneDigests(ctx context.Context, olderThan time.Time) (int, error)
}

// Growth prunes the growth tables. Satisfied by *services.GrowthService.
type Growth interface {
	PruneReplyTargets(ctx context.Context, olderThan time.Time) (int, error)
	PruneSeenMentions(ctx context.Context, olderThan time.Time) (int, error)
}

// Auditor records expiry sweeps that changed rows. Satisfied by
// *services.AuditService.
type Auditor interface {
	Info(ctx context.Context, topic, message string)
}

// Deps wires the cleanup service. A nil collaborator skips its sweep.
type Deps struct {
	Retention      *config.RetentionConfig
	ApprovalExpiry time.Duration

	Approvals   Approvals
	Checkins    Pruner
	AuditLog    Pruner
	EventStream Pruner
	Plans       Pruner
	Research    Research
	Growth      Growth
	Auditor     Auditor
}

// Service periodically enforces retention:
//   - Expires pending approvals the operator never reviewed
//   - Prunes checkin, audit, event-stream, plan, research, and growth
//     rows past their per-table retention windows
//
// All sweeps are idempotent and safe to run from multiple instances.
type Service struct {
	deps Deps

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the cleanup service.
func NewService(deps Deps) *Service {
	if deps.Retention == nil {
		deps.Retention = config.DefaultRetentionConfig()
	}
	return &Service{deps: deps}
}

// Start launches the background cleanup loop. The first sweep runs
// immediately.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"interval", s.deps.Retention.CleanupInterval,
		"checkin_days", s.deps.Retention.CheckinDays,
		"audit_days", s.deps.Retention.AuditDays)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.deps.Retention.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.expireApprovals(ctx)
	s.prune(ctx, "checkin_log", s.deps.Checkins, s.deps.Retention.CheckinDays)
	s.prune(ctx, "audit_log", s.deps.AuditLog, s.deps.Retention.AuditDays)
	s.prune(ctx, "event_stream", s.deps.EventStream, s.deps.Retention.EventStreamDays)
	s.prune(ctx, "daily_plans", s.deps.Plans, s.deps.Retention.PlanDays)
	if s.deps.Research != nil {
		s.prune(ctx, "research_items", prunerFunc(s.deps.Research.PruneItems), s.deps.Retention.ResearchItemDays)
		s.prune(ctx, "digests", prunerFunc(s.deps.Research.PruneDigests), s.deps.Retention.DigestDays)
	}
	if s.deps.Growth != nil {
		s.prune(ctx, "reply_targets", prunerFunc(s.deps.Growth.PruneReplyTargets), s.deps.Retention.GrowthDays)
		s.prune(ctx, "seen_mentions", prunerFunc(s.deps.Growth.PruneSeenMentions), s.deps.Retention.GrowthDays)
	}
}

// expireApprovals ages out pending approvals. Expiry is a state
// transition rather than a deletion, so changed rows are audited.
func (s *Service) expireApprovals(ctx context.Context) {
	if !s.deps.Retention.ExpirySweep || s.deps.Approvals == nil {
		return
	}
	maxAge := s.deps.ApprovalExpiry
	if maxAge <= 0 {
		maxAge = time.Duration(config.DefaultApprovalConfig().ExpiryHours) * time.Hour
	}
	count, err := s.deps.Approvals.ExpireOld(ctx, maxAge)
	if err != nil {
		slog.Error("Retention: approval expiry sweep failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: expired stale approvals", "count", count)
		if s.deps.Auditor != nil {
			s.deps.Auditor.Info(ctx, "retention",
				fmt.Sprintf("Expired %d stale pending approvals (older than %s)", count, maxAge))
		}
	}
}

func (s *Service) prune(ctx context.Context, table string, p Pruner, days int) {
	if p == nil || days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	count, err := p.Prune(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: prune failed", "table", table, "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned old rows", "table", table, "count", count)
	}
}

// prunerFunc adapts a prune method to the Pruner interface.
type prunerFunc func(ctx context.Context, olderThan time.Time) (int, error)

func (f prunerFunc) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	return f(ctx, olderThan)
}
