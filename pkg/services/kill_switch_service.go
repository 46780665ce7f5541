package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/showrunner-io/showrunner/pkg/models"
)

// KillSwitchService reads and flips the singleton kill switch row. When the
// switch is active every cron job and outbound action is held; the flag lives
// in Postgres so it survives restarts and can be flipped with plain SQL if
// the process itself is wedged.
type KillSwitchService struct {
	db       *sqlx.DB
	audit    *AuditService
	cacheTTL time.Duration

	mu       sync.Mutex
	cached   bool
	cachedAt time.Time
}

// NewKillSwitchService creates a new KillSwitchService. cacheTTL > 0 enables
// a read-through cache on IsActive so the 1 s cron tick does not hammer the
// database; 0 disables caching. audit may be nil.
func NewKillSwitchService(db *sqlx.DB, audit *AuditService, cacheTTL time.Duration) *KillSwitchService {
	if db == nil {
		panic("NewKillSwitchService: db must not be nil")
	}
	return &KillSwitchService{db: db, audit: audit, cacheTTL: cacheTTL}
}

// IsActive reports whether the kill switch is currently on.
func (s *KillSwitchService) IsActive(ctx context.Context) (bool, error) {
	if s.cacheTTL > 0 {
		s.mu.Lock()
		if !s.cachedAt.IsZero() && time.Since(s.cachedAt) < s.cacheTTL {
			active := s.cached
			s.mu.Unlock()
			return active, nil
		}
		s.mu.Unlock()
	}

	var active bool
	if err := s.db.GetContext(ctx, &active,
		`SELECT active FROM kill_switch WHERE id = 1`); err != nil {
		return false, fmt.Errorf("failed to read kill switch: %w", err)
	}
	s.remember(active)
	return active, nil
}

// Halted is the cron gate adapter. A read failure counts as halted: when the
// switch state is unknowable, outbound work stays parked.
func (s *KillSwitchService) Halted(ctx context.Context) bool {
	active, err := s.IsActive(ctx)
	if err != nil {
		return true
	}
	return active
}

// Activate turns the switch on. Idempotent; re-activating refreshes the
// reason but keeps the original since timestamp.
func (s *KillSwitchService) Activate(ctx context.Context, reason string) error {
	if reason == "" {
		return NewValidationError("reason", "required")
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE kill_switch
		SET active = TRUE, reason = $1, since = COALESCE(since, now()), updated_at = now()
		WHERE id = 1`, reason)
	if err != nil {
		return fmt.Errorf("failed to activate kill switch: %w", err)
	}
	s.remember(true)
	if s.audit != nil {
		s.audit.Critical(ctx, "kill_switch", "kill switch activated: "+reason)
	}
	return nil
}

// Deactivate turns the switch off and clears the reason.
func (s *KillSwitchService) Deactivate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE kill_switch
		SET active = FALSE, reason = '', since = NULL, updated_at = now()
		WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to deactivate kill switch: %w", err)
	}
	s.remember(false)
	if s.audit != nil {
		s.audit.Info(ctx, "kill_switch", "kill switch deactivated")
	}
	return nil
}

// State returns the full singleton row.
func (s *KillSwitchService) State(ctx context.Context) (*models.KillSwitchState, error) {
	var state models.KillSwitchState
	if err := s.db.GetContext(ctx, &state,
		`SELECT active, reason, since, updated_at FROM kill_switch WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("failed to read kill switch state: %w", err)
	}
	return &state, nil
}

func (s *KillSwitchService) remember(active bool) {
	if s.cacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	s.cached = active
	s.cachedAt = time.Now()
	s.mu.Unlock()
}
