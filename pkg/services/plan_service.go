package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/showrunner-io/showrunner/pkg/models"
)

const planColumns = `schedule_date, planned_count, slot_times, created_at`

// PlanService stores the posting slots chosen for each calendar date.
// One plan per date; the first writer wins so replanning a day that was
// already planned is a no-op.
type PlanService struct {
	db *sqlx.DB
}

func NewPlanService(db *sqlx.DB) *PlanService {
	if db == nil {
		panic("plan service requires a database connection")
	}
	return &PlanService{db: db}
}

// SavePlan records the slots for a date. When a plan already exists the
// stored plan is returned unchanged and created is false.
func (s *PlanService) SavePlan(ctx context.Context, date time.Time, slots []time.Time) (*models.DailyPlan, bool, error) {
	if len(slots) == 0 {
		return nil, false, NewValidationError("slots", "at least one slot is required")
	}

	encoded := make([]string, len(slots))
	for i, slot := range slots {
		encoded[i] = slot.Format(time.RFC3339)
	}
	slotsJSON, err := json.Marshal(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal slots: %w", err)
	}

	var plan models.DailyPlan
	err = s.db.GetContext(ctx, &plan, `
		INSERT INTO daily_plans (schedule_date, planned_count, slot_times)
		VALUES ($1::date, $2, $3)
		ON CONFLICT (schedule_date) DO NOTHING
		RETURNING `+planColumns,
		date.Format("2006-01-02"), len(slots), slotsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := s.PlanForDate(ctx, date)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to save plan: %w", err)
	}
	return &plan, true, nil
}

// PlanForDate returns the stored plan for one calendar date.
func (s *PlanService) PlanForDate(ctx context.Context, date time.Time) (*models.DailyPlan, error) {
	var plan models.DailyPlan
	err := s.db.GetContext(ctx, &plan, `
		SELECT `+planColumns+`
		FROM daily_plans
		WHERE schedule_date = $1::date`, date.Format("2006-01-02"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

// Prune deletes plans for dates before the cutoff.
func (s *PlanService) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM daily_plans WHERE schedule_date < $1::date`, olderThan.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to prune plans: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
