package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// BudgetLimits caps model spend in USD. A zero limit means unlimited.
type BudgetLimits struct {
	DailyUSD   float64
	MonthlyUSD float64
}

// BudgetUsage is the current spend position for a project.
type BudgetUsage struct {
	ProjectID    string  `json:"project_id"`
	DailyUSD     float64 `json:"daily_usd"`
	MonthlyUSD   float64 `json:"monthly_usd"`
	DailyLimit   float64 `json:"daily_limit"`
	MonthlyLimit float64 `json:"monthly_limit"`
}

// BudgetService accumulates per-project model spend by day and answers the
// router's CanSpend check. Spend is recorded after each call, so a project
// can overshoot by at most one call before being cut off.
type BudgetService struct {
	db     *sqlx.DB
	limits BudgetLimits
}

// NewBudgetService creates a new BudgetService.
func NewBudgetService(db *sqlx.DB, limits BudgetLimits) *BudgetService {
	if db == nil {
		panic("NewBudgetService: db must not be nil")
	}
	return &BudgetService{db: db, limits: limits}
}

// RecordSpend adds one call's tokens and cost to today's row for the project.
func (s *BudgetService) RecordSpend(ctx context.Context, projectID string, inputTokens, outputTokens int64, costUSD float64) error {
	if projectID == "" {
		return NewValidationError("project_id", "required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_spend (project_id, day, input_tokens, output_tokens, cost_usd)
		VALUES ($1, CURRENT_DATE, $2, $3, $4)
		ON CONFLICT (project_id, day) DO UPDATE SET
			input_tokens = budget_spend.input_tokens + EXCLUDED.input_tokens,
			output_tokens = budget_spend.output_tokens + EXCLUDED.output_tokens,
			cost_usd = budget_spend.cost_usd + EXCLUDED.cost_usd,
			updated_at = now()`,
		projectID, inputTokens, outputTokens, costUSD)
	if err != nil {
		return fmt.Errorf("failed to record spend for %s: %w", projectID, err)
	}
	return nil
}

// CanSpend reports whether the project is still under both limits.
func (s *BudgetService) CanSpend(ctx context.Context, projectID string) (bool, error) {
	if s.limits.DailyUSD <= 0 && s.limits.MonthlyUSD <= 0 {
		return true, nil
	}
	usage, err := s.Usage(ctx, projectID)
	if err != nil {
		return false, err
	}
	if s.limits.DailyUSD > 0 && usage.DailyUSD >= s.limits.DailyUSD {
		return false, nil
	}
	if s.limits.MonthlyUSD > 0 && usage.MonthlyUSD >= s.limits.MonthlyUSD {
		return false, nil
	}
	return true, nil
}

// Usage returns today's and this month's accumulated cost for the project.
func (s *BudgetService) Usage(ctx context.Context, projectID string) (*BudgetUsage, error) {
	usage := &BudgetUsage{
		ProjectID:    projectID,
		DailyLimit:   s.limits.DailyUSD,
		MonthlyLimit: s.limits.MonthlyUSD,
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(cost_usd) FILTER (WHERE day = CURRENT_DATE), 0),
			COALESCE(SUM(cost_usd), 0)
		FROM budget_spend
		WHERE project_id = $1 AND day >= date_trunc('month', CURRENT_DATE)`,
		projectID).Scan(&usage.DailyUSD, &usage.MonthlyUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to read spend for %s: %w", projectID, err)
	}
	return usage, nil
}
