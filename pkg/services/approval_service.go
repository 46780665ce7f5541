package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/showrunner-io/showrunner/pkg/events"
	"github.com/showrunner-io/showrunner/pkg/metrics"
	"github.com/showrunner-io/showrunner/pkg/models"
)

const approvalColumns = `id, project_id, agent_id, action_type, action_data,
	context_summary, cost_estimate, status, operator_notes,
	created_at, reviewed_at, executed_at`

// ApprovalService is the sole authority on outbound action status.
// All decision transitions are single conditional UPDATE statements against a
// specific id and required current status, so a racing approve and reject can
// never both win: one transitions the row, the other sees zero rows affected.
type ApprovalService struct {
	db        *sqlx.DB
	publisher *events.EventPublisher
}

// NewApprovalService creates a new ApprovalService. publisher may be nil.
func NewApprovalService(db *sqlx.DB, publisher *events.EventPublisher) *ApprovalService {
	if db == nil {
		panic("NewApprovalService: db must not be nil")
	}
	return &ApprovalService{db: db, publisher: publisher}
}

// Submit queues a new action for operator review and returns the stored row.
func (s *ApprovalService) Submit(ctx context.Context, req models.SubmitApprovalRequest) (*models.Approval, error) {
	if req.ProjectID == "" {
		return nil, NewValidationError("project_id", "required")
	}
	if req.AgentID == "" {
		return nil, NewValidationError("agent_id", "required")
	}
	if req.ActionType == "" {
		return nil, NewValidationError("action_type", "required")
	}
	actionData := req.ActionData
	if len(actionData) == 0 {
		actionData = json.RawMessage(`{}`)
	} else if !json.Valid(actionData) {
		return nil, NewValidationError("action_data", "must be valid JSON")
	}

	var approval models.Approval
	err := s.db.GetContext(ctx, &approval,
		`INSERT INTO approvals (project_id, agent_id, action_type, action_data, context_summary, cost_estimate)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+approvalColumns,
		req.ProjectID, req.AgentID, req.ActionType, []byte(actionData), req.ContextSummary, req.CostEstimate)
	if err != nil {
		return nil, fmt.Errorf("failed to submit approval: %w", err)
	}

	s.publishTransition(ctx, events.EventTypeApprovalSubmitted, &approval)
	return &approval, nil
}

// Approve transitions pending to approved and sets reviewed_at.
// Returns ErrStateViolation when the row exists but is no longer pending.
func (s *ApprovalService) Approve(ctx context.Context, id int64, notes string) (*models.Approval, error) {
	return s.decide(ctx, id,
		`UPDATE approvals SET status = 'approved', operator_notes = $2, reviewed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+approvalColumns,
		events.EventTypeApprovalApproved, notes)
}

// EditAndApprove transitions pending to edited, overwriting action_data.
func (s *ApprovalService) EditAndApprove(ctx context.Context, id int64, newActionData json.RawMessage, notes string) (*models.Approval, error) {
	if len(newActionData) == 0 || !json.Valid(newActionData) {
		return nil, NewValidationError("action_data", "must be valid JSON")
	}

	var approval models.Approval
	err := s.db.GetContext(ctx, &approval,
		`UPDATE approvals SET status = 'edited', action_data = $2, operator_notes = $3, reviewed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+approvalColumns,
		id, []byte(newActionData), notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.transitionConflict(ctx, id)
		}
		return nil, fmt.Errorf("failed to edit approval %d: %w", id, err)
	}

	s.publishTransition(ctx, events.EventTypeApprovalEdited, &approval)
	return &approval, nil
}

// Reject transitions pending to rejected.
func (s *ApprovalService) Reject(ctx context.Context, id int64, reason string) (*models.Approval, error) {
	return s.decide(ctx, id,
		`UPDATE approvals SET status = 'rejected', operator_notes = $2, reviewed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+approvalColumns,
		events.EventTypeApprovalRejected, reason)
}

// decide runs a single conditional decision UPDATE and maps the zero-row case.
func (s *ApprovalService) decide(ctx context.Context, id int64, query, eventType, notes string) (*models.Approval, error) {
	var approval models.Approval
	err := s.db.GetContext(ctx, &approval, query, id, notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.transitionConflict(ctx, id)
		}
		return nil, fmt.Errorf("failed to transition approval %d: %w", id, err)
	}

	s.publishTransition(ctx, eventType, &approval)
	return &approval, nil
}

// transitionConflict distinguishes a missing row from a lost race.
func (s *ApprovalService) transitionConflict(ctx context.Context, id int64) error {
	var status string
	err := s.db.GetContext(ctx, &status, `SELECT status FROM approvals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check approval %d: %w", id, err)
	}
	return fmt.Errorf("approval %d is %s: %w", id, status, ErrStateViolation)
}

// MarkExecuted stamps executed_at on an approved or edited row.
// Idempotent: the first call returns true, repeats return false with no error,
// so a crashed executor retrying after restart can never double-execute.
func (s *ApprovalService) MarkExecuted(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET executed_at = now()
		WHERE id = $1 AND executed_at IS NULL AND status IN ('approved', 'edited')`,
		id)
	if err != nil {
		return false, fmt.Errorf("failed to mark approval %d executed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		metrics.ApprovalTransitions.WithLabelValues("executed").Inc()
		if perr := s.publisher.PublishApproval(ctx, events.ApprovalEventPayload{
			Type:       events.EventTypeApprovalExecuted,
			ApprovalID: id,
		}); perr != nil {
			slog.Warn("Failed to publish approval event", "approval_id", id, "error", perr)
		}
		return true, nil
	}

	// Zero rows: either already executed (fine) or not in an executable state.
	var row struct {
		Status     string     `db:"status"`
		ExecutedAt *time.Time `db:"executed_at"`
	}
	err = s.db.GetContext(ctx, &row, `SELECT status, executed_at FROM approvals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check approval %d: %w", id, err)
	}
	if row.ExecutedAt != nil {
		return false, nil
	}
	return false, fmt.Errorf("approval %d is %s, not executable: %w", id, row.Status, ErrStateViolation)
}

// GetPending returns pending rows ordered oldest first.
// An empty projectID returns all projects.
func (s *ApprovalService) GetPending(ctx context.Context, projectID string) ([]models.Approval, error) {
	var approvals []models.Approval
	var err error
	if projectID == "" {
		err = s.db.SelectContext(ctx, &approvals,
			`SELECT `+approvalColumns+` FROM approvals
			WHERE status = 'pending' ORDER BY created_at ASC`)
	} else {
		err = s.db.SelectContext(ctx, &approvals,
			`SELECT `+approvalColumns+` FROM approvals
			WHERE status = 'pending' AND project_id = $1 ORDER BY created_at ASC`,
			projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	return approvals, nil
}

// List returns rows filtered by project and status, newest first. Empty
// filters match everything. Limit is capped at 200.
func (s *ApprovalService) List(ctx context.Context, projectID string, status models.ApprovalStatus, limit int) ([]models.Approval, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE 1=1`
	args := []any{}
	if projectID != "" {
		args = append(args, projectID)
		query += fmt.Sprintf(" AND project_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	approvals := []models.Approval{}
	if err := s.db.SelectContext(ctx, &approvals, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return approvals, nil
}

// GetByID returns the full row or ErrNotFound.
func (s *ApprovalService) GetByID(ctx context.Context, id int64) (*models.Approval, error) {
	var approval models.Approval
	err := s.db.GetContext(ctx, &approval,
		`SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval %d: %w", id, err)
	}
	return &approval, nil
}

// GetApprovedUnexecuted returns decided-but-unexecuted rows, oldest decision
// first. The startup recovery sweep re-queues these for execution.
func (s *ApprovalService) GetApprovedUnexecuted(ctx context.Context) ([]models.Approval, error) {
	var approvals []models.Approval
	err := s.db.SelectContext(ctx, &approvals,
		`SELECT `+approvalColumns+` FROM approvals
		WHERE status IN ('approved', 'edited') AND executed_at IS NULL
		ORDER BY reviewed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved unexecuted approvals: %w", err)
	}
	return approvals, nil
}

// GetLastExecuted returns the most recently executed row of the given action
// type, or nil when none exists. Executors use it for content dedup.
func (s *ApprovalService) GetLastExecuted(ctx context.Context, actionType string) (*models.Approval, error) {
	var approval models.Approval
	err := s.db.GetContext(ctx, &approval,
		`SELECT `+approvalColumns+` FROM approvals
		WHERE action_type = $1 AND executed_at IS NOT NULL
		ORDER BY executed_at DESC LIMIT 1`,
		actionType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last executed %s: %w", actionType, err)
	}
	return &approval, nil
}

// ExpireOld expires pending rows older than maxAge and returns the count.
func (s *ApprovalService) ExpireOld(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	rows, err := s.db.QueryContext(ctx,
		`UPDATE approvals SET status = 'expired', reviewed_at = now()
		WHERE status = 'pending' AND created_at < $1
		RETURNING id, project_id, action_type`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire approvals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		var (
			id                    int64
			projectID, actionType string
		)
		if err := rows.Scan(&id, &projectID, &actionType); err != nil {
			return count, fmt.Errorf("failed to scan expired approval: %w", err)
		}
		count++
		metrics.ApprovalTransitions.WithLabelValues("expired").Inc()
		if perr := s.publisher.PublishApproval(ctx, events.ApprovalEventPayload{
			Type:       events.EventTypeApprovalExpired,
			ApprovalID: id,
			ProjectID:  projectID,
			ActionType: actionType,
			Status:     string(models.ApprovalExpired),
		}); perr != nil {
			slog.Warn("Failed to publish approval event", "approval_id", id, "error", perr)
		}
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("failed to read expired approvals: %w", err)
	}
	return count, nil
}

// GetStats returns counts grouped by status plus the executed total.
// An empty projectID aggregates all projects.
func (s *ApprovalService) GetStats(ctx context.Context, projectID string) (*models.ApprovalStats, error) {
	query := `SELECT
		COUNT(*) FILTER (WHERE status = 'pending') AS pending,
		COUNT(*) FILTER (WHERE status = 'approved') AS approved,
		COUNT(*) FILTER (WHERE status = 'rejected') AS rejected,
		COUNT(*) FILTER (WHERE status = 'edited') AS edited,
		COUNT(*) FILTER (WHERE status = 'expired') AS expired,
		COUNT(*) FILTER (WHERE executed_at IS NOT NULL) AS executed
	FROM approvals`

	var stats models.ApprovalStats
	var err error
	if projectID == "" {
		err = s.db.GetContext(ctx, &stats, query)
	} else {
		err = s.db.GetContext(ctx, &stats, query+` WHERE project_id = $1`, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval stats: %w", err)
	}
	return &stats, nil
}

// publishTransition records the metric and best-effort publishes the event.
func (s *ApprovalService) publishTransition(ctx context.Context, eventType string, a *models.Approval) {
	metrics.ApprovalTransitions.WithLabelValues(string(a.Status)).Inc()
	if err := s.publisher.PublishApproval(ctx, events.ApprovalEventPayload{
		Type:       eventType,
		ApprovalID: a.ID,
		ProjectID:  a.ProjectID,
		ActionType: a.ActionType,
		Status:     string(a.Status),
	}); err != nil {
		slog.Warn("Failed to publish approval event", "approval_id", a.ID, "error", err)
	}
}

// FormatPreview renders an operator-facing summary of a queued action.
// Purely derived from the row; no I/O.
func FormatPreview(a *models.Approval) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[#%d] %s from %s", a.ID, a.ActionType, a.AgentID)
	if a.CostEstimate > 0 {
		fmt.Fprintf(&b, " (est $%.2f)", a.CostEstimate)
	}
	if a.ContextSummary != "" {
		b.WriteString("\n")
		b.WriteString(a.ContextSummary)
	}
	if text := actionText(a.ActionData); text != "" {
		fmt.Fprintf(&b, "\n%q", truncateRunes(text, 240))
	}
	return b.String()
}

// actionText pulls the primary text field out of an action payload.
func actionText(data json.RawMessage) string {
	var payload struct {
		Text    string `json:"text"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if payload.Text != "" {
		return payload.Text
	}
	return payload.Content
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
