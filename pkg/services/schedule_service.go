package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/showrunner-io/showrunner/pkg/events"
	"github.com/showrunner-io/showrunner/pkg/metrics"
	"github.com/showrunner-io/showrunner/pkg/models"
)

const scheduleColumns = `job_id, content_type, content_data, scheduled_time,
	status, result, created_at, executed_at, claimed_at, claimed_by`

// ScheduleRequest contains fields for scheduling a content job.
// JobID is generated when empty.
type ScheduleRequest struct {
	JobID         string          `json:"job_id"`
	ContentType   string          `json:"content_type"`
	ContentData   json.RawMessage `json:"content_data"`
	ScheduledTime time.Time       `json:"scheduled_time"`
}

// ScheduleService is the durable store behind the content scheduler.
//
// A due row is handed to exactly one executor via ClaimNextDue: a single
// UPDATE whose SKIP LOCKED subquery picks the oldest due pending row. The
// row's status stays pending while claimed, so a crash mid-execution leaves
// a claimed pending row that the startup sweep (or the stale-claim predicate)
// re-arms instead of losing or double-running it.
type ScheduleService struct {
	db        *sqlx.DB
	publisher *events.EventPublisher
}

// NewScheduleService creates a new ScheduleService. publisher may be nil.
func NewScheduleService(db *sqlx.DB, publisher *events.EventPublisher) *ScheduleService {
	if db == nil {
		panic("NewScheduleService: db must not be nil")
	}
	return &ScheduleService{db: db, publisher: publisher}
}

// Schedule persists a job row. Re-scheduling onto a terminal job id replaces
// the row (the planner re-plans the same slot ids daily); a live pending id
// returns ErrAlreadyExists.
func (s *ScheduleService) Schedule(ctx context.Context, req ScheduleRequest) (*models.ScheduledContent, error) {
	if req.ContentType == "" {
		return nil, NewValidationError("content_type", "required")
	}
	if req.ScheduledTime.IsZero() {
		return nil, NewValidationError("scheduled_time", "required")
	}
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}
	contentData := req.ContentData
	if len(contentData) == 0 {
		contentData = json.RawMessage(`{}`)
	} else if !json.Valid(contentData) {
		return nil, NewValidationError("content_data", "must be valid JSON")
	}

	var job models.ScheduledContent
	err := s.db.GetContext(ctx, &job,
		`INSERT INTO scheduled_content (job_id, content_type, content_data, scheduled_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE SET
			content_type = EXCLUDED.content_type,
			content_data = EXCLUDED.content_data,
			scheduled_time = EXCLUDED.scheduled_time,
			status = 'pending',
			result = '',
			created_at = now(),
			executed_at = NULL,
			claimed_at = NULL,
			claimed_by = ''
		WHERE scheduled_content.status IN ('executed', 'failed', 'cancelled')
		RETURNING `+scheduleColumns,
		jobID, req.ContentType, []byte(contentData), req.ScheduledTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s is still pending: %w", jobID, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to schedule job %s: %w", jobID, err)
	}

	if perr := s.publisher.PublishSchedule(ctx, events.ScheduleEventPayload{
		Type:        events.EventTypeScheduleCreated,
		JobID:       job.JobID,
		ContentType: job.ContentType,
	}); perr != nil {
		slog.Warn("Failed to publish schedule event", "job_id", job.JobID, "error", perr)
	}
	return &job, nil
}

// Cancel marks a pending, unclaimed job cancelled.
func (s *ScheduleService) Cancel(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_content SET status = 'cancelled'
		WHERE job_id = $1 AND status = 'pending' AND claimed_at IS NULL`,
		jobID)
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return s.jobConflict(ctx, jobID)
	}

	metrics.ScheduleOutcomes.WithLabelValues("cancelled").Inc()
	if perr := s.publisher.PublishSchedule(ctx, events.ScheduleEventPayload{
		Type:  events.EventTypeScheduleCancelled,
		JobID: jobID,
	}); perr != nil {
		slog.Warn("Failed to publish schedule event", "job_id", jobID, "error", perr)
	}
	return nil
}

// Reschedule moves a pending, unclaimed job to a new time.
func (s *ScheduleService) Reschedule(ctx context.Context, jobID string, newTime time.Time) error {
	if newTime.IsZero() {
		return NewValidationError("scheduled_time", "required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_content SET scheduled_time = $2
		WHERE job_id = $1 AND status = 'pending' AND claimed_at IS NULL`,
		jobID, newTime)
	if err != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return s.jobConflict(ctx, jobID)
	}
	return nil
}

// jobConflict distinguishes a missing job from one no longer schedulable.
func (s *ScheduleService) jobConflict(ctx context.Context, jobID string) error {
	var status string
	err := s.db.GetContext(ctx, &status,
		`SELECT status FROM scheduled_content WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check job %s: %w", jobID, err)
	}
	return fmt.Errorf("job %s is %s or claimed: %w", jobID, status, ErrStateViolation)
}

// GetByID returns the full row or ErrNotFound.
func (s *ScheduleService) GetByID(ctx context.Context, jobID string) (*models.ScheduledContent, error) {
	var job models.ScheduledContent
	err := s.db.GetContext(ctx, &job,
		`SELECT `+scheduleColumns+` FROM scheduled_content WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return &job, nil
}

// GetPending returns all pending jobs in scheduled order.
func (s *ScheduleService) GetPending(ctx context.Context) ([]models.ScheduledContent, error) {
	var jobs []models.ScheduledContent
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT `+scheduleColumns+` FROM scheduled_content
		WHERE status = 'pending' ORDER BY scheduled_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	return jobs, nil
}

// GetUpcoming returns pending jobs due within the window.
func (s *ScheduleService) GetUpcoming(ctx context.Context, window time.Duration) ([]models.ScheduledContent, error) {
	var jobs []models.ScheduledContent
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT `+scheduleColumns+` FROM scheduled_content
		WHERE status = 'pending' AND scheduled_time <= $1
		ORDER BY scheduled_time ASC`,
		time.Now().Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to list upcoming jobs: %w", err)
	}
	return jobs, nil
}

// ClaimNextDue atomically claims the oldest due pending job for the given
// instance. Returns nil when nothing is due. A claim older than staleAfter is
// treated as abandoned and re-claimable, covering executors that died without
// reporting back.
func (s *ScheduleService) ClaimNextDue(ctx context.Context, instance string, staleAfter time.Duration) (*models.ScheduledContent, error) {
	staleCutoff := time.Now().Add(-staleAfter)

	var job models.ScheduledContent
	err := s.db.GetContext(ctx, &job,
		`UPDATE scheduled_content SET claimed_at = now(), claimed_by = $1
		WHERE job_id = (
			SELECT job_id FROM scheduled_content
			WHERE status = 'pending'
			  AND scheduled_time <= now()
			  AND (claimed_at IS NULL OR claimed_at < $2)
			ORDER BY scheduled_time ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+scheduleColumns,
		instance, staleCutoff)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim next due job: %w", err)
	}
	return &job, nil
}

// Complete marks a claimed job executed with its serialized result.
func (s *ScheduleService) Complete(ctx context.Context, jobID, result string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_content
		SET status = 'executed', executed_at = now(), result = $2, claimed_at = NULL, claimed_by = ''
		WHERE job_id = $1 AND status = 'pending'`,
		jobID, result)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return s.jobConflict(ctx, jobID)
	}

	metrics.ScheduleOutcomes.WithLabelValues("executed").Inc()
	if perr := s.publisher.PublishSchedule(ctx, events.ScheduleEventPayload{
		Type:   events.EventTypeScheduleFired,
		JobID:  jobID,
		Detail: truncateRunes(result, 200),
	}); perr != nil {
		slog.Warn("Failed to publish schedule event", "job_id", jobID, "error", perr)
	}
	return nil
}

// Fail marks a claimed job failed with the error text. Failed jobs are not
// retried automatically.
func (s *ScheduleService) Fail(ctx context.Context, jobID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_content
		SET status = 'failed', executed_at = now(), result = $2, claimed_at = NULL, claimed_by = ''
		WHERE job_id = $1 AND status = 'pending'`,
		jobID, reason)
	if err != nil {
		return fmt.Errorf("failed to fail job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return s.jobConflict(ctx, jobID)
	}

	metrics.ScheduleOutcomes.WithLabelValues("failed").Inc()
	if perr := s.publisher.PublishSchedule(ctx, events.ScheduleEventPayload{
		Type:   events.EventTypeScheduleFailed,
		JobID:  jobID,
		Detail: truncateRunes(reason, 200),
	}); perr != nil {
		slog.Warn("Failed to publish schedule event", "job_id", jobID, "error", perr)
	}
	return nil
}

// ReleaseStartupClaims clears claims left behind by a previous process.
// Called once at boot before the poll loop starts; the affected rows are
// still pending and fire on the first poll.
func (s *ScheduleService) ReleaseStartupClaims(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_content SET claimed_at = NULL, claimed_by = ''
		WHERE status = 'pending' AND claimed_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to release startup claims: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(n), nil
}
