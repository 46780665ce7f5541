package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/showrunner-io/showrunner/pkg/models"
)

const researchColumns = `id, source, source_id, url, title, content, published_at, scraped_at,
	relevance_score, priority, suggested_action, matched_goals, reasoning, summary, evaluated_at`

const digestColumns = `id, kind, scraped, new_items, relevant, alerts, tasks, content, knowledge, errors, run_at`

// validEvaluationActions mirrors the routing arms of the research pipeline.
var validEvaluationActions = map[string]bool{
	"alert":     true,
	"task":      true,
	"content":   true,
	"knowledge": true,
	"watch":     true,
	"ignore":    true,
}

var validEvaluationPriorities = map[string]bool{
	"low":    true,
	"medium": true,
	"high":   true,
}

// ResearchService stores scraped items, their evaluations, and run digests.
// The source_id unique constraint is the dedup memory that survives restarts.
type ResearchService struct {
	db *sqlx.DB
}

func NewResearchService(db *sqlx.DB) *ResearchService {
	if db == nil {
		panic("research service requires a database connection")
	}
	return &ResearchService{db: db}
}

// FilterNew returns the subset of sourceIDs that have never been stored,
// preserving input order and dropping duplicates within the batch.
func (s *ResearchService) FilterNew(ctx context.Context, sourceIDs []string) ([]string, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT source_id FROM research_items WHERE source_id IN (?)`, sourceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build dedup query: %w", err)
	}
	var known []string
	if err := s.db.SelectContext(ctx, &known, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to check known source ids: %w", err)
	}

	seen := make(map[string]bool, len(known))
	for _, id := range known {
		seen[id] = true
	}

	fresh := make([]string, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		fresh = append(fresh, id)
	}
	return fresh, nil
}

// SaveItem stores a scraped item. Returns ErrAlreadyExists when the
// source ID has been seen before.
func (s *ResearchService) SaveItem(ctx context.Context, item *models.ResearchItem) (*models.ResearchItem, error) {
	if item == nil {
		return nil, NewValidationError("item", "required")
	}
	if item.Source == "" {
		return nil, NewValidationError("source", "required")
	}
	if item.SourceID == "" {
		return nil, NewValidationError("source_id", "required")
	}

	var saved models.ResearchItem
	err := s.db.GetContext(ctx, &saved, `
		INSERT INTO research_items (source, source_id, url, title, content, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_id) DO NOTHING
		RETURNING `+researchColumns,
		item.Source, item.SourceID, item.URL, item.Title, item.Content, item.PublishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save research item: %w", err)
	}
	return &saved, nil
}

// SaveItems stores a batch, skipping items already present. Returns the
// number of newly stored rows.
func (s *ResearchService) SaveItems(ctx context.Context, items []*models.ResearchItem) (int, error) {
	saved := 0
	for _, item := range items {
		if _, err := s.SaveItem(ctx, item); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				continue
			}
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// MarkEvaluated records the verdict for a scraped item.
func (s *ResearchService) MarkEvaluated(ctx context.Context, id int64, eval models.Evaluation) (*models.ResearchItem, error) {
	if eval.Relevance < 1 || eval.Relevance > 10 {
		return nil, NewValidationError("relevance_score", "must be between 1 and 10")
	}
	if !validEvaluationActions[eval.SuggestedAction] {
		return nil, NewValidationError("suggested_action", fmt.Sprintf("unknown action %q", eval.SuggestedAction))
	}
	if !validEvaluationPriorities[eval.Priority] {
		return nil, NewValidationError("priority", fmt.Sprintf("unknown priority %q", eval.Priority))
	}

	matched := eval.MatchedGoals
	if matched == nil {
		matched = []string{}
	}
	goalsJSON, err := json.Marshal(matched)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal matched goals: %w", err)
	}

	var item models.ResearchItem
	err = s.db.GetContext(ctx, &item, `
		UPDATE research_items
		SET relevance_score = $2,
		    priority = $3,
		    suggested_action = $4,
		    matched_goals = $5,
		    reasoning = $6,
		    summary = $7,
		    evaluated_at = now()
		WHERE id = $1
		RETURNING `+researchColumns,
		id, eval.Relevance, eval.Priority, eval.SuggestedAction, goalsJSON, eval.Reasoning, eval.Summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark item %d evaluated: %w", id, err)
	}
	return &item, nil
}

// PendingEvaluation returns stored items awaiting a verdict, oldest first.
func (s *ResearchService) PendingEvaluation(ctx context.Context, limit int) ([]*models.ResearchItem, error) {
	limit = normalizeSearchLimit(limit)
	var items []*models.ResearchItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+researchColumns+`
		FROM research_items
		WHERE evaluated_at IS NULL
		ORDER BY scraped_at ASC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	return items, nil
}

// SearchItems runs a full-text search over stored item titles and bodies.
func (s *ResearchService) SearchItems(ctx context.Context, query string, limit int) ([]*models.ResearchItem, error) {
	if query == "" {
		return nil, NewValidationError("query", "required")
	}
	limit = normalizeSearchLimit(limit)

	var items []*models.ResearchItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT `+researchColumns+`
		FROM research_items
		WHERE to_tsvector('english', title || ' ' || content) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(to_tsvector('english', title || ' ' || content), plainto_tsquery('english', $1)) DESC,
			scraped_at DESC
		LIMIT $2`, query, limit)
	if err == nil && len(items) > 0 {
		return items, nil
	}
	if err != nil {
		slog.Debug("Research full-text search failed, falling back to pattern match", "error", err)
	}

	items = nil
	err = s.db.SelectContext(ctx, &items, `
		SELECT `+researchColumns+`
		FROM research_items
		WHERE title ILIKE $1 OR content ILIKE $1
		ORDER BY scraped_at DESC
		LIMIT $2`, likePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search research items: %w", err)
	}
	return items, nil
}

// SaveDigest records the summary counters for one research run.
func (s *ResearchService) SaveDigest(ctx context.Context, digest *models.Digest) (*models.Digest, error) {
	if digest == nil {
		return nil, NewValidationError("digest", "required")
	}
	kind := digest.Kind
	if kind == "" {
		kind = "full"
	}
	errorsJSON := digest.Errors
	if len(errorsJSON) == 0 {
		errorsJSON = json.RawMessage("[]")
	}

	var saved models.Digest
	err := s.db.GetContext(ctx, &saved, `
		INSERT INTO digests (kind, scraped, new_items, relevant, alerts, tasks, content, knowledge, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+digestColumns,
		kind, digest.Scraped, digest.NewItems, digest.Relevant,
		digest.Alerts, digest.Tasks, digest.Content, digest.Knowledge, errorsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to save digest: %w", err)
	}
	return &saved, nil
}

// RecentDigests returns the latest run digests, newest first.
func (s *ResearchService) RecentDigests(ctx context.Context, limit int) ([]*models.Digest, error) {
	limit = normalizeSearchLimit(limit)
	var digests []*models.Digest
	err := s.db.SelectContext(ctx, &digests, `
		SELECT `+digestColumns+`
		FROM digests
		ORDER BY run_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list digests: %w", err)
	}
	return digests, nil
}

// PruneItems deletes evaluated items scraped before the cutoff. Unevaluated
// rows are kept so a stalled evaluator cannot lose work, and recent rows are
// kept because the source_id column is the scraper's dedup memory.
func (s *ResearchService) PruneItems(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM research_items
		WHERE scraped_at < $1 AND evaluated_at IS NOT NULL`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune research items: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// PruneDigests deletes run digests recorded before the cutoff.
func (s *ResearchService) PruneDigests(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM digests WHERE run_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune digests: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
