package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/showrunner-io/showrunner/pkg/modelrouter"
	"github.com/showrunner-io/showrunner/pkg/models"
)

const (
	personColumns    = `id, name, handle, relationship, notes, interaction_count, first_seen, last_interaction_at`
	knowledgeColumns = `id, topic, content, category, source, created_at`
	eventColumns     = `id, title, summary, category, significance, recall_strength, created_at, last_decayed_at`
	goalColumns      = `id, title, description, priority, status, created_at, updated_at`
)

// Decay tuning. Only events fade; people, knowledge and goals are durable.
const (
	recallFloor            = 0.15
	significantRecallFloor = 0.5
	significantThreshold   = 8
	maxEventAgeDays        = 365
	defaultDecayFactor     = 0.95
)

// categoryDecayFactors are per-category daily multipliers. Milestones fade
// slowest, routine interactions fastest.
var categoryDecayFactors = map[string]float64{
	"milestone":   0.99,
	"feedback":    0.97,
	"general":     0.95,
	"interaction": 0.93,
}

// CheapCompleter is the slice of the model router used for goal detection.
// Kept narrow so tests can stub it without an API client.
type CheapCompleter interface {
	CompleteCheap(ctx context.Context, system, prompt string) (string, error)
}

// DecayStats reports what one decay pass did.
type DecayStats struct {
	Decayed int `json:"decayed"`
	Clamped int `json:"clamped"`
	Pruned  int `json:"pruned"`
}

// MemoryService owns the four memory stores: people, knowledge, events and
// goals. Search is Postgres full-text with an ILIKE fallback, so a query of
// stopwords or a partial word still recalls something.
type MemoryService struct {
	db        *sqlx.DB
	completer CheapCompleter
}

// NewMemoryService creates a new MemoryService. completer may be nil, which
// turns DetectAndStoreGoal into a no-op.
func NewMemoryService(db *sqlx.DB, completer CheapCompleter) *MemoryService {
	if db == nil {
		panic("NewMemoryService: db must not be nil")
	}
	return &MemoryService{db: db, completer: completer}
}

// --- People ---

// AddPerson inserts a new relationship record. Names are unique; adding a
// known name returns ErrAlreadyExists.
func (s *MemoryService) AddPerson(ctx context.Context, name, handle, relationship, notes string) (*models.Person, error) {
	if name == "" {
		return nil, NewValidationError("name", "required")
	}
	var person models.Person
	err := s.db.GetContext(ctx, &person,
		`INSERT INTO people (name, handle, relationship, notes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
		RETURNING `+personColumns,
		name, handle, relationship, notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person %q: %w", name, ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add person: %w", err)
	}
	return &person, nil
}

// GetPerson looks a person up by exact name.
func (s *MemoryService) GetPerson(ctx context.Context, name string) (*models.Person, error) {
	var person models.Person
	err := s.db.GetContext(ctx, &person,
		`SELECT `+personColumns+` FROM people WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("person %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return &person, nil
}

// RecordInteraction upserts a person by name, bumps the interaction count
// and appends the note. Empty fields never overwrite known values.
func (s *MemoryService) RecordInteraction(ctx context.Context, name, handle, relationship, note string) (*models.Person, error) {
	if name == "" {
		return nil, NewValidationError("name", "required")
	}
	var person models.Person
	err := s.db.GetContext(ctx, &person,
		`INSERT INTO people (name, handle, relationship, notes, interaction_count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (name) DO UPDATE SET
			interaction_count = people.interaction_count + 1,
			last_interaction_at = now(),
			handle = CASE WHEN EXCLUDED.handle <> '' THEN EXCLUDED.handle ELSE people.handle END,
			relationship = CASE WHEN EXCLUDED.relationship <> '' THEN EXCLUDED.relationship ELSE people.relationship END,
			notes = CASE
				WHEN EXCLUDED.notes = '' THEN people.notes
				WHEN people.notes = '' THEN EXCLUDED.notes
				ELSE left(people.notes || E'\n' || EXCLUDED.notes, 4000)
			END
		RETURNING `+personColumns,
		name, handle, relationship, note)
	if err != nil {
		return nil, fmt.Errorf("failed to record interaction with %q: %w", name, err)
	}
	return &person, nil
}

// SearchPeople searches names and notes.
func (s *MemoryService) SearchPeople(ctx context.Context, query string, limit int) ([]*models.Person, error) {
	limit = normalizeSearchLimit(limit)
	people := []*models.Person{}

	err := s.db.SelectContext(ctx, &people,
		`SELECT `+personColumns+` FROM people
		WHERE to_tsvector('english', name || ' ' || notes) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(to_tsvector('english', name || ' ' || notes), plainto_tsquery('english', $1)) DESC,
			last_interaction_at DESC
		LIMIT $2`, query, limit)
	if err == nil && len(people) > 0 {
		return people, nil
	}
	if err != nil {
		slog.Debug("People FTS failed, falling back to ILIKE", "query", query, "error", err)
	}

	people = []*models.Person{}
	err = s.db.SelectContext(ctx, &people,
		`SELECT `+personColumns+` FROM people
		WHERE name ILIKE $1 OR handle ILIKE $1 OR notes ILIKE $1
		ORDER BY last_interaction_at DESC
		LIMIT $2`, likePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search people: %w", err)
	}
	return people, nil
}

// --- Knowledge ---

// AddKnowledge stores a durable fact.
func (s *MemoryService) AddKnowledge(ctx context.Context, topic, content, category, source string) (*models.Knowledge, error) {
	if topic == "" {
		return nil, NewValidationError("topic", "required")
	}
	if content == "" {
		return nil, NewValidationError("content", "required")
	}
	var k models.Knowledge
	err := s.db.GetContext(ctx, &k,
		`INSERT INTO knowledge (topic, content, category, source)
		VALUES ($1, $2, $3, $4)
		RETURNING `+knowledgeColumns,
		topic, content, category, source)
	if err != nil {
		return nil, fmt.Errorf("failed to add knowledge: %w", err)
	}
	return &k, nil
}

// SearchKnowledge searches topics and content.
func (s *MemoryService) SearchKnowledge(ctx context.Context, query string, limit int) ([]*models.Knowledge, error) {
	limit = normalizeSearchLimit(limit)
	items := []*models.Knowledge{}

	err := s.db.SelectContext(ctx, &items,
		`SELECT `+knowledgeColumns+` FROM knowledge
		WHERE to_tsvector('english', topic || ' ' || content) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(to_tsvector('english', topic || ' ' || content), plainto_tsquery('english', $1)) DESC,
			created_at DESC
		LIMIT $2`, query, limit)
	if err == nil && len(items) > 0 {
		return items, nil
	}
	if err != nil {
		slog.Debug("Knowledge FTS failed, falling back to ILIKE", "query", query, "error", err)
	}

	items = []*models.Knowledge{}
	err = s.db.SelectContext(ctx, &items,
		`SELECT `+knowledgeColumns+` FROM knowledge
		WHERE topic ILIKE $1 OR content ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2`, likePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge: %w", err)
	}
	return items, nil
}

// --- Events ---

// AddEvent stores an episodic memory. significance 0 defaults to 5.
func (s *MemoryService) AddEvent(ctx context.Context, title, summary, category string, significance int) (*models.Event, error) {
	if title == "" {
		return nil, NewValidationError("title", "required")
	}
	if significance == 0 {
		significance = 5
	}
	if significance < 1 || significance > 10 {
		return nil, NewValidationError("significance", "must be between 1 and 10")
	}
	if category == "" {
		category = "general"
	}
	var event models.Event
	err := s.db.GetContext(ctx, &event,
		`INSERT INTO events (title, summary, category, significance)
		VALUES ($1, $2, $3, $4)
		RETURNING `+eventColumns,
		title, summary, category, significance)
	if err != nil {
		return nil, fmt.Errorf("failed to add event: %w", err)
	}
	return &event, nil
}

// SearchEvents searches titles and summaries; stronger memories rank first.
func (s *MemoryService) SearchEvents(ctx context.Context, query string, limit int) ([]*models.Event, error) {
	limit = normalizeSearchLimit(limit)
	events := []*models.Event{}

	err := s.db.SelectContext(ctx, &events,
		`SELECT `+eventColumns+` FROM events
		WHERE to_tsvector('english', title || ' ' || summary) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(to_tsvector('english', title || ' ' || summary), plainto_tsquery('english', $1)) DESC,
			recall_strength DESC
		LIMIT $2`, query, limit)
	if err == nil && len(events) > 0 {
		return events, nil
	}
	if err != nil {
		slog.Debug("Events FTS failed, falling back to ILIKE", "query", query, "error", err)
	}

	events = []*models.Event{}
	err = s.db.SelectContext(ctx, &events,
		`SELECT `+eventColumns+` FROM events
		WHERE title ILIKE $1 OR summary ILIKE $1
		ORDER BY recall_strength DESC, created_at DESC
		LIMIT $2`, likePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}
	return events, nil
}

// DecayMemories applies the daily decay to every event, clamps significant
// ones to their floor, and prunes what has faded out or aged past a year.
// Called once per boot; catch-up for downtime comes from raising the factor
// to the number of elapsed days since each row was last decayed.
func (s *MemoryService) DecayMemories(ctx context.Context) (*DecayStats, error) {
	stats := &DecayStats{}

	categories := make([]string, 0, len(categoryDecayFactors))
	for category, factor := range categoryDecayFactors {
		res, err := s.db.ExecContext(ctx,
			`UPDATE events
			SET recall_strength = recall_strength * power($1, (CURRENT_DATE - last_decayed_at)),
				last_decayed_at = CURRENT_DATE
			WHERE category = $2 AND last_decayed_at < CURRENT_DATE`,
			factor, category)
		if err != nil {
			return nil, fmt.Errorf("failed to decay %s events: %w", category, err)
		}
		n, _ := res.RowsAffected()
		stats.Decayed += int(n)
		categories = append(categories, category)
	}

	query, args, err := sqlx.In(
		`UPDATE events
		SET recall_strength = recall_strength * power(?, (CURRENT_DATE - last_decayed_at)),
			last_decayed_at = CURRENT_DATE
		WHERE category NOT IN (?) AND last_decayed_at < CURRENT_DATE`,
		defaultDecayFactor, categories)
	if err != nil {
		return nil, fmt.Errorf("failed to build catch-all decay query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to decay uncategorized events: %w", err)
	}
	n, _ := res.RowsAffected()
	stats.Decayed += int(n)

	res, err = s.db.ExecContext(ctx,
		`UPDATE events SET recall_strength = $1
		WHERE significance >= $2 AND recall_strength < $1`,
		significantRecallFloor, significantThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to clamp significant events: %w", err)
	}
	n, _ = res.RowsAffected()
	stats.Clamped = int(n)

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM events
		WHERE (recall_strength < $1 AND significance < $2)
			OR created_at < now() - ($3 * interval '1 day')`,
		recallFloor, significantThreshold, maxEventAgeDays)
	if err != nil {
		return nil, fmt.Errorf("failed to prune faded events: %w", err)
	}
	n, _ = res.RowsAffected()
	stats.Pruned = int(n)

	slog.Info("Memory decay complete",
		"decayed", stats.Decayed, "clamped", stats.Clamped, "pruned", stats.Pruned)
	return stats, nil
}

// --- Goals ---

// AddGoal stores a new active goal. priority 0 defaults to 5.
func (s *MemoryService) AddGoal(ctx context.Context, title, description string, priority int) (*models.Goal, error) {
	if title == "" {
		return nil, NewValidationError("title", "required")
	}
	if priority == 0 {
		priority = 5
	}
	if priority < 1 || priority > 10 {
		return nil, NewValidationError("priority", "must be between 1 and 10")
	}
	var goal models.Goal
	err := s.db.GetContext(ctx, &goal,
		`INSERT INTO goals (title, description, priority)
		VALUES ($1, $2, $3)
		RETURNING `+goalColumns,
		title, description, priority)
	if err != nil {
		return nil, fmt.Errorf("failed to add goal: %w", err)
	}
	return &goal, nil
}

// ActiveGoals returns active goals, highest priority first. This list drives
// the research keyword pre-filter.
func (s *MemoryService) ActiveGoals(ctx context.Context) ([]*models.Goal, error) {
	goals := []*models.Goal{}
	err := s.db.SelectContext(ctx, &goals,
		`SELECT `+goalColumns+` FROM goals
		WHERE status = 'active'
		ORDER BY priority DESC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active goals: %w", err)
	}
	return goals, nil
}

// CompleteGoal marks a goal completed.
func (s *MemoryService) CompleteGoal(ctx context.Context, id int64) (*models.Goal, error) {
	return s.setGoalStatus(ctx, id, models.GoalCompleted)
}

// ArchiveGoal marks a goal archived.
func (s *MemoryService) ArchiveGoal(ctx context.Context, id int64) (*models.Goal, error) {
	return s.setGoalStatus(ctx, id, models.GoalArchived)
}

func (s *MemoryService) setGoalStatus(ctx context.Context, id int64, status models.GoalStatus) (*models.Goal, error) {
	var goal models.Goal
	err := s.db.GetContext(ctx, &goal,
		`UPDATE goals SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+goalColumns,
		id, status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set goal %d to %s: %w", id, status, err)
	}
	return &goal, nil
}

// SearchGoals searches titles and descriptions across all statuses.
func (s *MemoryService) SearchGoals(ctx context.Context, query string, limit int) ([]*models.Goal, error) {
	limit = normalizeSearchLimit(limit)
	goals := []*models.Goal{}

	err := s.db.SelectContext(ctx, &goals,
		`SELECT `+goalColumns+` FROM goals
		WHERE to_tsvector('english', title || ' ' || description) @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(to_tsvector('english', title || ' ' || description), plainto_tsquery('english', $1)) DESC,
			priority DESC
		LIMIT $2`, query, limit)
	if err == nil && len(goals) > 0 {
		return goals, nil
	}
	if err != nil {
		slog.Debug("Goals FTS failed, falling back to ILIKE", "query", query, "error", err)
	}

	goals = []*models.Goal{}
	err = s.db.SelectContext(ctx, &goals,
		`SELECT `+goalColumns+` FROM goals
		WHERE title ILIKE $1 OR description ILIKE $1
		ORDER BY priority DESC, created_at DESC
		LIMIT $2`, likePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search goals: %w", err)
	}
	return goals, nil
}

const goalDetectSystem = `You classify operator messages for an autonomous social media agent's memory.
Decide whether the message states a goal (something to pursue), a fact (something to remember), or neither.
Respond with only a JSON object: {"kind": "goal"|"fact"|"neither", "title": "...", "detail": "...", "priority": 1-10}.
Keep the title under 80 characters. priority applies to goals only.`

// DetectAndStoreGoal classifies a free-text operator message and stores it
// as a goal or knowledge item. Best-effort enrichment: an unconfigured or
// failing model call silently stores nothing and returns kind "".
func (s *MemoryService) DetectAndStoreGoal(ctx context.Context, message string) (string, error) {
	if message == "" {
		return "", NewValidationError("message", "required")
	}
	if s.completer == nil {
		return "", nil
	}

	raw, err := s.completer.CompleteCheap(ctx, goalDetectSystem, "Message:\n"+message)
	if err != nil {
		slog.Warn("Goal detection call failed", "error", err)
		return "", nil
	}

	var result struct {
		Kind     string `json:"kind"`
		Title    string `json:"title"`
		Detail   string `json:"detail"`
		Priority int    `json:"priority"`
	}
	if err := modelrouter.ExtractJSON(raw, &result); err != nil {
		slog.Warn("Goal detection returned unparseable output", "error", err)
		return "", nil
	}

	title := result.Title
	if title == "" {
		title = truncateRunes(message, 80)
	}
	detail := result.Detail
	if detail == "" {
		detail = message
	}

	switch result.Kind {
	case "goal":
		if _, err := s.AddGoal(ctx, title, detail, result.Priority); err != nil {
			slog.Warn("Failed to store detected goal", "title", title, "error", err)
			return "", nil
		}
		return "goal", nil
	case "fact":
		if _, err := s.AddKnowledge(ctx, title, detail, "observation", "operator"); err != nil {
			slog.Warn("Failed to store detected fact", "topic", title, "error", err)
			return "", nil
		}
		return "fact", nil
	default:
		return "neither", nil
	}
}

// --- Cross-store ---

// GetContext assembles a prompt-injection block about a topic from all four
// stores. Empty sections are omitted; an empty result means the system knows
// nothing relevant.
func (s *MemoryService) GetContext(ctx context.Context, topic string) (string, error) {
	var b strings.Builder

	people, err := s.SearchPeople(ctx, topic, 5)
	if err != nil {
		return "", err
	}
	if len(people) > 0 {
		b.WriteString("## People\n")
		for _, p := range people {
			fmt.Fprintf(&b, "- %s", p.Name)
			if p.Handle != "" {
				fmt.Fprintf(&b, " (@%s)", p.Handle)
			}
			if p.Relationship != "" {
				fmt.Fprintf(&b, " [%s]", p.Relationship)
			}
			fmt.Fprintf(&b, ": %d interactions, last %s",
				p.InteractionCount, p.LastInteractionAt.Format("2006-01-02"))
			if p.Notes != "" {
				fmt.Fprintf(&b, ". %s", truncateRunes(p.Notes, 200))
			}
			b.WriteString("\n")
		}
	}

	knowledge, err := s.SearchKnowledge(ctx, topic, 5)
	if err != nil {
		return "", err
	}
	if len(knowledge) > 0 {
		b.WriteString("## Knowledge\n")
		for _, k := range knowledge {
			fmt.Fprintf(&b, "- %s: %s\n", k.Topic, truncateRunes(k.Content, 300))
		}
	}

	events, err := s.SearchEvents(ctx, topic, 5)
	if err != nil {
		return "", err
	}
	if len(events) > 0 {
		b.WriteString("## Events\n")
		for _, e := range events {
			fmt.Fprintf(&b, "- [%s] %s (significance %d)",
				e.CreatedAt.Format("2006-01-02"), e.Title, e.Significance)
			if e.Summary != "" {
				fmt.Fprintf(&b, ": %s", truncateRunes(e.Summary, 200))
			}
			b.WriteString("\n")
		}
	}

	goals, err := s.SearchGoals(ctx, topic, 5)
	if err != nil {
		return "", err
	}
	if len(goals) > 0 {
		b.WriteString("## Goals\n")
		for _, g := range goals {
			fmt.Fprintf(&b, "- (P%d, %s) %s", g.Priority, g.Status, g.Title)
			if g.Description != "" {
				fmt.Fprintf(&b, ": %s", truncateRunes(g.Description, 200))
			}
			b.WriteString("\n")
		}
	}

	return b.String(), nil
}

// Stats counts rows across the four stores.
func (s *MemoryService) Stats(ctx context.Context) (*models.MemoryStats, error) {
	var stats models.MemoryStats
	err := s.db.GetContext(ctx, &stats,
		`SELECT
			(SELECT count(*) FROM people) AS people,
			(SELECT count(*) FROM knowledge) AS knowledge,
			(SELECT count(*) FROM events) AS events,
			(SELECT count(*) FROM goals) AS goals`)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory stats: %w", err)
	}
	return &stats, nil
}

// --- helpers ---

func normalizeSearchLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 100 {
		return 100
	}
	return limit
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}
