package database

import (
	"context"
	"database/sql"
	"fmt"
)

// ginIndexes are the expression GIN indexes backing full-text search.
// The to_tsvector expressions here must match the ones used by the search
// queries in pkg/services, or the planner will not use the index.
var ginIndexes = []struct {
	name string
	stmt string
}{
	{
		name: "idx_people_fts_gin",
		stmt: `CREATE INDEX IF NOT EXISTS idx_people_fts_gin
		ON people USING gin(to_tsvector('english', name || ' ' || notes))`,
	},
	{
		name: "idx_knowledge_fts_gin",
		stmt: `CREATE INDEX IF NOT EXISTS idx_knowledge_fts_gin
		ON knowledge USING gin(to_tsvector('english', topic || ' ' || content))`,
	},
	{
		name: "idx_events_fts_gin",
		stmt: `CREATE INDEX IF NOT EXISTS idx_events_fts_gin
		ON events USING gin(to_tsvector('english', title || ' ' || summary))`,
	},
	{
		name: "idx_goals_fts_gin",
		stmt: `CREATE INDEX IF NOT EXISTS idx_goals_fts_gin
		ON goals USING gin(to_tsvector('english', title || ' ' || description))`,
	},
	{
		name: "idx_research_items_fts_gin",
		stmt: `CREATE INDEX IF NOT EXISTS idx_research_items_fts_gin
		ON research_items USING gin(to_tsvector('english', title || ' ' || content))`,
	},
	{
		name: "idx_approvals_action_data_gin",
		stmt: `CREATE INDEX IF NOT EXISTS idx_approvals_action_data_gin
		ON approvals USING gin(to_tsvector('english', action_data::text))`,
	},
}

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// These enable efficient full-text search across the memory stores, the
// research backlog, and approval payloads.
func CreateGINIndexes(ctx context.Context, db *sql.DB) error {
	for _, idx := range ginIndexes {
		if _, err := db.ExecContext(ctx, idx.stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}
	return nil
}
