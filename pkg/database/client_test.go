package database

import (
	"context"
	stdsql "database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestClient creates a test database client with CI/local environment detection.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	// Check if we're in CI with an external database
	ciDatabaseURL := os.Getenv("CI_DATABASE_URL")

	var connStr string

	if ciDatabaseURL != "" {
		// CI mode: use external PostgreSQL service container
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
		connStr = ciDatabaseURL
	} else {
		// Local dev mode: use testcontainers
		t.Log("Using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		var err2 error
		connStr, err2 = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err2)
	}

	// Open database connection using pgx driver
	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)

	// Configure connection pool for tests
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	// Run the real migration path (embedded SQL files + GIN indexes)
	client, err := NewClientFromDB(ctx, db, "test")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func TestDatabaseClient_ConnectionPool(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// Test basic connectivity
	err := client.DB().PingContext(ctx)
	require.NoError(t, err)

	// Test health check
	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.Pool.MaxOpen, 0)
}

func TestMigrations_SchemaApplied(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// Every table the services depend on must exist after startup
	tables := []string{
		"approvals", "scheduled_content", "audit_log", "checkin_log",
		"kill_switch", "budget_spend", "event_stream",
		"people", "knowledge", "events", "goals",
		"research_items", "digests", "reply_targets", "seen_mentions",
		"tweet_metrics", "analytics_reports", "daily_plans",
	}
	for _, table := range tables {
		var exists bool
		err := client.DB().QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s should exist", table)
	}

	// Kill switch singleton is seeded inactive
	var active bool
	err := client.DB().QueryRowContext(ctx,
		`SELECT active FROM kill_switch WHERE id = 1`).Scan(&active)
	require.NoError(t, err)
	assert.False(t, active)

	// Migrations are idempotent on a second startup
	err = runMigrations(ctx, client.DB(), "test")
	require.NoError(t, err)
}

func TestFullTextSearch(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// Reset rows from previous CI runs against a shared database
	_, err := client.DB().ExecContext(ctx,
		`DELETE FROM knowledge WHERE source = 'fts-test'`)
	require.NoError(t, err)

	_, err = client.DB().ExecContext(ctx,
		`INSERT INTO knowledge (topic, content, category, source) VALUES
		 ('deploy outage', 'Critical error in production cluster with pod failures', 'ops', 'fts-test'),
		 ('memory pressure', 'Warning: high memory usage detected', 'ops', 'fts-test')`)
	require.NoError(t, err)

	// Match only the production failure row
	rows, err := client.DB().QueryContext(ctx,
		`SELECT topic FROM knowledge
		WHERE source = 'fts-test'
		  AND to_tsvector('english', topic || ' ' || content) @@ to_tsquery('english', $1)`,
		"error & production",
	)
	require.NoError(t, err)
	defer rows.Close()

	var results []string
	for rows.Next() {
		var topic string
		require.NoError(t, rows.Scan(&topic))
		results = append(results, topic)
	}
	require.NoError(t, rows.Err())

	assert.Len(t, results, 1)
	assert.Equal(t, "deploy outage", results[0])

	// "memory" should match only the second row
	rows2, err := client.DB().QueryContext(ctx,
		`SELECT topic FROM knowledge
		WHERE source = 'fts-test'
		  AND to_tsvector('english', topic || ' ' || content) @@ to_tsquery('english', $1)`,
		"memory",
	)
	require.NoError(t, err)
	defer rows2.Close()

	results2 := []string{}
	for rows2.Next() {
		var topic string
		require.NoError(t, rows2.Scan(&topic))
		results2 = append(results2, topic)
	}
	require.NoError(t, rows2.Err())

	assert.Len(t, results2, 1)
	assert.Equal(t, "memory pressure", results2[0])
}

func TestLoadConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg Config)
	}{
		{
			name: "valid config with defaults",
			envVars: map[string]string{
				"DB_PASSWORD": "test",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "localhost", cfg.Host)
				assert.Equal(t, 5432, cfg.Port)
				assert.Equal(t, "showrunner", cfg.User)
				assert.Equal(t, "showrunner", cfg.Database)
				assert.Equal(t, "disable", cfg.SSLMode)
				assert.Equal(t, 10, cfg.MaxOpenConns)
				assert.Equal(t, 5, cfg.MaxIdleConns)
			},
		},
		{
			name: "valid config with custom values",
			envVars: map[string]string{
				"DB_HOST":           "db.example.com",
				"DB_PORT":           "5433",
				"DB_USER":           "admin",
				"DB_PASSWORD":       "secret",
				"DB_NAME":           "production",
				"DB_SSLMODE":        "require",
				"DB_MAX_OPEN_CONNS": "50",
				"DB_MAX_IDLE_CONNS": "20",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "db.example.com", cfg.Host)
				assert.Equal(t, 5433, cfg.Port)
				assert.Equal(t, "admin", cfg.User)
				assert.Equal(t, "production", cfg.Database)
				assert.Equal(t, "require", cfg.SSLMode)
				assert.Equal(t, 50, cfg.MaxOpenConns)
				assert.Equal(t, 20, cfg.MaxIdleConns)
			},
		},
		{
			name: "invalid port",
			envVars: map[string]string{
				"DB_PORT": "not-a-number",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfigFromEnv()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
