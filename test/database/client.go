package database

import (
	"testing"

	"github.com/showrunner-io/showrunner/pkg/database"
	"github.com/showrunner-io/showrunner/test/util"
)

// NewTestClient creates a fully migrated test database client.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
// The schema and connections are automatically cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	return util.SetupTestDatabase(t)
}
