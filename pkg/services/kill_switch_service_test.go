package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showrunner-io/showrunner/pkg/models"
	testdb "github.com/showrunner-io/showrunner/test/database"
)

func TestKillSwitchService_ActivateDeactivate(t *testing.T) {
	client := testdb.NewTestClient(t)
	audit := NewAuditService(client.DBX(), nil)
	service := NewKillSwitchService(client.DBX(), audit, 0)
	ctx := context.Background()

	t.Run("seeded inactive", func(t *testing.T) {
		active, err := service.IsActive(ctx)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("activate flips and records reason", func(t *testing.T) {
		require.NoError(t, service.Activate(ctx, "runaway reply loop"))

		active, err := service.IsActive(ctx)
		require.NoError(t, err)
		assert.True(t, active)

		state, err := service.State(ctx)
		require.NoError(t, err)
		assert.True(t, state.Active)
		assert.Equal(t, "runaway reply loop", state.Reason)
		require.NotNil(t, state.Since)
	})

	t.Run("reactivate keeps original since", func(t *testing.T) {
		before, err := service.State(ctx)
		require.NoError(t, err)
		require.NotNil(t, before.Since)

		require.NoError(t, service.Activate(ctx, "still investigating"))

		after, err := service.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, "still investigating", after.Reason)
		assert.True(t, after.Since.Equal(*before.Since))
	})

	t.Run("activate requires reason", func(t *testing.T) {
		err := service.Activate(ctx, "")
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("deactivate clears state", func(t *testing.T) {
		require.NoError(t, service.Deactivate(ctx))

		state, err := service.State(ctx)
		require.NoError(t, err)
		assert.False(t, state.Active)
		assert.Empty(t, state.Reason)
		assert.Nil(t, state.Since)
	})

	t.Run("transitions are audit logged", func(t *testing.T) {
		entries, err := audit.Recent(ctx, "", 50)
		require.NoError(t, err)

		var criticals, infos int
		for _, e := range entries {
			if e.Topic != "kill_switch" {
				continue
			}
			switch e.Severity {
			case models.SeverityCritical:
				criticals++
			case models.SeverityInfo:
				infos++
			}
		}
		assert.Equal(t, 2, criticals, "both activations logged critical")
		assert.Equal(t, 1, infos, "deactivation logged info")
	})
}

func TestKillSwitchService_Cache(t *testing.T) {
	client := testdb.NewTestClient(t)
	cached := NewKillSwitchService(client.DBX(), nil, time.Minute)
	uncached := NewKillSwitchService(client.DBX(), nil, 0)
	ctx := context.Background()

	active, err := cached.IsActive(ctx)
	require.NoError(t, err)
	require.False(t, active)

	// Flip behind the service's back. The cached reader must not see it yet.
	_, err = client.DBX().ExecContext(ctx,
		`UPDATE kill_switch SET active = TRUE, reason = 'manual sql', since = now() WHERE id = 1`)
	require.NoError(t, err)

	active, err = cached.IsActive(ctx)
	require.NoError(t, err)
	assert.False(t, active, "within TTL the cached value is served")

	active, err = uncached.IsActive(ctx)
	require.NoError(t, err)
	assert.True(t, active, "uncached reader sees the database")

	// Writes through the service refresh its cache immediately.
	require.NoError(t, cached.Deactivate(ctx))
	active, err = cached.IsActive(ctx)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, cached.Activate(ctx, "cache refresh check"))
	active, err = cached.IsActive(ctx)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestKillSwitchService_Halted(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewKillSwitchService(client.DBX(), nil, 0)
	ctx := context.Background()

	assert.False(t, service.Halted(ctx))

	require.NoError(t, service.Activate(ctx, "halt check"))
	assert.True(t, service.Halted(ctx))

	// Unreadable switch state counts as halted.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.True(t, service.Halted(cancelled))
}
