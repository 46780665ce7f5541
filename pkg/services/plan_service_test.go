package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdb "github.com/showrunner-io/showrunner/test/database"
)

func TestPlanService_SaveAndGet(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewPlanService(client.DBX())
	ctx := context.Background()

	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	slots := []time.Time{
		time.Date(2026, 3, 14, 5, 17, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 8, 43, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 12, 9, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 16, 51, 0, 0, time.UTC),
	}

	t.Run("first save creates the plan", func(t *testing.T) {
		plan, created, err := service.SavePlan(ctx, date, slots)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, 4, plan.PlannedCount)
		assert.Equal(t, "2026-03-14", plan.ScheduleDate.Format("2006-01-02"))

		decoded, err := plan.Slots()
		require.NoError(t, err)
		require.Len(t, decoded, 4)
		for i, slot := range decoded {
			assert.True(t, slot.Equal(slots[i]), "slot %d", i)
		}
	})

	t.Run("replanning the same date is a no-op", func(t *testing.T) {
		plan, created, err := service.SavePlan(ctx, date, slots[:2])
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, 4, plan.PlannedCount)
	})

	t.Run("time of day on the date argument is ignored", func(t *testing.T) {
		plan, err := service.PlanForDate(ctx, date.Add(13*time.Hour+30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 4, plan.PlannedCount)
	})

	t.Run("unknown date", func(t *testing.T) {
		_, err := service.PlanForDate(ctx, date.AddDate(0, 0, 1))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty plan rejected", func(t *testing.T) {
		_, _, err := service.SavePlan(ctx, date, nil)
		assert.True(t, IsValidationError(err))
	})
}

func TestPlanService_Prune(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewPlanService(client.DBX())
	ctx := context.Background()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := service.SavePlan(ctx, old, []time.Time{old.Add(9 * time.Hour)})
	require.NoError(t, err)
	_, _, err = service.SavePlan(ctx, recent, []time.Time{recent.Add(9 * time.Hour)})
	require.NoError(t, err)

	pruned, err := service.Prune(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = service.PlanForDate(ctx, old)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = service.PlanForDate(ctx, recent)
	require.NoError(t, err)
}
