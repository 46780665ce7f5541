package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testdb "github.com/showrunner-io/showrunner/test/database"
)

func TestHashMessage(t *testing.T) {
	h := HashMessage("scheduled tweet executed")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashMessage("scheduled tweet executed"))
	assert.NotEqual(t, h, HashMessage("scheduled tweet failed"))
}

func TestCheckinService_RecordAndDuplicate(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewCheckinService(client.DBX())
	ctx := context.Background()

	text := "research cycle done: 12 new, 3 relevant, 1 alert"

	t.Run("fresh message is not a duplicate", func(t *testing.T) {
		dup, err := service.IsDuplicate(ctx, text, 4*time.Hour)
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("record stores hash and preview", func(t *testing.T) {
		entry, err := service.Record(ctx, "research", text, "digest")
		require.NoError(t, err)
		assert.Equal(t, HashMessage(text), entry.MessageHash)
		assert.Equal(t, text, entry.Preview)
		assert.Equal(t, "digest", entry.ActionType)
		assert.False(t, entry.SentAt.IsZero())
	})

	t.Run("same text within window is a duplicate", func(t *testing.T) {
		dup, err := service.IsDuplicate(ctx, text, 4*time.Hour)
		require.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("different text is not", func(t *testing.T) {
		dup, err := service.IsDuplicate(ctx, text+" extra", 4*time.Hour)
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("outside the window is not", func(t *testing.T) {
		_, err := client.DBX().ExecContext(ctx,
			`UPDATE checkin_log SET sent_at = now() - interval '5 hours' WHERE message_hash = $1`,
			HashMessage(text))
		require.NoError(t, err)

		dup, err := service.IsDuplicate(ctx, text, 4*time.Hour)
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("long text gets truncated preview", func(t *testing.T) {
		long := strings.Repeat("z", 400)
		entry, err := service.Record(ctx, "ops", long, "feedback")
		require.NoError(t, err)
		assert.Len(t, entry.Preview, checkinPreviewLen+3)
		assert.True(t, strings.HasSuffix(entry.Preview, "..."))
		assert.Equal(t, HashMessage(long), entry.MessageHash)
	})

	t.Run("empty text rejected", func(t *testing.T) {
		_, err := service.Record(ctx, "ops", "", "feedback")
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})
}

func TestCheckinService_RecentAndPrune(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewCheckinService(client.DBX())
	ctx := context.Background()

	first, err := service.Record(ctx, "growth", "mention summary one", "mention")
	require.NoError(t, err)
	_, err = service.Record(ctx, "growth", "mention summary two", "mention")
	require.NoError(t, err)

	_, err = client.DBX().ExecContext(ctx,
		`UPDATE checkin_log SET sent_at = now() - interval '31 days' WHERE id = $1`, first.ID)
	require.NoError(t, err)

	t.Run("recent orders newest first", func(t *testing.T) {
		entries, err := service.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "mention summary two", entries[0].Preview)
	})

	t.Run("prune removes old entries", func(t *testing.T) {
		n, err := service.Prune(ctx, time.Now().Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		entries, err := service.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "mention summary two", entries[0].Preview)
	})
}
