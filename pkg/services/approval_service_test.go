package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showrunner-io/showrunner/pkg/models"
	testdb "github.com/showrunner-io/showrunner/test/database"
)

func submitTestApproval(t *testing.T, s *ApprovalService, actionType, text string) *models.Approval {
	t.Helper()
	data, err := json.Marshal(map[string]string{"text": text})
	require.NoError(t, err)

	approval, err := s.Submit(context.Background(), models.SubmitApprovalRequest{
		ProjectID:      "principal",
		AgentID:        "growth",
		ActionType:     actionType,
		ActionData:     data,
		ContextSummary: "test action",
		CostEstimate:   0.05,
	})
	require.NoError(t, err)
	return approval
}

func TestApprovalService_Submit(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewApprovalService(client.DBX(), nil)
	ctx := context.Background()

	t.Run("persists pending row", func(t *testing.T) {
		approval := submitTestApproval(t, service, "tweet", "hello world")
		assert.Greater(t, approval.ID, int64(0))
		assert.Equal(t, models.ApprovalPending, approval.Status)
		assert.Nil(t, approval.ReviewedAt)
		assert.Nil(t, approval.ExecutedAt)
		assert.False(t, approval.CreatedAt.IsZero())
	})

	t.Run("validates required fields", func(t *testing.T) {
		_, err := service.Submit(ctx, models.SubmitApprovalRequest{
			AgentID:    "growth",
			ActionType: "tweet",
		})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		_, err = service.Submit(ctx, models.SubmitApprovalRequest{
			ProjectID:  "principal",
			AgentID:    "growth",
			ActionType: "tweet",
			ActionData: json.RawMessage(`{not json`),
		})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("defaults empty action data to empty object", func(t *testing.T) {
		approval, err := service.Submit(ctx, models.SubmitApprovalRequest{
			ProjectID:  "principal",
			AgentID:    "ops",
			ActionType: "task",
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(approval.ActionData))
	})
}

func TestApprovalService_Decisions(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewApprovalService(client.DBX(), nil)
	ctx := context.Background()

	t.Run("approve sets reviewed_at", func(t *testing.T) {
		approval := submitTestApproval(t, service, "tweet", "approve me")

		approved, err := service.Approve(ctx, approval.ID, "looks good")
		require.NoError(t, err)
		assert.Equal(t, models.ApprovalApproved, approved.Status)
		assert.Equal(t, "looks good", approved.OperatorNotes)
		require.NotNil(t, approved.ReviewedAt)
		assert.Nil(t, approved.ExecutedAt)
	})

	t.Run("reject is terminal", func(t *testing.T) {
		approval := submitTestApproval(t, service, "tweet", "reject me")

		rejected, err := service.Reject(ctx, approval.ID, "off brand")
		require.NoError(t, err)
		assert.Equal(t, models.ApprovalRejected, rejected.Status)

		_, err = service.Approve(ctx, approval.ID, "")
		assert.ErrorIs(t, err, ErrStateViolation)
	})

	t.Run("edit overwrites action data", func(t *testing.T) {
		approval := submitTestApproval(t, service, "tweet", "original text")

		edited, err := service.EditAndApprove(ctx, approval.ID,
			json.RawMessage(`{"text":"edited text"}`), "tightened wording")
		require.NoError(t, err)
		assert.Equal(t, models.ApprovalEdited, edited.Status)
		assert.JSONEq(t, `{"text":"edited text"}`, string(edited.ActionData))
	})

	t.Run("missing id returns not found", func(t *testing.T) {
		_, err := service.Approve(ctx, 999999, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent approve and reject, one wins", func(t *testing.T) {
		approval := submitTestApproval(t, service, "tweet", "contested")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = service.Approve(ctx, approval.ID, "yes")
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = service.Reject(ctx, approval.ID, "no")
		}()
		wg.Wait()

		var wins, violations int
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, ErrStateViolation):
				violations++
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 1, violations)

		final, err := service.GetByID(ctx, approval.ID)
		require.NoError(t, err)
		assert.Contains(t, []models.ApprovalStatus{models.ApprovalApproved, models.ApprovalRejected}, final.Status)
	})
}

func TestApprovalService_MarkExecuted(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewApprovalService(client.DBX(), nil)
	ctx := context.Background()

	t.Run("marks once then no-ops", func(t *testing.T) {
		approval := submitTestApproval(t, service, "tweet", "execute me")
		_, err := service.Approve(ctx, approval.ID, "")
		require.NoError(t, err)

		marked, err := service.MarkExecuted(ctx, approval.ID)
		require.NoError(t, err)
		assert.True(t, marked)

		// Second call is a no-op, never a failure
		marked, err = service.MarkExecuted(ctx, approval.ID)
		require.NoError(t, err)
		assert.False(t, marked)

		row, err := service.GetByID(ctx, approval.ID)
		require.NoError(t, err)
		require.NotNil(t, row.ExecutedAt)
	})

	t.Run("rejects non-executable states", func(t *testing.T) {
		approval := submitTestApproval(t, service, "tweet", "still pending")
		_, err := service.MarkExecuted(ctx, approval.ID)
		assert.ErrorIs(t, err, ErrStateViolation)

		_, err = service.MarkExecuted(ctx, 999999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent marks execute exactly once", func(t *testing.T) {
		approval := submitTestApproval(t, service, "tweet", "race me")
		_, err := service.Approve(ctx, approval.ID, "")
		require.NoError(t, err)

		const racers = 4
		var wg sync.WaitGroup
		results := make([]bool, racers)
		wg.Add(racers)
		for i := 0; i < racers; i++ {
			go func(i int) {
				defer wg.Done()
				marked, err := service.MarkExecuted(ctx, approval.ID)
				assert.NoError(t, err)
				results[i] = marked
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, marked := range results {
			if marked {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})
}

func TestApprovalService_Queries(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewApprovalService(client.DBX(), nil)
	ctx := context.Background()

	first := submitTestApproval(t, service, "tweet", "first")
	second := submitTestApproval(t, service, "reply", "second")
	third := submitTestApproval(t, service, "tweet", "third")

	t.Run("pending ordered oldest first", func(t *testing.T) {
		pending, err := service.GetPending(ctx, "")
		require.NoError(t, err)
		require.Len(t, pending, 3)
		assert.Equal(t, first.ID, pending[0].ID)
		assert.Equal(t, third.ID, pending[2].ID)

		filtered, err := service.GetPending(ctx, "other-project")
		require.NoError(t, err)
		assert.Empty(t, filtered)
	})

	t.Run("approved unexecuted for recovery sweep", func(t *testing.T) {
		_, err := service.Approve(ctx, first.ID, "")
		require.NoError(t, err)
		_, err = service.EditAndApprove(ctx, second.ID, json.RawMessage(`{"text":"v2"}`), "")
		require.NoError(t, err)

		unexecuted, err := service.GetApprovedUnexecuted(ctx)
		require.NoError(t, err)
		require.Len(t, unexecuted, 2)
		assert.Equal(t, first.ID, unexecuted[0].ID)

		marked, err := service.MarkExecuted(ctx, first.ID)
		require.NoError(t, err)
		assert.True(t, marked)

		unexecuted, err = service.GetApprovedUnexecuted(ctx)
		require.NoError(t, err)
		require.Len(t, unexecuted, 1)
		assert.Equal(t, second.ID, unexecuted[0].ID)
	})

	t.Run("last executed by action type", func(t *testing.T) {
		last, err := service.GetLastExecuted(ctx, "tweet")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, first.ID, last.ID)

		none, err := service.GetLastExecuted(ctx, "render_video")
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("stats count by status", func(t *testing.T) {
		stats, err := service.GetStats(ctx, "principal")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pending)
		assert.Equal(t, 1, stats.Approved)
		assert.Equal(t, 1, stats.Edited)
		assert.Equal(t, 1, stats.Executed)
	})

	t.Run("list with filters newest first", func(t *testing.T) {
		all, err := service.List(ctx, "", "", 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, third.ID, all[0].ID)
		assert.Equal(t, first.ID, all[2].ID)

		pending, err := service.List(ctx, "", models.ApprovalPending, 0)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, third.ID, pending[0].ID)

		approved, err := service.List(ctx, "principal", models.ApprovalApproved, 0)
		require.NoError(t, err)
		require.Len(t, approved, 1)
		assert.Equal(t, first.ID, approved[0].ID)

		other, err := service.List(ctx, "other-project", "", 0)
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}

func TestApprovalService_ExpireOld(t *testing.T) {
	client := testdb.NewTestClient(t)
	service := NewApprovalService(client.DBX(), nil)
	ctx := context.Background()

	stale := submitTestApproval(t, service, "tweet", "stale")
	fresh := submitTestApproval(t, service, "tweet", "fresh")

	// Backdate the stale row past the expiry window
	_, err := client.DB().ExecContext(ctx,
		`UPDATE approvals SET created_at = now() - interval '72 hours' WHERE id = $1`, stale.ID)
	require.NoError(t, err)

	count, err := service.ExpireOld(ctx, 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expired, err := service.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalExpired, expired.Status)

	stillPending, err := service.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, stillPending.Status)

	// Expired rows cannot be approved
	_, err = service.Approve(ctx, stale.ID, "")
	assert.ErrorIs(t, err, ErrStateViolation)
}

func TestFormatPreview(t *testing.T) {
	approval := &models.Approval{
		ID:             7,
		AgentID:        "growth",
		ActionType:     "tweet",
		ActionData:     json.RawMessage(`{"text":"shipping the new build tonight"}`),
		ContextSummary: "daily slot 2 of 4",
		CostEstimate:   0.03,
	}

	preview := FormatPreview(approval)
	assert.Contains(t, preview, "[#7] tweet from growth")
	assert.Contains(t, preview, "est $0.03")
	assert.Contains(t, preview, "daily slot 2 of 4")
	assert.Contains(t, preview, "shipping the new build tonight")

	// Long payloads are truncated for the operator
	longData, err := json.Marshal(map[string]string{"content": strings.Repeat("y", 500)})
	require.NoError(t, err)
	long := &models.Approval{
		ID:         8,
		AgentID:    "growth",
		ActionType: "thread",
		ActionData: longData,
	}
	preview = FormatPreview(long)
	assert.Contains(t, preview, "...")
	assert.Less(t, len(preview), 400)
}
