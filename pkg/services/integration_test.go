package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showrunner-io/showrunner/pkg/models"
	testdb "github.com/showrunner-io/showrunner/test/database"
)

// TestServiceIntegration drives the services together the way the daemon
// does: an agent drafts, the operator decides, the scheduler claims and
// executes, and the safety layer observes throughout.
func TestServiceIntegration(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	approvals := NewApprovalService(client.DBX(), nil)
	schedules := NewScheduleService(client.DBX(), nil)
	audit := NewAuditService(client.DBX(), nil)
	kill := NewKillSwitchService(client.DBX(), audit, 0)
	memory := NewMemoryService(client.DBX(), nil)

	t.Run("draft to publication", func(t *testing.T) {
		// 1. An agent drafts a tweet into the queue.
		draft, err := approvals.Submit(ctx, models.SubmitApprovalRequest{
			ProjectID:      "integration",
			AgentID:        "research",
			ActionType:     "tweet",
			ActionData:     json.RawMessage(`{"text":"Shipping the new scheduler today."}`),
			ContextSummary: "Drafted from a release announcement",
		})
		require.NoError(t, err)
		assert.Equal(t, models.ApprovalPending, draft.Status)

		pending, err := approvals.GetPending(ctx, "integration")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, draft.ID, pending[0].ID)

		// 2. The operator approves.
		approved, err := approvals.Approve(ctx, draft.ID, "looks good")
		require.NoError(t, err)
		assert.Equal(t, models.ApprovalApproved, approved.Status)
		require.NotNil(t, approved.ReviewedAt)

		// 3. The schedule inbox file lands: enqueue for publication,
		// payload carrying the approval id the executor will close.
		payload := json.RawMessage(fmt.Sprintf(`{"approval_id":%d,"text":"Shipping the new scheduler today."}`, draft.ID))
		job, err := schedules.Schedule(ctx, ScheduleRequest{
			ContentType:   "tweet",
			ContentData:   payload,
			ScheduledTime: time.Now().Add(-time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, models.SchedulePending, job.Status)

		// 4. The scheduler claims the due job.
		claimed, err := schedules.ClaimNextDue(ctx, "worker-1", 10*time.Minute)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, job.JobID, claimed.JobID)

		// Nothing else is claimable while the first claim is live.
		second, err := schedules.ClaimNextDue(ctx, "worker-2", 10*time.Minute)
		require.NoError(t, err)
		assert.Nil(t, second)

		// 5. The executor publishes, reports back, and closes the approval.
		require.NoError(t, schedules.Complete(ctx, claimed.JobID, `{"tweet_id":"1234"}`))

		first, err := approvals.MarkExecuted(ctx, draft.ID)
		require.NoError(t, err)
		assert.True(t, first)

		// A crashed-executor retry is a silent no-op.
		again, err := approvals.MarkExecuted(ctx, draft.ID)
		require.NoError(t, err)
		assert.False(t, again)

		// 6. The content-gap check sees a fresh feed.
		last, err := approvals.GetLastExecuted(ctx, "tweet")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, draft.ID, last.ID)

		stats, err := approvals.GetStats(ctx, "integration")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Approved)
		assert.Equal(t, 1, stats.Executed)

		done, err := schedules.GetByID(ctx, claimed.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.ScheduleExecuted, done.Status)
		require.NotNil(t, done.ExecutedAt)
	})

	t.Run("rejected draft never executes", func(t *testing.T) {
		draft, err := approvals.Submit(ctx, models.SubmitApprovalRequest{
			ProjectID:  "integration",
			AgentID:    "growth",
			ActionType: "tweet",
			ActionData: json.RawMessage(`{"text":"Engagement bait, reject me."}`),
		})
		require.NoError(t, err)

		_, err = approvals.Reject(ctx, draft.ID, "off-voice")
		require.NoError(t, err)

		// The decision is final: a late approve loses, and execution is
		// refused rather than silently skipped.
		_, err = approvals.Approve(ctx, draft.ID, "changed my mind")
		assert.ErrorIs(t, err, ErrStateViolation)

		_, err = approvals.MarkExecuted(ctx, draft.ID)
		assert.ErrorIs(t, err, ErrStateViolation)
	})

	t.Run("kill switch halts and recovers", func(t *testing.T) {
		require.NoError(t, kill.Activate(ctx, "posting loop misbehaving"))
		assert.True(t, kill.Halted(ctx))

		state, err := kill.State(ctx)
		require.NoError(t, err)
		assert.True(t, state.Active)
		assert.Equal(t, "posting loop misbehaving", state.Reason)
		require.NotNil(t, state.Since)

		// Re-activation refreshes the reason but keeps the original since.
		origSince := *state.Since
		require.NoError(t, kill.Activate(ctx, "still misbehaving"))
		state, err = kill.State(ctx)
		require.NoError(t, err)
		assert.Equal(t, "still misbehaving", state.Reason)
		assert.WithinDuration(t, origSince, *state.Since, time.Second)

		// Activation is a critical audit entry.
		entries, err := audit.Recent(ctx, models.SeverityCritical, 10)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.Contains(t, entries[0].Message, "kill switch activated")

		require.NoError(t, kill.Deactivate(ctx))
		assert.False(t, kill.Halted(ctx))
		state, err = kill.State(ctx)
		require.NoError(t, err)
		assert.False(t, state.Active)
		assert.Nil(t, state.Since)
	})

	t.Run("published content becomes memory", func(t *testing.T) {
		_, err := memory.AddEvent(ctx, "Tweet posted",
			"Shipping the new scheduler today.", "content", 5)
		require.NoError(t, err)

		events, err := memory.SearchEvents(ctx, "scheduler", 10)
		require.NoError(t, err)
		require.NotEmpty(t, events)
		assert.Equal(t, "Tweet posted", events[0].Title)
	})
}
