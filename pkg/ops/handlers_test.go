package ops

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showrunner-io/showrunner/pkg/platform"
)

type handlerFixture struct {
	approvals *stubApprovals
	schedules *stubSchedules
	twitter   *stubTwitter
	renderer  *stubRenderer
	memory    *stubMemories
	notifier  *stubNotifier
	woken     int
	handlers  *Handlers
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		approvals: &stubApprovals{},
		schedules: &stubSchedules{},
		twitter:   &stubTwitter{},
		renderer:  &stubRenderer{res: &platform.RenderResult{VideoPath: "/renders/out.mp4", DurationSeconds: 95}},
		memory:    &stubMemories{},
		notifier:  &stubNotifier{},
	}
	executors := NewExecutors(ExecutorDeps{
		Twitter:   f.twitter,
		Memory:    f.memory,
		Approvals: f.approvals,
	})
	f.handlers = NewHandlers(HandlerDeps{
		Approvals: f.approvals,
		Schedules: f.schedules,
		Executors: executors,
		Renderer:  f.renderer,
		Memory:    f.memory,
		Notifier:  f.notifier,
		Wake:      func() { f.woken++ },
	})
	return f
}

func TestHandlers_Schedule(t *testing.T) {
	f := newHandlerFixture()
	when := time.Date(2026, 8, 25, 19, 30, 0, 0, time.UTC)
	body := `{"approval_id":4,"content_type":"tweet",` +
		`"action_data":{"text":"later today"},"platforms":["twitter"],` +
		`"scheduled_time":"2026-08-25T19:30:00Z"}`

	err := f.handlers.Handle(context.Background(), "schedule", "schedule_4.json", []byte(body))

	require.NoError(t, err)
	require.Len(t, f.schedules.requests, 1)
	req := f.schedules.requests[0]
	assert.Equal(t, "tweet", req.ContentType)
	assert.True(t, req.ScheduledTime.Equal(when))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.ContentData, &payload))
	assert.Equal(t, "later today", payload["text"])
	assert.Equal(t, float64(4), payload["approval_id"])
	assert.Equal(t, []any{"twitter"}, payload["platforms"])

	assert.Equal(t, []int64{4}, f.approvals.marked)
	assert.Equal(t, 1, f.woken)
	require.Len(t, f.notifier.sent, 1)
	assert.Contains(t, f.notifier.sent[0], "schedule/tweet: Scheduled tweet for 2026-08-25 19:30 UTC (job job-1).")
}

func TestHandlers_Schedule_MissingFields(t *testing.T) {
	f := newHandlerFixture()
	cases := map[string]string{
		"approval":       `{"content_type":"tweet","scheduled_time":"2026-08-25T19:30:00Z"}`,
		"content type":   `{"approval_id":4,"scheduled_time":"2026-08-25T19:30:00Z"}`,
		"scheduled time": `{"approval_id":4,"content_type":"tweet"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.handlers.Handle(context.Background(), "schedule", "schedule_x.json", []byte(body))
			assert.ErrorContains(t, err, "missing")
		})
	}
	assert.Empty(t, f.schedules.requests)
}

func TestHandlers_Schedule_ScheduleFailure(t *testing.T) {
	f := newHandlerFixture()
	f.schedules.err = errors.New("job id already live")

	err := f.handlers.Handle(context.Background(), "schedule", "schedule_4.json",
		[]byte(`{"approval_id":4,"content_type":"tweet","action_data":{"text":"x"},"scheduled_time":"2026-08-25T19:30:00Z"}`))

	assert.ErrorContains(t, err, "scheduling tweet for approval 4")
	assert.Empty(t, f.approvals.marked)
	assert.Empty(t, f.notifier.sent)
}

func TestHandlers_Schedule_MarkFailureStillNotifies(t *testing.T) {
	f := newHandlerFixture()
	f.approvals.markErr = errors.New("connection reset")

	err := f.handlers.Handle(context.Background(), "schedule", "schedule_4.json",
		[]byte(`{"approval_id":4,"content_type":"tweet","action_data":{"text":"x"},"scheduled_time":"2026-08-25T19:30:00Z"}`))

	require.NoError(t, err)
	assert.Len(t, f.schedules.requests, 1)
	assert.Len(t, f.notifier.sent, 1)
}

func TestHandlers_Execute(t *testing.T) {
	f := newHandlerFixture()

	err := f.handlers.Handle(context.Background(), "execute", "execute_9.json",
		[]byte(`{"approval_id":9,"action_type":"tweet","action_data":{"text":"right now"}}`))

	require.NoError(t, err)
	assert.Equal(t, []string{"right now"}, f.twitter.posts)
	assert.Equal(t, []int64{9}, f.approvals.marked)
	require.Len(t, f.notifier.sent, 1)
	assert.Contains(t, f.notifier.sent[0], "ops/tweet: [EXECUTED] tweet approval 9:")
}

func TestHandlers_Execute_Failure(t *testing.T) {
	f := newHandlerFixture()
	f.twitter.postErr = errors.New("api down")

	err := f.handlers.Handle(context.Background(), "execute", "execute_9.json",
		[]byte(`{"approval_id":9,"action_type":"tweet","action_data":{"text":"nope"}}`))

	assert.ErrorContains(t, err, "executing tweet for approval 9")
	assert.Empty(t, f.notifier.sent)
	assert.Empty(t, f.approvals.marked)
}

func TestHandlers_Execute_MissingActionType(t *testing.T) {
	f := newHandlerFixture()

	err := f.handlers.Handle(context.Background(), "execute", "execute_9.json",
		[]byte(`{"approval_id":9,"action_data":{"text":"typeless"}}`))

	assert.ErrorContains(t, err, "missing action_type")
}

func TestHandlers_Render(t *testing.T) {
	f := newHandlerFixture()

	err := f.handlers.Handle(context.Background(), "render", "render_6.json",
		[]byte(`{"approval_id":6,"script":"INT. SERVER ROOM","theme_title":"cooling"}`))

	require.NoError(t, err)
	assert.Equal(t, "cooling", f.renderer.req.Title)
	assert.Equal(t, "INT. SERVER ROOM", f.renderer.req.Script)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "ops/render: Video rendered for approval 6: /renders/out.mp4 (95s)", f.notifier.sent[0])
}

func TestHandlers_Render_Failure(t *testing.T) {
	f := newHandlerFixture()
	f.renderer.err = errors.New("sidecar offline")

	err := f.handlers.Handle(context.Background(), "render", "render_6.json",
		[]byte(`{"approval_id":6,"script":"INT. SERVER ROOM"}`))

	assert.ErrorContains(t, err, "rendering approval 6")
	require.Len(t, f.notifier.sent, 1)
	assert.Contains(t, f.notifier.sent[0], "Video render failed for approval 6")
}

func TestHandlers_Render_NotConfigured(t *testing.T) {
	f := newHandlerFixture()
	f.handlers = NewHandlers(HandlerDeps{Notifier: f.notifier})

	err := f.handlers.Handle(context.Background(), "render", "render_6.json",
		[]byte(`{"approval_id":6,"script":"INT. SERVER ROOM"}`))

	assert.ErrorIs(t, err, platform.ErrNotConfigured)
}

func TestHandlers_Feedback(t *testing.T) {
	f := newHandlerFixture()

	err := f.handlers.Handle(context.Background(), "feedback", "feedback_12.json",
		[]byte(`{"approval_id":12,"reason":"too salesy","content_context":{"text":"BUY NOW"}}`))

	require.NoError(t, err)
	require.Len(t, f.memory.events, 1)
	assert.Contains(t, f.memory.events[0], "Content rejected (approval 12) [feedback/7]")
	assert.Contains(t, f.memory.events[0], "too salesy")
	assert.Contains(t, f.memory.events[0], "BUY NOW")
}

func TestHandlers_Feedback_StringApprovalID(t *testing.T) {
	f := newHandlerFixture()

	err := f.handlers.Handle(context.Background(), "feedback", "feedback_a.json",
		[]byte(`{"approval_id":"legacy-3","reason":"off voice"}`))

	require.NoError(t, err)
	require.Len(t, f.memory.events, 1)
	assert.Contains(t, f.memory.events[0], "Content rejected (approval legacy-3)")
}

func TestHandlers_Feedback_MissingApprovalID(t *testing.T) {
	f := newHandlerFixture()

	err := f.handlers.Handle(context.Background(), "feedback", "feedback_x.json", []byte(`{}`))

	assert.ErrorContains(t, err, "missing approval_id")
	assert.Empty(t, f.memory.events)
}

func TestHandlers_UnknownPrefix(t *testing.T) {
	f := newHandlerFixture()

	err := f.handlers.Handle(context.Background(), "mystery", "mystery_1.json", []byte(`{}`))

	assert.ErrorContains(t, err, `no handler for prefix "mystery"`)
}

func TestInjectApprovalID(t *testing.T) {
	t.Run("empty payload", func(t *testing.T) {
		out, err := injectApprovalID(nil, 5, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"approval_id":5}`, string(out))
	})

	t.Run("preserves existing keys", func(t *testing.T) {
		out, err := injectApprovalID(json.RawMessage(`{"text":"hi"}`), 5, []string{"youtube"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"text":"hi","approval_id":5,"platforms":["youtube"]}`, string(out))
	})

	t.Run("rejects non-object payload", func(t *testing.T) {
		_, err := injectApprovalID(json.RawMessage(`[1,2]`), 5, nil)
		assert.Error(t, err)
	})
}
