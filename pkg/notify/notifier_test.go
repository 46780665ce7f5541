package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showrunner-io/showrunner/pkg/models"
)

type stubTransport struct {
	mu    sync.Mutex
	sent  []string
	err   error
	calls int
}

func (t *stubTransport) Send(_ context.Context, topic, actionType, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, text)
	return nil
}

func (t *stubTransport) all() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

type stubDeduper struct {
	mu        sync.Mutex
	seen      map[string]bool
	recorded  []string
	lookupErr error
}

func newStubDeduper() *stubDeduper {
	return &stubDeduper{seen: map[string]bool{}}
}

func (d *stubDeduper) IsDuplicate(_ context.Context, text string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lookupErr != nil {
		return false, d.lookupErr
	}
	return d.seen[text], nil
}

func (d *stubDeduper) Record(_ context.Context, topic, text, actionType string) (*models.CheckinEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[text] = true
	d.recorded = append(d.recorded, text)
	return &models.CheckinEntry{Topic: topic, Preview: text, ActionType: actionType}, nil
}

func TestNotifier_Classify(t *testing.T) {
	notifier := NewNotifier(nil, nil, nil)

	cases := []struct {
		name       string
		actionType string
		text       string
		want       Urgency
	}{
		{"plain message", "digest", "research cycle done: 12 new items", UrgencyNotify},
		{"urgent keyword in text", "digest", "twitter api down, retrying", UrgencyUrgent},
		{"kill switch mention", "alert", "kill switch activated: runaway posting", UrgencyUrgent},
		{"rate limit", "execute", "hit rate limit on metrics endpoint", UrgencyUrgent},
		{"case insensitive", "digest", "CREDENTIALS rotated", UrgencyUrgent},
		{"skip marker action type", "pre-execution", "about to post tweet", UrgencySkip},
		{"skip marker in text", "status", "rendering video segment 3/7", UrgencySkip},
		{"skip wins over urgent", "status", "generating critical incident recap", UrgencySkip},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, notifier.Classify(tc.actionType, tc.text))
		})
	}
}

func TestNotifier_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers and records", func(t *testing.T) {
		transport := &stubTransport{}
		deduper := newStubDeduper()
		notifier := NewNotifier(nil, transport, deduper)

		require.NoError(t, notifier.Send(ctx, Message{Topic: "research", Text: "3 relevant items", ActionType: "digest"}))
		require.Len(t, transport.all(), 1)
		assert.Equal(t, "3 relevant items", transport.all()[0])
		assert.Equal(t, []string{"3 relevant items"}, deduper.recorded)
	})

	t.Run("urgent messages get the prefix", func(t *testing.T) {
		transport := &stubTransport{}
		notifier := NewNotifier(nil, transport, newStubDeduper())

		require.NoError(t, notifier.Send(ctx, Message{Topic: "ops", Text: "twitter api down"}))
		require.Len(t, transport.all(), 1)
		assert.Equal(t, "🚨 URGENT: twitter api down", transport.all()[0])
	})

	t.Run("duplicates are suppressed", func(t *testing.T) {
		transport := &stubTransport{}
		deduper := newStubDeduper()
		notifier := NewNotifier(nil, transport, deduper)

		require.NoError(t, notifier.Send(ctx, Message{Topic: "growth", Text: "daily report ready"}))
		require.NoError(t, notifier.Send(ctx, Message{Topic: "growth", Text: "daily report ready"}))
		assert.Len(t, transport.all(), 1)
		assert.Len(t, deduper.recorded, 1)
	})

	t.Run("skip messages never reach the transport or the log", func(t *testing.T) {
		transport := &stubTransport{}
		deduper := newStubDeduper()
		notifier := NewNotifier(nil, transport, deduper)

		require.NoError(t, notifier.Send(ctx, Message{Topic: "ops", Text: "rendering clip", ActionType: "status"}))
		assert.Empty(t, transport.all())
		assert.Empty(t, deduper.recorded)
	})

	t.Run("dedup lookup failure is fail-open", func(t *testing.T) {
		transport := &stubTransport{}
		deduper := newStubDeduper()
		deduper.lookupErr = errors.New("connection refused")
		notifier := NewNotifier(nil, transport, deduper)

		require.NoError(t, notifier.Send(ctx, Message{Topic: "ops", Text: "inbox drained"}))
		assert.Len(t, transport.all(), 1)
	})

	t.Run("transport failure returns error and skips the record", func(t *testing.T) {
		transport := &stubTransport{err: errors.New("slack 500")}
		deduper := newStubDeduper()
		notifier := NewNotifier(nil, transport, deduper)

		err := notifier.Send(ctx, Message{Topic: "ops", Text: "inbox drained"})
		require.Error(t, err)
		assert.Empty(t, deduper.recorded)

		// A retry is not treated as a duplicate.
		transport.err = nil
		require.NoError(t, notifier.Send(ctx, Message{Topic: "ops", Text: "inbox drained"}))
		assert.Len(t, deduper.recorded, 1)
	})

	t.Run("no transport falls back to logging", func(t *testing.T) {
		deduper := newStubDeduper()
		notifier := NewNotifier(nil, nil, deduper)

		require.NoError(t, notifier.Send(ctx, Message{Topic: "ops", Text: "running without slack"}))
		assert.Len(t, deduper.recorded, 1)
	})

	t.Run("empty text rejected", func(t *testing.T) {
		notifier := NewNotifier(nil, &stubTransport{}, nil)
		assert.Error(t, notifier.Send(ctx, Message{Topic: "ops"}))
	})

	t.Run("nil notifier is a no-op", func(t *testing.T) {
		var notifier *Notifier
		assert.NoError(t, notifier.Send(ctx, Message{Topic: "ops", Text: "dropped"}))
	})
}
