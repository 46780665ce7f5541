package cron

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showrunner-io/showrunner/pkg/config"
)

// fakeClock drives a Runner's notion of now from an atomic value so tests
// can jump time forward while the real ticker keeps polling.
type fakeClock struct {
	nanos atomic.Int64
}

func newFakeClock(start time.Time) *fakeClock {
	c := &fakeClock{}
	c.nanos.Store(start.UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time {
	return time.Unix(0, c.nanos.Load()).UTC()
}

func (c *fakeClock) Set(t time.Time) {
	c.nanos.Store(t.UnixNano())
}

type stubGate struct {
	halted atomic.Bool
}

func (g *stubGate) Halted(context.Context) bool {
	return g.halted.Load()
}

type captureAuditor struct {
	mu       sync.Mutex
	warnings []string
}

func (a *captureAuditor) Warn(_ context.Context, topic, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warnings = append(a.warnings, topic+": "+message)
}

func (a *captureAuditor) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.warnings...)
}

func testCronConfig() *config.CronConfig {
	return &config.CronConfig{
		Tick:          5 * time.Millisecond,
		MaxConcurrent: 4,
		JobTimeout:    time.Second,
	}
}

func newTestRunner(t *testing.T, clock *fakeClock, gate Gate, auditor Auditor) *Runner {
	t.Helper()
	r := NewRunner(testCronConfig(), gate, auditor)
	r.now = clock.Now
	return r
}

func TestRunner_IntervalJob(t *testing.T) {
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	runner := newTestRunner(t, clock, nil, nil)

	var runs atomic.Int32
	require.NoError(t, runner.AddInterval("inbox_poll", 30*time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	runner.Start(context.Background())
	defer runner.Stop()

	// Not due yet.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	clock.Set(start.Add(31 * time.Second))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	clock.Set(start.Add(62 * time.Second))
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRunner_CronExpression(t *testing.T) {
	start := time.Date(2026, 8, 25, 1, 59, 0, 0, time.UTC)
	clock := newFakeClock(start)
	runner := newTestRunner(t, clock, nil, nil)

	var runs atomic.Int32
	require.NoError(t, runner.Add("research_full", "0 2 * * *", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	entries := runner.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "cron", entries[0].Kind)
	assert.Equal(t, time.Date(2026, 8, 25, 2, 0, 0, 0, time.UTC), entries[0].Next.UTC())

	runner.Start(context.Background())
	defer runner.Stop()

	clock.Set(time.Date(2026, 8, 25, 2, 0, 1, 0, time.UTC))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Next fire moves to tomorrow.
	entries = runner.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, time.Date(2026, 8, 26, 2, 0, 0, 0, time.UTC), entries[0].Next.UTC())
}

func TestRunner_InvalidSpecs(t *testing.T) {
	runner := NewRunner(testCronConfig(), nil, nil)

	assert.Error(t, runner.Add("bad", "not a cron line", func(ctx context.Context) error { return nil }))
	assert.Error(t, runner.AddInterval("bad", 0, func(ctx context.Context) error { return nil }))
	assert.Empty(t, runner.Entries())
}

func TestRunner_DateEntries(t *testing.T) {
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	runner := newTestRunner(t, clock, nil, nil)

	var past, future atomic.Int32
	runner.AddDate("tweet_gen_2026-08-25_0", start.Add(-5*time.Minute), func(ctx context.Context) error {
		past.Add(1)
		return nil
	})
	runner.AddDate("tweet_gen_2026-08-25_1", start.Add(2*time.Hour), func(ctx context.Context) error {
		future.Add(1)
		return nil
	})

	runner.Start(context.Background())
	defer runner.Stop()

	// The overdue entry fires once on the first tick and removes itself.
	require.Eventually(t, func() bool { return past.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(runner.Entries()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "tweet_gen_2026-08-25_1", runner.Entries()[0].ID)

	// Consumed, not rescheduled.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), past.Load())

	runner.Remove("tweet_gen_2026-08-25_1")
	assert.Empty(t, runner.Entries())
	assert.Equal(t, int32(0), future.Load())
}

func TestRunner_ReaddingReplacesEntry(t *testing.T) {
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	runner := newTestRunner(t, clock, nil, nil)

	var old, replacement atomic.Int32
	runner.AddDate("tweet_gen_2026-08-25_0", start.Add(10*time.Minute), func(ctx context.Context) error {
		old.Add(1)
		return nil
	})
	runner.AddDate("tweet_gen_2026-08-25_0", start.Add(20*time.Minute), func(ctx context.Context) error {
		replacement.Add(1)
		return nil
	})

	entries := runner.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, start.Add(20*time.Minute), entries[0].Next.UTC())

	runner.Start(context.Background())
	defer runner.Stop()

	clock.Set(start.Add(21 * time.Minute))
	require.Eventually(t, func() bool { return replacement.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), old.Load())
}

func TestRunner_GateHaltsJobs(t *testing.T) {
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	gate := &stubGate{}
	gate.halted.Store(true)
	runner := newTestRunner(t, clock, gate, nil)

	var runs atomic.Int32
	require.NoError(t, runner.AddInterval("mention_monitor", 10*time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	runner.Start(context.Background())
	defer runner.Stop()

	// Due while halted: consumed but not run.
	clock.Set(start.Add(11 * time.Second))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	gate.halted.Store(false)
	clock.Set(start.Add(25 * time.Second))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRunner_PanicContainedAndAudited(t *testing.T) {
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	auditor := &captureAuditor{}
	runner := newTestRunner(t, clock, nil, auditor)

	var calls atomic.Int32
	require.NoError(t, runner.AddInterval("performance", 10*time.Second, func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			panic("nil metrics client")
		}
		return nil
	}))

	runner.Start(context.Background())
	defer runner.Stop()

	clock.Set(start.Add(11 * time.Second))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return len(auditor.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, auditor.all()[0], "periodic job performance failed")
	assert.Contains(t, auditor.all()[0], "job panicked")

	// The loop survives and runs the job again.
	clock.Set(start.Add(25 * time.Second))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, auditor.all(), 1)
}

func TestRunner_CapacityBound(t *testing.T) {
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	cfg := testCronConfig()
	cfg.MaxConcurrent = 1
	runner := NewRunner(cfg, nil, nil)
	runner.now = clock.Now

	release := make(chan struct{})
	var started, skippedRuns atomic.Int32
	require.NoError(t, runner.AddInterval("research_hot", 10*time.Second, func(ctx context.Context) error {
		started.Add(1)
		<-release
		return nil
	}))
	require.NoError(t, runner.AddInterval("research_warm", 12*time.Second, func(ctx context.Context) error {
		skippedRuns.Add(1)
		return nil
	}))

	runner.Start(context.Background())
	defer runner.Stop()

	clock.Set(start.Add(11 * time.Second))
	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Second job comes due while the only slot is held: skipped for that tick.
	clock.Set(start.Add(13 * time.Second))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), skippedRuns.Load())

	close(release)

	// Its next interval fires normally once the slot frees up.
	require.Eventually(t, func() bool {
		clock.Set(clock.Now().Add(15 * time.Second))
		return skippedRuns.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRunner_OverlapSkipped(t *testing.T) {
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	runner := newTestRunner(t, clock, nil, nil)

	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, runner.AddInterval("inbox_poll", 10*time.Second, func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}))

	runner.Start(context.Background())
	defer runner.Stop()

	clock.Set(start.Add(11 * time.Second))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Due again while the first run is blocked: no second concurrent run.
	clock.Set(start.Add(22 * time.Second))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	clock.Set(start.Add(35 * time.Second))
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRunner_RunNow(t *testing.T) {
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	runner := newTestRunner(t, clock, nil, nil)

	var runs atomic.Int32
	require.NoError(t, runner.AddInterval("inbox_poll", 30*time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	runner.Start(context.Background())
	defer runner.Stop()

	// The entry is not due for thirty seconds; the nudge fires it now.
	runner.RunNow("inbox_poll")
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// The cadence resumes from the nudge, not from the original schedule.
	clock.Set(start.Add(31 * time.Second))
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)

	runner.RunNow("no_such_job")
}
