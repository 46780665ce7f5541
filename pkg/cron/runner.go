// Package cron is the in-process periodic runner behind the agents: cron
// expressions for the daily jobs, intervals for the pollers, and one-shot
// date entries for planner-managed generation times. A one-second ticker
// drives everything; due jobs run on a bounded pool, each wrapped in the
// kill-switch gate and panic containment.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/metrics"
)

// Job is one periodic unit of work.
type Job func(ctx context.Context) error

// Gate decides whether jobs may run at all. Satisfied by the kill switch
// service; a nil gate never halts.
type Gate interface {
	Halted(ctx context.Context) bool
}

// Auditor records job failures in the audit log. Satisfied by the audit
// service; may be nil.
type Auditor interface {
	Warn(ctx context.Context, topic, message string)
}

// EntryInfo is the observable state of one registered entry.
type EntryInfo struct {
	ID   string    `json:"id"`
	Kind string    `json:"kind"`
	Next time.Time `json:"next"`
}

type entryKind int

const (
	kindCron entryKind = iota
	kindInterval
	kindDate
)

func (k entryKind) String() string {
	switch k {
	case kindCron:
		return "cron"
	case kindInterval:
		return "interval"
	default:
		return "date"
	}
}

type entry struct {
	id       string
	kind     entryKind
	schedule cronlib.Schedule
	every    time.Duration
	job      Job
	next     time.Time
	running  bool
}

// Runner owns the registered entries and the tick loop.
type Runner struct {
	cfg     *config.CronConfig
	gate    Gate
	auditor Auditor

	mu      sync.Mutex
	entries map[string]*entry
	started bool

	sem      chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// now is swapped out by tests to drive the clock.
	now func() time.Time
}

// NewRunner creates a periodic runner. gate and auditor may be nil.
func NewRunner(cfg *config.CronConfig, gate Gate, auditor Auditor) *Runner {
	if cfg == nil {
		cfg = config.DefaultCronConfig()
	}
	return &Runner{
		cfg:     cfg,
		gate:    gate,
		auditor: auditor,
		entries: make(map[string]*entry),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// Add registers a job under a standard five-field cron expression.
// Re-adding an existing id replaces the earlier entry.
func (r *Runner) Add(id, spec string, job Job) error {
	schedule, err := cronlib.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid cron spec %q for job %s: %w", spec, id, err)
	}
	now := r.now()
	r.put(&entry{id: id, kind: kindCron, schedule: schedule, job: job, next: schedule.Next(now)})
	return nil
}

// AddInterval registers a job that runs every fixed duration, first firing
// one interval from now.
func (r *Runner) AddInterval(id string, every time.Duration, job Job) error {
	if every <= 0 {
		return fmt.Errorf("interval for job %s must be positive, got %v", id, every)
	}
	r.put(&entry{id: id, kind: kindInterval, every: every, job: job, next: r.now().Add(every)})
	return nil
}

// AddDate registers a one-shot job for an absolute time. The entry removes
// itself once consumed; a time already in the past fires on the next tick.
func (r *Runner) AddDate(id string, at time.Time, job Job) {
	r.put(&entry{id: id, kind: kindDate, job: job, next: at})
}

// Remove drops an entry. Removing an unknown id is a no-op.
func (r *Runner) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// RunNow pulls an entry's next fire time to the present so the upcoming
// tick dispatches it. Interval and cron entries resume their normal
// cadence afterwards. Unknown ids are no-ops.
func (r *Runner) RunNow(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && !e.running {
		e.next = r.now()
	}
}

// Entries returns a snapshot sorted by next fire time.
func (r *Runner) Entries() []EntryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]EntryInfo, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, EntryInfo{ID: e.id, Kind: e.kind.String(), Next: e.next})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Next.Equal(infos[j].Next) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].Next.Before(infos[j].Next)
	})
	return infos
}

func (r *Runner) put(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.id]; exists {
		slog.Debug("Replacing cron entry", "job", e.id)
	}
	r.entries[e.id] = e
}

// Start launches the tick loop. Safe to call once; duplicates are no-ops.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		slog.Warn("Cron runner already started, ignoring duplicate Start call")
		return
	}
	r.started = true
	count := len(r.entries)
	r.mu.Unlock()

	slog.Info("Starting cron runner", "entries", count, "tick", r.cfg.Tick,
		"max_concurrent", r.cfg.MaxConcurrent)

	r.wg.Add(1)
	go r.run(ctx)
}

// Stop halts the tick loop and waits for in-flight jobs.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	slog.Info("Cron runner stopped")
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick dispatches every due entry. A due entry is always consumed: its
// next fire time advances (or the entry is removed for date kinds) no
// matter whether the run happened, was halted, or found the pool full.
func (r *Runner) tick(ctx context.Context) {
	now := r.now()
	halted := r.gate != nil && r.gate.Halted(ctx)

	due := r.collectDue(now)
	for _, e := range due {
		log := slog.With("job", e.id)
		if halted {
			log.Info("Skipping periodic job, kill switch active")
			metrics.CronRuns.WithLabelValues(e.id, "halted").Inc()
			continue
		}
		select {
		case r.sem <- struct{}{}:
		default:
			log.Warn("Skipping periodic job, runner at capacity")
			metrics.CronRuns.WithLabelValues(e.id, "at_capacity").Inc()
			r.clearRunning(e.id)
			continue
		}

		r.wg.Add(1)
		go r.runJob(ctx, e)
	}
}

// collectDue advances due entries under the lock and returns the ones to
// dispatch. Entries whose previous run is still going are skipped.
func (r *Runner) collectDue(now time.Time) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*entry
	for id, e := range r.entries {
		if e.next.After(now) {
			continue
		}
		switch e.kind {
		case kindCron:
			e.next = e.schedule.Next(now)
		case kindInterval:
			e.next = now.Add(e.every)
		case kindDate:
			delete(r.entries, id)
		}
		if e.running {
			slog.Debug("Skipping periodic job, previous run still in flight", "job", e.id)
			metrics.CronRuns.WithLabelValues(e.id, "overlap").Inc()
			continue
		}
		e.running = true
		due = append(due, e)
	}
	return due
}

func (r *Runner) clearRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.running = false
	}
}

func (r *Runner) runJob(ctx context.Context, e *entry) {
	defer r.wg.Done()
	defer func() { <-r.sem }()
	defer r.clearRunning(e.id)

	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()

	log := slog.With("job", e.id)
	start := time.Now()
	err := r.invoke(jobCtx, e.job)
	elapsed := time.Since(start)
	metrics.CronDuration.WithLabelValues(e.id).Observe(elapsed.Seconds())

	if err != nil {
		log.Error("Periodic job failed", "error", err, "elapsed", elapsed.Round(time.Millisecond))
		metrics.CronRuns.WithLabelValues(e.id, "error").Inc()
		if r.auditor != nil {
			r.auditor.Warn(context.WithoutCancel(jobCtx),
				"cron", fmt.Sprintf("periodic job %s failed: %v", e.id, err))
		}
		return
	}
	log.Debug("Periodic job finished", "elapsed", elapsed.Round(time.Millisecond))
	metrics.CronRuns.WithLabelValues(e.id, "ok").Inc()
}

// invoke runs the job with panic containment.
func (r *Runner) invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return job(ctx)
}
