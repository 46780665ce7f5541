// Package sched runs the durable content scheduler: a small worker pool
// that claims due jobs from the database and hands each one to the
// executor registered for its content type. Claims go through a single
// SKIP LOCKED update, so any number of workers (or processes) can poll
// the same table without double-running a job.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/services"
)

// Executor runs one kind of scheduled content job. The returned string
// is persisted as the job result.
type Executor interface {
	Execute(ctx context.Context, job *models.ScheduledContent) (string, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, job *models.ScheduledContent) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, job *models.ScheduledContent) (string, error) {
	return f(ctx, job)
}

// Gate pauses claiming when the kill switch is active. Due jobs stay
// pending and fire once the switch lifts. Satisfied by
// *services.KillSwitchService.
type Gate interface {
	Halted(ctx context.Context) bool
}

// RunnerHealth is a snapshot of the runner state for health endpoints.
type RunnerHealth struct {
	Workers    int `json:"workers"`
	ActiveJobs int `json:"active_jobs"`
	Executed   int `json:"executed"`
	Failed     int `json:"failed"`
}

// Runner polls for due jobs and executes them on a bounded worker pool.
type Runner struct {
	instance  string
	schedules *services.ScheduleService
	cfg       *config.SchedulerConfig
	gate      Gate

	mu        sync.RWMutex
	executors map[string]Executor
	started   bool
	active    int
	executed  int
	failed    int

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner creates a scheduler runtime for the given instance name. The
// instance name is recorded on claimed rows so stale claims can be traced
// back to the process that took them.
func NewRunner(instance string, schedules *services.ScheduleService, cfg *config.SchedulerConfig) *Runner {
	if schedules == nil {
		panic("sched: runner requires a schedule service")
	}
	if cfg == nil {
		cfg = config.DefaultSchedulerConfig()
	}
	return &Runner{
		instance:  instance,
		schedules: schedules,
		cfg:       cfg,
		executors: make(map[string]Executor),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// SetGate installs the kill-switch gate. Must be called before Start.
func (r *Runner) SetGate(gate Gate) {
	r.gate = gate
}

// RegisterExecutor binds an executor to a content type. Registering the
// same type twice replaces the earlier executor.
func (r *Runner) RegisterExecutor(contentType string, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[contentType]; exists {
		slog.Warn("Replacing scheduler executor", "content_type", contentType)
	}
	r.executors[contentType] = executor
}

// Start spawns the worker goroutines. Safe to call once; subsequent calls
// are no-ops.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		slog.Warn("Scheduler already started, ignoring duplicate Start call")
		return
	}
	r.started = true
	workers := r.cfg.MaxWorkers
	r.mu.Unlock()

	slog.Info("Starting scheduler", "instance", r.instance, "workers", workers,
		"poll_interval", r.cfg.PollInterval)

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.runWorker(ctx, fmt.Sprintf("%s-sched-%d", r.instance, i))
	}
}

// Stop signals the workers and waits for in-flight executors, bounded by
// the graceful shutdown timeout. A job still running when the timeout
// expires keeps its claim; the startup sweep of the next process re-arms it.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Scheduler stopped")
	case <-time.After(r.cfg.GracefulShutdownTimeout):
		slog.Warn("Scheduler shutdown timed out with executors still running")
	}
}

// Wake nudges an idle worker to poll immediately instead of waiting out
// the current interval. Used after scheduling a job that is already due.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Health returns a snapshot of worker and job counters.
func (r *Runner) Health() RunnerHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RunnerHealth{
		Workers:    r.cfg.MaxWorkers,
		ActiveJobs: r.active,
		Executed:   r.executed,
		Failed:     r.failed,
	}
}

func (r *Runner) runWorker(ctx context.Context, id string) {
	defer r.wg.Done()

	log := slog.With("worker", id)
	log.Info("Scheduler worker started")

	for {
		select {
		case <-r.stopCh:
			log.Info("Scheduler worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, scheduler worker shutting down")
			return
		default:
			if r.gate != nil && r.gate.Halted(ctx) {
				r.sleep(ctx, r.cfg.PollInterval)
				continue
			}
			ran, err := r.claimAndExecute(ctx)
			if err != nil {
				log.Error("Scheduler poll failed", "error", err)
				r.sleep(ctx, time.Second)
				continue
			}
			if !ran {
				r.sleep(ctx, r.cfg.PollInterval)
			}
		}
	}
}

// sleep waits out the poll interval, or returns early on stop, context
// cancellation, or a Wake nudge.
func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-r.stopCh:
	case <-ctx.Done():
	case <-r.wake:
	case <-timer.C:
	}
}

// claimAndExecute claims the oldest due job, if any, and runs it to a
// terminal status. Returns false when nothing was due.
func (r *Runner) claimAndExecute(ctx context.Context) (bool, error) {
	job, err := r.schedules.ClaimNextDue(ctx, r.instance, r.cfg.ClaimStaleAfter)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := slog.With("job_id", job.JobID, "content_type", job.ContentType)
	if lateBy := time.Since(job.ScheduledTime); lateBy > time.Minute {
		log.Info("Executing overdue job", "late_by", lateBy.Round(time.Second))
	}

	r.setActive(1)
	defer r.setActive(-1)

	executor := r.executorFor(job.ContentType)
	if executor == nil {
		reason := fmt.Sprintf("no executor registered for content type %q", job.ContentType)
		log.Error("Failing unexecutable job", "reason", reason)
		r.finish(job.JobID, "", errors.New(reason), log)
		return true, nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.ExecutorTimeout)
	defer cancel()

	start := time.Now()
	result, execErr := r.execute(jobCtx, executor, job)
	elapsed := time.Since(start).Round(time.Millisecond)

	if execErr != nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		execErr = fmt.Errorf("timed out after %v: %w", r.cfg.ExecutorTimeout, execErr)
	}
	if execErr != nil {
		log.Error("Scheduled job failed", "error", execErr, "elapsed", elapsed)
	} else {
		log.Info("Scheduled job executed", "elapsed", elapsed)
	}
	r.finish(job.JobID, result, execErr, log)
	return true, nil
}

// execute invokes the executor with panic containment so one bad handler
// cannot take down the worker.
func (r *Runner) execute(ctx context.Context, executor Executor, job *models.ScheduledContent) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("executor panicked: %v", rec)
		}
	}()
	return executor.Execute(ctx, job)
}

// finish writes the terminal status. Uses a fresh context so a cancelled
// job context cannot block the status update.
func (r *Runner) finish(jobID, result string, execErr error, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if execErr != nil {
		err = r.schedules.Fail(ctx, jobID, execErr.Error())
		r.count(&r.failed)
	} else {
		err = r.schedules.Complete(ctx, jobID, result)
		r.count(&r.executed)
	}
	if err != nil {
		log.Error("Failed to record job terminal status", "error", err)
	}
}

func (r *Runner) executorFor(contentType string) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executors[contentType]
}

func (r *Runner) setActive(delta int) {
	r.mu.Lock()
	r.active += delta
	r.mu.Unlock()
}

func (r *Runner) count(counter *int) {
	r.mu.Lock()
	*counter++
	r.mu.Unlock()
}
