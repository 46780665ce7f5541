// Package orchestrator assembles the daemon and owns its lifecycle: the
// boot sequence, periodic job registration, the heartbeat and status
// file, supervisor notifications, and graceful shutdown.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/showrunner-io/showrunner/pkg/api"
	"github.com/showrunner-io/showrunner/pkg/cleanup"
	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/cron"
	"github.com/showrunner-io/showrunner/pkg/database"
	"github.com/showrunner-io/showrunner/pkg/events"
	"github.com/showrunner-io/showrunner/pkg/growth"
	"github.com/showrunner-io/showrunner/pkg/masking"
	"github.com/showrunner-io/showrunner/pkg/modelrouter"
	"github.com/showrunner-io/showrunner/pkg/notify"
	"github.com/showrunner-io/showrunner/pkg/ops"
	"github.com/showrunner-io/showrunner/pkg/platform"
	"github.com/showrunner-io/showrunner/pkg/research"
	"github.com/showrunner-io/showrunner/pkg/sched"
	"github.com/showrunner-io/showrunner/pkg/services"
	"github.com/showrunner-io/showrunner/pkg/slack"
	"github.com/showrunner-io/showrunner/pkg/version"
)

const (
	// killSwitchCacheTTL bounds how stale a cached gate answer may be.
	// Hot paths check the gate on every action; 2 s keeps that off the
	// database without letting a halt linger unnoticed.
	killSwitchCacheTTL = 2 * time.Second

	shutdownTimeout   = 30 * time.Second
	serverStopTimeout = 5 * time.Second
)

// Orchestrator owns every long-lived component and the order they start
// and stop in. Construction wires; Run boots.
type Orchestrator struct {
	cfg      *config.Config
	db       *database.Client
	logger   *slog.Logger
	instance string

	publisher     *events.EventPublisher
	audit         *services.AuditService
	kill          *services.KillSwitchService
	checkins      *services.CheckinService
	budget        *services.BudgetService
	memory        *services.MemoryService
	approvals     *services.ApprovalService
	schedules     *services.ScheduleService
	plans         *services.PlanService
	researchStore *services.ResearchService
	growthStore   *services.GrowthService
	warnings      *services.SystemWarningsService

	model     *modelrouter.Client
	adapters  *platform.Adapters
	notifier  *notify.Notifier
	alerts    *alertSink
	cron      *cron.Runner
	scheduler *sched.Runner
	cleaner   *cleanup.Service
	executors *ops.Executors
	inbox     *ops.Inbox
	gapCheck  *ops.GapCheck
	growth    *growth.Agent
	planner   *growth.Planner
	generator *growth.Generator
	pipeline  *research.Pipeline
	server    *api.Server

	statusPath string
	startedAt  time.Time

	mu            sync.Mutex
	lastHeartbeat time.Time

	runCancel    context.CancelFunc
	wg           sync.WaitGroup
	serverErr    chan error
	shutdownOnce sync.Once
}

// New wires the full component graph. Nothing starts running until Run.
// A missing model API key or Slack token degrades the affected surface
// instead of failing construction, so the daemon can come up read-only.
func New(cfg *config.Config, db *database.Client) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		db:         db,
		logger:     slog.Default().With("component", "orchestrator"),
		instance:   resolveInstance(),
		statusPath: cfg.ResolvePath(cfg.Status.File),
		serverErr:  make(chan error, 1),
	}

	// Stores and durable services.
	o.warnings = services.NewSystemWarningsService()
	o.publisher = events.NewEventPublisher(db.DB())
	o.audit = services.NewAuditService(db.DBX(), masking.NewService())
	o.kill = services.NewKillSwitchService(db.DBX(), o.audit, killSwitchCacheTTL)
	o.checkins = services.NewCheckinService(db.DBX())
	o.budget = services.NewBudgetService(db.DBX(), budgetLimits(cfg))
	o.model = buildModel(cfg, o.budget)
	o.memory = services.NewMemoryService(db.DBX(), o.model)
	o.approvals = services.NewApprovalService(db.DBX(), o.publisher)
	o.schedules = services.NewScheduleService(db.DBX(), o.publisher)
	o.plans = services.NewPlanService(db.DBX())
	o.researchStore = services.NewResearchService(db.DBX())
	o.growthStore = services.NewGrowthService(db.DBX())

	// Outbound surfaces. The alert sink hangs off the audit log so
	// critical entries page the operator without a second write path.
	o.adapters = platform.FromConfig(cfg.Platform)
	transport := slackTransport(cfg.Slack)
	o.notifier = notify.NewNotifier(cfg.Notify, transport, o.checkins)
	o.alerts = newAlertSink(o.notifier)
	o.audit.SetAlertSink(o.alerts)
	o.recordDegradedSurfaces(transport)

	// Runners.
	o.scheduler = sched.NewRunner(o.instance, o.schedules, cfg.Scheduler)
	o.scheduler.SetGate(o.kill)
	o.cron = cron.NewRunner(cfg.Cron, o.kill, o.audit)

	// Agents.
	o.pipeline = research.New(research.Deps{
		Store:        o.researchStore,
		Memory:       o.memory,
		Approvals:    o.approvals,
		Model:        o.model,
		Notifier:     o.notifier,
		Config:       cfg.Research,
		Persona:      cfg.Persona,
		Project:      cfg.Project,
		KnowledgeDir: cfg.ResolvePath(cfg.Research.KnowledgeDir),
		TodoPath:     cfg.ResolvePath(cfg.Research.TodoFile),
	})
	if _, off := o.adapters.Twitter.(platform.DisabledTwitter); !off && len(cfg.Research.TwitterQueries) > 0 {
		o.pipeline.Register(research.NewTwitterScraper(o.adapters.Twitter, cfg.Research.TwitterQueries))
	}
	o.growth = growth.NewAgent(growth.Deps{
		Store:     o.growthStore,
		Approvals: o.approvals,
		Memory:    o.memory,
		Notifier:  o.notifier,
		Model:     o.model,
		Twitter:   o.adapters.Twitter,
		Gate:      o.kill,
		Config:    cfg.Growth,
		Persona:   cfg.Persona,
		Project:   cfg.Project,
	})
	o.generator = growth.NewGenerator(o.approvals, o.memory, o.notifier, o.model,
		o.kill, cfg.Persona, cfg.Project)
	o.planner = growth.NewPlanner(o.plans, o.growthStore, o.schedules, cfg.Planner,
		rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))

	// Operator surfaces.
	o.executors = ops.NewExecutors(ops.ExecutorDeps{
		Twitter:     o.adapters.Twitter,
		Distributor: o.adapters.Distributor,
		Memory:      o.memory,
		Approvals:   o.approvals,
		Notifier:    o.notifier,
	})
	handlers := ops.NewHandlers(ops.HandlerDeps{
		Approvals: o.approvals,
		Schedules: o.schedules,
		Executors: o.executors,
		Renderer:  o.adapters.Renderer,
		Memory:    o.memory,
		Notifier:  o.notifier,
		Wake:      o.scheduler.Wake,
	})
	o.inbox = ops.NewInbox(cfg.ResolvePath(cfg.Inbox.Dir), handlers, o.audit, o.kill)
	o.gapCheck = ops.NewGapCheck(o.approvals, o.generator, o.notifier, o.kill,
		cfg.Growth, cfg.Project)

	o.cleaner = cleanup.NewService(cleanup.Deps{
		Retention:      cfg.Retention,
		ApprovalExpiry: time.Duration(cfg.Approvals.ExpiryHours) * time.Hour,
		Approvals:      o.approvals,
		Checkins:       o.checkins,
		AuditLog:       o.audit,
		EventStream:    o.publisher,
		Plans:          o.plans,
		Research:       o.researchStore,
		Growth:         o.growthStore,
		Auditor:        o.audit,
	})

	o.server = api.NewServer(api.Deps{
		DB:         db,
		Approvals:  o.approvals,
		Schedules:  o.schedules,
		Plans:      o.plans,
		Research:   o.researchStore,
		KillSwitch: o.kill,
		Status:     o,
	})

	return o
}

// Run boots the daemon and blocks until a termination signal, a fatal
// HTTP server error, or context cancellation, then shuts down.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startedAt = time.Now().UTC()
	runCtx, cancel := context.WithCancel(ctx)
	o.runCancel = cancel

	o.logger.Info("Starting",
		"instance", o.instance,
		"version", version.Full(),
		"project", o.cfg.Project)

	// 1. Memory decay runs before the agents wake up, so relevance
	// reflects the downtime that just ended.
	if stats, err := o.memory.DecayMemories(runCtx); err != nil {
		o.logger.Warn("Memory decay failed", "error", err)
	} else {
		o.logger.Info("Memory decay complete",
			"decayed", stats.Decayed, "clamped", stats.Clamped, "pruned", stats.Pruned)
	}

	// 2. Status file and online announcement.
	o.announceOnline(runCtx)

	// 3. Content executors.
	o.executors.Register(o.scheduler)

	// 4. Periodic jobs.
	if err := o.registerJobs(); err != nil {
		cancel()
		return fmt.Errorf("registering jobs: %w", err)
	}

	// 5. Durable runners and background loops. Claims released first so
	// work orphaned by the previous process is picked up immediately.
	if released, err := o.schedules.ReleaseStartupClaims(runCtx); err != nil {
		o.logger.Warn("Releasing stale schedule claims failed", "error", err)
	} else if released > 0 {
		o.logger.Info("Released stale schedule claims", "count", released)
	}
	o.scheduler.Start(runCtx)
	o.cron.Start(runCtx)
	o.cleaner.Start(runCtx)
	o.alerts.Start()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.inbox.Watch(runCtx, func() { o.cron.RunNow(jobInboxPoll) }); err != nil {
			o.logger.Warn("Inbox watcher stopped, polling only", "error", err)
			o.warnings.AddWarning(services.WarningCategoryInbox, "watcher",
				"Inbox watcher stopped; relying on periodic polling", err.Error())
		}
	}()

	addr := fmt.Sprintf("%s:%d", o.cfg.Server.Host, o.cfg.Server.Port)
	go func() {
		o.logger.Info("HTTP server listening", "addr", addr)
		if err := o.server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.serverErr <- err
		}
	}()

	// 6. One-shot boot jobs, supervisor readiness, watchdog.
	o.registerBootJobs(time.Now().UTC())
	if ok, err := notifySupervisor("READY=1"); err != nil {
		o.logger.Warn("Supervisor readiness notification failed", "error", err)
	} else if ok {
		o.logger.Info("Supervisor notified ready")
	}
	o.wg.Add(1)
	go o.watchdog(runCtx)

	o.logger.Info("Boot complete", "jobs", len(o.cron.Entries()))

	// 7. Block until something ends the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		o.logger.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-o.serverErr:
		o.logger.Error("HTTP server failed", "error", err)
	case <-ctx.Done():
		o.logger.Info("Context cancelled, shutting down")
	}
	return o.Shutdown()
}

// Shutdown stops everything in dependency order: announce while the
// transport is still up, silence the heartbeat, drain the runners, then
// close the HTTP surface. Safe to call more than once and tolerant of a
// partially constructed orchestrator.
func (o *Orchestrator) Shutdown() error {
	o.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		o.logger.Info("Shutting down")
		if _, err := notifySupervisor("STOPPING=1"); err != nil {
			o.logger.Warn("Supervisor stop notification failed", "error", err)
		}
		if o.notifier != nil {
			o.notifier.Notify(ctx, "system", "shutdown",
				fmt.Sprintf("%s going offline (instance %s).", version.AppName, o.instance))
		}

		// Stop the watcher and watchdog before writing the offline
		// record, or a late heartbeat would flip it back to online.
		if o.runCancel != nil {
			o.runCancel()
		}
		o.wg.Wait()
		if o.statusPath != "" {
			if err := writeStatus(o.statusPath, false, "stopped", time.Now().UTC()); err != nil {
				o.logger.Warn("Offline status write failed", "error", err)
			}
		}

		if o.cron != nil {
			o.cron.Stop()
		}
		if o.scheduler != nil {
			o.scheduler.Stop()
		}
		if o.cleaner != nil {
			o.cleaner.Stop()
		}
		if o.audit != nil {
			o.audit.SetAlertSink(nil)
		}
		if o.alerts != nil {
			o.alerts.Stop()
		}
		if o.server != nil {
			srvCtx, srvCancel := context.WithTimeout(ctx, serverStopTimeout)
			if err := o.server.Shutdown(srvCtx); err != nil {
				o.logger.Warn("HTTP server shutdown failed", "error", err)
			}
			srvCancel()
		}
		o.logger.Info("Shutdown complete")
	})
	return nil
}

// SystemStatus implements api.StatusSource.
func (o *Orchestrator) SystemStatus(context.Context) api.SystemStatus {
	o.mu.Lock()
	hb := o.lastHeartbeat
	o.mu.Unlock()
	return api.SystemStatus{
		Instance:      o.instance,
		Version:       version.GitCommit,
		StartedAt:     o.startedAt,
		LastHeartbeat: hb,
		Scheduler:     o.scheduler.Health(),
		Jobs:          o.cron.Entries(),
		Warnings:      o.warnings.GetWarnings(),
	}
}

// recordDegradedSurfaces files a status warning for each surface the
// daemon came up without. Surfaces disabled on purpose in configuration
// stay quiet; a surface that was enabled but failed to resolve its
// credentials is worth the operator's attention.
func (o *Orchestrator) recordDegradedSurfaces(transport notify.Transport) {
	if o.model == nil {
		o.warnings.AddWarning(services.WarningCategoryModel, "router",
			"Model router disabled; drafting, evaluation, and goal detection are idle",
			"no API key in "+o.cfg.LLM.APIKeyEnv)
	}
	if p := o.cfg.Platform; p != nil {
		if p.Twitter != nil && p.Twitter.Enabled {
			if _, off := o.adapters.Twitter.(platform.DisabledTwitter); off {
				o.warnings.AddWarning(services.WarningCategoryPlatform, "twitter",
					"Twitter enabled but unavailable; growth and publishing are idle", "")
			}
		}
		if p.Distributor != nil && p.Distributor.Enabled {
			if _, off := o.adapters.Distributor.(platform.DisabledDistributor); off {
				o.warnings.AddWarning(services.WarningCategoryPlatform, "distributor",
					"Video distributor enabled but unavailable", "")
			}
		}
		if p.Renderer != nil && p.Renderer.Enabled {
			if _, off := o.adapters.Renderer.(platform.DisabledRenderer); off {
				o.warnings.AddWarning(services.WarningCategoryPlatform, "renderer",
					"Video renderer enabled but unavailable", "")
			}
		}
	}
	if transport == nil && o.cfg.Slack != nil && o.cfg.Slack.Enabled {
		o.warnings.AddWarning(services.WarningCategoryTransport, "slack",
			"Slack enabled but unavailable; operator messages go to the log only",
			"check "+o.cfg.Slack.TokenEnv+" and the channel id")
	}
}

// announceOnline decides whether this boot deserves an operator ping.
// Quick restarts inside the heartbeat window stay quiet.
func (o *Orchestrator) announceOnline(ctx context.Context) {
	prev, err := readStatus(o.statusPath)
	if err != nil {
		o.logger.Warn("Previous status unreadable", "error", err)
	}
	if shouldAnnounce(prev, time.Now().UTC(), o.cfg.Status.OfflineGap) {
		o.notifier.Notify(ctx, "system", "startup",
			fmt.Sprintf("%s online (instance %s, version %s).",
				version.AppName, o.instance, version.GitCommit))
	} else {
		o.logger.Info("Restart within heartbeat window, skipping online announcement")
	}
	o.writeHeartbeat()
}

// watchdog refreshes the status file and pets the supervisor on the
// heartbeat cadence.
func (o *Orchestrator) watchdog(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.Status.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.writeHeartbeat()
			if _, err := notifySupervisor("WATCHDOG=1"); err != nil {
				o.logger.Warn("Watchdog notification failed", "error", err)
			}
		}
	}
}

func (o *Orchestrator) writeHeartbeat() {
	now := time.Now().UTC()
	if err := writeStatus(o.statusPath, true, "running", now); err != nil {
		o.logger.Warn("Status file write failed", "error", err)
		return
	}
	o.mu.Lock()
	o.lastHeartbeat = now
	o.mu.Unlock()
}

// buildModel constructs the tiered model router. An empty API key leaves
// it nil; a nil *modelrouter.Client answers every call with
// ErrNotConfigured, so dependents take it unconditionally.
func buildModel(cfg *config.Config, budget *services.BudgetService) *modelrouter.Client {
	key := os.Getenv(cfg.LLM.APIKeyEnv)
	if key == "" {
		slog.Warn("Model router disabled, no API key in environment", "env", cfg.LLM.APIKeyEnv)
		return nil
	}
	client, err := modelrouter.NewFromAPIKey(key, budget, modelrouter.Config{
		ProjectID: cfg.Project,
		Cheap: modelrouter.ModelSpec{
			ID:            cfg.LLM.CheapModel,
			InputPerMTok:  cfg.LLM.CostPerMTokIn,
			OutputPerMTok: cfg.LLM.CostPerMTokOut,
		},
		Mid: modelrouter.ModelSpec{
			ID:            cfg.LLM.MidModel,
			InputPerMTok:  cfg.LLM.CostPerMTokIn,
			OutputPerMTok: cfg.LLM.CostPerMTokOut,
		},
		High: modelrouter.ModelSpec{
			ID:            cfg.LLM.HighModel,
			InputPerMTok:  cfg.LLM.CostPerMTokIn,
			OutputPerMTok: cfg.LLM.CostPerMTokOut,
		},
		MaxTokens: int64(cfg.LLM.MaxTokens),
		Timeout:   cfg.LLM.Timeout,
	})
	if err != nil {
		slog.Warn("Model router disabled", "error", err)
		return nil
	}
	return client
}

// slackTransport builds the notifier transport, or nil when Slack is
// disabled or incompletely configured. The nil check happens here, on
// the concrete type, so a missing transport reaches the notifier as a
// true nil interface.
func slackTransport(cfg *config.SlackConfig) notify.Transport {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	svc := slack.NewService(slack.ServiceConfig{
		Token:   os.Getenv(cfg.TokenEnv),
		Channel: cfg.Channel,
	})
	if svc == nil {
		slog.Warn("Slack transport not configured",
			"token_env", cfg.TokenEnv, "channel", cfg.Channel)
		return nil
	}
	return svc
}

// budgetLimits resolves the spend ceiling for the daemon's project,
// falling back to the default pair.
func budgetLimits(cfg *config.Config) services.BudgetLimits {
	limits := cfg.Budget.Default
	if project, ok := cfg.Budget.Projects[cfg.Project]; ok {
		limits = project
	}
	return services.BudgetLimits{DailyUSD: limits.DailyUSD, MonthlyUSD: limits.MonthlyUSD}
}

// resolveInstance names this process for schedule claims and status
// reporting. Prefers an explicit INSTANCE_ID, then the hostname.
func resolveInstance() string {
	if id := os.Getenv("INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
