package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/showrunner-io/showrunner/pkg/growth"
	"github.com/showrunner-io/showrunner/pkg/research"
)

// Job IDs. Date entries for tweet generation use the IDs minted by
// growth.GenerationTimes instead.
const (
	jobResearchFull   = "research_full"
	jobResearchHot    = "research_hot"
	jobResearchWarm   = "research_warm"
	jobDailyPlan      = "daily_plan"
	jobDailyPlanBoot  = "daily_plan_boot"
	jobInboxPoll      = "inbox_poll"
	jobMentionMonitor = "mention_monitor"
	jobReplyTargets   = "reply_targets"
	jobPerformance    = "performance"
	jobDailyReport    = "daily_report"
	jobContentGapBoot = "content_gap_boot"
)

// registerJobs installs the periodic schedule. Cron-expression entries
// pin work to local wall-clock times (quiet hours for the heavy research
// cycle, mornings for planning and reporting); interval entries just need
// a steady cadence.
func (o *Orchestrator) registerJobs() error {
	type cronJob struct {
		id   string
		spec string
		fn   func(context.Context) error
	}
	type intervalJob struct {
		id    string
		every time.Duration
		fn    func(context.Context) error
	}

	cronJobs := []cronJob{
		{jobResearchFull, "0 2 * * *", o.researchJob(research.CycleFull)},
		{jobDailyPlan, "0 6 * * *", o.planDay},
		{jobDailyReport, "0 7 * * *", o.growth.DailyReport},
	}
	intervalJobs := []intervalJob{
		{jobResearchHot, 3 * time.Hour, o.researchJob(research.CycleHot)},
		{jobResearchWarm, 10 * time.Hour, o.researchJob(research.CycleWarm)},
		{jobInboxPoll, o.cfg.Inbox.PollInterval, o.inbox.Poll},
		{jobMentionMonitor, 15 * time.Minute, o.growth.MonitorMentions},
		{jobReplyTargets, 6 * time.Hour, o.growth.FindReplyTargets},
		{jobPerformance, 4 * time.Hour, o.growth.TrackPerformance},
	}

	for _, j := range cronJobs {
		if err := o.cron.Add(j.id, j.spec, j.fn); err != nil {
			return fmt.Errorf("registering %s: %w", j.id, err)
		}
	}
	for _, j := range intervalJobs {
		if err := o.cron.AddInterval(j.id, j.every, j.fn); err != nil {
			return fmt.Errorf("registering %s: %w", j.id, err)
		}
	}
	return nil
}

// registerBootJobs queues the one-shot startup work as date entries so it
// runs under the same gate, audit, and timeout regime as everything else.
// The delays let the HTTP surface and scheduler come up first.
func (o *Orchestrator) registerBootJobs(now time.Time) {
	o.cron.AddDate(jobDailyPlanBoot, now.Add(30*time.Second), o.planDay)
	o.cron.AddDate(jobContentGapBoot, now.Add(time.Minute), o.gapCheck.Run)
}

func (o *Orchestrator) researchJob(kind string) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := o.pipeline.Run(ctx, kind)
		return err
	}
}

// planDay makes sure today's plan exists and keeps one date entry per
// upcoming slot, each generating the draft that feeds that slot. Slot
// entry IDs are deterministic per date and index, so re-running after a
// restart replaces entries instead of stacking duplicates.
func (o *Orchestrator) planDay(ctx context.Context) error {
	now := time.Now().UTC()
	plan, created, err := o.planner.PlanDay(ctx, now)
	if err != nil {
		return fmt.Errorf("planning day: %w", err)
	}
	slots, err := plan.Slots()
	if err != nil {
		return fmt.Errorf("decoding plan slots: %w", err)
	}
	entries := growth.GenerationTimes(now, slots, o.cfg.Planner.GenerationLead, now)
	for _, entry := range entries {
		o.cron.AddDate(entry.ID, entry.At, o.generateOne)
	}
	o.logger.Info("Daily plan in place",
		"date", now.Format("2006-01-02"),
		"created", created,
		"slots", len(slots),
		"generation_entries", len(entries))
	return nil
}

func (o *Orchestrator) generateOne(ctx context.Context) error {
	_, err := o.generator.GenerateBatch(ctx, 1)
	return err
}
