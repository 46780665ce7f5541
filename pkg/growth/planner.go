package growth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/services"
)

// Plans is the plan persistence slice. Satisfied by *services.PlanService.
type Plans interface {
	SavePlan(ctx context.Context, date time.Time, slots []time.Time) (*models.DailyPlan, bool, error)
	PlanForDate(ctx context.Context, date time.Time) (*models.DailyPlan, error)
}

// History exposes hour-of-day engagement statistics. Satisfied by
// *services.GrowthService.
type History interface {
	HourlyPerformance(ctx context.Context, loc *time.Location) ([]services.HourPerformance, error)
}

// Schedules is the pending-jobs view NextPlannedSlot consults. Satisfied
// by *services.ScheduleService.
type Schedules interface {
	GetPending(ctx context.Context) ([]models.ScheduledContent, error)
}

// clampGap is the minimum spacing the final drop pass enforces. Slightly
// under the generation minimum so slots the gap pass legally placed at
// exactly two hours survive rounding.
const clampGap = 115 * time.Minute

// bestHourCount is how many top-performing hours feed the biased pick.
const bestHourCount = 5

// Planner produces one posting timetable per day: slots inside the waking
// window, odd minutes, two-to-six hours apart, biased toward hours that
// performed well historically. The RNG is injected so tests can seed it.
type Planner struct {
	plans   Plans
	history History
	sched   Schedules
	cfg     *config.PlannerConfig
	rng     *rand.Rand
	logger  *slog.Logger
}

// NewPlanner creates a planner. rng may be nil, in which case a
// time-seeded source is used.
func NewPlanner(plans Plans, history History, sched Schedules, cfg *config.PlannerConfig, rng *rand.Rand) *Planner {
	if plans == nil {
		panic("planner requires plan storage")
	}
	if cfg == nil {
		cfg = config.DefaultPlannerConfig()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(time.Now().Unix())))
	}
	return &Planner{
		plans:   plans,
		history: history,
		sched:   sched,
		cfg:     cfg,
		rng:     rng,
		logger:  slog.Default().With("component", "growth.planner"),
	}
}

// PlanDay returns the plan for the date, generating and persisting one if
// none exists. created reports whether this call generated it.
func (p *Planner) PlanDay(ctx context.Context, date time.Time) (*models.DailyPlan, bool, error) {
	existing, err := p.plans.PlanForDate(ctx, date)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, false, fmt.Errorf("loading plan: %w", err)
	}

	slots := p.generateSlots(ctx, date)
	if len(slots) == 0 {
		return nil, false, fmt.Errorf("slot generation produced no slots for %s", date.Format("2006-01-02"))
	}

	plan, created, err := p.plans.SavePlan(ctx, date, slots)
	if err != nil {
		return nil, false, fmt.Errorf("saving plan: %w", err)
	}
	if created {
		p.logger.Info("Daily plan created",
			"date", date.Format("2006-01-02"), "slots", len(slots))
	}
	return plan, created, nil
}

// generateSlots runs the slot algorithm: segment the window, pick an hour
// per segment (historically biased when enough data exists), jitter the
// minute, then repair and prune the spacing.
func (p *Planner) generateSlots(ctx context.Context, date time.Time) []time.Time {
	n := p.cfg.MinPosts
	if spread := p.cfg.MaxPosts - p.cfg.MinPosts; spread > 0 {
		n += p.rng.IntN(spread + 1)
	}
	if n < 1 {
		n = 1
	}

	windowStart := float64(p.cfg.WindowStartHour)
	windowHours := float64(p.cfg.WindowEndHour - p.cfg.WindowStartHour)
	segment := windowHours / float64(n)
	best := p.bestHours(ctx)

	year, month, day := date.UTC().Date()
	slots := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		segStart := windowStart + float64(i)*segment
		hour := p.pickHour(segStart, segStart+segment, best)
		slots = append(slots, time.Date(year, month, day, hour, p.organicMinute(), 0, 0, time.UTC))
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })

	minGap := time.Duration(p.cfg.MinGapMinutes) * time.Minute
	maxGap := time.Duration(p.cfg.MaxGapMinutes) * time.Minute
	for pass := 0; pass < 3; pass++ {
		moved := false
		for i := 1; i < len(slots); i++ {
			gap := slots[i].Sub(slots[i-1])
			switch {
			case gap < minGap:
				slots[i] = slots[i-1].Add(minGap + time.Duration(p.rng.IntN(16))*time.Minute)
				slots[i] = p.withOrganicMinute(slots[i])
				moved = true
			case gap > maxGap:
				slots[i] = slots[i-1].Add(gap / 2)
				slots[i] = p.withOrganicMinute(slots[i])
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	kept := slots[:1]
	for i := 1; i < len(slots); i++ {
		if slots[i].Sub(kept[len(kept)-1]) >= clampGap {
			kept = append(kept, slots[i])
		}
	}
	if len(kept) < n {
		p.logger.Warn("Spacing clamp dropped slots", "wanted", n, "kept", len(kept))
	}

	lastHour := p.cfg.WindowEndHour - 1
	for i, slot := range kept {
		switch {
		case slot.Hour() < p.cfg.WindowStartHour:
			kept[i] = time.Date(year, month, day, p.cfg.WindowStartHour, slot.Minute(), 0, 0, time.UTC)
		case slot.Hour() > lastHour:
			kept[i] = time.Date(year, month, day, lastHour, slot.Minute(), 0, 0, time.UTC)
		}
	}
	return kept
}

// bestHours returns the top engagement hours, or nil when history is too
// thin to trust.
func (p *Planner) bestHours(ctx context.Context) map[int]bool {
	if p.history == nil {
		return nil
	}
	perf, err := p.history.HourlyPerformance(ctx, time.UTC)
	if err != nil {
		p.logger.Warn("Hourly history unavailable, planning uniformly", "error", err)
		return nil
	}

	total := 0
	var eligible []services.HourPerformance
	for _, h := range perf {
		total += h.Samples
		if h.Samples >= 3 {
			eligible = append(eligible, h)
		}
	}
	if total < p.cfg.HistoryMinSamples || len(eligible) == 0 {
		return nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].AvgImpressions > eligible[j].AvgImpressions
	})
	if len(eligible) > bestHourCount {
		eligible = eligible[:bestHourCount]
	}
	best := make(map[int]bool, len(eligible))
	for _, h := range eligible {
		best[h.Hour] = true
	}
	return best
}

// pickHour chooses an hour inside [segStart, segEnd). With 0.6 probability
// a historically strong hour inside the segment wins; otherwise the pick
// is uniform over the segment.
func (p *Planner) pickHour(segStart, segEnd float64, best map[int]bool) int {
	if len(best) > 0 && p.rng.Float64() < 0.6 {
		var inSegment []int
		for h := int(segStart); float64(h) < segEnd; h++ {
			if float64(h) >= segStart && best[h] {
				inSegment = append(inSegment, h)
			}
		}
		if len(inSegment) > 0 {
			return inSegment[p.rng.IntN(len(inSegment))]
		}
	}
	return int(segStart + p.rng.Float64()*(segEnd-segStart))
}

// organicMinute draws a minute in [1,58] that is not :30. Posts landing
// exactly on :00 or :30 read as machine-scheduled.
func (p *Planner) organicMinute() int {
	for {
		m := 1 + p.rng.IntN(58)
		if m != 30 {
			return m
		}
	}
}

func (p *Planner) withOrganicMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), p.organicMinute(), 0, 0, time.UTC)
}

// GenEntry is one generation job derived from a plan slot.
type GenEntry struct {
	ID string
	At time.Time
}

// GenerationTimes maps plan slots to the date-triggered generation jobs
// that should precede them. Slots whose generation time already passed
// are skipped. IDs are deterministic per date and index so re-planning
// replaces entries instead of duplicating them.
func GenerationTimes(date time.Time, slots []time.Time, lead time.Duration, now time.Time) []GenEntry {
	day := date.UTC().Format("2006-01-02")
	var entries []GenEntry
	for i, slot := range slots {
		at := slot.Add(-lead)
		if !at.After(now) {
			continue
		}
		entries = append(entries, GenEntry{
			ID: fmt.Sprintf("tweet_gen_%s_%d", day, i),
			At: at,
		})
	}
	return entries
}

// NextPlannedSlot returns the earliest slot of today's plan that is far
// enough in the future and clear of every pending scheduled job. ok is
// false when no plan exists or no slot qualifies.
func (p *Planner) NextPlannedSlot(ctx context.Context, now time.Time) (time.Time, bool, error) {
	plan, err := p.plans.PlanForDate(ctx, now)
	if errors.Is(err, services.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("loading plan: %w", err)
	}
	slots, err := plan.Slots()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decoding plan slots: %w", err)
	}

	var pending []models.ScheduledContent
	if p.sched != nil {
		pending, err = p.sched.GetPending(ctx)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("loading pending jobs: %w", err)
		}
	}

	for _, slot := range slots {
		if slot.Sub(now) <= p.cfg.NextSlotMinLead {
			continue
		}
		if clearOfPending(slot, pending, p.cfg.NextSlotClearance) {
			return slot, true, nil
		}
	}
	return time.Time{}, false, nil
}

func clearOfPending(slot time.Time, pending []models.ScheduledContent, clearance time.Duration) bool {
	for _, job := range pending {
		gap := slot.Sub(job.ScheduledTime)
		if gap < 0 {
			gap = -gap
		}
		if gap < clearance {
			return false
		}
	}
	return true
}
