package ops

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/showrunner-io/showrunner/pkg/config"
)

// TweetGenerator drafts a batch of tweets into the approval queue.
// Satisfied by *growth.Generator.
type TweetGenerator interface {
	GenerateBatch(ctx context.Context, n int) (int, error)
}

// GapCheck refills the drafting pipeline after a quiet stretch. Run at
// boot: pending tweet drafts get the operator a reminder instead of more
// drafts; a silent feed past the gap threshold triggers a fresh batch.
type GapCheck struct {
	approvals Approvals
	generator TweetGenerator
	notifier  Notifier
	gate      Gate
	cfg       *config.GrowthConfig
	project   string
	logger    *slog.Logger
}

// NewGapCheck creates the content-gap check.
func NewGapCheck(approvals Approvals, generator TweetGenerator, notifier Notifier, gate Gate, cfg *config.GrowthConfig, project string) *GapCheck {
	if approvals == nil {
		panic("gap check requires approvals")
	}
	if cfg == nil {
		cfg = config.DefaultGrowthConfig()
	}
	return &GapCheck{
		approvals: approvals,
		generator: generator,
		notifier:  notifier,
		gate:      gate,
		cfg:       cfg,
		project:   project,
		logger:    slog.With("component", "ops.gapcheck"),
	}
}

// Run performs one content-gap check.
func (g *GapCheck) Run(ctx context.Context) error {
	if g.gate != nil && g.gate.Halted(ctx) {
		g.logger.Info("Kill switch active, skipping content-gap check")
		return nil
	}
	pending, err := g.approvals.GetPending(ctx, g.project)
	if err != nil {
		return fmt.Errorf("listing pending approvals: %w", err)
	}
	drafts := 0
	for _, a := range pending {
		if a.ActionType == "tweet" {
			drafts++
		}
	}
	if drafts > 0 {
		g.logger.Info("Tweet drafts already pending", "count", drafts)
		if g.notifier != nil {
			g.notifier.Notify(ctx, "content", "gap_check",
				fmt.Sprintf("Reminder: %d tweet drafts awaiting review.", drafts))
		}
		return nil
	}
	last, err := g.approvals.GetLastExecuted(ctx, "tweet")
	if err != nil {
		return fmt.Errorf("checking last executed tweet: %w", err)
	}
	gap := time.Duration(g.cfg.ContentGapHours) * time.Hour
	if last != nil && last.ExecutedAt != nil && time.Since(*last.ExecutedAt) <= gap {
		g.logger.Info("Feed is fresh, no gap", "last_tweet", last.ExecutedAt)
		return nil
	}
	if g.generator == nil {
		g.logger.Warn("Content gap detected but no generator configured")
		return nil
	}
	generated, err := g.generator.GenerateBatch(ctx, g.cfg.ContentGapBatch)
	if err != nil {
		return fmt.Errorf("generating gap batch: %w", err)
	}
	g.logger.Info("Content gap filled", "generated", generated)
	return nil
}
