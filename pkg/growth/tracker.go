package growth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/platform"
)

// trackerWindow is how far back the tracker keeps refreshing posted
// tweets. Engagement flattens out well before a week.
const trackerWindow = 7 * 24 * time.Hour

// TrackPerformance refreshes engagement counters for recently posted
// tweets. Metrics evolve for days after posting, so rows are upserted by
// tweet id rather than written once.
func (a *Agent) TrackPerformance(ctx context.Context) error {
	if a.halted(ctx) {
		return nil
	}

	ids, err := a.store.TrackedTweetIDs(ctx, time.Now().UTC().Add(-trackerWindow))
	if err != nil {
		return fmt.Errorf("listing tracked tweets: %w", err)
	}
	if limit := a.cfg.MetricsLookback; limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		return nil
	}

	updated := 0
	for start := 0; start < len(ids); start += 100 {
		end := min(start+100, len(ids))

		tweets, err := a.twitter.Metrics(ctx, ids[start:end])
		if err != nil {
			if errors.Is(err, platform.ErrNotConfigured) {
				a.logger.Info("Twitter surface off, tracker idle")
				return nil
			}
			return fmt.Errorf("fetching metrics: %w", err)
		}
		for _, t := range tweets {
			_, err := a.store.UpsertTweetMetrics(ctx, &models.TweetMetrics{
				TweetID:     t.ID,
				Text:        t.Text,
				Impressions: int64(t.Impressions),
				Likes:       t.Likes,
				Replies:     t.Replies,
				Retweets:    t.Retweets,
			})
			if err != nil {
				a.logger.Warn("Metrics row not updated", "tweet_id", t.ID, "error", err)
				continue
			}
			updated++
		}
	}

	a.logger.Info("Performance tracker finished", "tracked", len(ids), "updated", updated)
	return nil
}
