package growth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
)

// DailyReport rolls up the trailing 24 hours of tweet metrics into one
// analytics row and a notification. Rerunning replaces the day's row.
func (a *Agent) DailyReport(ctx context.Context) error {
	if a.halted(ctx) {
		return nil
	}

	now := time.Now().UTC()
	rows, err := a.store.MetricsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("loading metrics: %w", err)
	}

	report := BuildReport(now, rows)
	if _, err := a.store.SaveAnalyticsReport(ctx, report); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}

	a.notify(ctx, "report", report.Summary)
	a.logger.Info("Daily report saved",
		"date", report.ReportDate.Format("2006-01-02"),
		"tweets", report.TweetsPosted,
		"impressions", report.TotalImpressions)
	return nil
}

// BuildReport aggregates one day of metrics. Best and worst are picked by
// impressions; with a single tweet they coincide.
func BuildReport(date time.Time, rows []*models.TweetMetrics) *models.AnalyticsReport {
	report := &models.AnalyticsReport{ReportDate: date}
	if len(rows) == 0 {
		report.Summary = "Daily report: no tweets posted in the last 24 hours."
		return report
	}

	best, worst := rows[0], rows[0]
	for _, row := range rows {
		report.TweetsPosted++
		report.TotalImpressions += row.Impressions
		report.TotalLikes += row.Likes
		report.TotalReplies += row.Replies
		report.TotalRetweets += row.Retweets
		if row.Impressions > best.Impressions {
			best = row
		}
		if row.Impressions < worst.Impressions {
			worst = row
		}
	}
	report.BestTweetID = best.TweetID
	report.WorstTweetID = worst.TweetID

	var b strings.Builder
	fmt.Fprintf(&b, "Daily report: %d tweets, %d impressions, %d likes, %d replies, %d retweets.",
		report.TweetsPosted, report.TotalImpressions,
		report.TotalLikes, report.TotalReplies, report.TotalRetweets)
	fmt.Fprintf(&b, "\nBest (%d impressions): %s", best.Impressions, clipRunes(best.Text, 100))
	if worst.TweetID != best.TweetID {
		fmt.Fprintf(&b, "\nWorst (%d impressions): %s", worst.Impressions, clipRunes(worst.Text, 100))
	}
	report.Summary = b.String()
	return report
}
