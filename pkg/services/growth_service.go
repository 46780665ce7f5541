package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/showrunner-io/showrunner/pkg/models"
)

const replyTargetColumns = `id, tweet_id, author, author_followers, text, likes, replies, retweets, score, approval_id, found_at`

const seenMentionColumns = `id, tweet_id, author, text, kind, approval_id, seen_at`

const tweetMetricsColumns = `tweet_id, text, posted_at, impressions, likes, replies, retweets, updated_at`

const analyticsColumns = `id, report_date, tweets_posted, total_impressions, total_likes, total_replies, total_retweets,
	best_tweet_id, worst_tweet_id, summary, created_at`

// HourPerformance aggregates engagement for one hour-of-day bucket.
type HourPerformance struct {
	Hour           int
	Samples        int
	AvgImpressions float64
}

// GrowthService stores reply targets, seen mentions, tweet metrics, and
// daily analytics reports. Unique tweet_id constraints keep the reply
// finder and mention monitor from processing the same tweet twice.
type GrowthService struct {
	db *sqlx.DB
}

func NewGrowthService(db *sqlx.DB) *GrowthService {
	if db == nil {
		panic("growth service requires a database connection")
	}
	return &GrowthService{db: db}
}

// FilterNewReplyTargets returns the tweet IDs not yet stored as reply targets.
func (s *GrowthService) FilterNewReplyTargets(ctx context.Context, tweetIDs []string) ([]string, error) {
	return s.filterUnseen(ctx, `SELECT tweet_id FROM reply_targets WHERE tweet_id IN (?)`, tweetIDs)
}

// FilterNewMentions returns the tweet IDs not yet recorded as seen mentions.
func (s *GrowthService) FilterNewMentions(ctx context.Context, tweetIDs []string) ([]string, error) {
	return s.filterUnseen(ctx, `SELECT tweet_id FROM seen_mentions WHERE tweet_id IN (?)`, tweetIDs)
}

func (s *GrowthService) filterUnseen(ctx context.Context, query string, tweetIDs []string) ([]string, error) {
	if len(tweetIDs) == 0 {
		return nil, nil
	}
	bound, args, err := sqlx.In(query, tweetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build dedup query: %w", err)
	}
	var known []string
	if err := s.db.SelectContext(ctx, &known, s.db.Rebind(bound), args...); err != nil {
		return nil, fmt.Errorf("failed to check known tweet ids: %w", err)
	}

	seen := make(map[string]bool, len(known))
	for _, id := range known {
		seen[id] = true
	}
	fresh := make([]string, 0, len(tweetIDs))
	for _, id := range tweetIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		fresh = append(fresh, id)
	}
	return fresh, nil
}

// SaveReplyTarget stores a candidate tweet worth replying to. Returns
// ErrAlreadyExists when the tweet was already recorded.
func (s *GrowthService) SaveReplyTarget(ctx context.Context, target *models.ReplyTarget) (*models.ReplyTarget, error) {
	if target == nil {
		return nil, NewValidationError("target", "required")
	}
	if target.TweetID == "" {
		return nil, NewValidationError("tweet_id", "required")
	}

	var saved models.ReplyTarget
	err := s.db.GetContext(ctx, &saved, `
		INSERT INTO reply_targets (tweet_id, author, author_followers, text, likes, replies, retweets, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tweet_id) DO NOTHING
		RETURNING `+replyTargetColumns,
		target.TweetID, target.Author, target.AuthorFollowers, target.Text,
		target.Likes, target.Replies, target.Retweets, target.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save reply target: %w", err)
	}
	return &saved, nil
}

// SetReplyTargetApproval links a reply target to the approval entry holding
// its drafted reply.
func (s *GrowthService) SetReplyTargetApproval(ctx context.Context, id, approvalID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reply_targets SET approval_id = $2 WHERE id = $1`, id, approvalID)
	if err != nil {
		return fmt.Errorf("failed to link reply target %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentReplyTargets returns the latest stored targets, newest first.
func (s *GrowthService) RecentReplyTargets(ctx context.Context, limit int) ([]*models.ReplyTarget, error) {
	limit = normalizeSearchLimit(limit)
	var targets []*models.ReplyTarget
	err := s.db.SelectContext(ctx, &targets, `
		SELECT `+replyTargetColumns+`
		FROM reply_targets
		ORDER BY found_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reply targets: %w", err)
	}
	return targets, nil
}

// SaveSeenMention records a mention or reply so later polls skip it.
// Returns ErrAlreadyExists for tweets recorded before.
func (s *GrowthService) SaveSeenMention(ctx context.Context, mention *models.SeenMention) (*models.SeenMention, error) {
	if mention == nil {
		return nil, NewValidationError("mention", "required")
	}
	if mention.TweetID == "" {
		return nil, NewValidationError("tweet_id", "required")
	}
	if mention.Kind != "mention" && mention.Kind != "reply" {
		return nil, NewValidationError("kind", fmt.Sprintf("unknown mention kind %q", mention.Kind))
	}

	var saved models.SeenMention
	err := s.db.GetContext(ctx, &saved, `
		INSERT INTO seen_mentions (tweet_id, author, text, kind)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tweet_id) DO NOTHING
		RETURNING `+seenMentionColumns,
		mention.TweetID, mention.Author, mention.Text, mention.Kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save mention: %w", err)
	}
	return &saved, nil
}

// SetMentionApproval links a seen mention to the approval entry holding
// its drafted response.
func (s *GrowthService) SetMentionApproval(ctx context.Context, id, approvalID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE seen_mentions SET approval_id = $2 WHERE id = $1`, id, approvalID)
	if err != nil {
		return fmt.Errorf("failed to link mention %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertTweetMetrics inserts or refreshes the engagement counters for a
// posted tweet. Counter columns always take the new values; text and
// posted_at keep their stored values when the refresh omits them.
func (s *GrowthService) UpsertTweetMetrics(ctx context.Context, metrics *models.TweetMetrics) (*models.TweetMetrics, error) {
	if metrics == nil {
		return nil, NewValidationError("metrics", "required")
	}
	if metrics.TweetID == "" {
		return nil, NewValidationError("tweet_id", "required")
	}

	var saved models.TweetMetrics
	err := s.db.GetContext(ctx, &saved, `
		INSERT INTO tweet_metrics (tweet_id, text, posted_at, impressions, likes, replies, retweets)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tweet_id) DO UPDATE SET
			text = CASE WHEN EXCLUDED.text <> '' THEN EXCLUDED.text ELSE tweet_metrics.text END,
			posted_at = COALESCE(EXCLUDED.posted_at, tweet_metrics.posted_at),
			impressions = EXCLUDED.impressions,
			likes = EXCLUDED.likes,
			replies = EXCLUDED.replies,
			retweets = EXCLUDED.retweets,
			updated_at = now()
		RETURNING `+tweetMetricsColumns,
		metrics.TweetID, metrics.Text, metrics.PostedAt,
		metrics.Impressions, metrics.Likes, metrics.Replies, metrics.Retweets)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert metrics for tweet %s: %w", metrics.TweetID, err)
	}
	return &saved, nil
}

// TrackedTweetIDs returns the tweets whose metrics should still be
// refreshed, covering rows posted since the cutoff plus rows with an
// unknown post time that were touched since the cutoff.
func (s *GrowthService) TrackedTweetIDs(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT tweet_id
		FROM tweet_metrics
		WHERE posted_at >= $1 OR (posted_at IS NULL AND updated_at >= $1)
		ORDER BY posted_at DESC NULLS LAST`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked tweets: %w", err)
	}
	return ids, nil
}

// MetricsSince returns metrics for tweets posted at or after the cutoff,
// oldest first.
func (s *GrowthService) MetricsSince(ctx context.Context, since time.Time) ([]*models.TweetMetrics, error) {
	var metrics []*models.TweetMetrics
	err := s.db.SelectContext(ctx, &metrics, `
		SELECT `+tweetMetricsColumns+`
		FROM tweet_metrics
		WHERE posted_at >= $1
		ORDER BY posted_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	return metrics, nil
}

// HourlyPerformance buckets all known tweet metrics by hour of day in the
// given location and averages impressions per bucket. Hours with no posts
// are omitted.
func (s *GrowthService) HourlyPerformance(ctx context.Context, loc *time.Location) ([]HourPerformance, error) {
	if loc == nil {
		loc = time.UTC
	}

	var rows []*models.TweetMetrics
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+tweetMetricsColumns+`
		FROM tweet_metrics
		WHERE posted_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics for hourly stats: %w", err)
	}

	var samples [24]int
	var impressions [24]int64
	for _, row := range rows {
		hour := row.PostedAt.In(loc).Hour()
		samples[hour]++
		impressions[hour] += row.Impressions
	}

	var performance []HourPerformance
	for hour := 0; hour < 24; hour++ {
		if samples[hour] == 0 {
			continue
		}
		performance = append(performance, HourPerformance{
			Hour:           hour,
			Samples:        samples[hour],
			AvgImpressions: float64(impressions[hour]) / float64(samples[hour]),
		})
	}
	return performance, nil
}

// SaveAnalyticsReport stores the daily report, replacing any earlier
// report for the same date so reruns are safe.
func (s *GrowthService) SaveAnalyticsReport(ctx context.Context, report *models.AnalyticsReport) (*models.AnalyticsReport, error) {
	if report == nil {
		return nil, NewValidationError("report", "required")
	}
	if report.ReportDate.IsZero() {
		return nil, NewValidationError("report_date", "required")
	}

	var saved models.AnalyticsReport
	err := s.db.GetContext(ctx, &saved, `
		INSERT INTO analytics_reports (report_date, tweets_posted, total_impressions, total_likes,
			total_replies, total_retweets, best_tweet_id, worst_tweet_id, summary)
		VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (report_date) DO UPDATE SET
			tweets_posted = EXCLUDED.tweets_posted,
			total_impressions = EXCLUDED.total_impressions,
			total_likes = EXCLUDED.total_likes,
			total_replies = EXCLUDED.total_replies,
			total_retweets = EXCLUDED.total_retweets,
			best_tweet_id = EXCLUDED.best_tweet_id,
			worst_tweet_id = EXCLUDED.worst_tweet_id,
			summary = EXCLUDED.summary
		RETURNING `+analyticsColumns,
		report.ReportDate.Format("2006-01-02"), report.TweetsPosted,
		report.TotalImpressions, report.TotalLikes, report.TotalReplies, report.TotalRetweets,
		report.BestTweetID, report.WorstTweetID, report.Summary)
	if err != nil {
		return nil, fmt.Errorf("failed to save analytics report: %w", err)
	}
	return &saved, nil
}

// AnalyticsReportByDate returns the report for one calendar date.
func (s *GrowthService) AnalyticsReportByDate(ctx context.Context, date time.Time) (*models.AnalyticsReport, error) {
	var report models.AnalyticsReport
	err := s.db.GetContext(ctx, &report, `
		SELECT `+analyticsColumns+`
		FROM analytics_reports
		WHERE report_date = $1::date`, date.Format("2006-01-02"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics report: %w", err)
	}
	return &report, nil
}

// PruneReplyTargets deletes targets found before the cutoff.
func (s *GrowthService) PruneReplyTargets(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM reply_targets WHERE found_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune reply targets: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// PruneSeenMentions deletes mention records seen before the cutoff.
func (s *GrowthService) PruneSeenMentions(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM seen_mentions WHERE seen_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune seen mentions: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
