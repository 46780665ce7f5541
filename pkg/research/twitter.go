package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/platform"
)

// TweetSearcher is the read slice of the Twitter adapter this scraper
// needs. Satisfied by platform.Twitter.
type TweetSearcher interface {
	SearchRecent(ctx context.Context, query string, limit int) ([]platform.Tweet, error)
}

// TwitterScraper turns recent tweet search results into research items.
// It is registered only when the Twitter surface is live, so a cycle
// never burns its error budget on a surface that is off.
type TwitterScraper struct {
	queries []string
	tw      TweetSearcher
	logger  *slog.Logger
}

// NewTwitterScraper creates a scraper over the configured search queries.
func NewTwitterScraper(tw TweetSearcher, queries []string) *TwitterScraper {
	return &TwitterScraper{
		queries: queries,
		tw:      tw,
		logger:  slog.Default().With("scraper", "twitter"),
	}
}

func (s *TwitterScraper) Name() string { return "twitter" }

// Scrape runs every configured query. A tweet matched by more than one
// query shares its id, so the pipeline's dedup collapses it.
func (s *TwitterScraper) Scrape(ctx context.Context) ([]*models.ResearchItem, error) {
	var items []*models.ResearchItem
	var errs []error
	for _, query := range s.queries {
		tweets, err := s.tw.SearchRecent(ctx, query, 30)
		if err != nil {
			s.logger.Warn("Tweet search failed", "query", query, "error", err)
			errs = append(errs, fmt.Errorf("%q: %w", query, err))
			continue
		}
		for _, tw := range tweets {
			if tw.ID == "" || tw.Text == "" {
				continue
			}
			var published *time.Time
			if !tw.CreatedAt.IsZero() {
				utc := tw.CreatedAt.UTC()
				published = &utc
			}
			content := fmt.Sprintf("%s\n\n@%s (%d followers), %d likes, %d replies, %d retweets",
				capContent(tw.Text, maxItemContent),
				tw.AuthorUsername, tw.AuthorFollowers, tw.Likes, tw.Replies, tw.Retweets)

			items = append(items, &models.ResearchItem{
				Source:      "twitter",
				SourceID:    "tw-" + tw.ID,
				URL:         tweetURL(tw),
				Title:       tweetTitle(tw.Text),
				Content:     content,
				PublishedAt: published,
			})
		}
	}
	if len(items) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

func tweetURL(tw platform.Tweet) string {
	if tw.AuthorUsername != "" {
		return fmt.Sprintf("https://x.com/%s/status/%s", tw.AuthorUsername, tw.ID)
	}
	return "https://x.com/i/status/" + tw.ID
}

// tweetTitle flattens the tweet into a one-line title for display and
// keyword matching.
func tweetTitle(text string) string {
	return capContent(strings.Join(strings.Fields(text), " "), 100)
}
