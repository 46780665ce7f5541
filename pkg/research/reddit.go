package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
)

const defaultRedditBaseURL = "https://www.reddit.com"

// RedditScraper reads the hot listing of configured subreddits through
// the public JSON endpoints. No credentials, so a descriptive user agent
// and modest page sizes keep it inside the unauthenticated rate limits.
type RedditScraper struct {
	subreddits []string
	baseURL    string
	hc         *http.Client
	logger     *slog.Logger
}

// NewRedditScraper creates a scraper over the configured subreddit names
// (without the /r/ prefix).
func NewRedditScraper(subreddits []string) *RedditScraper {
	return &RedditScraper{
		subreddits: subreddits,
		baseURL:    defaultRedditBaseURL,
		hc:         newHTTPClient(20 * time.Second),
		logger:     slog.Default().With("scraper", "reddit"),
	}
}

func (s *RedditScraper) Name() string { return "reddit" }

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Stickied    bool    `json:"stickied"`
}

func (s *RedditScraper) Scrape(ctx context.Context) ([]*models.ResearchItem, error) {
	var items []*models.ResearchItem
	var errs []error
	for _, sub := range s.subreddits {
		endpoint := fmt.Sprintf("%s/r/%s/hot.json?limit=25&raw_json=1", s.baseURL, sub)

		var listing redditListing
		if err := fetchJSON(ctx, s.hc, endpoint, nil, &listing); err != nil {
			s.logger.Warn("Subreddit fetch failed", "subreddit", sub, "error", err)
			errs = append(errs, fmt.Errorf("r/%s: %w", sub, err))
			continue
		}
		for _, child := range listing.Data.Children {
			post := child.Data
			if post.ID == "" || post.Title == "" || post.Stickied {
				continue
			}
			content := post.SelfText
			if content == "" {
				content = post.Title
			}
			content = fmt.Sprintf("%s\n\n%d upvotes, %d comments in r/%s",
				capContent(content, maxItemContent), post.Score, post.NumComments, sub)

			var published *time.Time
			if post.CreatedUTC > 0 {
				t := time.Unix(int64(post.CreatedUTC), 0).UTC()
				published = &t
			}

			items = append(items, &models.ResearchItem{
				Source:      "reddit",
				SourceID:    "reddit-" + post.ID,
				URL:         defaultRedditBaseURL + post.Permalink,
				Title:       post.Title,
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
