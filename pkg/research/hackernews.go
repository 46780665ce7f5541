package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
)

const defaultHNBaseURL = "https://hn.algolia.com"

// HNScraper searches Hacker News stories through the Algolia API.
type HNScraper struct {
	queries []string
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
}

// NewHNScraper creates a scraper over the configured search queries.
func NewHNScraper(queries []string) *HNScraper {
	return &HNScraper{
		queries: queries,
		baseURL: defaultHNBaseURL,
		hc:      newHTTPClient(15 * time.Second),
		logger:  slog.Default().With("scraper", "hackernews"),
	}
}

func (s *HNScraper) Name() string { return "hackernews" }

type hnSearchResponse struct {
	Hits []hnHit `json:"hits"`
}

type hnHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	StoryText   string `json:"story_text"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	CreatedAt   string `json:"created_at"`
}

// Scrape runs every configured query. Stories matched by more than one
// query share an object id, so the pipeline's dedup collapses them.
func (s *HNScraper) Scrape(ctx context.Context) ([]*models.ResearchItem, error) {
	var items []*models.ResearchItem
	var errs []error
	for _, query := range s.queries {
		endpoint := fmt.Sprintf("%s/api/v1/search?query=%s&tags=story&hitsPerPage=30",
			s.baseURL, url.QueryEscape(query))

		var resp hnSearchResponse
		if err := fetchJSON(ctx, s.hc, endpoint, nil, &resp); err != nil {
			s.logger.Warn("HN search failed", "query", query, "error", err)
			errs = append(errs, fmt.Errorf("%q: %w", query, err))
			continue
		}
		for _, hit := range resp.Hits {
			if hit.ObjectID == "" || hit.Title == "" {
				continue
			}
			link := hit.URL
			if link == "" {
				link = "https://news.ycombinator.com/item?id=" + hit.ObjectID
			}
			content := stripHTML(hit.StoryText)
			if content == "" {
				content = hit.Title
			}
			content = fmt.Sprintf("%s\n\n%d points, %d comments on Hacker News",
				capContent(content, maxItemContent), hit.Points, hit.NumComments)

			items = append(items, &models.ResearchItem{
				Source:      "hackernews",
				SourceID:    "hn-" + hit.ObjectID,
				URL:         link,
				Title:       hit.Title,
				Content:     content,
				PublishedAt: parseFeedTime(hit.CreatedAt),
			})
		}
	}
	if len(items) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}
