package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
)

const defaultArxivBaseURL = "https://export.arxiv.org"

// ArxivScraper queries the arXiv API for recent papers. The API speaks
// Atom, so parsing rides on the feed decoder.
type ArxivScraper struct {
	queries []string
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
}

// NewArxivScraper creates a scraper over arXiv search expressions.
func NewArxivScraper(queries []string) *ArxivScraper {
	return &ArxivScraper{
		queries: queries,
		baseURL: defaultArxivBaseURL,
		hc:      newHTTPClient(30 * time.Second),
		logger:  slog.Default().With("scraper", "arxiv"),
	}
}

func (s *ArxivScraper) Name() string { return "arxiv" }

func (s *ArxivScraper) Scrape(ctx context.Context) ([]*models.ResearchItem, error) {
	var items []*models.ResearchItem
	var errs []error
	for _, query := range s.queries {
		endpoint := fmt.Sprintf(
			"%s/api/query?search_query=%s&sortBy=submittedDate&sortOrder=descending&max_results=20",
			s.baseURL, url.QueryEscape("all:"+query))

		body, err := fetchBytes(ctx, s.hc, endpoint, nil)
		if err != nil {
			s.logger.Warn("arXiv query failed", "query", query, "error", err)
			errs = append(errs, fmt.Errorf("%q: %w", query, err))
			continue
		}
		parsed, err := parseFeed(body, "arxiv")
		if err != nil {
			s.logger.Warn("arXiv response unparseable", "query", query, "error", err)
			errs = append(errs, fmt.Errorf("%q: %w", query, err))
			continue
		}
		for _, item := range parsed {
			// Atom ids look like http://arxiv.org/abs/2408.01234v1; the
			// trailing segment is the stable paper id.
			raw := strings.TrimPrefix(item.SourceID, "arxiv-")
			item.SourceID = "arxiv-" + lastPathSegment(raw)
			items = append(items, item)
		}
	}
	if len(items) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

func lastPathSegment(s string) string {
	s = strings.TrimSuffix(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
