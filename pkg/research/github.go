package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
)

const defaultGitHubBaseURL = "https://api.github.com"

// GitHubScraper watches releases of configured repositories. A token from
// GITHUB_TOKEN raises the rate limit but is optional.
type GitHubScraper struct {
	repos   []string
	baseURL string
	token   string
	hc      *http.Client
	logger  *slog.Logger
}

// NewGitHubScraper creates a scraper over "owner/repo" slugs.
func NewGitHubScraper(repos []string) *GitHubScraper {
	return &GitHubScraper{
		repos:   repos,
		baseURL: defaultGitHubBaseURL,
		token:   os.Getenv("GITHUB_TOKEN"),
		hc:      newHTTPClient(15 * time.Second),
		logger:  slog.Default().With("scraper", "github"),
	}
}

func (s *GitHubScraper) Name() string { return "github" }

type githubRelease struct {
	ID          int64  `json:"id"`
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
	Draft       bool   `json:"draft"`
	Prerelease  bool   `json:"prerelease"`
}

func (s *GitHubScraper) Scrape(ctx context.Context) ([]*models.ResearchItem, error) {
	header := http.Header{"Accept": {"application/vnd.github+json"}}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	var items []*models.ResearchItem
	var errs []error
	for _, slug := range s.repos {
		endpoint := fmt.Sprintf("%s/repos/%s/releases?per_page=5", s.baseURL, slug)

		var releases []githubRelease
		if err := fetchJSON(ctx, s.hc, endpoint, header, &releases); err != nil {
			s.logger.Warn("Release fetch failed", "repo", slug, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", slug, err))
			continue
		}
		for _, rel := range releases {
			if rel.Draft || rel.ID == 0 {
				continue
			}
			title := fmt.Sprintf("%s %s", slug, rel.TagName)
			if rel.Name != "" && rel.Name != rel.TagName {
				title = fmt.Sprintf("%s %s: %s", slug, rel.TagName, rel.Name)
			}
			kind := "release"
			if rel.Prerelease {
				kind = "prerelease"
			}
			content := rel.Body
			if content == "" {
				content = title
			}
			content = fmt.Sprintf("New %s of %s.\n\n%s", kind, slug, capContent(content, maxItemContent))

			items = append(items, &models.ResearchItem{
				Source:      "github",
				SourceID:    fmt.Sprintf("gh-%s-%d", slug, rel.ID),
				URL:         rel.HTMLURL,
				Title:       title,
				Content:     content,
				PublishedAt: parseFeedTime(rel.PublishedAt),
			})
		}
	}
	if len(items) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}
