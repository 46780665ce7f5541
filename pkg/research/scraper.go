// Package research is the ingest pipeline: scrapers pull candidate items
// from public sources, a keyword gate drops the noise before any model
// spend, the model router scores what remains against active goals, and
// the action router files each verdict where it belongs.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
)

// Scraper pulls candidate items from one public source. Implementations
// must produce stable source ids: the unique constraint on source_id is
// the dedup memory across runs and restarts.
type Scraper interface {
	Name() string
	Scrape(ctx context.Context) ([]*models.ResearchItem, error)
}

const (
	scraperUserAgent = "showrunner/1.0 (research pipeline)"

	// maxItemContent caps stored content so one pathological page cannot
	// bloat the store; evaluation condenses long content anyway.
	maxItemContent = 8000

	maxResponseBytes = 4 << 20
)

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// fetchJSON GETs a URL and decodes the JSON body into out.
func fetchJSON(ctx context.Context, hc *http.Client, url string, header http.Header, out any) error {
	body, err := fetchBytes(ctx, hc, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// fetchBytes GETs a URL and returns up to maxResponseBytes of body.
func fetchBytes(ctx context.Context, hc *http.Client, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", scraperUserAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML flattens markup into plain text suitable for scoring prompts.
func stripHTML(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// capContent truncates on a rune boundary.
func capContent(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// parseFeedTime tries the timestamp layouts seen in the wild across RSS,
// Atom, and API feeds. Unparseable values become nil, never errors.
func parseFeedTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
