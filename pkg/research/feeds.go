package research

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
)

// FeedScraper reads RSS 2.0 and Atom feeds. The format is sniffed from
// the root element, so one feed list can mix both.
type FeedScraper struct {
	feeds  []string
	hc     *http.Client
	logger *slog.Logger
}

// NewFeedScraper creates a scraper over the configured feed URLs.
func NewFeedScraper(feeds []string) *FeedScraper {
	return &FeedScraper{
		feeds:  feeds,
		hc:     newHTTPClient(20 * time.Second),
		logger: slog.Default().With("scraper", "rss"),
	}
}

func (s *FeedScraper) Name() string { return "rss" }

// Scrape fetches every configured feed. A broken feed is logged and
// skipped; the call fails only when every feed failed.
func (s *FeedScraper) Scrape(ctx context.Context) ([]*models.ResearchItem, error) {
	var items []*models.ResearchItem
	var errs []error
	for _, feedURL := range s.feeds {
		got, err := s.scrapeFeed(ctx, feedURL)
		if err != nil {
			s.logger.Warn("Feed fetch failed", "feed", feedURL, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", feedURL, err))
			continue
		}
		items = append(items, got...)
	}
	if len(items) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

func (s *FeedScraper) scrapeFeed(ctx context.Context, feedURL string) ([]*models.ResearchItem, error) {
	body, err := fetchBytes(ctx, s.hc, feedURL, nil)
	if err != nil {
		return nil, err
	}
	return parseFeed(body, "rss")
}

// parseFeed sniffs the root element and dispatches to the right decoder.
// source labels the produced items; the arXiv scraper reuses this with
// its own label.
func parseFeed(body []byte, source string) ([]*models.ResearchItem, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, fmt.Errorf("not XML: %w", err)
	}
	switch root {
	case "rss":
		var feed rssFeed
		if err := xml.Unmarshal(body, &feed); err != nil {
			return nil, fmt.Errorf("parsing RSS: %w", err)
		}
		return feed.items(source), nil
	case "feed":
		var feed atomFeed
		if err := xml.Unmarshal(body, &feed); err != nil {
			return nil, fmt.Errorf("parsing Atom: %w", err)
		}
		return feed.items(source), nil
	default:
		return nil, fmt.Errorf("unsupported feed root element %q", root)
	}
}

func rootElement(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

type rssFeed struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

func (f rssFeed) items(source string) []*models.ResearchItem {
	items := make([]*models.ResearchItem, 0, len(f.Channel.Items))
	for _, it := range f.Channel.Items {
		id := strings.TrimSpace(it.GUID)
		if id == "" {
			id = strings.TrimSpace(it.Link)
		}
		if id == "" || strings.TrimSpace(it.Title) == "" {
			continue
		}
		items = append(items, &models.ResearchItem{
			Source:      source,
			SourceID:    source + "-" + id,
			URL:         strings.TrimSpace(it.Link),
			Title:       strings.TrimSpace(it.Title),
			Content:     capContent(stripHTML(it.Description), maxItemContent),
			PublishedAt: parseFeedTime(it.PubDate),
		})
	}
	return items
}

type atomFeed struct {
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string     `xml:"id"`
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

func (e atomEntry) link() string {
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	if len(e.Links) > 0 {
		return e.Links[0].Href
	}
	return ""
}

func (f atomFeed) items(source string) []*models.ResearchItem {
	items := make([]*models.ResearchItem, 0, len(f.Entries))
	for _, e := range f.Entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = e.link()
		}
		if id == "" || strings.TrimSpace(e.Title) == "" {
			continue
		}
		content := e.Content
		if strings.TrimSpace(content) == "" {
			content = e.Summary
		}
		published := e.Published
		if published == "" {
			published = e.Updated
		}
		items = append(items, &models.ResearchItem{
			Source:      source,
			SourceID:    source + "-" + id,
			URL:         e.link(),
			Title:       strings.Join(strings.Fields(e.Title), " "),
			Content:     capContent(stripHTML(content), maxItemContent),
			PublishedAt: parseFeedTime(published),
		})
	}
	return items
}
