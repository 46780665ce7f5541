package config

// ResearchConfig controls the ingest pipeline: which sources are scraped,
// which tier each source belongs to, and how evaluation output is routed.
type ResearchConfig struct {
	// Feeds are RSS/Atom feed URLs for the feed scraper.
	Feeds []string `yaml:"feeds"`

	// Subreddits are subreddit names (without the /r/ prefix).
	Subreddits []string `yaml:"subreddits"`

	// GitHubRepos are "owner/repo" slugs whose releases are watched.
	GitHubRepos []string `yaml:"github_repos"`

	// HNQueries are Hacker News search queries.
	HNQueries []string `yaml:"hn_queries"`

	// ArxivQueries are arXiv API search queries.
	ArxivQueries []string `yaml:"arxiv_queries"`

	// TwitterQueries are tweet search queries for the adapter-backed
	// scraper. Ignored while the Twitter surface is off.
	TwitterQueries []string `yaml:"twitter_queries"`

	// HotScrapers/WarmScrapers name the scrapers run by the hot (3 h) and
	// warm (10 h) cycles. The daily full cycle runs every registered scraper.
	HotScrapers  []string `yaml:"hot_scrapers"`
	WarmScrapers []string `yaml:"warm_scrapers"`

	// ExtraKeywords supplement active-goal keywords in the pre-filter.
	ExtraKeywords []string `yaml:"extra_keywords"`

	// MaxContentPerCycle caps how many high-scoring items become content
	// submissions per cycle; overflow is downgraded to knowledge.
	MaxContentPerCycle int `yaml:"max_content_per_cycle"`

	// ContentScoreThreshold is the minimum relevance score for the
	// content action to survive routing.
	ContentScoreThreshold float64 `yaml:"content_score_threshold"`

	// TranscriptCondenseChars is the length above which transcript items
	// get a condense pass before scoring.
	TranscriptCondenseChars int `yaml:"transcript_condense_chars"`

	// KnowledgeDir is the root for routed knowledge/watchlist markdown
	// files, relative to DataDir unless absolute.
	KnowledgeDir string `yaml:"knowledge_dir"`

	// TodoFile is the markdown file task-routed items are appended to,
	// relative to DataDir unless absolute.
	TodoFile string `yaml:"todo_file"`
}

// DefaultResearchConfig returns the built-in research defaults.
func DefaultResearchConfig() *ResearchConfig {
	return &ResearchConfig{
		HotScrapers:             []string{"hackernews", "rss"},
		WarmScrapers:            []string{"reddit", "github"},
		MaxContentPerCycle:      5,
		ContentScoreThreshold:   8,
		TranscriptCondenseChars: 2000,
		KnowledgeDir:            "knowledge",
		TodoFile:                "TODO.md",
	}
}
