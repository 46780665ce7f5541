package config

// GrowthConfig controls the outbound-facing periodic jobs: reply-target
// discovery, mention monitoring, and the analytics trackers.
type GrowthConfig struct {
	// SearchQueries drive the reply-target finder.
	SearchQueries []string `yaml:"search_queries"`

	// MinLikes/MinReplies filter candidate conversations; a candidate
	// passes when either threshold is met.
	MinLikes   int `yaml:"min_likes"`
	MinReplies int `yaml:"min_replies"`

	// TopTargets is how many scored candidates get a drafted reply.
	TopTargets int `yaml:"top_targets"`

	// MentionLookback is how many of the principal's recent tweets are
	// checked for replies alongside direct mentions.
	MentionLookback int `yaml:"mention_lookback"`

	// TopMentions is how many new mentions get a drafted reply per run.
	TopMentions int `yaml:"top_mentions"`

	// MaxReplyChars is the hard length limit enforced on drafted replies.
	MaxReplyChars int `yaml:"max_reply_chars"`

	// MetricsLookback is how many recent tweets the performance tracker
	// refreshes each run.
	MetricsLookback int `yaml:"metrics_lookback"`

	// ContentGapHours is the silence threshold for the boot-time content
	// gap check.
	ContentGapHours int `yaml:"content_gap_hours"`

	// ContentGapBatch is how many tweets the gap check generates.
	ContentGapBatch int `yaml:"content_gap_batch"`
}

// DefaultGrowthConfig returns the built-in growth defaults.
func DefaultGrowthConfig() *GrowthConfig {
	return &GrowthConfig{
		MinLikes:        50,
		MinReplies:      10,
		TopTargets:      5,
		MentionLookback: 5,
		TopMentions:     3,
		MaxReplyChars:   280,
		MetricsLookback: 20,
		ContentGapHours: 12,
		ContentGapBatch: 5,
	}
}
