package config

import "time"

// PlatformConfig holds the external publishing surfaces. Every subsection
// is credential-gated: when disabled (or missing its credentials) the
// daemon swaps in a stub adapter and keeps running with that surface off.
type PlatformConfig struct {
	Twitter     *TwitterConfig     `yaml:"twitter"`
	Distributor *DistributorConfig `yaml:"distributor"`
	Renderer    *RendererConfig    `yaml:"renderer"`
}

// TwitterConfig names the environment variables carrying X/Twitter API
// credentials. Reads (search, mentions, timelines, metrics) use the
// app-only bearer token; writes (post, reply) use the OAuth1 user context.
type TwitterConfig struct {
	Enabled bool `yaml:"enabled"`

	BearerTokenEnv    string `yaml:"bearer_token_env"`
	ConsumerKeyEnv    string `yaml:"consumer_key_env"`
	ConsumerSecretEnv string `yaml:"consumer_secret_env"`
	AccessTokenEnv    string `yaml:"access_token_env"`
	AccessSecretEnv   string `yaml:"access_secret_env"`

	// UserID is the numeric id of the principal's account, used for
	// mention and timeline lookups.
	UserID string `yaml:"user_id"`

	// BaseURL overrides the API origin. Empty means api.twitter.com.
	BaseURL string `yaml:"base_url"`

	Timeout time.Duration `yaml:"timeout"`
}

// DistributorConfig points at the video distribution sidecar, an HTTP
// service that uploads a rendered video to one target platform per call.
type DistributorConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	TokenEnv  string        `yaml:"token_env"`
	Platforms []string      `yaml:"platforms"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RendererConfig points at the video rendering sidecar. Renders are slow;
// the timeout bounds a single render call, not the queue wait.
type RendererConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url"`
	TokenEnv string        `yaml:"token_env"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultPlatformConfig returns the built-in platform defaults. All
// surfaces start disabled; enabling one is an explicit operator act.
func DefaultPlatformConfig() *PlatformConfig {
	return &PlatformConfig{
		Twitter: &TwitterConfig{
			BearerTokenEnv:    "TWITTER_BEARER_TOKEN",
			ConsumerKeyEnv:    "TWITTER_CONSUMER_KEY",
			ConsumerSecretEnv: "TWITTER_CONSUMER_SECRET",
			AccessTokenEnv:    "TWITTER_ACCESS_TOKEN",
			AccessSecretEnv:   "TWITTER_ACCESS_SECRET",
			Timeout:           30 * time.Second,
		},
		Distributor: &DistributorConfig{
			TokenEnv:  "DISTRIBUTOR_TOKEN",
			Platforms: []string{"youtube", "tiktok", "instagram"},
			Timeout:   5 * time.Minute,
		},
		Renderer: &RendererConfig{
			TokenEnv: "RENDERER_TOKEN",
			Timeout:  15 * time.Minute,
		},
	}
}
