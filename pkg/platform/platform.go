// Package platform holds the outward-facing publishing adapters: the
// X/Twitter client the growth jobs read from and post through, and the
// render/distribute sidecars behind the video workflow. Every surface has
// a disabled stub returning ErrNotConfigured so the daemon boots and runs
// with any subset of them switched off.
package platform

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/showrunner-io/showrunner/pkg/config"
)

// ErrNotConfigured is returned by disabled adapters. Callers treat it as
// "surface off": log it, skip the work, never crash.
var ErrNotConfigured = errors.New("platform adapter not configured")

// Tweet is one post as the read endpoints return it: text, author, and
// public engagement counters. Metrics lookups fill only the counter
// fields for tweets whose author block was not requested.
type Tweet struct {
	ID              string
	Text            string
	AuthorID        string
	AuthorUsername  string
	AuthorFollowers int
	InReplyToID     string
	Likes           int
	Replies         int
	Retweets        int
	Impressions     int
	CreatedAt       time.Time
}

// Twitter is the X/Twitter API surface the daemon depends on.
type Twitter interface {
	// SearchRecent returns recent public tweets matching a search query.
	SearchRecent(ctx context.Context, query string, limit int) ([]Tweet, error)

	// Mentions returns recent tweets mentioning the principal's account.
	Mentions(ctx context.Context, limit int) ([]Tweet, error)

	// UserTweets returns the principal's own recent tweets.
	UserTweets(ctx context.Context, limit int) ([]Tweet, error)

	// Post publishes a tweet and returns its id.
	Post(ctx context.Context, text string) (string, error)

	// Reply publishes a reply to the given tweet and returns the new id.
	Reply(ctx context.Context, toTweetID, text string) (string, error)

	// Metrics returns current public metrics for the given tweet ids.
	// Unknown or deleted ids are omitted from the result, not errors.
	Metrics(ctx context.Context, tweetIDs []string) ([]Tweet, error)
}

// Distributor uploads a rendered video to one target platform per call
// and returns the platform-side URL or id.
type Distributor interface {
	Distribute(ctx context.Context, targetPlatform, videoPath, caption string) (string, error)

	// Platforms lists the targets a distribute-all request fans out to.
	Platforms() []string
}

// RenderRequest carries a video script to the render sidecar.
type RenderRequest struct {
	Title  string `json:"title"`
	Script string `json:"script"`
}

// RenderResult is the sidecar's output location.
type RenderResult struct {
	VideoPath       string  `json:"video_path"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Renderer turns a script into a video file on local disk.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*RenderResult, error)
}

// DisabledTwitter is the stub wired in when the Twitter surface is off.
type DisabledTwitter struct{}

func (DisabledTwitter) SearchRecent(context.Context, string, int) ([]Tweet, error) {
	return nil, ErrNotConfigured
}
func (DisabledTwitter) Mentions(context.Context, int) ([]Tweet, error)   { return nil, ErrNotConfigured }
func (DisabledTwitter) UserTweets(context.Context, int) ([]Tweet, error) { return nil, ErrNotConfigured }
func (DisabledTwitter) Post(context.Context, string) (string, error)     { return "", ErrNotConfigured }
func (DisabledTwitter) Reply(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}
func (DisabledTwitter) Metrics(context.Context, []string) ([]Tweet, error) {
	return nil, ErrNotConfigured
}

// DisabledDistributor is the stub wired in when distribution is off.
type DisabledDistributor struct{}

func (DisabledDistributor) Distribute(context.Context, string, string, string) (string, error) {
	return "", ErrNotConfigured
}
func (DisabledDistributor) Platforms() []string { return nil }

// DisabledRenderer is the stub wired in when rendering is off.
type DisabledRenderer struct{}

func (DisabledRenderer) Render(context.Context, RenderRequest) (*RenderResult, error) {
	return nil, ErrNotConfigured
}

// Adapters bundles the resolved publishing surfaces for wiring time.
// All fields are non-nil after FromConfig; disabled surfaces hold stubs.
type Adapters struct {
	Twitter     Twitter
	Distributor Distributor
	Renderer    Renderer
}

// FromConfig builds the adapter set from configuration, resolving the
// credential environment variables each section names. A surface that is
// disabled, or enabled but missing required credentials, gets its stub;
// the daemon keeps running either way.
func FromConfig(cfg *config.PlatformConfig) *Adapters {
	logger := slog.Default().With("component", "platform")
	adapters := &Adapters{
		Twitter:     DisabledTwitter{},
		Distributor: DisabledDistributor{},
		Renderer:    DisabledRenderer{},
	}
	if cfg == nil {
		return adapters
	}

	if tc := cfg.Twitter; tc != nil && tc.Enabled {
		creds := TwitterCredentials{
			BearerToken:    os.Getenv(tc.BearerTokenEnv),
			ConsumerKey:    os.Getenv(tc.ConsumerKeyEnv),
			ConsumerSecret: os.Getenv(tc.ConsumerSecretEnv),
			AccessToken:    os.Getenv(tc.AccessTokenEnv),
			AccessSecret:   os.Getenv(tc.AccessSecretEnv),
		}
		client, err := NewTwitterClient(tc, creds)
		if err != nil {
			logger.Warn("Twitter adapter unavailable, surface off", "error", err)
		} else {
			adapters.Twitter = client
			logger.Info("Twitter adapter enabled",
				"user_id", tc.UserID, "writes_enabled", client.CanWrite())
		}
	} else {
		logger.Info("Twitter adapter disabled")
	}

	if dc := cfg.Distributor; dc != nil && dc.Enabled {
		dist, err := NewHTTPDistributor(dc, os.Getenv(dc.TokenEnv))
		if err != nil {
			logger.Warn("Distributor adapter unavailable, surface off", "error", err)
		} else {
			adapters.Distributor = dist
			logger.Info("Distributor adapter enabled", "platforms", dc.Platforms)
		}
	} else {
		logger.Info("Distributor adapter disabled")
	}

	if rc := cfg.Renderer; rc != nil && rc.Enabled {
		rend, err := NewHTTPRenderer(rc, os.Getenv(rc.TokenEnv))
		if err != nil {
			logger.Warn("Renderer adapter unavailable, surface off", "error", err)
		} else {
			adapters.Renderer = rend
			logger.Info("Renderer adapter enabled")
		}
	} else {
		logger.Info("Renderer adapter disabled")
	}

	return adapters
}
