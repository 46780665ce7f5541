package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/sony/gobreaker"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/metrics"
)

const (
	defaultTwitterBaseURL = "https://api.twitter.com"

	// Field selections requested on every read so the mapper always has
	// counters and author context to work with.
	tweetFields = "created_at,public_metrics,author_id,referenced_tweets"
	userFields  = "username,public_metrics"
)

// TwitterCredentials carries resolved secrets. The bearer token alone
// enables reads; all four OAuth1 values are needed before Post and
// Reply work.
type TwitterCredentials struct {
	BearerToken    string
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// TwitterClient talks to the X API v2. Reads use the app-only bearer
// token, writes go through the OAuth1 user context, and one circuit
// breaker guards both so a flapping API stops burning rate limit.
type TwitterClient struct {
	baseURL string
	userID  string
	bearer  string
	reader  *http.Client
	writer  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewTwitterClient builds a client from configuration and resolved
// credentials. A missing bearer token is an error; missing OAuth1 values
// only disable writes.
func NewTwitterClient(cfg *config.TwitterConfig, creds TwitterCredentials) (*TwitterClient, error) {
	if cfg == nil {
		return nil, errors.New("twitter config is required")
	}
	if creds.BearerToken == "" {
		return nil, errors.New("bearer token is required")
	}
	if cfg.UserID == "" {
		return nil, errors.New("user id is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultTwitterBaseURL
	}

	logger := slog.Default().With("component", "twitter")
	c := &TwitterClient{
		baseURL: baseURL,
		userID:  cfg.UserID,
		bearer:  creds.BearerToken,
		reader:  &http.Client{Timeout: timeout},
		logger:  logger,
	}

	if creds.ConsumerKey != "" && creds.ConsumerSecret != "" &&
		creds.AccessToken != "" && creds.AccessSecret != "" {
		oc := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
		writer := oc.Client(oauth1.NoContext, oauth1.NewToken(creds.AccessToken, creds.AccessSecret))
		writer.Timeout = timeout
		c.writer = writer
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "twitter",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Twitter breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c, nil
}

// CanWrite reports whether OAuth1 user credentials were provided.
func (c *TwitterClient) CanWrite() bool { return c.writer != nil }

// SearchRecent returns recent public tweets matching a search query.
func (c *TwitterClient) SearchRecent(ctx context.Context, query string, limit int) ([]Tweet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is empty")
	}
	params := url.Values{
		"query":        {query},
		"max_results":  {strconv.Itoa(clampLimit(limit, 10, 100))},
		"tweet.fields": {tweetFields},
		"expansions":   {"author_id"},
		"user.fields":  {userFields},
	}
	var out twitterList
	if err := c.get(ctx, "search_recent", "/2/tweets/search/recent", params, &out); err != nil {
		return nil, err
	}
	return mapTweets(out), nil
}

// Mentions returns recent tweets mentioning the principal's account.
func (c *TwitterClient) Mentions(ctx context.Context, limit int) ([]Tweet, error) {
	params := url.Values{
		"max_results":  {strconv.Itoa(clampLimit(limit, 5, 100))},
		"tweet.fields": {tweetFields},
		"expansions":   {"author_id"},
		"user.fields":  {userFields},
	}
	var out twitterList
	if err := c.get(ctx, "mentions", "/2/users/"+c.userID+"/mentions", params, &out); err != nil {
		return nil, err
	}
	return mapTweets(out), nil
}

// UserTweets returns the principal's own recent tweets, retweets excluded.
func (c *TwitterClient) UserTweets(ctx context.Context, limit int) ([]Tweet, error) {
	params := url.Values{
		"max_results":  {strconv.Itoa(clampLimit(limit, 5, 100))},
		"tweet.fields": {tweetFields},
		"exclude":      {"retweets"},
	}
	var out twitterList
	if err := c.get(ctx, "user_tweets", "/2/users/"+c.userID+"/tweets", params, &out); err != nil {
		return nil, err
	}
	return mapTweets(out), nil
}

// Post publishes a tweet and returns its id.
func (c *TwitterClient) Post(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("tweet text is empty")
	}
	return c.createTweet(ctx, "post", map[string]any{"text": text})
}

// Reply publishes a reply to the given tweet and returns the new id.
func (c *TwitterClient) Reply(ctx context.Context, toTweetID, text string) (string, error) {
	if toTweetID == "" {
		return "", errors.New("reply target tweet id is empty")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("reply text is empty")
	}
	return c.createTweet(ctx, "reply", map[string]any{
		"text":  text,
		"reply": map[string]string{"in_reply_to_tweet_id": toTweetID},
	})
}

// Metrics returns current public metrics for up to 100 tweet ids.
// Deleted or protected ids are simply absent from the result.
func (c *TwitterClient) Metrics(ctx context.Context, tweetIDs []string) ([]Tweet, error) {
	if len(tweetIDs) == 0 {
		return nil, nil
	}
	if len(tweetIDs) > 100 {
		tweetIDs = tweetIDs[:100]
	}
	params := url.Values{
		"ids":          {strings.Join(tweetIDs, ",")},
		"tweet.fields": {"created_at,public_metrics"},
	}
	var out twitterList
	if err := c.get(ctx, "metrics", "/2/tweets", params, &out); err != nil {
		return nil, err
	}
	return mapTweets(out), nil
}

func (c *TwitterClient) createTweet(ctx context.Context, endpoint string, body map[string]any) (string, error) {
	if c.writer == nil {
		return "", fmt.Errorf("twitter write credentials missing: %w", ErrNotConfigured)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	var out twitterPostResponse
	_, err = c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return nil, c.do(c.writer, req, &out)
	})
	if err := c.observe(endpoint, err); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("twitter %s: response missing tweet id", endpoint)
	}
	return out.Data.ID, nil
}

func (c *TwitterClient) get(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.bearer)
		return nil, c.do(c.reader, req, out)
	})
	return c.observe(endpoint, err)
}

// do sends the request and decodes a 2xx JSON body into out.
func (c *TwitterClient) do(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, errorSnippet(body))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *TwitterClient) observe(endpoint string, err error) error {
	if err == nil {
		metrics.PlatformCalls.WithLabelValues("twitter", endpoint, "ok").Inc()
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.PlatformCalls.WithLabelValues("twitter", endpoint, "breaker_open").Inc()
	} else {
		metrics.PlatformCalls.WithLabelValues("twitter", endpoint, "error").Inc()
	}
	return fmt.Errorf("twitter %s: %w", endpoint, err)
}

// Wire shapes for the v2 endpoints the client touches.

type twitterPublicMetrics struct {
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	LikeCount       int `json:"like_count"`
	ImpressionCount int `json:"impression_count"`
}

type twitterRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type twitterTweet struct {
	ID               string                `json:"id"`
	Text             string                `json:"text"`
	AuthorID         string                `json:"author_id"`
	CreatedAt        time.Time             `json:"created_at"`
	PublicMetrics    *twitterPublicMetrics `json:"public_metrics"`
	ReferencedTweets []twitterRef          `json:"referenced_tweets"`
}

type twitterUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
	} `json:"public_metrics"`
}

type twitterList struct {
	Data     []twitterTweet `json:"data"`
	Includes struct {
		Users []twitterUser `json:"users"`
	} `json:"includes"`
}

type twitterPostResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func mapTweets(list twitterList) []Tweet {
	authors := make(map[string]twitterUser, len(list.Includes.Users))
	for _, u := range list.Includes.Users {
		authors[u.ID] = u
	}
	tweets := make([]Tweet, 0, len(list.Data))
	for _, t := range list.Data {
		mapped := Tweet{
			ID:        t.ID,
			Text:      t.Text,
			AuthorID:  t.AuthorID,
			CreatedAt: t.CreatedAt,
		}
		if m := t.PublicMetrics; m != nil {
			mapped.Likes = m.LikeCount
			mapped.Replies = m.ReplyCount
			mapped.Retweets = m.RetweetCount
			mapped.Impressions = m.ImpressionCount
		}
		if u, ok := authors[t.AuthorID]; ok {
			mapped.AuthorUsername = u.Username
			mapped.AuthorFollowers = u.PublicMetrics.FollowersCount
		}
		for _, ref := range t.ReferencedTweets {
			if ref.Type == "replied_to" {
				mapped.InReplyToID = ref.ID
				break
			}
		}
		tweets = append(tweets, mapped)
	}
	return tweets
}

// errorSnippet pulls the API error title out of a failure body, falling
// back to a truncated raw snippet.
func errorSnippet(body []byte) string {
	var e struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		switch {
		case e.Title != "" && e.Detail != "":
			return e.Title + ": " + e.Detail
		case e.Title != "":
			return e.Title
		case e.Error != "":
			return e.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func clampLimit(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
