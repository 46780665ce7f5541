package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showrunner-io/showrunner/pkg/config"
)

const searchFixture = `{
  "data": [
    {
      "id": "1001",
      "text": "kubernetes controllers in production",
      "author_id": "u1",
      "created_at": "2026-08-20T14:03:00.000Z",
      "public_metrics": {"retweet_count": 7, "reply_count": 12, "like_count": 88, "impression_count": 5400},
      "referenced_tweets": [{"type": "replied_to", "id": "999"}]
    },
    {
      "id": "1002",
      "text": "shipping a new release",
      "author_id": "u2",
      "created_at": "2026-08-20T15:10:00.000Z",
      "public_metrics": {"retweet_count": 1, "reply_count": 0, "like_count": 3, "impression_count": 240}
    }
  ],
  "includes": {
    "users": [
      {"id": "u1", "username": "opsdev", "public_metrics": {"followers_count": 15200}},
      {"id": "u2", "username": "smallacct", "public_metrics": {"followers_count": 90}}
    ]
  }
}`

func newTestTwitter(t *testing.T, handler http.HandlerFunc, withWrites bool) *TwitterClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := TwitterCredentials{BearerToken: "test-bearer"}
	if withWrites {
		creds.ConsumerKey = "ck"
		creds.ConsumerSecret = "cs"
		creds.AccessToken = "at"
		creds.AccessSecret = "as"
	}
	client, err := NewTwitterClient(&config.TwitterConfig{
		UserID:  "42",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, creds)
	require.NoError(t, err)
	return client
}

func TestNewTwitterClient_Validation(t *testing.T) {
	_, err := NewTwitterClient(nil, TwitterCredentials{BearerToken: "x"})
	require.ErrorContains(t, err, "config is required")

	_, err = NewTwitterClient(&config.TwitterConfig{UserID: "42"}, TwitterCredentials{})
	require.ErrorContains(t, err, "bearer token is required")

	_, err = NewTwitterClient(&config.TwitterConfig{}, TwitterCredentials{BearerToken: "x"})
	require.ErrorContains(t, err, "user id is required")
}

func TestTwitterClient_SearchRecent(t *testing.T) {
	ctx := context.Background()

	client := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "Bearer test-bearer", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "golang concurrency", q.Get("query"))
		assert.Equal(t, "20", q.Get("max_results"))
		assert.Equal(t, "author_id", q.Get("expansions"))
		assert.Contains(t, q.Get("tweet.fields"), "public_metrics")
		assert.Contains(t, q.Get("user.fields"), "public_metrics")

		_, _ = io.WriteString(w, searchFixture)
	}, false)

	tweets, err := client.SearchRecent(ctx, "golang concurrency", 20)
	require.NoError(t, err)
	require.Len(t, tweets, 2)

	first := tweets[0]
	assert.Equal(t, "1001", first.ID)
	assert.Equal(t, "kubernetes controllers in production", first.Text)
	assert.Equal(t, "u1", first.AuthorID)
	assert.Equal(t, "opsdev", first.AuthorUsername)
	assert.Equal(t, 15200, first.AuthorFollowers)
	assert.Equal(t, "999", first.InReplyToID)
	assert.Equal(t, 88, first.Likes)
	assert.Equal(t, 12, first.Replies)
	assert.Equal(t, 7, first.Retweets)
	assert.Equal(t, 5400, first.Impressions)
	assert.True(t, first.CreatedAt.Equal(time.Date(2026, 8, 20, 14, 3, 0, 0, time.UTC)))

	second := tweets[1]
	assert.Equal(t, "smallacct", second.AuthorUsername)
	assert.Equal(t, 90, second.AuthorFollowers)
	assert.Empty(t, second.InReplyToID)
}

func TestTwitterClient_SearchRecent_ClampsAndValidates(t *testing.T) {
	ctx := context.Background()

	var gotMax string
	client := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		gotMax = r.URL.Query().Get("max_results")
		_, _ = io.WriteString(w, `{"data": []}`)
	}, false)

	_, err := client.SearchRecent(ctx, "   ", 10)
	require.ErrorContains(t, err, "query is empty")

	_, err = client.SearchRecent(ctx, "anything", 0)
	require.NoError(t, err)
	assert.Equal(t, "10", gotMax)

	_, err = client.SearchRecent(ctx, "anything", 5000)
	require.NoError(t, err)
	assert.Equal(t, "100", gotMax)
}

func TestTwitterClient_MentionsAndUserTweets(t *testing.T) {
	ctx := context.Background()

	var gotPath string
	var gotQuery map[string][]string
	client := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = io.WriteString(w, `{
			"data": [{"id": "501", "text": "hey @principal", "author_id": "u9",
				"public_metrics": {"like_count": 2, "reply_count": 1, "retweet_count": 0, "impression_count": 60}}],
			"includes": {"users": [{"id": "u9", "username": "fan", "public_metrics": {"followers_count": 10}}]}
		}`)
	}, false)

	mentions, err := client.Mentions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "/2/users/42/mentions", gotPath)
	assert.Equal(t, []string{"5"}, gotQuery["max_results"])
	assert.Equal(t, "fan", mentions[0].AuthorUsername)

	own, err := client.UserTweets(ctx, 10)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "/2/users/42/tweets", gotPath)
	assert.Equal(t, []string{"retweets"}, gotQuery["exclude"])
}

func TestTwitterClient_PostAndReply(t *testing.T) {
	ctx := context.Background()

	var gotAuth string
	var gotBody map[string]any
	client := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/tweets", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data": {"id": "900", "text": "posted"}}`)
	}, true)

	id, err := client.Post(ctx, "hello from the daemon")
	require.NoError(t, err)
	assert.Equal(t, "900", id)
	assert.Equal(t, "hello from the daemon", gotBody["text"])
	assert.True(t, strings.HasPrefix(gotAuth, "OAuth "), "writes must be OAuth1 signed, got %q", gotAuth)
	assert.Contains(t, gotAuth, `oauth_consumer_key="ck"`)

	id, err = client.Reply(ctx, "777", "good point")
	require.NoError(t, err)
	assert.Equal(t, "900", id)
	reply, ok := gotBody["reply"].(map[string]any)
	require.True(t, ok, "reply payload missing: %v", gotBody)
	assert.Equal(t, "777", reply["in_reply_to_tweet_id"])
}

func TestTwitterClient_WritesRequireCredentials(t *testing.T) {
	ctx := context.Background()

	client := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}, false)

	assert.False(t, client.CanWrite())

	_, err := client.Post(ctx, "should not go out")
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = client.Reply(ctx, "1", "neither should this")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestTwitterClient_Metrics(t *testing.T) {
	ctx := context.Background()

	var gotIDs string
	client := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets", r.URL.Path)
		gotIDs = r.URL.Query().Get("ids")
		_, _ = io.WriteString(w, `{"data": [
			{"id": "1", "text": "a", "public_metrics": {"like_count": 4, "reply_count": 1, "retweet_count": 2, "impression_count": 300}}
		]}`)
	}, false)

	got, err := client.Metrics(ctx, []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, "1,2,3", gotIDs)
	require.Len(t, got, 1)
	assert.Equal(t, 300, got[0].Impressions)

	got, err = client.Metrics(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTwitterClient_APIErrorSurfaced(t *testing.T) {
	ctx := context.Background()

	client := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"title": "Too Many Requests", "detail": "Rate limit exceeded"}`)
	}, false)

	_, err := client.Mentions(ctx, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "Too Many Requests: Rate limit exceeded")
}

func TestTwitterClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()

	client := newTestTwitter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, false)

	for i := 0; i < 5; i++ {
		_, err := client.UserTweets(ctx, 5)
		require.ErrorContains(t, err, "status 500")
	}

	_, err := client.UserTweets(ctx, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "expected open breaker, got %v", err)
}
