package growth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/modelrouter"
	"github.com/showrunner-io/showrunner/pkg/platform"
)

func engagedTweet(id, author string, likes, replies, retweets, followers int) platform.Tweet {
	return platform.Tweet{
		ID:              id,
		Text:            "Interesting take on schedulers from @" + author,
		AuthorUsername:  author,
		AuthorFollowers: followers,
		Likes:           likes,
		Replies:         replies,
		Retweets:        retweets,
	}
}

func TestReplyScore(t *testing.T) {
	score := ReplyScore(platform.Tweet{Likes: 100, Replies: 20, Retweets: 10, AuthorFollowers: 50000})
	assert.InDelta(t, 100+40+15+25, score, 0.001)
}

func TestAgent_FindReplyTargets(t *testing.T) {
	cfg := config.DefaultGrowthConfig()
	cfg.SearchQueries = []string{"schedulers", "cron"}
	cfg.TopTargets = 2
	f := newAgentFixture(t, cfg)

	f.twitter.searchResults = map[string][]platform.Tweet{
		"schedulers": {
			engagedTweet("t1", "alice", 300, 40, 12, 90000),
			engagedTweet("t2", "bob", 60, 2, 1, 500),
			engagedTweet("t3", "carol", 5, 2, 0, 100),         // below both thresholds
			engagedTweet("t4", "samops", 900, 100, 50, 10000), // principal's own tweet
		},
		"cron": {
			engagedTweet("t1", "alice", 300, 40, 12, 90000), // duplicate across queries
			engagedTweet("t5", "dave", 10, 15, 3, 2000),
			engagedTweet("t6", "erin", 80, 12, 5, 40000), // already in the table
		},
	}
	f.store.existingTargets["t6"] = true

	require.NoError(t, f.agent.FindReplyTargets(context.Background()))

	// Scores: t1 443, t2 65.75, t5 45.5. TopTargets keeps the first two.
	require.Len(t, f.store.savedTargets, 2)
	assert.Equal(t, "t1", f.store.savedTargets[0].TweetID)
	assert.Equal(t, "t2", f.store.savedTargets[1].TweetID)
	assert.InDelta(t, ReplyScore(engagedTweet("t1", "alice", 300, 40, 12, 90000)),
		f.store.savedTargets[0].Score, 0.001)

	require.Len(t, f.approvals.submitted, 2)
	req := f.approvals.submitted[0]
	assert.Equal(t, "reply", req.ActionType)
	assert.Equal(t, "growth", req.AgentID)
	assert.Contains(t, req.ContextSummary, "@alice")

	var payload struct {
		TweetID string `json:"tweet_id"`
		Text    string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(req.ActionData, &payload))
	assert.Equal(t, "t1", payload.TweetID)
	assert.Equal(t, "A considered reply with an actual point.", payload.Text)

	assert.Equal(t, map[int64]int64{1: 1, 2: 2}, f.store.targetApprovals,
		"each target row links its approval")

	require.Len(t, f.notifier.sent, 1)
	assert.Contains(t, f.notifier.sent[0], "drafted 2 replies")
}

func TestAgent_FindReplyTargets_SurfaceOff(t *testing.T) {
	cfg := config.DefaultGrowthConfig()
	cfg.SearchQueries = []string{"anything"}
	f := newAgentFixture(t, cfg)
	f.twitter.off = true

	require.NoError(t, f.agent.FindReplyTargets(context.Background()),
		"missing credentials idle the job instead of failing it")
	assert.Empty(t, f.approvals.submitted)
	assert.Empty(t, f.notifier.sent)
}

func TestAgent_FindReplyTargets_PartialSearchFailure(t *testing.T) {
	cfg := config.DefaultGrowthConfig()
	cfg.SearchQueries = []string{"broken", "working"}
	f := newAgentFixture(t, cfg)
	f.twitter.searchErr = map[string]error{"broken": errors.New("rate limited")}
	f.twitter.searchResults = map[string][]platform.Tweet{
		"working": {engagedTweet("t9", "zoe", 120, 30, 8, 15000)},
	}

	require.NoError(t, f.agent.FindReplyTargets(context.Background()))
	require.Len(t, f.store.savedTargets, 1)
	assert.Equal(t, "t9", f.store.savedTargets[0].TweetID)
}

func TestAgent_FindReplyTargets_AllSearchesFailing(t *testing.T) {
	cfg := config.DefaultGrowthConfig()
	cfg.SearchQueries = []string{"one", "two"}
	f := newAgentFixture(t, cfg)
	f.twitter.searchErr = map[string]error{
		"one": errors.New("rate limited"),
		"two": errors.New("rate limited"),
	}

	err := f.agent.FindReplyTargets(context.Background())
	require.ErrorContains(t, err, "rate limited")
}

func TestAgent_FindReplyTargets_DraftFailureSkipsTarget(t *testing.T) {
	cfg := config.DefaultGrowthConfig()
	cfg.SearchQueries = []string{"q"}
	f := newAgentFixture(t, cfg)
	f.twitter.searchResults = map[string][]platform.Tweet{
		"q": {
			engagedTweet("t1", "alice", 300, 40, 12, 90000),
			engagedTweet("t2", "bob", 200, 25, 6, 30000),
		},
	}
	f.model.fn = func(modelrouter.Tier, string, string) (string, error) {
		return "", errors.New("model offline")
	}

	require.NoError(t, f.agent.FindReplyTargets(context.Background()))
	assert.Empty(t, f.approvals.submitted, "failed drafts queue nothing")
	assert.Len(t, f.store.savedTargets, 2, "targets persist so the finder never retries them")
	assert.Empty(t, f.notifier.sent, "nothing drafted, nothing announced")
}
