package growth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/platform"
)

// FindReplyTargets searches the configured queries for high-engagement
// conversations, scores the new ones, and queues reply drafts for the top
// scorers. One summary notification covers the whole run.
func (a *Agent) FindReplyTargets(ctx context.Context) error {
	if a.halted(ctx) {
		return nil
	}
	if len(a.cfg.SearchQueries) == 0 {
		a.logger.Info("No search queries configured, reply finder idle")
		return nil
	}

	candidates, err := a.searchCandidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]string, len(candidates))
	for i, t := range candidates {
		ids[i] = t.ID
	}
	freshIDs, err := a.store.FilterNewReplyTargets(ctx, ids)
	if err != nil {
		return fmt.Errorf("filtering reply targets: %w", err)
	}
	fresh := make(map[string]bool, len(freshIDs))
	for _, id := range freshIDs {
		fresh[id] = true
	}

	var scored []platform.Tweet
	for _, t := range candidates {
		if fresh[t.ID] {
			scored = append(scored, t)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return ReplyScore(scored[i]) > ReplyScore(scored[j])
	})

	top := a.cfg.TopTargets
	if top <= 0 {
		top = 5
	}
	if len(scored) > top {
		scored = scored[:top]
	}

	drafted := 0
	for _, tweet := range scored {
		if err := a.queueReplyTarget(ctx, tweet); err != nil {
			a.logger.Warn("Reply target not queued", "tweet_id", tweet.ID, "error", err)
			continue
		}
		drafted++
	}

	if drafted > 0 {
		a.notify(ctx, "reply_targets",
			fmt.Sprintf("Reply finder: drafted %d replies from %d new candidates, awaiting review.",
				drafted, len(freshIDs)))
	}
	a.logger.Info("Reply finder finished",
		"candidates", len(candidates), "new", len(freshIDs), "drafted", drafted)
	return nil
}

// searchCandidates runs every configured query and keeps engaged tweets.
// The whole job is skipped quietly when the Twitter surface is off; it
// fails only when every query fails.
func (a *Agent) searchCandidates(ctx context.Context) ([]platform.Tweet, error) {
	seen := make(map[string]bool)
	var candidates []platform.Tweet
	var failures []error

	for _, query := range a.cfg.SearchQueries {
		tweets, err := a.twitter.SearchRecent(ctx, query, 50)
		if err != nil {
			if errors.Is(err, platform.ErrNotConfigured) {
				a.logger.Info("Twitter surface off, reply finder idle")
				return nil, nil
			}
			a.logger.Warn("Search failed", "query", query, "error", err)
			failures = append(failures, fmt.Errorf("%q: %w", query, err))
			continue
		}
		for _, t := range tweets {
			if t.Likes < a.cfg.MinLikes && t.Replies < a.cfg.MinReplies {
				continue
			}
			if strings.EqualFold(t.AuthorUsername, a.persona.Handle) {
				continue
			}
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 && len(failures) > 0 {
		return nil, errors.Join(failures...)
	}
	return candidates, nil
}

// ReplyScore ranks a candidate conversation. Replies weigh double since an
// active thread is where a reply gets read.
func ReplyScore(t platform.Tweet) float64 {
	return float64(t.Likes) +
		2*float64(t.Replies) +
		1.5*float64(t.Retweets) +
		0.5*float64(t.AuthorFollowers)/1000
}

// queueReplyTarget persists the target, drafts a reply, submits it, and
// links the approval back to the row.
func (a *Agent) queueReplyTarget(ctx context.Context, tweet platform.Tweet) error {
	target, err := a.store.SaveReplyTarget(ctx, &models.ReplyTarget{
		TweetID:         tweet.ID,
		Author:          tweet.AuthorUsername,
		AuthorFollowers: tweet.AuthorFollowers,
		Text:            tweet.Text,
		Likes:           tweet.Likes,
		Replies:         tweet.Replies,
		Retweets:        tweet.Retweets,
		Score:           ReplyScore(tweet),
	})
	if err != nil {
		return fmt.Errorf("saving target: %w", err)
	}

	draft, err := a.draftReply(ctx, tweet, "reply to a high-engagement conversation relevant to the principal")
	if err != nil {
		return fmt.Errorf("drafting: %w", err)
	}

	actionData, err := replyActionData(tweet.ID, draft)
	if err != nil {
		return err
	}
	approval, err := a.approvals.Submit(ctx, models.SubmitApprovalRequest{
		ProjectID:  a.project,
		AgentID:    "growth",
		ActionType: "reply",
		ActionData: actionData,
		ContextSummary: fmt.Sprintf("Reply to @%s (%d likes, %d replies, score %.0f): %s",
			tweet.AuthorUsername, tweet.Likes, tweet.Replies, ReplyScore(tweet),
			clipRunes(tweet.Text, 140)),
	})
	if err != nil {
		return fmt.Errorf("submitting: %w", err)
	}

	if err := a.store.SetReplyTargetApproval(ctx, target.ID, approval.ID); err != nil {
		a.logger.Warn("Approval not linked to reply target",
			"target_id", target.ID, "approval_id", approval.ID, "error", err)
	}
	return nil
}
