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

// MonitorMentions fetches recent mentions plus replies under the
// principal's own recent tweets, persists the unseen ones, and queues
// reply drafts for the top few. Replies to the principal's tweets are
// answered before plain mentions; within a kind, longer tweets first.
func (a *Agent) MonitorMentions(ctx context.Context) error {
	if a.halted(ctx) {
		return nil
	}

	mentions, err := a.twitter.Mentions(ctx, 50)
	if err != nil {
		if errors.Is(err, platform.ErrNotConfigured) {
			a.logger.Info("Twitter surface off, mention monitor idle")
			return nil
		}
		return fmt.Errorf("fetching mentions: %w", err)
	}

	incoming := make(map[string]*models.SeenMention)
	var order []string
	add := func(t platform.Tweet, kind string) {
		if strings.EqualFold(t.AuthorUsername, a.persona.Handle) {
			return
		}
		if _, ok := incoming[t.ID]; ok {
			return
		}
		incoming[t.ID] = &models.SeenMention{
			TweetID: t.ID,
			Author:  t.AuthorUsername,
			Text:    t.Text,
			Kind:    kind,
		}
		order = append(order, t.ID)
	}
	for _, t := range mentions {
		add(t, "mention")
	}
	a.collectOwnThreadReplies(ctx, add)

	if len(order) == 0 {
		return nil
	}
	freshIDs, err := a.store.FilterNewMentions(ctx, order)
	if err != nil {
		return fmt.Errorf("filtering mentions: %w", err)
	}
	if len(freshIDs) == 0 {
		return nil
	}

	var fresh []*models.SeenMention
	for _, id := range freshIDs {
		m := incoming[id]
		saved, err := a.store.SaveSeenMention(ctx, m)
		if err != nil {
			a.logger.Warn("Mention not persisted", "tweet_id", id, "error", err)
			continue
		}
		fresh = append(fresh, saved)
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		if fresh[i].Kind != fresh[j].Kind {
			return fresh[i].Kind == "reply"
		}
		return len(fresh[i].Text) > len(fresh[j].Text)
	})
	top := a.cfg.TopMentions
	if top <= 0 {
		top = 3
	}

	drafted := 0
	for _, mention := range fresh {
		if drafted >= top {
			break
		}
		if err := a.queueMentionReply(ctx, mention); err != nil {
			a.logger.Warn("Mention reply not queued", "tweet_id", mention.TweetID, "error", err)
			continue
		}
		drafted++
	}

	a.notify(ctx, "mentions",
		fmt.Sprintf("Mentions: %d new, %d reply drafts awaiting review.", len(fresh), drafted))
	a.logger.Info("Mention monitor finished", "new", len(fresh), "drafted", drafted)
	return nil
}

// collectOwnThreadReplies searches the conversations under the principal's
// recent tweets. Failures here degrade the run, never abort it: direct
// mentions were already fetched.
func (a *Agent) collectOwnThreadReplies(ctx context.Context, add func(platform.Tweet, string)) {
	lookback := a.cfg.MentionLookback
	if lookback <= 0 {
		return
	}
	own, err := a.twitter.UserTweets(ctx, lookback)
	if err != nil {
		if !errors.Is(err, platform.ErrNotConfigured) {
			a.logger.Warn("Own timeline unavailable", "error", err)
		}
		return
	}
	for _, tweet := range own {
		replies, err := a.twitter.SearchRecent(ctx, "conversation_id:"+tweet.ID, 20)
		if err != nil {
			a.logger.Warn("Thread replies unavailable", "tweet_id", tweet.ID, "error", err)
			continue
		}
		for _, r := range replies {
			if r.ID == tweet.ID {
				continue
			}
			add(r, "reply")
		}
	}
}

func (a *Agent) queueMentionReply(ctx context.Context, mention *models.SeenMention) error {
	situation := "reply to a mention of the principal"
	if mention.Kind == "reply" {
		situation = "reply to someone responding under the principal's own tweet"
	}
	draft, err := a.draftReply(ctx, platform.Tweet{
		ID:             mention.TweetID,
		AuthorUsername: mention.Author,
		Text:           mention.Text,
	}, situation)
	if err != nil {
		return fmt.Errorf("drafting: %w", err)
	}

	actionData, err := replyActionData(mention.TweetID, draft)
	if err != nil {
		return err
	}
	approval, err := a.approvals.Submit(ctx, models.SubmitApprovalRequest{
		ProjectID:  a.project,
		AgentID:    "growth",
		ActionType: "reply",
		ActionData: actionData,
		ContextSummary: fmt.Sprintf("Reply to @%s (%s): %s",
			mention.Author, mention.Kind, clipRunes(mention.Text, 140)),
	})
	if err != nil {
		return fmt.Errorf("submitting: %w", err)
	}
	if err := a.store.SetMentionApproval(ctx, mention.ID, approval.ID); err != nil {
		a.logger.Warn("Approval not linked to mention",
			"mention_id", mention.ID, "approval_id", approval.ID, "error", err)
	}

	if a.memory != nil {
		verb := "mentioned"
		if mention.Kind == "reply" {
			verb = "replied to"
		}
		note := fmt.Sprintf("%s the principal: %s", verb, clipRunes(mention.Text, 200))
		if _, err := a.memory.RecordInteraction(ctx, mention.Author, mention.Author, "follower", note); err != nil {
			a.logger.Warn("Interaction not recorded", "author", mention.Author, "error", err)
		}
	}
	return nil
}
