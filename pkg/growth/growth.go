// Package growth holds the outbound-facing periodic jobs: reply-target
// discovery, mention monitoring, performance tracking, the daily report,
// the daily posting planner, and batch tweet generation. Every write goes
// through the approval queue; nothing in this package posts directly.
package growth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/modelrouter"
	"github.com/showrunner-io/showrunner/pkg/platform"
)

// Store is the growth persistence slice. Satisfied by
// *services.GrowthService.
type Store interface {
	FilterNewReplyTargets(ctx context.Context, tweetIDs []string) ([]string, error)
	SaveReplyTarget(ctx context.Context, target *models.ReplyTarget) (*models.ReplyTarget, error)
	SetReplyTargetApproval(ctx context.Context, id, approvalID int64) error
	FilterNewMentions(ctx context.Context, tweetIDs []string) ([]string, error)
	SaveSeenMention(ctx context.Context, mention *models.SeenMention) (*models.SeenMention, error)
	SetMentionApproval(ctx context.Context, id, approvalID int64) error
	UpsertTweetMetrics(ctx context.Context, metrics *models.TweetMetrics) (*models.TweetMetrics, error)
	TrackedTweetIDs(ctx context.Context, since time.Time) ([]string, error)
	MetricsSince(ctx context.Context, since time.Time) ([]*models.TweetMetrics, error)
	SaveAnalyticsReport(ctx context.Context, report *models.AnalyticsReport) (*models.AnalyticsReport, error)
}

// Approvals is the queue-submission slice. Satisfied by
// *services.ApprovalService.
type Approvals interface {
	Submit(ctx context.Context, req models.SubmitApprovalRequest) (*models.Approval, error)
}

// Memories is the memory slice growth touches. Satisfied by
// *services.MemoryService.
type Memories interface {
	ActiveGoals(ctx context.Context) ([]*models.Goal, error)
	RecordInteraction(ctx context.Context, name, handle, relationship, note string) (*models.Person, error)
}

// Notifier sends operator notifications. Satisfied by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, topic, actionType, text string)
}

// Model is the model router slice. Satisfied by *modelrouter.Client.
type Model interface {
	Complete(ctx context.Context, tier modelrouter.Tier, system, prompt string, maxTokens int64) (string, error)
}

// Gate mirrors the kill switch. Jobs check it before any external call so
// a halted system goes quiet even when a job is invoked directly. A nil
// gate never halts.
type Gate interface {
	Halted(ctx context.Context) bool
}

// Deps wires an Agent's collaborators.
type Deps struct {
	Store     Store
	Approvals Approvals
	Memory    Memories
	Notifier  Notifier
	Model     Model
	Twitter   platform.Twitter
	Gate      Gate

	Config  *config.GrowthConfig
	Persona *config.PersonaConfig
	Project string
}

// Agent runs the periodic growth jobs.
type Agent struct {
	store     Store
	approvals Approvals
	memory    Memories
	notifier  Notifier
	model     Model
	twitter   platform.Twitter
	gate      Gate

	cfg     *config.GrowthConfig
	persona *config.PersonaConfig
	project string
	logger  *slog.Logger
}

// NewAgent creates the growth agent.
func NewAgent(deps Deps) *Agent {
	if deps.Store == nil {
		panic("growth agent requires a store")
	}
	if deps.Config == nil {
		deps.Config = config.DefaultGrowthConfig()
	}
	if deps.Persona == nil {
		deps.Persona = config.DefaultPersonaConfig()
	}
	if deps.Twitter == nil {
		deps.Twitter = platform.DisabledTwitter{}
	}
	return &Agent{
		store:     deps.Store,
		approvals: deps.Approvals,
		memory:    deps.Memory,
		notifier:  deps.Notifier,
		model:     deps.Model,
		twitter:   deps.Twitter,
		gate:      deps.Gate,
		cfg:       deps.Config,
		persona:   deps.Persona,
		project:   deps.Project,
		logger:    slog.Default().With("component", "growth"),
	}
}

func (a *Agent) halted(ctx context.Context) bool {
	if a.gate == nil {
		return false
	}
	if a.gate.Halted(ctx) {
		a.logger.Info("Kill switch active, job skipped")
		return true
	}
	return false
}

func (a *Agent) notify(ctx context.Context, actionType, text string) {
	if a.notifier != nil {
		a.notifier.Notify(ctx, "growth", actionType, text)
	}
}

const replySystem = `You write replies for the principal's account. Reply to the given tweet in under 280 characters: add a concrete point, a useful pointer, or a sharp question. Never flatter, never pile on hashtags, never open with "Great post". Output only the reply text.`

// draftReply asks the mid tier for a reply to one tweet and cleans the
// result through the persona rules.
func (a *Agent) draftReply(ctx context.Context, tweet platform.Tweet, situation string) (string, error) {
	if a.model == nil {
		return "", modelrouter.ErrNotConfigured
	}
	system := replySystem
	if a.persona.StyleBrief != "" {
		system += "\n\nVoice: " + a.persona.StyleBrief
	}
	prompt := fmt.Sprintf("Situation: %s\n\nTweet by @%s:\n%s",
		situation, tweet.AuthorUsername, tweet.Text)

	raw, err := a.model.Complete(ctx, modelrouter.TierMid, system, prompt, 300)
	if err != nil {
		return "", err
	}
	draft, err := CleanDraft(raw, a.maxReplyChars())
	if err != nil {
		return "", fmt.Errorf("draft for tweet %s: %w", tweet.ID, err)
	}
	return draft, nil
}

func (a *Agent) maxReplyChars() int {
	if a.cfg.MaxReplyChars > 0 {
		return a.cfg.MaxReplyChars
	}
	return 280
}

// CleanDraft normalizes model output into postable text: surrounding
// quotes stripped, whitespace collapsed, length enforced on a word
// boundary. Empty results and hashtag piles are rejected.
func CleanDraft(raw string, maxChars int) (string, error) {
	draft := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	draft = strings.Join(strings.Fields(draft), " ")
	if draft == "" {
		return "", fmt.Errorf("empty draft")
	}
	if strings.Count(draft, "#") > 2 {
		return "", fmt.Errorf("draft rejected: hashtag pile")
	}
	clipped := clipRunes(draft, maxChars)
	return clipped, nil
}

// clipRunes bounds text to max runes, cutting at a word boundary when one
// lands in the second half.
func clipRunes(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	clipped := string(runes[:max])
	if i := strings.LastIndexByte(clipped, ' '); i > max/2 {
		clipped = clipped[:i]
	}
	return strings.TrimRight(clipped, " .,;:")
}

// replyActionData is the payload for action_type=reply approvals.
func replyActionData(tweetID, text string) (json.RawMessage, error) {
	return json.Marshal(map[string]string{
		"tweet_id": tweetID,
		"text":     text,
	})
}
