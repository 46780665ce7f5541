package growth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/modelrouter"
)

// Generator synthesizes original tweet drafts and submits each one to the
// approval queue. The planner's generation jobs and the boot content-gap
// check both drive it.
type Generator struct {
	approvals Approvals
	memory    Memories
	notifier  Notifier
	model     Model
	gate      Gate

	persona *config.PersonaConfig
	project string
	logger  *slog.Logger
}

// NewGenerator creates a tweet generator.
func NewGenerator(approvals Approvals, memory Memories, notifier Notifier, model Model, gate Gate,
	persona *config.PersonaConfig, project string) *Generator {
	if persona == nil {
		persona = config.DefaultPersonaConfig()
	}
	return &Generator{
		approvals: approvals,
		memory:    memory,
		notifier:  notifier,
		model:     model,
		gate:      gate,
		persona:   persona,
		project:   project,
		logger:    slog.Default().With("component", "growth.generator"),
	}
}

const generatorSystem = `You write original tweets for the principal's account. Each tweet is under 280 characters: one concrete idea, observation, or opinion the principal could defend in a follow-up. No hashtag piles, no threads, no engagement bait. Output only the tweet text.`

// GenerateBatch drafts up to n tweets and queues each for review. It
// returns how many were queued; a model failure partway through returns
// the count so far alongside the error.
func (g *Generator) GenerateBatch(ctx context.Context, n int) (int, error) {
	if g.gate != nil && g.gate.Halted(ctx) {
		g.logger.Info("Kill switch active, generation skipped")
		return 0, nil
	}
	if g.model == nil || g.approvals == nil {
		return 0, modelrouter.ErrNotConfigured
	}
	if n <= 0 {
		return 0, nil
	}

	system := generatorSystem
	if g.persona.StyleBrief != "" {
		system += "\n\nVoice: " + g.persona.StyleBrief
	}
	goalsBlock := g.goalsBlock(ctx)

	queued := 0
	var previous []string
	for i := 0; i < n; i++ {
		raw, err := g.model.Complete(ctx, modelrouter.TierHigh, system, g.buildPrompt(goalsBlock, previous), 400)
		if err != nil {
			return queued, fmt.Errorf("drafting tweet %d of %d: %w", i+1, n, err)
		}
		draft, err := CleanDraft(raw, 280)
		if err != nil {
			g.logger.Warn("Draft rejected", "error", err)
			continue
		}

		actionData, err := json.Marshal(map[string]string{"text": draft})
		if err != nil {
			return queued, err
		}
		if _, err := g.approvals.Submit(ctx, models.SubmitApprovalRequest{
			ProjectID:      g.project,
			AgentID:        "growth",
			ActionType:     "tweet",
			ActionData:     actionData,
			ContextSummary: fmt.Sprintf("Generated tweet draft %d of %d", i+1, n),
		}); err != nil {
			return queued, fmt.Errorf("submitting draft: %w", err)
		}
		previous = append(previous, draft)
		queued++
	}

	if queued > 0 && g.notifier != nil {
		g.notifier.Notify(ctx, "growth", "generation",
			fmt.Sprintf("Generated %d tweet drafts, awaiting review.", queued))
	}
	g.logger.Info("Tweet generation finished", "requested", n, "queued", queued)
	return queued, nil
}

// goalsBlock renders active goals as prompt context. Failures degrade to
// an empty block.
func (g *Generator) goalsBlock(ctx context.Context) string {
	if g.memory == nil {
		return ""
	}
	goals, err := g.memory.ActiveGoals(ctx)
	if err != nil {
		g.logger.Warn("Active goals unavailable for generation", "error", err)
		return ""
	}
	if len(goals) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Current goals:\n")
	for _, goal := range goals {
		fmt.Fprintf(&b, "- %s", goal.Title)
		if goal.Description != "" {
			fmt.Fprintf(&b, ": %s", goal.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (g *Generator) buildPrompt(goalsBlock string, previous []string) string {
	var b strings.Builder
	if goalsBlock != "" {
		b.WriteString(goalsBlock)
		b.WriteString("\n")
	}
	b.WriteString("Write one tweet.")
	if len(previous) > 0 {
		b.WriteString(" Already drafted this batch (cover different ground):\n")
		for _, p := range previous {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	return b.String()
}
