package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/modelrouter"
)

// Model is the slice of the model router the pipeline uses. Satisfied by
// *modelrouter.Client.
type Model interface {
	Complete(ctx context.Context, tier modelrouter.Tier, system, prompt string, maxTokens int64) (string, error)
}

// Evaluator grades stored items against the principal's active goals.
type Evaluator struct {
	model Model
	cfg   *config.ResearchConfig
}

// NewEvaluator creates an evaluator. model may be nil, in which case
// Evaluate returns an error and callers leave items pending.
func NewEvaluator(model Model, cfg *config.ResearchConfig) *Evaluator {
	if cfg == nil {
		cfg = config.DefaultResearchConfig()
	}
	return &Evaluator{model: model, cfg: cfg}
}

// stopwords are high-frequency words that would make every item match.
var stopwords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true, "have": true,
	"what": true, "your": true, "will": true, "about": true, "into": true,
	"them": true, "then": true, "than": true, "they": true, "when": true,
	"where": true, "which": true, "their": true, "there": true, "these": true,
	"would": true, "should": true, "could": true, "more": true, "some": true,
	"other": true, "over": true, "very": true, "just": true, "also": true,
	"been": true, "being": true, "does": true, "doing": true, "make": true,
	"using": true, "used": true, "every": true, "each": true,
}

// GoalKeywords derives the pre-filter vocabulary: significant words from
// active goal titles and descriptions plus the configured extras.
func GoalKeywords(goals []*models.Goal, extra []string) []string {
	seen := make(map[string]bool)
	var keywords []string
	add := func(word string) {
		word = strings.ToLower(strings.Trim(word, ".,;:!?\"'()[]"))
		if len(word) < 4 || stopwords[word] || seen[word] {
			return
		}
		seen[word] = true
		keywords = append(keywords, word)
	}
	for _, g := range goals {
		for _, w := range strings.Fields(g.Title) {
			add(w)
		}
		for _, w := range strings.Fields(g.Description) {
			add(w)
		}
	}
	for _, w := range extra {
		add(w)
	}
	return keywords
}

// MatchKeywords returns the keywords present in the item's title or
// content. Zero matches means the item never reaches a model.
func MatchKeywords(item *models.ResearchItem, keywords []string) []string {
	haystack := strings.ToLower(item.Title + "\n" + item.Content)
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// IgnoredEvaluation is the verdict stamped on items that fail the
// keyword gate.
func IgnoredEvaluation(reason string) models.Evaluation {
	return models.Evaluation{
		Relevance:       0,
		Priority:        "low",
		SuggestedAction: "ignore",
		Reasoning:       reason,
	}
}

const condenseSystem = `You condense long articles and transcripts. Rewrite the provided text as roughly 500 words of plain prose that preserves the concrete claims, numbers, names, and conclusions. No preamble, no commentary, output only the condensed text.`

// Condense shrinks long content with the cheap tier so the scoring call
// stays inside its context comfortably.
func (e *Evaluator) Condense(ctx context.Context, item *models.ResearchItem) (string, error) {
	if e.model == nil {
		return "", modelrouter.ErrNotConfigured
	}
	prompt := fmt.Sprintf("Title: %s\n\n%s", item.Title, item.Content)
	return e.model.Complete(ctx, modelrouter.TierCheap, condenseSystem, prompt, 900)
}

const rubricSystem = `You are the research filter for an autonomous social media operator. Score each item for how useful it is to the principal's goals and pick exactly one action.

Actions:
- "alert": operator must see this promptly (security issues, breaking changes affecting the principal, direct opportunities).
- "task": concrete follow-up work the operator should do.
- "content": strong raw material for an original post.
- "knowledge": worth keeping as background reference.
- "watch": not yet actionable, re-check later.
- "ignore": none of the above.

Respond with only a JSON object:
{"relevance": <0-10>, "priority": "low"|"medium"|"high", "suggested_action": "<action>", "matched_goals": ["<goal title>", ...], "reasoning": "<one sentence>", "summary": "<two sentences>"}`

// Evaluate scores one item with the mid tier. Content longer than the
// condense threshold is condensed first (falling back to truncation when
// the condense pass fails).
func (e *Evaluator) Evaluate(ctx context.Context, item *models.ResearchItem, goals []*models.Goal, matched []string) (*models.Evaluation, error) {
	if e.model == nil {
		return nil, modelrouter.ErrNotConfigured
	}

	content := item.Content
	if threshold := e.cfg.TranscriptCondenseChars; threshold > 0 && len(content) > threshold {
		condensed, err := e.Condense(ctx, item)
		if err == nil && strings.TrimSpace(condensed) != "" {
			content = condensed
		} else {
			content = capContent(content, threshold)
		}
	}

	raw, err := e.model.Complete(ctx, modelrouter.TierMid, rubricSystem, e.buildPrompt(item, content, goals, matched), 700)
	if err != nil {
		return nil, err
	}

	var verdict models.Evaluation
	if err := modelrouter.ExtractJSON(raw, &verdict); err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", item.SourceID, err)
	}
	normalizeVerdict(&verdict)
	return &verdict, nil
}

func (e *Evaluator) buildPrompt(item *models.ResearchItem, content string, goals []*models.Goal, matched []string) string {
	var b strings.Builder
	b.WriteString("Active goals:\n")
	if len(goals) == 0 {
		b.WriteString("(none recorded)\n")
	}
	for _, g := range goals {
		fmt.Fprintf(&b, "- [priority %d] %s", g.Priority, g.Title)
		if g.Description != "" {
			fmt.Fprintf(&b, ": %s", g.Description)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nItem from %s", item.Source)
	if len(matched) > 0 {
		fmt.Fprintf(&b, " (keyword hits: %s)", strings.Join(matched, ", "))
	}
	fmt.Fprintf(&b, "\nTitle: %s\nURL: %s\n\n%s\n", item.Title, item.URL, content)
	return b.String()
}

// normalizeVerdict bounds model output to what the store accepts.
func normalizeVerdict(v *models.Evaluation) {
	if v.Relevance < 0 {
		v.Relevance = 0
	}
	if v.Relevance > 10 {
		v.Relevance = 10
	}
	switch v.Priority {
	case "low", "medium", "high":
	default:
		v.Priority = "low"
	}
	switch v.SuggestedAction {
	case "alert", "task", "content", "knowledge", "watch", "ignore":
	default:
		v.SuggestedAction = "ignore"
	}
	if v.Summary == "" {
		v.Summary = v.Reasoning
	}
}
