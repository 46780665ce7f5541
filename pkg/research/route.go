package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/modelrouter"
)

// Approvals is the approval-queue slice the router submits drafts to.
// Satisfied by *services.ApprovalService.
type Approvals interface {
	Submit(ctx context.Context, req models.SubmitApprovalRequest) (*models.Approval, error)
}

// Memories supplies goals and receives knowledge notes. Satisfied by
// *services.MemoryService.
type Memories interface {
	ActiveGoals(ctx context.Context) ([]*models.Goal, error)
	AddKnowledge(ctx context.Context, topic, content, category, source string) (*models.Knowledge, error)
}

// Notifier delivers operator check-ins. Satisfied by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, topic, actionType, text string)
}

// Router files evaluation verdicts: alerts reach the operator, tasks land
// in the todo file, content becomes approval-queue drafts, knowledge and
// watch become markdown notes plus a searchable memory entry.
type Router struct {
	approvals Approvals
	memory    Memories
	notifier  Notifier
	model     Model
	persona   *config.PersonaConfig
	project   string

	knowledgeDir string
	todoPath     string
	logger       *slog.Logger
}

// NewRouter creates a router. knowledgeDir and todoPath must already be
// resolved locations.
func NewRouter(approvals Approvals, memory Memories, notifier Notifier, model Model,
	persona *config.PersonaConfig, project, knowledgeDir, todoPath string) *Router {
	if persona == nil {
		persona = config.DefaultPersonaConfig()
	}
	return &Router{
		approvals:    approvals,
		memory:       memory,
		notifier:     notifier,
		model:        model,
		persona:      persona,
		project:      project,
		knowledgeDir: knowledgeDir,
		todoPath:     todoPath,
		logger:       slog.Default().With("component", "research.router"),
	}
}

// Dispatch executes one routing action for an evaluated item. The action
// may differ from the verdict's suggestion when rate control downgrades
// content to knowledge.
func (r *Router) Dispatch(ctx context.Context, action string, item *models.ResearchItem, verdict *models.Evaluation) error {
	switch action {
	case "alert":
		return r.alert(ctx, item, verdict)
	case "task":
		return r.task(item, verdict)
	case "content":
		return r.content(ctx, item, verdict)
	case "knowledge":
		return r.knowledge(ctx, item, verdict, "")
	case "watch":
		return r.knowledge(ctx, item, verdict, "watchlist")
	case "ignore":
		return nil
	default:
		return fmt.Errorf("unknown routing action %q", action)
	}
}

func (r *Router) alert(ctx context.Context, item *models.ResearchItem, verdict *models.Evaluation) error {
	headline := "Research alert"
	if verdict.Priority == "high" {
		// "critical" rides the notifier's urgent keyword list.
		headline = "Critical research alert"
	}
	text := fmt.Sprintf("%s (%s, score %.0f): %s\n%s",
		headline, item.Source, verdict.Relevance, verdict.Summary, item.URL)
	if r.notifier != nil {
		r.notifier.Notify(ctx, "research", "alert", text)
	}
	return nil
}

func (r *Router) task(item *models.ResearchItem, verdict *models.Evaluation) error {
	if r.todoPath == "" {
		return fmt.Errorf("no todo file configured")
	}
	if err := os.MkdirAll(filepath.Dir(r.todoPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.todoPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := fmt.Sprintf("- [ ] %s: %s (%s)\n", item.Title, verdict.Summary, item.URL)
	_, err = f.WriteString(line)
	return err
}

const synthesisSystem = `You draft tweets for the principal's account. Write one tweet under 280 characters grounded in the research item: a concrete take, observation, or pointer, not a headline rewrite. No hashtag piles, no engagement bait. Output only the tweet text.`

func (r *Router) content(ctx context.Context, item *models.ResearchItem, verdict *models.Evaluation) error {
	if r.model == nil || r.approvals == nil {
		return modelrouter.ErrNotConfigured
	}

	system := synthesisSystem
	if r.persona.StyleBrief != "" {
		system += "\n\nVoice: " + r.persona.StyleBrief
	}
	prompt := fmt.Sprintf("Research item (%s):\nTitle: %s\nSummary: %s\nURL: %s\n\n%s",
		item.Source, item.Title, verdict.Summary, item.URL, capContent(item.Content, 3000))

	draft, err := r.model.Complete(ctx, modelrouter.TierHigh, system, prompt, 400)
	if err != nil {
		return fmt.Errorf("content synthesis: %w", err)
	}
	draft = clipTweet(strings.TrimSpace(strings.Trim(strings.TrimSpace(draft), `"`)), 280)
	if draft == "" {
		return fmt.Errorf("content synthesis produced empty draft for %s", item.SourceID)
	}

	actionData, err := json.Marshal(map[string]string{
		"text":       draft,
		"source_url": item.URL,
	})
	if err != nil {
		return err
	}
	_, err = r.approvals.Submit(ctx, models.SubmitApprovalRequest{
		ProjectID:  r.project,
		AgentID:    "research",
		ActionType: "tweet",
		ActionData: actionData,
		ContextSummary: fmt.Sprintf("Drafted from %s item %q (score %.0f): %s",
			item.Source, item.Title, verdict.Relevance, verdict.Summary),
	})
	if err != nil {
		return fmt.Errorf("submitting draft: %w", err)
	}
	return nil
}

func (r *Router) knowledge(ctx context.Context, item *models.ResearchItem, verdict *models.Evaluation, subdir string) error {
	if r.knowledgeDir == "" {
		return fmt.Errorf("no knowledge directory configured")
	}
	category := "research"
	dir := filepath.Join(r.knowledgeDir, item.Source)
	if subdir != "" {
		category = subdir
		dir = filepath.Join(r.knowledgeDir, subdir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%s.md", time.Now().UTC().Format("2006-01-02"), slugify(item.Title))
	doc := fmt.Sprintf("# %s\n\n- Source: %s\n- URL: %s\n- Score: %.0f (%s)\n- Saved: %s\n\n%s\n\n## Notes\n\n%s\n",
		item.Title, item.Source, item.URL, verdict.Relevance, verdict.Priority,
		time.Now().UTC().Format(time.RFC3339), verdict.Summary, capContent(item.Content, 4000))
	if err := os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644); err != nil {
		return err
	}

	if r.memory != nil {
		if _, err := r.memory.AddKnowledge(ctx, item.Title, verdict.Summary, category, item.URL); err != nil {
			r.logger.Warn("Knowledge note not mirrored to memory",
				"source_id", item.SourceID, "error", err)
		}
	}
	return nil
}

// slugify turns a title into a filesystem-safe fragment.
func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteRune('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// clipTweet bounds text to max runes, cutting at a word boundary.
func clipTweet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	clipped := string(runes[:max])
	if i := strings.LastIndexByte(clipped, ' '); i > max/2 {
		clipped = clipped[:i]
	}
	return strings.TrimRight(clipped, " .,;:")
}
