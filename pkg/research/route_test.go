package research

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/modelrouter"
)

type stubApprovals struct {
	submitted []models.SubmitApprovalRequest
	err       error
}

func (a *stubApprovals) Submit(_ context.Context, req models.SubmitApprovalRequest) (*models.Approval, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.submitted = append(a.submitted, req)
	return &models.Approval{ID: int64(len(a.submitted)), ActionType: req.ActionType}, nil
}

type stubMemories struct {
	goals     []*models.Goal
	goalsErr  error
	knowledge []models.Knowledge
	addErr    error
}

func (m *stubMemories) ActiveGoals(context.Context) ([]*models.Goal, error) {
	return m.goals, m.goalsErr
}

func (m *stubMemories) AddKnowledge(_ context.Context, topic, content, category, source string) (*models.Knowledge, error) {
	if m.addErr != nil {
		return nil, m.addErr
	}
	k := models.Knowledge{Topic: topic, Content: content, Category: category, Source: source}
	m.knowledge = append(m.knowledge, k)
	return &k, nil
}

type stubNotifier struct {
	sent []stubNotification
}

type stubNotification struct {
	Topic      string
	ActionType string
	Text       string
}

func (n *stubNotifier) Notify(_ context.Context, topic, actionType, text string) {
	n.sent = append(n.sent, stubNotification{Topic: topic, ActionType: actionType, Text: text})
}

func newTestRouter(t *testing.T, approvals Approvals, memory Memories, notifier Notifier, model Model) *Router {
	t.Helper()
	dir := t.TempDir()
	persona := &config.PersonaConfig{Name: "Sam", Handle: "samops", StyleBrief: "Dry, specific, no exclamation marks."}
	return NewRouter(approvals, memory, notifier, model, persona, "proj-1",
		filepath.Join(dir, "knowledge"), filepath.Join(dir, "TODO.md"))
}

func TestRouter_Alert(t *testing.T) {
	notifier := &stubNotifier{}
	r := newTestRouter(t, nil, nil, notifier, nil)

	item := &models.ResearchItem{Source: "hackernews", Title: "CVE in ingress", URL: "https://example.com/cve"}

	err := r.Dispatch(context.Background(), "alert", item, &models.Evaluation{
		Relevance: 7, Priority: "medium", Summary: "Patch available.",
	})
	require.NoError(t, err)

	err = r.Dispatch(context.Background(), "alert", item, &models.Evaluation{
		Relevance: 9, Priority: "high", Summary: "Actively exploited.",
	})
	require.NoError(t, err)

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, "research", notifier.sent[0].Topic)
	assert.Equal(t, "alert", notifier.sent[0].ActionType)
	assert.True(t, strings.HasPrefix(notifier.sent[0].Text, "Research alert (hackernews, score 7)"))
	assert.Contains(t, notifier.sent[0].Text, "https://example.com/cve")

	assert.True(t, strings.HasPrefix(notifier.sent[1].Text, "Critical research alert"),
		"high priority escalates through the urgent keyword")
}

func TestRouter_Task(t *testing.T) {
	r := newTestRouter(t, nil, nil, nil, nil)

	item1 := &models.ResearchItem{Title: "Try the new exporter", URL: "https://example.com/1"}
	item2 := &models.ResearchItem{Title: "Renew the domain", URL: "https://example.com/2"}

	require.NoError(t, r.Dispatch(context.Background(), "task", item1, &models.Evaluation{Summary: "Looks useful."}))
	require.NoError(t, r.Dispatch(context.Background(), "task", item2, &models.Evaluation{Summary: "Expires soon."}))

	data, err := os.ReadFile(r.todoPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "- [ ] Try the new exporter: Looks useful. (https://example.com/1)", lines[0])
	assert.Equal(t, "- [ ] Renew the domain: Expires soon. (https://example.com/2)", lines[1])
}

func TestRouter_Content(t *testing.T) {
	approvals := &stubApprovals{}
	model := &stubModel{fn: func(tier modelrouter.Tier, system, _ string) (string, error) {
		require.Equal(t, modelrouter.TierHigh, tier)
		assert.Contains(t, system, "Voice: Dry, specific")
		return `"Postgres FTS replaced our search cluster. One extension, zero new deploys. ` + strings.Repeat("Details matter here. ", 15) + `"`, nil
	}}
	r := newTestRouter(t, approvals, nil, nil, model)

	item := &models.ResearchItem{
		Source:  "reddit",
		Title:   "Postgres FTS worked for us",
		URL:     "https://reddit.example/fts",
		Content: "Long discussion body.",
	}
	err := r.Dispatch(context.Background(), "content", item, &models.Evaluation{
		Relevance: 9, Summary: "Strong FTS migration story.",
	})
	require.NoError(t, err)

	require.Len(t, approvals.submitted, 1)
	req := approvals.submitted[0]
	assert.Equal(t, "proj-1", req.ProjectID)
	assert.Equal(t, "research", req.AgentID)
	assert.Equal(t, "tweet", req.ActionType)
	assert.Contains(t, req.ContextSummary, `"Postgres FTS worked for us"`)
	assert.Contains(t, req.ContextSummary, "score 9")

	var payload struct {
		Text      string `json:"text"`
		SourceURL string `json:"source_url"`
	}
	require.NoError(t, json.Unmarshal(req.ActionData, &payload))
	assert.Equal(t, "https://reddit.example/fts", payload.SourceURL)
	assert.False(t, strings.HasPrefix(payload.Text, `"`), "surrounding quotes stripped")
	assert.LessOrEqual(t, utf8.RuneCountInString(payload.Text), 280)
	assert.True(t, strings.HasPrefix(payload.Text, "Postgres FTS replaced our search cluster."))
}

func TestRouter_ContentErrors(t *testing.T) {
	t.Run("model failure", func(t *testing.T) {
		model := &stubModel{fn: func(modelrouter.Tier, string, string) (string, error) {
			return "", errors.New("tier offline")
		}}
		r := newTestRouter(t, &stubApprovals{}, nil, nil, model)
		err := r.Dispatch(context.Background(), "content", &models.ResearchItem{Title: "t"}, &models.Evaluation{})
		require.ErrorContains(t, err, "content synthesis")
	})

	t.Run("empty draft", func(t *testing.T) {
		model := &stubModel{fn: func(modelrouter.Tier, string, string) (string, error) {
			return `   ""   `, nil
		}}
		r := newTestRouter(t, &stubApprovals{}, nil, nil, model)
		err := r.Dispatch(context.Background(), "content", &models.ResearchItem{SourceID: "hn-7", Title: "t"}, &models.Evaluation{})
		require.ErrorContains(t, err, "empty draft")
	})

	t.Run("not configured", func(t *testing.T) {
		r := newTestRouter(t, &stubApprovals{}, nil, nil, nil)
		err := r.Dispatch(context.Background(), "content", &models.ResearchItem{Title: "t"}, &models.Evaluation{})
		require.ErrorIs(t, err, modelrouter.ErrNotConfigured)
	})
}

func TestRouter_Knowledge(t *testing.T) {
	memory := &stubMemories{}
	r := newTestRouter(t, nil, memory, nil, nil)

	item := &models.ResearchItem{
		Source:  "github",
		Title:   "grafana/k6 v1.4.0: Scenario groups",
		URL:     "https://github.com/grafana/k6/releases/tag/v1.4.0",
		Content: "Adds grouped scenarios.",
	}
	verdict := &models.Evaluation{Relevance: 6, Priority: "medium", Summary: "Useful load-testing release."}

	require.NoError(t, r.Dispatch(context.Background(), "knowledge", item, verdict))

	day := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(r.knowledgeDir, "github", day+"_grafana-k6-v1-4-0-scenario-groups.md")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, "# grafana/k6 v1.4.0: Scenario groups")
	assert.Contains(t, doc, "- Source: github")
	assert.Contains(t, doc, "- Score: 6 (medium)")
	assert.Contains(t, doc, "## Notes")
	assert.Contains(t, doc, "Adds grouped scenarios.")

	require.Len(t, memory.knowledge, 1)
	assert.Equal(t, "research", memory.knowledge[0].Category)
	assert.Equal(t, item.URL, memory.knowledge[0].Source)
}

func TestRouter_WatchGoesToWatchlist(t *testing.T) {
	memory := &stubMemories{}
	r := newTestRouter(t, nil, memory, nil, nil)

	item := &models.ResearchItem{Source: "arxiv", Title: "Speculative planning", URL: "https://arxiv.org/abs/1"}
	require.NoError(t, r.Dispatch(context.Background(), "watch", item, &models.Evaluation{Summary: "Early but promising."}))

	entries, err := os.ReadDir(filepath.Join(r.knowledgeDir, "watchlist"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "speculative-planning")

	require.Len(t, memory.knowledge, 1)
	assert.Equal(t, "watchlist", memory.knowledge[0].Category)
}

func TestRouter_KnowledgeSurvivesMemoryFailure(t *testing.T) {
	memory := &stubMemories{addErr: errors.New("db down")}
	r := newTestRouter(t, nil, memory, nil, nil)

	item := &models.ResearchItem{Source: "rss", Title: "A note", URL: "https://example.com"}
	require.NoError(t, r.Dispatch(context.Background(), "knowledge", item, &models.Evaluation{Summary: "s"}),
		"the markdown file is the durable copy")

	entries, err := os.ReadDir(filepath.Join(r.knowledgeDir, "rss"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRouter_IgnoreAndUnknown(t *testing.T) {
	notifier := &stubNotifier{}
	r := newTestRouter(t, nil, nil, notifier, nil)
	item := &models.ResearchItem{Title: "t"}

	require.NoError(t, r.Dispatch(context.Background(), "ignore", item, &models.Evaluation{}))
	assert.Empty(t, notifier.sent)

	err := r.Dispatch(context.Background(), "promote", item, &models.Evaluation{})
	require.ErrorContains(t, err, `unknown routing action "promote"`)
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Postgres FTS worked for us", "postgres-fts-worked-for-us"},
		{"grafana/k6 v1.4.0: Scenario groups", "grafana-k6-v1-4-0-scenario-groups"},
		{"  --- ", "untitled"},
		{strings.Repeat("long title ", 12), "long-title-long-title-long-title-long-title-long-title-long"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, slugify(tc.in), "slugify(%q)", tc.in)
	}
}

func TestClipTweet(t *testing.T) {
	short := "fits fine"
	assert.Equal(t, short, clipTweet(short, 280))

	long := strings.Repeat("word ", 100)
	clipped := clipTweet(long, 280)
	assert.LessOrEqual(t, utf8.RuneCountInString(clipped), 280)
	assert.False(t, strings.HasSuffix(clipped, " "))
	assert.True(t, strings.HasSuffix(clipped, "word"), "cut lands on a word boundary")

	unbroken := strings.Repeat("x", 300)
	assert.Equal(t, strings.Repeat("x", 280), clipTweet(unbroken, 280))
}
