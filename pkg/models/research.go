package models

import (
	"encoding/json"
	"time"
)

// Research priorities assigned by the evaluator.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Suggested actions routed after evaluation.
const (
	ActionAlert     = "alert"
	ActionTask      = "task"
	ActionContent   = "content"
	ActionKnowledge = "knowledge"
	ActionSkip      = "skip"
)

// ResearchItem is one scraped item, unique per (source) source_id.
// Evaluation fields stay zero until the evaluator runs.
type ResearchItem struct {
	ID              int64           `db:"id" json:"id"`
	Source          string          `db:"source" json:"source"`
	SourceID        string          `db:"source_id" json:"source_id"`
	URL             string          `db:"url" json:"url"`
	Title           string          `db:"title" json:"title"`
	Content         string          `db:"content" json:"content"`
	PublishedAt     *time.Time      `db:"published_at" json:"published_at,omitempty"`
	ScrapedAt       time.Time       `db:"scraped_at" json:"scraped_at"`
	RelevanceScore  float64         `db:"relevance_score" json:"relevance_score"`
	Priority        string          `db:"priority" json:"priority"`
	SuggestedAction string          `db:"suggested_action" json:"suggested_action"`
	MatchedGoals    json.RawMessage `db:"matched_goals" json:"matched_goals"`
	Reasoning       string          `db:"reasoning" json:"reasoning"`
	Summary         string          `db:"summary" json:"summary"`
	EvaluatedAt     *time.Time      `db:"evaluated_at" json:"evaluated_at,omitempty"`
}

// Evaluation is the structured verdict for one research item.
type Evaluation struct {
	Relevance       float64  `json:"relevance"`
	Priority        string   `json:"priority"`
	SuggestedAction string   `json:"suggested_action"`
	MatchedGoals    []string `json:"matched_goals"`
	Reasoning       string   `json:"reasoning"`
	Summary         string   `json:"summary"`
}

// Digest summarizes one research cycle.
type Digest struct {
	ID        int64           `db:"id" json:"id"`
	Kind      string          `db:"kind" json:"kind"`
	Scraped   int             `db:"scraped" json:"scraped"`
	NewItems  int             `db:"new_items" json:"new_items"`
	Relevant  int             `db:"relevant" json:"relevant"`
	Alerts    int             `db:"alerts" json:"alerts"`
	Tasks     int             `db:"tasks" json:"tasks"`
	Content   int             `db:"content" json:"content"`
	Knowledge int             `db:"knowledge" json:"knowledge"`
	Errors    json.RawMessage `db:"errors" json:"errors"`
	RunAt     time.Time       `db:"run_at" json:"run_at"`
}
