package models

import "time"

// Person is a relationship record. Never decays.
type Person struct {
	ID                int64     `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Handle            string    `db:"handle" json:"handle"`
	Relationship      string    `db:"relationship" json:"relationship"`
	Notes             string    `db:"notes" json:"notes"`
	InteractionCount  int       `db:"interaction_count" json:"interaction_count"`
	FirstSeen         time.Time `db:"first_seen" json:"first_seen"`
	LastInteractionAt time.Time `db:"last_interaction_at" json:"last_interaction_at"`
}

// Knowledge is a durable fact. Never decays.
type Knowledge struct {
	ID        int64     `db:"id" json:"id"`
	Topic     string    `db:"topic" json:"topic"`
	Content   string    `db:"content" json:"content"`
	Category  string    `db:"category" json:"category"`
	Source    string    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Event is an episodic memory whose recall strength decays daily.
// Significance 8+ events are clamped to a recall floor and never pruned
// by strength.
type Event struct {
	ID             int64     `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	Summary        string    `db:"summary" json:"summary"`
	Category       string    `db:"category" json:"category"`
	Significance   int       `db:"significance" json:"significance"`
	RecallStrength float64   `db:"recall_strength" json:"recall_strength"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastDecayedAt  time.Time `db:"last_decayed_at" json:"last_decayed_at"`
}

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalArchived  GoalStatus = "archived"
)

// Goal drives the research relevance pre-filter and evaluation prompts.
type Goal struct {
	ID          int64      `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Priority    int        `db:"priority" json:"priority"`
	Status      GoalStatus `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// MemoryStats summarizes store sizes for status reporting.
type MemoryStats struct {
	People    int `db:"people" json:"people"`
	Knowledge int `db:"knowledge" json:"knowledge"`
	Events    int `db:"events" json:"events"`
	Goals     int `db:"goals" json:"goals"`
}
