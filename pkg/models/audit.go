package models

import (
	"encoding/json"
	"time"
)

// Severity is the audit log severity level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityReject   Severity = "reject"
	SeverityCritical Severity = "critical"
)

// AuditEntry is one row of the append-only audit log. Critical entries are
// also handed synchronously to the registered alert sink.
type AuditEntry struct {
	ID        int64           `db:"id" json:"id"`
	ProjectID string          `db:"project_id" json:"project_id"`
	Severity  Severity        `db:"severity" json:"severity"`
	Topic     string          `db:"topic" json:"topic"`
	Message   string          `db:"message" json:"message"`
	Details   json.RawMessage `db:"details" json:"details"`
	Success   bool            `db:"success" json:"success"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// KillSwitchState is the singleton kill switch row.
type KillSwitchState struct {
	Active    bool       `db:"active" json:"active"`
	Reason    string     `db:"reason" json:"reason"`
	Since     *time.Time `db:"since" json:"since,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// CheckinEntry records a sent notification for dedup and review.
type CheckinEntry struct {
	ID          int64     `db:"id" json:"id"`
	Topic       string    `db:"topic" json:"topic"`
	MessageHash string    `db:"message_hash" json:"message_hash"`
	Preview     string    `db:"preview" json:"preview"`
	ActionType  string    `db:"action_type" json:"action_type"`
	SentAt      time.Time `db:"sent_at" json:"sent_at"`
}

// BudgetDay is one day of accumulated model spend for a project.
type BudgetDay struct {
	ProjectID    string    `db:"project_id" json:"project_id"`
	Day          time.Time `db:"day" json:"day"`
	InputTokens  int64     `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64     `db:"output_tokens" json:"output_tokens"`
	CostUSD      float64   `db:"cost_usd" json:"cost_usd"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
