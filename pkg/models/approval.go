// Package models contains database entities and business domain types.
package models

import (
	"encoding/json"
	"time"
)

// ApprovalStatus is the lifecycle state of a queued action.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalEdited   ApprovalStatus = "edited"
	ApprovalExpired  ApprovalStatus = "expired"
)

// Terminal reports whether the status can no longer change (except execution marking).
func (s ApprovalStatus) Terminal() bool {
	switch s {
	case ApprovalRejected, ApprovalExpired:
		return true
	}
	return false
}

// Approval is a proposed agent action awaiting an operator decision.
// action_data carries the full action payload (tweet text, reply target, etc).
type Approval struct {
	ID             int64           `db:"id" json:"id"`
	ProjectID      string          `db:"project_id" json:"project_id"`
	AgentID        string          `db:"agent_id" json:"agent_id"`
	ActionType     string          `db:"action_type" json:"action_type"`
	ActionData     json.RawMessage `db:"action_data" json:"action_data"`
	ContextSummary string          `db:"context_summary" json:"context_summary"`
	CostEstimate   float64         `db:"cost_estimate" json:"cost_estimate"`
	Status         ApprovalStatus  `db:"status" json:"status"`
	OperatorNotes  string          `db:"operator_notes" json:"operator_notes"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	ReviewedAt     *time.Time      `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ExecutedAt     *time.Time      `db:"executed_at" json:"executed_at,omitempty"`
}

// ApprovalStats summarizes queue state for status reporting.
type ApprovalStats struct {
	Pending  int `db:"pending" json:"pending"`
	Approved int `db:"approved" json:"approved"`
	Rejected int `db:"rejected" json:"rejected"`
	Edited   int `db:"edited" json:"edited"`
	Expired  int `db:"expired" json:"expired"`
	Executed int `db:"executed" json:"executed"`
}

// SubmitApprovalRequest contains fields for queueing a new action.
type SubmitApprovalRequest struct {
	ProjectID      string          `json:"project_id"`
	AgentID        string          `json:"agent_id"`
	ActionType     string          `json:"action_type"`
	ActionData     json.RawMessage `json:"action_data"`
	ContextSummary string          `json:"context_summary"`
	CostEstimate   float64         `json:"cost_estimate"`
}
