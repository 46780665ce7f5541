package models

import (
	"encoding/json"
	"time"
)

// ScheduleStatus is the lifecycle state of a scheduled content job.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleExecuted  ScheduleStatus = "executed"
	ScheduleFailed    ScheduleStatus = "failed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// ScheduledContent is a durable one-shot job keyed by job_id.
// claimed_at/claimed_by are set while an executor owns the row; status stays
// pending until the executor reports back, so a crash mid-execution leaves a
// claimed pending row for the startup sweep to release.
type ScheduledContent struct {
	JobID         string          `db:"job_id" json:"job_id"`
	ContentType   string          `db:"content_type" json:"content_type"`
	ContentData   json.RawMessage `db:"content_data" json:"content_data"`
	ScheduledTime time.Time       `db:"scheduled_time" json:"scheduled_time"`
	Status        ScheduleStatus  `db:"status" json:"status"`
	Result        string          `db:"result" json:"result"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	ExecutedAt    *time.Time      `db:"executed_at" json:"executed_at,omitempty"`
	ClaimedAt     *time.Time      `db:"claimed_at" json:"claimed_at,omitempty"`
	ClaimedBy     string          `db:"claimed_by" json:"claimed_by,omitempty"`
}

// DailyPlan records the slots chosen by the planner for one date.
// SlotTimes is a JSON array of RFC3339 timestamps.
type DailyPlan struct {
	ScheduleDate time.Time       `db:"schedule_date" json:"schedule_date"`
	PlannedCount int             `db:"planned_count" json:"planned_count"`
	SlotTimes    json.RawMessage `db:"slot_times" json:"slot_times"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Slots decodes SlotTimes into concrete timestamps.
func (p *DailyPlan) Slots() ([]time.Time, error) {
	var raw []string
	if err := json.Unmarshal(p.SlotTimes, &raw); err != nil {
		return nil, err
	}
	slots := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
		slots = append(slots, t)
	}
	return slots, nil
}
