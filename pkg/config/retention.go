package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// CheckinDays is how many days checkin-log entries are kept.
	CheckinDays int `yaml:"checkin_days"`

	// AuditDays is how many days audit rows are kept.
	AuditDays int `yaml:"audit_days"`

	// EventStreamDays is how many days lifecycle-event rows are kept.
	EventStreamDays int `yaml:"event_stream_days"`

	// DigestDays is how many days research digests are kept.
	DigestDays int `yaml:"digest_days"`

	// PlanDays is how many days daily-plan rows are kept.
	PlanDays int `yaml:"plan_days"`

	// ResearchItemDays is how many days evaluated research items are
	// kept. Feeds only surface recent content, so dedup does not need
	// older rows.
	ResearchItemDays int `yaml:"research_item_days"`

	// GrowthDays is how many days reply-target and seen-mention rows
	// are kept.
	GrowthDays int `yaml:"growth_days"`

	// ExpirySweep enables the periodic expire_old sweep over pending
	// approvals.
	ExpirySweep bool `yaml:"expiry_sweep"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		CheckinDays:      30,
		AuditDays:        90,
		EventStreamDays:  7,
		DigestDays:       180,
		PlanDays:         90,
		ResearchItemDays: 180,
		GrowthDays:       90,
		ExpirySweep:      true,
		CleanupInterval:  1 * time.Hour,
	}
}
