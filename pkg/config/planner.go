package config

import "time"

// PlannerConfig controls the daily posting-plan generator.
// The window and gap values produce a timetable that reads as human:
// posts land on odd minutes, at least two hours apart, never more than
// six-and-change hours apart, all inside the waking window.
type PlannerConfig struct {
	// MinPosts/MaxPosts bound the uniform draw for slots per day.
	MinPosts int `yaml:"min_posts"`
	MaxPosts int `yaml:"max_posts"`

	// WindowStartHour/WindowEndHour delimit the posting window in UTC.
	// Slots are generated in [start, end) and clamped to start..end-1.
	WindowStartHour int `yaml:"window_start_hour"`
	WindowEndHour   int `yaml:"window_end_hour"`

	// MinGapMinutes/MaxGapMinutes constrain consecutive slot spacing
	// before the clamp pass.
	MinGapMinutes int `yaml:"min_gap_minutes"`
	MaxGapMinutes int `yaml:"max_gap_minutes"`

	// GenerationLead is how far ahead of each slot the tweet-generation
	// job fires.
	GenerationLead time.Duration `yaml:"generation_lead"`

	// HistoryMinSamples is the minimum number of historical observations
	// before engagement-weighted hour picking kicks in.
	HistoryMinSamples int `yaml:"history_min_samples"`

	// NextSlotMinLead and NextSlotClearance guard NextPlannedSlot():
	// a candidate slot must be at least MinLead in the future and at
	// least Clearance away from every pending scheduled job.
	NextSlotMinLead   time.Duration `yaml:"next_slot_min_lead"`
	NextSlotClearance time.Duration `yaml:"next_slot_clearance"`
}

// DefaultPlannerConfig returns the built-in planner defaults.
func DefaultPlannerConfig() *PlannerConfig {
	return &PlannerConfig{
		MinPosts:          4,
		MaxPosts:          8,
		WindowStartHour:   4,
		WindowEndHour:     19,
		MinGapMinutes:     120,
		MaxGapMinutes:     360,
		GenerationLead:    30 * time.Minute,
		HistoryMinSamples: 20,
		NextSlotMinLead:   5 * time.Minute,
		NextSlotClearance: 90 * time.Minute,
	}
}
