package config

import "time"

// NotifyConfig controls operator notification dedup and urgency grading.
type NotifyConfig struct {
	// DedupWindow is the trailing interval within which a byte-identical
	// message is suppressed.
	DedupWindow time.Duration `yaml:"dedup_window"`

	// UrgentKeywords upgrade a message to urgent when any of them appears
	// (case-insensitive) in the text.
	UrgentKeywords []string `yaml:"urgent_keywords"`

	// SkipMarkers downgrade a message to skip (not sent) when any of them
	// appears; used for progress-only chatter.
	SkipMarkers []string `yaml:"skip_markers"`
}

// DefaultNotifyConfig returns the built-in notification defaults.
func DefaultNotifyConfig() *NotifyConfig {
	return &NotifyConfig{
		DedupWindow: 4 * time.Hour,
		UrgentKeywords: []string{
			"security",
			"api down",
			"kill switch",
			"breach",
			"credentials",
			"token expired",
			"rate limit",
			"banned",
			"critical",
			"emergency",
		},
		SkipMarkers: []string{
			"pre-execution",
			"rendering",
			"generating",
		},
	}
}
