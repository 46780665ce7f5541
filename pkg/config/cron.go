package config

import "time"

// CronConfig controls the in-process periodic job runner.
type CronConfig struct {
	// Tick is the resolution of the due-check loop.
	Tick time.Duration `yaml:"tick"`

	// MaxConcurrent bounds how many periodic jobs may run at once.
	// Overflow jobs are skipped for that tick, not queued.
	MaxConcurrent int `yaml:"max_concurrent"`

	// JobTimeout is the maximum wall time for a single periodic job run.
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// DefaultCronConfig returns the built-in periodic runner defaults.
func DefaultCronConfig() *CronConfig {
	return &CronConfig{
		Tick:          1 * time.Second,
		MaxConcurrent: 4,
		JobTimeout:    20 * time.Minute,
	}
}
