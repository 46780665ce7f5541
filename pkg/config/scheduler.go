package config

import "time"

// SchedulerConfig controls the durable content scheduler runtime.
// These values govern how due jobs are polled, claimed, and executed.
type SchedulerConfig struct {
	// PollInterval is the base interval for checking due jobs. Catch-up
	// latency after a restart is bounded by this value.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxWorkers is the number of executors allowed to run concurrently.
	MaxWorkers int `yaml:"max_workers"`

	// ExecutorTimeout is the maximum wall time for a single executor call.
	ExecutorTimeout time.Duration `yaml:"executor_timeout"`

	// ClaimStaleAfter is how long a claimed-but-unfinished job is left
	// alone before it becomes claimable again. Covers executor crashes
	// that skipped the terminal status update.
	ClaimStaleAfter time.Duration `yaml:"claim_stale_after"`

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// executors during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultSchedulerConfig returns the built-in scheduler defaults.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PollInterval:            1 * time.Second,
		MaxWorkers:              4,
		ExecutorTimeout:         10 * time.Minute,
		ClaimStaleAfter:         15 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}
