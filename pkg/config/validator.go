package config

import (
	"fmt"
)

// ConfigValidator validates configuration with clear error messages.
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs validation (fail-fast, stops at first error).
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validatePlanner(); err != nil {
		return fmt.Errorf("planner validation failed: %w", err)
	}
	if err := v.validateScheduler(); err != nil {
		return fmt.Errorf("scheduler validation failed: %w", err)
	}
	if err := v.validateCron(); err != nil {
		return fmt.Errorf("cron validation failed: %w", err)
	}
	if err := v.validateNotify(); err != nil {
		return fmt.Errorf("notify validation failed: %w", err)
	}
	if err := v.validateApprovals(); err != nil {
		return fmt.Errorf("approvals validation failed: %w", err)
	}
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}
	if err := v.validateSlack(); err != nil {
		return fmt.Errorf("slack validation failed: %w", err)
	}
	if err := v.validatePlatform(); err != nil {
		return fmt.Errorf("platform validation failed: %w", err)
	}
	return nil
}

func (v *ConfigValidator) validatePlanner() error {
	p := v.cfg.Planner
	if p.MinPosts < 1 {
		return NewValidationError("planner", "min_posts", fmt.Errorf("must be at least 1"))
	}
	if p.MaxPosts < p.MinPosts {
		return NewValidationError("planner", "max_posts", fmt.Errorf("must be >= min_posts (%d)", p.MinPosts))
	}
	if p.WindowStartHour < 0 || p.WindowStartHour > 23 {
		return NewValidationError("planner", "window_start_hour", fmt.Errorf("%w: %d", ErrInvalidValue, p.WindowStartHour))
	}
	if p.WindowEndHour <= p.WindowStartHour || p.WindowEndHour > 24 {
		return NewValidationError("planner", "window_end_hour", fmt.Errorf("must be in (%d, 24]", p.WindowStartHour))
	}
	if p.MinGapMinutes < 0 || p.MaxGapMinutes < p.MinGapMinutes {
		return NewValidationError("planner", "max_gap_minutes", fmt.Errorf("must be >= min_gap_minutes (%d)", p.MinGapMinutes))
	}
	windowMinutes := (p.WindowEndHour - p.WindowStartHour) * 60
	if p.MinGapMinutes > 0 && (p.MinPosts-1)*p.MinGapMinutes > windowMinutes {
		return NewValidationError("planner", "min_gap_minutes",
			fmt.Errorf("%d posts with %d min gaps cannot fit a %d min window", p.MinPosts, p.MinGapMinutes, windowMinutes))
	}
	if p.GenerationLead < 0 {
		return NewValidationError("planner", "generation_lead", fmt.Errorf("must not be negative"))
	}
	return nil
}

func (v *ConfigValidator) validateScheduler() error {
	s := v.cfg.Scheduler
	if s.PollInterval <= 0 {
		return NewValidationError("scheduler", "poll_interval", fmt.Errorf("must be positive"))
	}
	if s.MaxWorkers < 1 {
		return NewValidationError("scheduler", "max_workers", fmt.Errorf("must be at least 1"))
	}
	if s.ExecutorTimeout <= 0 {
		return NewValidationError("scheduler", "executor_timeout", fmt.Errorf("must be positive"))
	}
	if s.ClaimStaleAfter <= s.ExecutorTimeout {
		return NewValidationError("scheduler", "claim_stale_after",
			fmt.Errorf("must exceed executor_timeout (%s) or finished jobs would be reclaimed", s.ExecutorTimeout))
	}
	return nil
}

func (v *ConfigValidator) validateCron() error {
	c := v.cfg.Cron
	if c.Tick <= 0 {
		return NewValidationError("cron", "tick", fmt.Errorf("must be positive"))
	}
	if c.MaxConcurrent < 1 {
		return NewValidationError("cron", "max_concurrent", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *ConfigValidator) validateNotify() error {
	if v.cfg.Notify.DedupWindow <= 0 {
		return NewValidationError("notify", "dedup_window", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *ConfigValidator) validateApprovals() error {
	if v.cfg.Approvals.ExpiryHours < 1 {
		return NewValidationError("approvals", "expiry_hours", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *ConfigValidator) validateServer() error {
	if v.cfg.Server.Port < 1 || v.cfg.Server.Port > 65535 {
		return NewValidationError("server", "port", fmt.Errorf("%w: %d", ErrInvalidValue, v.cfg.Server.Port))
	}
	return nil
}

func (v *ConfigValidator) validateSlack() error {
	s := v.cfg.Slack
	if s.Enabled && s.Channel == "" {
		return NewValidationError("slack", "channel", fmt.Errorf("required when slack is enabled"))
	}
	return nil
}

func (v *ConfigValidator) validatePlatform() error {
	p := v.cfg.Platform
	if p == nil {
		return nil
	}
	if t := p.Twitter; t != nil && t.Enabled && t.UserID == "" {
		return NewValidationError("platform", "twitter.user_id", fmt.Errorf("required when twitter is enabled"))
	}
	if d := p.Distributor; d != nil && d.Enabled {
		if d.BaseURL == "" {
			return NewValidationError("platform", "distributor.base_url", fmt.Errorf("required when distributor is enabled"))
		}
		if len(d.Platforms) == 0 {
			return NewValidationError("platform", "distributor.platforms", fmt.Errorf("at least one platform required"))
		}
	}
	if r := p.Renderer; r != nil && r.Enabled && r.BaseURL == "" {
		return NewValidationError("platform", "renderer.base_url", fmt.Errorf("required when renderer is enabled"))
	}
	return nil
}
