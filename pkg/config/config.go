package config

import "path/filepath"

// Config is the umbrella configuration object returned by Initialize()
// and handed to every component at wiring time. All sections are non-nil
// after Initialize.
type Config struct {
	configPath string // Path of the loaded YAML file ("" when defaults only)

	// Project is the default project label stamped on approvals, audit rows
	// and budget spend produced by the daemon's own agents.
	Project string

	// DataDir is the root for file-based state (status file, inbox,
	// knowledge exports, todo file).
	DataDir string

	Server    *ServerConfig
	Approvals *ApprovalConfig
	Scheduler *SchedulerConfig
	Cron      *CronConfig
	Planner   *PlannerConfig
	Research  *ResearchConfig
	Growth    *GrowthConfig
	Notify    *NotifyConfig
	Retention *RetentionConfig
	Budget    *BudgetConfig
	LLM       *LLMConfig
	Slack     *SlackConfig
	Platform  *PlatformConfig
	Inbox     *InboxConfig
	Status    *StatusConfig
	Persona   *PersonaConfig
}

// ConfigPath returns the path of the YAML file the config was loaded from,
// or "" when the compiled defaults were used.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// ResolvePath resolves a possibly-relative file location against DataDir.
// Absolute paths pass through untouched.
func (c *Config) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// Stats contains statistics about loaded configuration for the startup log line.
type Stats struct {
	Feeds          int
	Subreddits     int
	GitHubRepos    int
	SearchQueries  int
	UrgentKeywords int
	SlackEnabled   bool
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.Research != nil {
		s.Feeds = len(c.Research.Feeds)
		s.Subreddits = len(c.Research.Subreddits)
		s.GitHubRepos = len(c.Research.GitHubRepos)
	}
	if c.Growth != nil {
		s.SearchQueries = len(c.Growth.SearchQueries)
	}
	if c.Notify != nil {
		s.UrgentKeywords = len(c.Notify.UrgentKeywords)
	}
	if c.Slack != nil {
		s.SlackEnabled = c.Slack.Enabled
	}
	return s
}
