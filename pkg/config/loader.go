package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the showrunner.yaml file structure. Every section
// is optional; absent sections fall back to compiled defaults.
type YAMLConfig struct {
	Project   string           `yaml:"project"`
	DataDir   string           `yaml:"data_dir"`
	Server    *ServerConfig    `yaml:"server"`
	Approvals *ApprovalConfig  `yaml:"approvals"`
	Scheduler *SchedulerConfig `yaml:"scheduler"`
	Cron      *CronConfig      `yaml:"cron"`
	Planner   *PlannerConfig   `yaml:"planner"`
	Research  *ResearchConfig  `yaml:"research"`
	Growth    *GrowthConfig    `yaml:"growth"`
	Notify    *NotifyConfig    `yaml:"notify"`
	Retention *RetentionConfig `yaml:"retention"`
	Budget    *BudgetConfig    `yaml:"budget"`
	LLM       *LLMConfig       `yaml:"llm"`
	Slack     *SlackConfig     `yaml:"slack"`
	Platform  *PlatformConfig  `yaml:"platform"`
	Inbox     *InboxConfig     `yaml:"inbox"`
	Status    *StatusConfig    `yaml:"status"`
	Persona   *PersonaConfig   `yaml:"persona"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read the YAML file (path == "" means compiled defaults only)
//  2. Expand {{.ENV_VAR}} references
//  3. Parse YAML into section structs
//  4. Merge file sections over compiled defaults (file wins)
//  5. Validate the resolved configuration
//  6. Log a stats line and return the Config
func Initialize(_ context.Context, path string) (*Config, error) {
	log := slog.With("config_path", path)
	log.Info("Initializing configuration")

	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"project", cfg.Project,
		"feeds", stats.Feeds,
		"subreddits", stats.Subreddits,
		"github_repos", stats.GitHubRepos,
		"search_queries", stats.SearchQueries,
		"slack_enabled", stats.SlackEnabled)

	return cfg, nil
}

// load reads and resolves the configuration file into a complete Config.
func load(path string) (*Config, error) {
	var file YAMLConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, NewLoadError(path, fmt.Errorf("%w: %s", ErrConfigNotFound, path))
			}
			return nil, NewLoadError(path, err)
		}
		data = ExpandEnv(data)
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
	}

	cfg := &Config{
		configPath: path,
		Project:    "principal",
		DataDir:    "data",
		Server:     DefaultServerConfig(),
		Approvals:  DefaultApprovalConfig(),
		Scheduler:  DefaultSchedulerConfig(),
		Cron:       DefaultCronConfig(),
		Planner:    DefaultPlannerConfig(),
		Research:   DefaultResearchConfig(),
		Growth:     DefaultGrowthConfig(),
		Notify:     DefaultNotifyConfig(),
		Retention:  DefaultRetentionConfig(),
		Budget:     DefaultBudgetConfig(),
		LLM:        DefaultLLMConfig(),
		Slack:      DefaultSlackConfig(),
		Platform:   DefaultPlatformConfig(),
		Inbox:      DefaultInboxConfig(),
		Status:     DefaultStatusConfig(),
		Persona:    DefaultPersonaConfig(),
	}

	if file.Project != "" {
		cfg.Project = file.Project
	}
	if file.DataDir != "" {
		cfg.DataDir = file.DataDir
	}

	// Merge user-provided sections into defaults (non-zero values override).
	if err := firstErr(
		mergeSection("server", cfg.Server, file.Server),
		mergeSection("approvals", cfg.Approvals, file.Approvals),
		mergeSection("scheduler", cfg.Scheduler, file.Scheduler),
		mergeSection("cron", cfg.Cron, file.Cron),
		mergeSection("planner", cfg.Planner, file.Planner),
		mergeSection("research", cfg.Research, file.Research),
		mergeSection("growth", cfg.Growth, file.Growth),
		mergeSection("notify", cfg.Notify, file.Notify),
		mergeSection("retention", cfg.Retention, file.Retention),
		mergeSection("budget", cfg.Budget, file.Budget),
		mergeSection("llm", cfg.LLM, file.LLM),
		mergeSection("slack", cfg.Slack, file.Slack),
		mergeSection("platform", cfg.Platform, file.Platform),
		mergeSection("inbox", cfg.Inbox, file.Inbox),
		mergeSection("status", cfg.Status, file.Status),
		mergeSection("persona", cfg.Persona, file.Persona),
	); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeSection merges a user-provided section over its defaults.
// A nil user section leaves the defaults untouched.
func mergeSection[T any](name string, dst, src *T) error {
	if src == nil {
		return nil
	}
	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge %s config: %w", name, err)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// validate performs validation on the resolved configuration.
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
