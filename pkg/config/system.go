package config

import "time"

// ServerConfig holds the HTTP observability server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DefaultServerConfig returns the built-in HTTP server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{Host: "0.0.0.0", Port: 8080}
}

// ApprovalConfig holds approval-queue policy settings.
type ApprovalConfig struct {
	// ExpiryHours is the age after which pending approvals become expired.
	ExpiryHours int `yaml:"expiry_hours"`
}

// DefaultApprovalConfig returns the built-in approval defaults.
func DefaultApprovalConfig() *ApprovalConfig {
	return &ApprovalConfig{ExpiryHours: 48}
}

// BudgetConfig holds per-project LLM spend limits in USD. A project not
// listed in Projects falls back to the Default limits. Zero limits mean
// unlimited.
type BudgetConfig struct {
	Default  BudgetLimits            `yaml:"default"`
	Projects map[string]BudgetLimits `yaml:"projects"`
}

// BudgetLimits is a daily/monthly USD ceiling pair.
type BudgetLimits struct {
	DailyUSD   float64 `yaml:"daily_usd"`
	MonthlyUSD float64 `yaml:"monthly_usd"`
}

// DefaultBudgetConfig returns the built-in budget defaults.
func DefaultBudgetConfig() *BudgetConfig {
	return &BudgetConfig{
		Default: BudgetLimits{DailyUSD: 5, MonthlyUSD: 100},
	}
}

// LLMConfig holds model-router settings. Models are Anthropic model ids;
// the API key comes from the environment variable named by APIKeyEnv.
type LLMConfig struct {
	APIKeyEnv  string        `yaml:"api_key_env"`
	CheapModel string        `yaml:"cheap_model"`
	MidModel   string        `yaml:"mid_model"`
	HighModel  string        `yaml:"high_model"`
	MaxTokens  int           `yaml:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout"`

	// CostPerMTokIn/CostPerMTokOut approximate USD cost per million
	// tokens for budget accounting (blended across tiers).
	CostPerMTokIn  float64 `yaml:"cost_per_mtok_in"`
	CostPerMTokOut float64 `yaml:"cost_per_mtok_out"`
}

// DefaultLLMConfig returns the built-in model-router defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		APIKeyEnv:      "ANTHROPIC_API_KEY",
		CheapModel:     "claude-3-5-haiku-latest",
		MidModel:       "claude-sonnet-4-5",
		HighModel:      "claude-opus-4-1",
		MaxTokens:      1024,
		Timeout:        120 * time.Second,
		CostPerMTokIn:  3,
		CostPerMTokOut: 15,
	}
}

// SlackConfig holds operator notification transport settings.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"` // Env var name for the bot token
	Channel  string `yaml:"channel"`   // Channel ID, e.g. "C12345678"
}

// DefaultSlackConfig returns the built-in Slack defaults (disabled).
func DefaultSlackConfig() *SlackConfig {
	return &SlackConfig{Enabled: false, TokenEnv: "SLACK_BOT_TOKEN"}
}

// InboxConfig holds the operator UI file-inbox settings.
type InboxConfig struct {
	// Dir is the inbox directory, relative to DataDir unless absolute.
	Dir string `yaml:"dir"`

	// PollInterval is the guaranteed poll cadence. The fsnotify watcher
	// only shortens reaction time; it never replaces the poll.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultInboxConfig returns the built-in inbox defaults.
func DefaultInboxConfig() *InboxConfig {
	return &InboxConfig{Dir: "content_feedback", PollInterval: 30 * time.Second}
}

// StatusConfig holds heartbeat/status-file settings.
type StatusConfig struct {
	// File is the status file path, relative to DataDir unless absolute.
	File string `yaml:"file"`

	// HeartbeatInterval is the watchdog/status rewrite cadence.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OfflineGap is the heartbeat staleness beyond which the previous
	// process is considered dead and an online announcement is warranted.
	OfflineGap time.Duration `yaml:"offline_gap"`
}

// DefaultStatusConfig returns the built-in status defaults.
func DefaultStatusConfig() *StatusConfig {
	return &StatusConfig{
		File:              "status.json",
		HeartbeatInterval: 60 * time.Second,
		OfflineGap:        5 * time.Minute,
	}
}

// PersonaConfig carries the principal's public identity as far as the core
// needs it: a handle for mention queries and a style brief injected into
// generation prompts. The core never hardcodes voice.
type PersonaConfig struct {
	Name       string `yaml:"name"`
	Handle     string `yaml:"handle"`
	StyleBrief string `yaml:"style_brief"`
}

// DefaultPersonaConfig returns a neutral persona placeholder.
func DefaultPersonaConfig() *PersonaConfig {
	return &PersonaConfig{Name: "principal"}
}
