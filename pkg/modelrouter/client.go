// Package modelrouter is the tiered LLM client. Every model call in the
// daemon goes through it: tier selection, budget enforcement, circuit
// breaking, and spend accounting live here so callers only say how much
// reasoning a task deserves.
package modelrouter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	"github.com/showrunner-io/showrunner/pkg/metrics"
)

// Tier selects the model class for a call. CHEAP is for classification and
// condensing, MID for scoring and drafting, HIGH for content synthesis.
type Tier string

const (
	TierCheap Tier = "cheap"
	TierMid   Tier = "mid"
	TierHigh  Tier = "high"
)

var (
	// ErrBudgetExceeded is returned when the project is past its configured
	// daily or monthly spend limit. Callers degrade by skipping enrichment.
	ErrBudgetExceeded = errors.New("token budget exceeded")

	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("model service unavailable")

	// ErrNotConfigured is returned when no API client is wired in.
	ErrNotConfigured = errors.New("model router not configured")
)

// MessagesClient is the subset of the Anthropic SDK the router uses.
// Satisfied by *sdk.MessageService so tests can substitute a stub.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Budget gates and records model spend. Satisfied by *services.BudgetService.
type Budget interface {
	CanSpend(ctx context.Context, projectID string) (bool, error)
	RecordSpend(ctx context.Context, projectID string, inputTokens, outputTokens int64, costUSD float64) error
}

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// Request is one model invocation.
type Request struct {
	Tier        Tier
	System      string
	Messages    []Message
	MaxTokens   int64
	Temperature float64
}

// Response carries the model output and its accounted cost.
type Response struct {
	Text         string
	StopReason   string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// ModelSpec binds a tier to a concrete model id and its per-million-token
// pricing in USD.
type ModelSpec struct {
	ID            string  `yaml:"id"`
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

// Config tunes the router. Zero values fall back to the defaults below.
type Config struct {
	ProjectID string
	Cheap     ModelSpec
	Mid       ModelSpec
	High      ModelSpec

	// MaxTokens caps completions when a request does not set its own.
	MaxTokens int64

	// Timeout bounds each model call.
	Timeout time.Duration

	// BreakerFailures is the consecutive-failure count that opens the
	// breaker; BreakerCooldown is how long it stays open before a probe.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func (c *Config) applyDefaults() {
	if c.ProjectID == "" {
		c.ProjectID = "default"
	}
	if c.Cheap.ID == "" {
		c.Cheap = ModelSpec{ID: "claude-3-5-haiku-latest", InputPerMTok: 0.80, OutputPerMTok: 4.00}
	}
	if c.Mid.ID == "" {
		c.Mid = ModelSpec{ID: "claude-sonnet-4-5", InputPerMTok: 3.00, OutputPerMTok: 15.00}
	}
	if c.High.ID == "" {
		c.High = ModelSpec{ID: "claude-opus-4-1", InputPerMTok: 15.00, OutputPerMTok: 75.00}
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 60 * time.Second
	}
}

// Client routes completions to tiered Anthropic models behind one breaker.
// A nil *Client returns ErrNotConfigured from every call, so collaborators
// can hold it unconditionally.
type Client struct {
	msg     MessagesClient
	budget  Budget
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// New creates a router over an existing messages client. budget may be nil,
// which disables spend gating and accounting.
func New(msg MessagesClient, budget Budget, cfg Config) (*Client, error) {
	if msg == nil {
		return nil, errors.New("messages client is required")
	}
	cfg.applyDefaults()

	logger := slog.Default().With("component", "modelrouter")
	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "anthropic",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Model breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	logger.Info("Model router configured",
		"cheap", cfg.Cheap.ID, "mid", cfg.Mid.ID, "high", cfg.High.ID,
		"project", cfg.ProjectID)

	return &Client{msg: msg, budget: budget, cfg: cfg, breaker: breaker, logger: logger}, nil
}

// NewFromAPIKey constructs a router using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey string, budget Budget, cfg Config) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, budget, cfg)
}

// Invoke runs one model call on the requested tier.
func (c *Client) Invoke(ctx context.Context, req Request) (*Response, error) {
	if c == nil || c.msg == nil {
		return nil, ErrNotConfigured
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("at least one message is required")
	}
	spec, err := c.resolveTier(req.Tier)
	if err != nil {
		return nil, err
	}

	if c.budget != nil {
		ok, err := c.budget.CanSpend(ctx, c.cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("budget check failed: %w", err)
		}
		if !ok {
			metrics.LLMCalls.WithLabelValues(string(req.Tier), "budget_refused").Inc()
			return nil, fmt.Errorf("project %s: %w", c.cfg.ProjectID, ErrBudgetExceeded)
		}
	}

	params, err := c.buildParams(spec, req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (any, error) {
		return c.msg.New(callCtx, *params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.LLMCalls.WithLabelValues(string(req.Tier), "breaker_open").Inc()
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		metrics.LLMCalls.WithLabelValues(string(req.Tier), "error").Inc()
		return nil, fmt.Errorf("model call failed on %s: %w", spec.ID, err)
	}

	msg, ok := result.(*sdk.Message)
	if !ok || msg == nil {
		return nil, fmt.Errorf("model call on %s returned no message", spec.ID)
	}

	resp := translate(msg, spec)
	c.recordSpend(ctx, req.Tier, resp)
	metrics.LLMCalls.WithLabelValues(string(req.Tier), "ok").Inc()
	return resp, nil
}

// Complete is the single-prompt convenience over Invoke.
func (c *Client) Complete(ctx context.Context, tier Tier, system, prompt string, maxTokens int64) (string, error) {
	resp, err := c.Invoke(ctx, Request{
		Tier:      tier,
		System:    system,
		Messages:  []Message{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CompleteCheap satisfies the narrow classifier interfaces in pkg/services.
func (c *Client) CompleteCheap(ctx context.Context, system, prompt string) (string, error) {
	return c.Complete(ctx, TierCheap, system, prompt, 0)
}

func (c *Client) resolveTier(tier Tier) (ModelSpec, error) {
	switch tier {
	case TierCheap, "":
		return c.cfg.Cheap, nil
	case TierMid:
		return c.cfg.Mid, nil
	case TierHigh:
		return c.cfg.High, nil
	default:
		return ModelSpec{}, fmt.Errorf("unknown model tier %q", tier)
	}
}

func (c *Client) buildParams(spec ModelSpec, req Request) (*sdk.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	msgs := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case "", "user":
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case "assistant":
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	if len(msgs) == 0 {
		return nil, errors.New("no non-empty messages")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(spec.ID),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	return &params, nil
}

func translate(msg *sdk.Message, spec ModelSpec) *Response {
	resp := &Response{
		StopReason:   string(msg.StopReason),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			resp.Text += block.Text
		}
	}
	resp.CostUSD = float64(resp.InputTokens)*spec.InputPerMTok/1e6 +
		float64(resp.OutputTokens)*spec.OutputPerMTok/1e6
	return resp
}

func (c *Client) recordSpend(ctx context.Context, tier Tier, resp *Response) {
	metrics.LLMTokens.WithLabelValues(string(tier), "input").Add(float64(resp.InputTokens))
	metrics.LLMTokens.WithLabelValues(string(tier), "output").Add(float64(resp.OutputTokens))
	if c.budget == nil {
		return
	}
	if err := c.budget.RecordSpend(ctx, c.cfg.ProjectID, resp.InputTokens, resp.OutputTokens, resp.CostUSD); err != nil {
		c.logger.Warn("Failed to record model spend",
			"project", c.cfg.ProjectID, "cost_usd", resp.CostUSD, "error", err)
	}
}
