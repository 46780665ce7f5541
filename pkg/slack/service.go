package slack

import (
	"context"
	"log/slog"
	"time"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token   string
	Channel string
}

// Service delivers operator check-ins to the configured Slack channel.
// Nil-safe: all methods are no-ops when the service is nil, so callers can
// wire it unconditionally and run without Slack in development.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService creates a new Slack delivery service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client: NewClient(cfg.Token, cfg.Channel),
		logger: slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client) *Service {
	return &Service{
		client: client,
		logger: slog.Default().With("component", "slack-service"),
	}
}

// Send posts one check-in message to the operator channel.
func (s *Service) Send(ctx context.Context, topic, actionType, text string) error {
	if s == nil {
		return nil
	}
	blocks := BuildCheckinBlocks(topic, actionType, text)
	return s.client.PostMessage(ctx, blocks, 10*time.Second)
}
