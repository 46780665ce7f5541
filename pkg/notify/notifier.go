// Package notify grades and delivers operator check-ins. Every message
// from the agents funnels through here: progress-only chatter is dropped,
// repeats within the dedup window are suppressed, and anything matching an
// urgent keyword is escalated before it reaches the transport.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/metrics"
	"github.com/showrunner-io/showrunner/pkg/models"
)

// Message is one operator check-in.
type Message struct {
	Topic      string
	Text       string
	ActionType string
}

// Urgency is the notifier's grading of a message.
type Urgency string

const (
	// UrgencySkip marks progress-only messages that are never delivered.
	UrgencySkip Urgency = "skip"
	// UrgencyNotify is the normal delivery grade.
	UrgencyNotify Urgency = "notify"
	// UrgencyUrgent marks messages escalated by keyword.
	UrgencyUrgent Urgency = "urgent"
)

const urgentPrefix = "🚨 URGENT: "

// Transport delivers a graded message. Satisfied by the Slack service.
type Transport interface {
	Send(ctx context.Context, topic, actionType, text string) error
}

// Deduper answers whether a message was already sent recently and records
// sends. Satisfied by the check-in service.
type Deduper interface {
	IsDuplicate(ctx context.Context, text string, window time.Duration) (bool, error)
	Record(ctx context.Context, topic, text, actionType string) (*models.CheckinEntry, error)
}

// Notifier is the single delivery path for operator messages.
type Notifier struct {
	cfg       *config.NotifyConfig
	transport Transport
	checkins  Deduper
}

// NewNotifier creates a notifier. transport and checkins may be nil: with
// no transport messages are logged instead of delivered, and with no
// deduper every message is treated as fresh.
func NewNotifier(cfg *config.NotifyConfig, transport Transport, checkins Deduper) *Notifier {
	if cfg == nil {
		cfg = config.DefaultNotifyConfig()
	}
	return &Notifier{cfg: cfg, transport: transport, checkins: checkins}
}

// Classify grades a message from its action type and text. Skip markers
// win over urgent keywords: a progress message mentioning an urgent word
// is still progress.
func (n *Notifier) Classify(actionType, text string) Urgency {
	action := strings.ToLower(actionType)
	lower := strings.ToLower(text)
	for _, marker := range n.cfg.SkipMarkers {
		if action == marker || strings.Contains(lower, marker) {
			return UrgencySkip
		}
	}
	for _, keyword := range n.cfg.UrgentKeywords {
		if strings.Contains(lower, keyword) {
			return UrgencyUrgent
		}
	}
	return UrgencyNotify
}

// Send grades, dedups, and delivers one message. A failed dedup lookup is
// fail-open (the message still goes out); a failed transport send returns
// the error and skips the check-in record so a retry is not suppressed.
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	if n == nil {
		return nil
	}
	if msg.Text == "" {
		return errors.New("notify: message text is empty")
	}

	urgency := n.Classify(msg.ActionType, msg.Text)
	if urgency == UrgencySkip {
		metrics.Notifications.WithLabelValues(string(UrgencySkip)).Inc()
		slog.Debug("Suppressing progress-only message", "topic", msg.Topic, "action", msg.ActionType)
		return nil
	}

	if n.checkins != nil {
		dup, err := n.checkins.IsDuplicate(ctx, msg.Text, n.cfg.DedupWindow)
		if err != nil {
			slog.Warn("Check-in dedup lookup failed, sending anyway", "topic", msg.Topic, "error", err)
		} else if dup {
			metrics.Notifications.WithLabelValues("duplicate").Inc()
			slog.Debug("Suppressing duplicate message", "topic", msg.Topic)
			return nil
		}
	}

	text := msg.Text
	if urgency == UrgencyUrgent {
		text = urgentPrefix + text
	}

	if n.transport == nil {
		slog.Info("Operator message (no transport configured)",
			"topic", msg.Topic, "urgency", urgency, "text", text)
	} else if err := n.transport.Send(ctx, msg.Topic, msg.ActionType, text); err != nil {
		metrics.Notifications.WithLabelValues("send_failed").Inc()
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	metrics.Notifications.WithLabelValues(string(urgency)).Inc()

	if n.checkins != nil {
		if _, err := n.checkins.Record(ctx, msg.Topic, msg.Text, msg.ActionType); err != nil {
			slog.Warn("Failed to record check-in", "topic", msg.Topic, "error", err)
		}
	}
	return nil
}

// Notify is the fire-and-forget form used inside jobs: delivery errors are
// logged, never returned.
func (n *Notifier) Notify(ctx context.Context, topic, actionType, text string) {
	if err := n.Send(ctx, Message{Topic: topic, Text: text, ActionType: actionType}); err != nil {
		slog.Error("Notification delivery failed", "topic", topic, "error", err)
	}
}
