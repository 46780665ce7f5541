package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/showrunner-io/showrunner/pkg/platform"
	"github.com/showrunner-io/showrunner/pkg/services"
)

// Handlers processes routed inbox files. Every handler validates its
// payload, performs the side effect, and returns an error only when the
// file could not be acted on; the inbox audits and deletes on error, so a
// returned error never blocks the poller.
type Handlers struct {
	approvals Approvals
	schedules Schedules
	executors *Executors
	renderer  platform.Renderer
	memory    Memories
	notifier  Notifier
	wake      func()
	logger    *slog.Logger
}

// HandlerDeps wires the inbox handlers. Wake, when set, nudges the
// content scheduler after a new job lands so near-term slots fire without
// waiting out a poll interval.
type HandlerDeps struct {
	Approvals Approvals
	Schedules Schedules
	Executors *Executors
	Renderer  platform.Renderer
	Memory    Memories
	Notifier  Notifier
	Wake      func()
}

// NewHandlers creates the inbox handler set.
func NewHandlers(deps HandlerDeps) *Handlers {
	return &Handlers{
		approvals: deps.Approvals,
		schedules: deps.Schedules,
		executors: deps.Executors,
		renderer:  deps.Renderer,
		memory:    deps.Memory,
		notifier:  deps.Notifier,
		wake:      deps.Wake,
		logger:    slog.With("component", "ops.handlers"),
	}
}

// Handle dispatches one inbox file body by its routed prefix.
func (h *Handlers) Handle(ctx context.Context, prefix, name string, data []byte) error {
	switch prefix {
	case "schedule":
		return h.handleSchedule(ctx, data)
	case "execute":
		return h.handleExecute(ctx, data)
	case "render":
		return h.handleRender(ctx, data)
	case "feedback":
		return h.handleFeedback(ctx, data)
	default:
		return fmt.Errorf("no handler for prefix %q (file %s)", prefix, name)
	}
}

type scheduleFile struct {
	ApprovalID    int64           `json:"approval_id"`
	ActionData    json.RawMessage `json:"action_data"`
	Platforms     []string        `json:"platforms"`
	ScheduledTime time.Time       `json:"scheduled_time"`
	ContentType   string          `json:"content_type"`
}

// handleSchedule enqueues approved content for later publication. The
// approval is consumed the moment the job is persisted; the executor
// takes over from there.
func (h *Handlers) handleSchedule(ctx context.Context, data []byte) error {
	var f scheduleFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("malformed schedule file: %w", err)
	}
	if f.ApprovalID <= 0 {
		return fmt.Errorf("schedule file missing approval_id")
	}
	if f.ContentType == "" {
		return fmt.Errorf("schedule file missing content_type")
	}
	if f.ScheduledTime.IsZero() {
		return fmt.Errorf("schedule file missing scheduled_time")
	}
	payload, err := injectApprovalID(f.ActionData, f.ApprovalID, f.Platforms)
	if err != nil {
		return fmt.Errorf("schedule file action_data: %w", err)
	}
	job, err := h.schedules.Schedule(ctx, services.ScheduleRequest{
		ContentType:   f.ContentType,
		ContentData:   payload,
		ScheduledTime: f.ScheduledTime,
	})
	if err != nil {
		return fmt.Errorf("scheduling %s for approval %d: %w", f.ContentType, f.ApprovalID, err)
	}
	if _, err := h.approvals.MarkExecuted(ctx, f.ApprovalID); err != nil {
		h.logger.Warn("Scheduled but failed to mark approval executed",
			"approval_id", f.ApprovalID, "job_id", job.JobID, "error", err)
	}
	if h.wake != nil {
		h.wake()
	}
	h.notify(ctx, "schedule", f.ContentType, fmt.Sprintf("Scheduled %s for %s (job %s).",
		f.ContentType, job.ScheduledTime.UTC().Format("2006-01-02 15:04 MST"), job.JobID))
	return nil
}

type executeFile struct {
	ApprovalID int64           `json:"approval_id"`
	ActionType string          `json:"action_type"`
	ActionData json.RawMessage `json:"action_data"`
}

// handleExecute publishes approved content immediately. The executor
// marks the approval itself once the network call lands, so the handler
// only dispatches and reports.
func (h *Handlers) handleExecute(ctx context.Context, data []byte) error {
	var f executeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("malformed execute file: %w", err)
	}
	if f.ApprovalID <= 0 {
		return fmt.Errorf("execute file missing approval_id")
	}
	if f.ActionType == "" {
		return fmt.Errorf("execute file missing action_type")
	}
	payload, err := injectApprovalID(f.ActionData, f.ApprovalID, nil)
	if err != nil {
		return fmt.Errorf("execute file action_data: %w", err)
	}
	result, err := h.executors.Run(ctx, f.ActionType, payload)
	if err != nil {
		return fmt.Errorf("executing %s for approval %d: %w", f.ActionType, f.ApprovalID, err)
	}
	h.notify(ctx, "ops", f.ActionType, fmt.Sprintf("[EXECUTED] %s approval %d: %s",
		f.ActionType, f.ApprovalID, clipResult(result, 140)))
	return nil
}

type renderFile struct {
	ApprovalID int64  `json:"approval_id"`
	Script     string `json:"script"`
	ThemeTitle string `json:"theme_title"`
}

// handleRender kicks off a video render for an approved script. The
// approval stays open until the finished video goes through its own
// distribution approval.
func (h *Handlers) handleRender(ctx context.Context, data []byte) error {
	var f renderFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("malformed render file: %w", err)
	}
	if f.ApprovalID <= 0 {
		return fmt.Errorf("render file missing approval_id")
	}
	if strings.TrimSpace(f.Script) == "" {
		return fmt.Errorf("render file missing script")
	}
	if h.renderer == nil {
		return fmt.Errorf("video render: %w", platform.ErrNotConfigured)
	}
	res, err := h.renderer.Render(ctx, platform.RenderRequest{Title: f.ThemeTitle, Script: f.Script})
	if err != nil {
		h.notify(ctx, "ops", "render", fmt.Sprintf("Video render failed for approval %d: %v",
			f.ApprovalID, err))
		return fmt.Errorf("rendering approval %d: %w", f.ApprovalID, err)
	}
	h.notify(ctx, "ops", "render", fmt.Sprintf("Video rendered for approval %d: %s (%.0fs)",
		f.ApprovalID, res.VideoPath, res.DurationSeconds))
	return nil
}

type feedbackFile struct {
	ApprovalID     json.RawMessage `json:"approval_id"`
	Reason         string          `json:"reason"`
	ContentContext json.RawMessage `json:"content_context"`
}

// handleFeedback records a rejection so future drafting can steer away
// from what the operator keeps turning down.
func (h *Handlers) handleFeedback(ctx context.Context, data []byte) error {
	var f feedbackFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("malformed feedback file: %w", err)
	}
	approvalID := strings.Trim(string(f.ApprovalID), `"`)
	if approvalID == "" || approvalID == "null" {
		return fmt.Errorf("feedback file missing approval_id")
	}
	if h.memory == nil {
		return fmt.Errorf("feedback file: no memory store configured")
	}
	summary := strings.TrimSpace(f.Reason)
	if summary == "" {
		summary = "no reason given"
	}
	if len(f.ContentContext) > 0 && string(f.ContentContext) != "null" {
		summary += " | content: " + clipResult(string(f.ContentContext), 300)
	}
	title := fmt.Sprintf("Content rejected (approval %s)", approvalID)
	if _, err := h.memory.AddEvent(ctx, title, summary, "feedback", 7); err != nil {
		return fmt.Errorf("recording rejection feedback: %w", err)
	}
	return nil
}

func (h *Handlers) notify(ctx context.Context, topic, actionType, text string) {
	if h.notifier == nil {
		return
	}
	h.notifier.Notify(ctx, topic, actionType, text)
}

// injectApprovalID stamps the approval id (and, when present, the target
// platform list) into an executor payload so the executor can close the
// approval after its network call.
func injectApprovalID(data json.RawMessage, approvalID int64, platforms []string) (json.RawMessage, error) {
	payload := make(map[string]any)
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decoding: %w", err)
		}
	}
	payload["approval_id"] = approvalID
	if len(platforms) > 0 {
		payload["platforms"] = platforms
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding: %w", err)
	}
	return out, nil
}
