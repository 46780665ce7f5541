// Package ops bridges the out-of-process operator UI into the daemon. The
// UI owns approve/reject; everything that must happen afterwards arrives
// here as small JSON files dropped into the inbox directory, routed by
// filename prefix to a handler. The package also owns the content
// executors that the scheduler fires and the content-gap check that keeps
// the drafting pipeline from running dry.
package ops

import (
	"context"

	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/services"
)

// Approvals is the queue slice ops drives. Satisfied by
// *services.ApprovalService.
type Approvals interface {
	MarkExecuted(ctx context.Context, id int64) (bool, error)
	GetPending(ctx context.Context, projectID string) ([]models.Approval, error)
	GetLastExecuted(ctx context.Context, actionType string) (*models.Approval, error)
}

// Schedules enqueues durable jobs. Satisfied by *services.ScheduleService.
type Schedules interface {
	Schedule(ctx context.Context, req services.ScheduleRequest) (*models.ScheduledContent, error)
}

// Memories records executed content and rejection feedback. Satisfied by
// *services.MemoryService.
type Memories interface {
	AddEvent(ctx context.Context, title, summary, category string, significance int) (*models.Event, error)
}

// Notifier sends operator notifications. Satisfied by *notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, topic, actionType, text string)
}

// Auditor records inbox outcomes. Satisfied by *services.AuditService.
type Auditor interface {
	Info(ctx context.Context, topic, message string)
	Warn(ctx context.Context, topic, message string)
}

// Gate mirrors the kill switch. The inbox poller and the gap check skip
// their work while it reports halted; inbox files stay in place so they
// run after reactivation. A nil gate never halts.
type Gate interface {
	Halted(ctx context.Context) bool
}
