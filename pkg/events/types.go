// Package events persists lifecycle events and broadcasts them via
// PostgreSQL NOTIFY so external tooling can LISTEN for live updates.
//
// Every event is appended to the event_stream table inside the same
// transaction that fires pg_notify, so a catchup read over the table
// (EventsSince) never misses an event a NOTIFY subscriber saw.
package events

// Channels group events by subsystem. A subscriber LISTENs on a channel;
// the catchup API filters on the same names.
const (
	// ApprovalsChannel carries approval queue lifecycle events.
	ApprovalsChannel = "approvals"

	// ScheduleChannel carries content scheduler lifecycle events.
	ScheduleChannel = "schedule"

	// SystemChannel carries daemon lifecycle and safety events.
	SystemChannel = "system"
)

// Event types published on ApprovalsChannel.
const (
	EventTypeApprovalSubmitted = "approval.submitted"
	EventTypeApprovalApproved  = "approval.approved"
	EventTypeApprovalEdited    = "approval.edited"
	EventTypeApprovalRejected  = "approval.rejected"
	EventTypeApprovalExpired   = "approval.expired"
	EventTypeApprovalExecuted  = "approval.executed"
)

// Event types published on ScheduleChannel.
const (
	EventTypeScheduleCreated   = "schedule.created"
	EventTypeScheduleFired     = "schedule.fired"
	EventTypeScheduleFailed    = "schedule.failed"
	EventTypeScheduleCancelled = "schedule.cancelled"
)

// Event types published on SystemChannel.
const (
	EventTypeSystemBoot       = "system.boot"
	EventTypeSystemShutdown   = "system.shutdown"
	EventTypeSystemKillSwitch = "system.kill_switch"
)
