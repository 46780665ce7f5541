package events

// ApprovalEventPayload is broadcast for every approval queue transition.
type ApprovalEventPayload struct {
	Type       string `json:"type"`
	ApprovalID int64  `json:"approval_id"`
	ProjectID  string `json:"project_id"`
	ActionType string `json:"action_type"`
	Status     string `json:"status"`
}

// ScheduleEventPayload is broadcast for scheduler job transitions.
type ScheduleEventPayload struct {
	Type        string `json:"type"`
	JobID       string `json:"job_id"`
	ContentType string `json:"content_type"`
	Detail      string `json:"detail,omitempty"`
}

// SystemEventPayload is broadcast for daemon lifecycle and safety events.
type SystemEventPayload struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}
