package api

import (
	"github.com/showrunner-io/showrunner/pkg/database"
)

// listResponse wraps collection endpoints so clients get a stable count
// alongside the items.
type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database *database.HealthStatus `json:"database"`
	Error    string                 `json:"error,omitempty"`
}

// previewResponse is returned by GET /api/v1/approvals/:id/preview.
type previewResponse struct {
	ID      int64  `json:"id"`
	Preview string `json:"preview"`
}
