package services

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Warning categories for degraded-but-running surfaces.
const (
	WarningCategoryPlatform  = "platform"  // publishing adapter off or misconfigured
	WarningCategoryModel     = "model"     // model router disabled, drafting idle
	WarningCategoryTransport = "transport" // Slack off, operator messages log-only
	WarningCategoryInbox     = "inbox"     // fs watcher down, polling only
)

// SystemWarning is one non-fatal degradation the daemon is running with.
type SystemWarning struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Source    string    `json:"source,omitempty"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SystemWarningsService tracks active degradations for the status
// endpoint. Thread-safe. Not persisted; warnings reflect this process
// only and reset on restart.
type SystemWarningsService struct {
	mu       sync.RWMutex
	warnings map[string]*SystemWarning
}

// NewSystemWarningsService creates an empty warnings tracker.
func NewSystemWarningsService() *SystemWarningsService {
	return &SystemWarningsService{
		warnings: make(map[string]*SystemWarning),
	}
}

// AddWarning records a warning and returns its id. A warning with the
// same category and source replaces the earlier one, so a flapping
// surface shows up once with its latest message.
func (s *SystemWarningsService) AddWarning(category, source, message, details string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.warnings {
		if w.Category == category && w.Source == source {
			delete(s.warnings, id)
			break
		}
	}

	id := uuid.New().String()
	s.warnings[id] = &SystemWarning{
		ID:        id,
		Category:  category,
		Source:    source,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	return id
}

// GetWarnings returns active warnings as value copies, oldest first.
func (s *SystemWarningsService) GetWarnings() []SystemWarning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]SystemWarning, 0, len(s.warnings))
	for _, w := range s.warnings {
		result = append(result, *w)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Source < result[j].Source
	})
	return result
}

// Clear removes the warning matching category and source, for surfaces
// that recover at runtime. Returns true when a warning was removed.
func (s *SystemWarningsService) Clear(category, source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range s.warnings {
		if w.Category == category && w.Source == source {
			delete(s.warnings, id)
			return true
		}
	}
	return false
}
