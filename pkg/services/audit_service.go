package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/showrunner-io/showrunner/pkg/masking"
	"github.com/showrunner-io/showrunner/pkg/models"
)

const auditColumns = `id, project_id, severity, topic, message, details, success, created_at`

// AlertSink receives critical audit entries at log time, before Log returns.
// Implementations must not block indefinitely; the production sink enqueues
// to a bounded channel and falls back to a direct send when it is full.
type AlertSink interface {
	CriticalAlert(ctx context.Context, entry *models.AuditEntry)
}

// AuditService appends to the audit log. Every message and details payload is
// run through the masking service before it is persisted, so credentials that
// leak into error text never reach the database or the operator channel.
type AuditService struct {
	db     *sqlx.DB
	masker *masking.Service

	mu   sync.RWMutex
	sink AlertSink
}

// NewAuditService creates a new AuditService. masker may be nil.
func NewAuditService(db *sqlx.DB, masker *masking.Service) *AuditService {
	if db == nil {
		panic("NewAuditService: db must not be nil")
	}
	return &AuditService{db: db, masker: masker}
}

// SetAlertSink registers the sink that receives critical entries. Passing nil
// detaches the current sink.
func (s *AuditService) SetAlertSink(sink AlertSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Log masks and persists one audit entry. Critical entries are handed to the
// registered alert sink synchronously so a crash right after logging cannot
// lose the alert.
func (s *AuditService) Log(ctx context.Context, entry models.AuditEntry) (*models.AuditEntry, error) {
	if entry.Message == "" {
		return nil, NewValidationError("message", "required")
	}
	if entry.Severity == "" {
		entry.Severity = models.SeverityInfo
	}
	switch entry.Severity {
	case models.SeverityInfo, models.SeverityWarn, models.SeverityReject, models.SeverityCritical:
	default:
		return nil, NewValidationError("severity", fmt.Sprintf("unknown severity %q", entry.Severity))
	}

	message := s.masker.MaskString(entry.Message)
	details := s.maskDetails(entry.Details)

	var stored models.AuditEntry
	err := s.db.GetContext(ctx, &stored,
		`INSERT INTO audit_log (project_id, severity, topic, message, details, success)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+auditColumns,
		entry.ProjectID, entry.Severity, entry.Topic, message, []byte(details), entry.Success)
	if err != nil {
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	if stored.Severity == models.SeverityCritical {
		s.mu.RLock()
		sink := s.sink
		s.mu.RUnlock()
		if sink != nil {
			sink.CriticalAlert(ctx, &stored)
		} else {
			slog.Warn("Critical audit entry logged with no alert sink registered",
				"topic", stored.Topic, "message", stored.Message)
		}
	}
	return &stored, nil
}

// Info, Warn, Reject and Critical are convenience wrappers over Log that
// swallow the returned row. Write errors are logged, never propagated, so
// audit calls can be sprinkled through job code without error plumbing.
func (s *AuditService) Info(ctx context.Context, topic, message string) {
	s.logBestEffort(ctx, models.SeverityInfo, topic, message, true)
}

func (s *AuditService) Warn(ctx context.Context, topic, message string) {
	s.logBestEffort(ctx, models.SeverityWarn, topic, message, false)
}

func (s *AuditService) Reject(ctx context.Context, topic, message string) {
	s.logBestEffort(ctx, models.SeverityReject, topic, message, false)
}

func (s *AuditService) Critical(ctx context.Context, topic, message string) {
	s.logBestEffort(ctx, models.SeverityCritical, topic, message, false)
}

func (s *AuditService) logBestEffort(ctx context.Context, severity models.Severity, topic, message string, success bool) {
	if _, err := s.Log(ctx, models.AuditEntry{
		Severity: severity,
		Topic:    topic,
		Message:  message,
		Success:  success,
	}); err != nil {
		slog.Error("Failed to write audit entry", "severity", severity, "topic", topic, "error", err)
	}
}

// Recent returns the newest entries, optionally filtered by severity.
// limit <= 0 defaults to 50 and is capped at 500.
func (s *AuditService) Recent(ctx context.Context, severity models.Severity, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	entries := []*models.AuditEntry{}
	var err error
	if severity == "" {
		err = s.db.SelectContext(ctx, &entries,
			`SELECT `+auditColumns+` FROM audit_log ORDER BY created_at DESC, id DESC LIMIT $1`,
			limit)
	} else {
		err = s.db.SelectContext(ctx, &entries,
			`SELECT `+auditColumns+` FROM audit_log WHERE severity = $1
			ORDER BY created_at DESC, id DESC LIMIT $2`,
			severity, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the cutoff and returns the count.
func (s *AuditService) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned audit entries: %w", err)
	}
	return int(n), nil
}

// maskDetails masks string leaves of a JSON object payload. Non-object
// payloads are masked textually and kept only if still valid JSON.
func (s *AuditService) maskDetails(details json.RawMessage) json.RawMessage {
	if len(details) == 0 {
		return json.RawMessage(`{}`)
	}
	var m map[string]any
	if err := json.Unmarshal(details, &m); err == nil {
		if masked, err := json.Marshal(s.masker.MaskMap(m)); err == nil {
			return masked
		}
	}
	if masked := s.masker.MaskString(string(details)); json.Valid([]byte(masked)) {
		return json.RawMessage(masked)
	}
	return details
}
