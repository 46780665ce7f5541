package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/showrunner-io/showrunner/pkg/models"
)

const checkinColumns = `id, topic, message_hash, preview, action_type, sent_at`

// checkinPreviewLen bounds the stored preview so the table stays cheap to
// scan in the operator API.
const checkinPreviewLen = 160

// CheckinService records sent notifications and answers the dedup question
// for the notifier. Dedup keys on the SHA-256 of the full message text, so
// two jobs producing identical output within the window collapse to one ping.
type CheckinService struct {
	db *sqlx.DB
}

// NewCheckinService creates a new CheckinService.
func NewCheckinService(db *sqlx.DB) *CheckinService {
	if db == nil {
		panic("NewCheckinService: db must not be nil")
	}
	return &CheckinService{db: db}
}

// HashMessage returns the hex SHA-256 of the message text.
func HashMessage(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IsDuplicate reports whether an identical message was recorded within the
// window.
func (s *CheckinService) IsDuplicate(ctx context.Context, text string, window time.Duration) (bool, error) {
	var dup bool
	err := s.db.GetContext(ctx, &dup,
		`SELECT EXISTS (
			SELECT 1 FROM checkin_log WHERE message_hash = $1 AND sent_at > $2
		)`,
		HashMessage(text), time.Now().Add(-window))
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate notification: %w", err)
	}
	return dup, nil
}

// Record stores one sent notification.
func (s *CheckinService) Record(ctx context.Context, topic, text, actionType string) (*models.CheckinEntry, error) {
	if text == "" {
		return nil, NewValidationError("text", "required")
	}
	var entry models.CheckinEntry
	err := s.db.GetContext(ctx, &entry,
		`INSERT INTO checkin_log (topic, message_hash, preview, action_type)
		VALUES ($1, $2, $3, $4)
		RETURNING `+checkinColumns,
		topic, HashMessage(text), truncateRunes(text, checkinPreviewLen), actionType)
	if err != nil {
		return nil, fmt.Errorf("failed to record checkin: %w", err)
	}
	return &entry, nil
}

// Recent returns the newest checkins, default 50, capped at 500.
func (s *CheckinService) Recent(ctx context.Context, limit int) ([]*models.CheckinEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	entries := []*models.CheckinEntry{}
	err := s.db.SelectContext(ctx, &entries,
		`SELECT `+checkinColumns+` FROM checkin_log ORDER BY sent_at DESC, id DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkins: %w", err)
	}
	return entries, nil
}

// Prune deletes checkins older than the cutoff and returns the count.
func (s *CheckinService) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkin_log WHERE sent_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkin log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned checkins: %w", err)
	}
	return int(n), nil
}
