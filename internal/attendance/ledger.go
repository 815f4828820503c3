// Package attendance persists join/leave intervals for live sessions.
package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

// Key identifies whose presence in which session an interval records.
type Key struct {
	SessionID   string
	SessionKind string
	UserID      string
}

// Store is the write side of the ledger.
type Store interface {
	RecordJoin(ctx context.Context, k Key, at time.Time) error
	RecordLeave(ctx context.Context, k Key, at time.Time) (bool, error)
}

// Ledger is append/close-only: rows are inserted on join and closed on
// leave, never deleted.
type Ledger struct {
	db *gorm.DB
}

var _ Store = (*Ledger)(nil)

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordJoin always opens a new interval, so a user with two connections
// holds two open rows.
func (l *Ledger) RecordJoin(ctx context.Context, k Key, at time.Time) error {
	row := models.AttendanceInterval{
		SessionID:   k.SessionID,
		SessionKind: k.SessionKind,
		UserID:      k.UserID,
		JoinedAt:    at,
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrapf(err, "open interval %s/%s/%s", k.SessionKind, k.SessionID, k.UserID)
	}
	return nil
}

// RecordLeave closes the most recently opened interval for k in a single
// statement. It reports false when nothing was open.
func (l *Ledger) RecordLeave(ctx context.Context, k Key, at time.Time) (bool, error) {
	db := l.db.WithContext(ctx)
	latest := db.Model(&models.AttendanceInterval{}).
		Select("id").
		Where("session_id = ? AND session_kind = ? AND user_id = ? AND left_at IS NULL", k.SessionID, k.SessionKind, k.UserID).
		Order("joined_at DESC, id DESC").
		Limit(1)

	res := db.Model(&models.AttendanceInterval{}).
		Where("id = (?)", latest).
		Where("left_at IS NULL").
		Update("left_at", at)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "close interval %s/%s/%s", k.SessionKind, k.SessionID, k.UserID)
	}
	return res.RowsAffected > 0, nil
}

// Intervals lists every interval of a session in join order.
func (l *Ledger) Intervals(ctx context.Context, sessionID, sessionKind string) ([]models.AttendanceInterval, error) {
	var rows []models.AttendanceInterval
	err := l.db.WithContext(ctx).
		Where("session_id = ? AND session_kind = ?", sessionID, sessionKind).
		Order("joined_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list intervals")
	}
	return rows, nil
}

// OpenCount counts the open intervals for k.
func (l *Ledger) OpenCount(ctx context.Context, k Key) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&models.AttendanceInterval{}).
		Where("session_id = ? AND session_kind = ? AND user_id = ? AND left_at IS NULL", k.SessionID, k.SessionKind, k.UserID).
		Count(&n).Error
	return n, errors.Wrap(err, "count open intervals")
}
