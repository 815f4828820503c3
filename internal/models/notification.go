package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationAnnouncement    NotificationType = "ANNOUNCEMENT"
	NotificationReminder24h     NotificationType = "REMINDER_24H"
	NotificationReminder1h      NotificationType = "REMINDER_1H"
	NotificationExamStart       NotificationType = "EXAM_START"
	NotificationExam10Min       NotificationType = "EXAM_10MIN"
	NotificationResultPublished NotificationType = "RESULT_PUBLISHED"
)

// Notification is one scheduled message for one recipient. The
// (tournament, student, type) triple is its dedup key; channel flags only
// ever move from false to true.
type Notification struct {
	ID           uint             `gorm:"primaryKey"`
	TournamentID string           `gorm:"type:uuid;uniqueIndex:uniq_notification_key,priority:1"`
	StudentID    string           `gorm:"type:uuid;uniqueIndex:uniq_notification_key,priority:2"`
	Type         NotificationType `gorm:"size:32;uniqueIndex:uniq_notification_key,priority:3"`
	Title        string
	Message      string `gorm:"type:text"`
	Data         datatypes.JSON
	ScheduledAt  time.Time `gorm:"index:idx_notification_due,priority:2"`
	SentAt       *time.Time
	InAppSent    bool `gorm:"index:idx_notification_due,priority:1"`
	EmailSent    bool
	PushSent     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
