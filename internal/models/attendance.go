package models

import "time"

// AttendanceInterval is one connection's presence in a live session.
// Rows are only ever inserted or closed; LeftAt stays nil while open.
type AttendanceInterval struct {
	ID          uint       `gorm:"primaryKey"`
	SessionID   string     `gorm:"size:64;index:idx_attendance_key,priority:1"`
	SessionKind string     `gorm:"size:16;index:idx_attendance_key,priority:2"`
	UserID      string     `gorm:"size:64;index:idx_attendance_key,priority:3"`
	JoinedAt    time.Time  `gorm:"index"`
	LeftAt      *time.Time `gorm:"index"`
}
