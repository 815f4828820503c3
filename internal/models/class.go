package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClassKind separates regular classes from the ones run by super
// instructors. Each kind gets its own room namespace.
type ClassKind string

const (
	ClassRegular ClassKind = "regular"
	ClassSuper   ClassKind = "super"
)

type ClassStatus string

const (
	ClassScheduled ClassStatus = "scheduled"
	ClassLive      ClassStatus = "live"
	ClassCompleted ClassStatus = "completed"
)

type Class struct {
	ID           string      `gorm:"type:uuid;primaryKey"`
	Kind         ClassKind   `gorm:"size:16;index:idx_class_sweep,priority:1"`
	Status       ClassStatus `gorm:"size:16;index:idx_class_sweep,priority:2"`
	Title        string
	InstructorID string    `gorm:"type:uuid;index"`
	SubjectID    *string   `gorm:"type:uuid"`
	BatchID      *string   `gorm:"type:uuid"`
	StartTime    time.Time `gorm:"index:idx_class_sweep,priority:3"`
	EndTime      *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c *Class) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
