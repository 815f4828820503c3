package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Subject struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string
	Grade     string `gorm:"size:32;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Subject) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Batch is a capacity-bounded group of students taught by one instructor
// for one subject. CurrentCount never exceeds Capacity.
type Batch struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	SubjectID    string `gorm:"type:uuid;index"`
	InstructorID string `gorm:"type:uuid;index"`
	Name         string
	Capacity     int
	CurrentCount int
	Active       bool `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (b *Batch) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Remaining is the number of seats still open.
func (b Batch) Remaining() int {
	if b.CurrentCount >= b.Capacity {
		return 0
	}
	return b.Capacity - b.CurrentCount
}

// BatchAssignment enrolls a student into a batch. A student holds at most
// one assignment per subject.
type BatchAssignment struct {
	ID        uint   `gorm:"primaryKey"`
	StudentID string `gorm:"type:uuid;uniqueIndex:uniq_student_batch;uniqueIndex:uniq_student_subject"`
	BatchID   string `gorm:"type:uuid;uniqueIndex:uniq_student_batch;index"`
	SubjectID string `gorm:"type:uuid;uniqueIndex:uniq_student_subject"`
	CreatedAt time.Time
}
