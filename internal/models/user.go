package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	FullName string
	Email    string `gorm:"uniqueIndex"`
	Role     Role   `gorm:"size:32;index"`
	Grade    string `gorm:"size:32;index"`
	// AssignedInstructorID links a student to the instructor who owns them
	// before they register for anything.
	AssignedInstructorID *string `gorm:"type:uuid;index"`
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
