package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TournamentStatus string

const (
	TournamentDraft           TournamentStatus = "DRAFT"
	TournamentUpcoming        TournamentStatus = "UPCOMING"
	TournamentLive            TournamentStatus = "LIVE"
	TournamentCompleted       TournamentStatus = "COMPLETED"
	TournamentResultPublished TournamentStatus = "RESULT_PUBLISHED"
)

type Tournament struct {
	ID                string `gorm:"type:uuid;primaryKey"`
	Title             string
	InstructorID      string           `gorm:"type:uuid;index"`
	Status            TournamentStatus `gorm:"size:32;index"`
	RegistrationStart time.Time
	RegistrationEnd   time.Time
	ExamStart         time.Time `gorm:"index"`
	ExamEnd           time.Time `gorm:"index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (t *Tournament) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// TournamentRegistration maps a student to a tournament they signed up for.
type TournamentRegistration struct {
	ID           uint   `gorm:"primaryKey"`
	TournamentID string `gorm:"type:uuid;uniqueIndex:uniq_tournament_student"`
	StudentID    string `gorm:"type:uuid;uniqueIndex:uniq_tournament_student"`
	CreatedAt    time.Time
}
