package batch

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

// Slice is the contiguous run of students placed into one batch.
type Slice struct {
	BatchID  string   `json:"batch_id"`
	Room     int      `json:"room"`
	Students []string `json:"students"`
}

type DistributionResult struct {
	SubjectID string  `json:"subject_id"`
	Eligible  int     `json:"eligible"`
	Assigned  int     `json:"assigned"`
	Slices    []Slice `json:"slices"`
	// Nothing is set when every eligible student already had a batch.
	Nothing bool `json:"nothing_to_do"`
}

// Unassigned is the number of eligible students left without a batch.
func (r DistributionResult) Unassigned() int {
	return r.Eligible - r.Assigned
}

// DistributeStudents walks the subject's batches in creation order and
// fills each one with the next contiguous run of unassigned students, up
// to its remaining room. It stops when students or room run out.
func (a *Allocator) DistributeStudents(ctx context.Context, subjectID string) (DistributionResult, error) {
	res := DistributionResult{SubjectID: subjectID}
	db := a.db.WithContext(ctx)

	var subject models.Subject
	if err := db.First(&subject, "id = ?", subjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return res, ErrSubjectNotFound
		}
		return res, errors.Wrap(err, "load subject")
	}

	var batches []models.Batch
	err := db.Where("subject_id = ? AND active = ?", subjectID, true).
		Order("created_at ASC, id ASC").
		Find(&batches).Error
	if err != nil {
		return res, errors.Wrap(err, "list batches")
	}
	if len(batches) == 0 {
		return res, ErrNoInstructorsAssigned
	}

	var students []string
	err = db.Model(&models.User{}).
		Where("role = ? AND active = ? AND grade = ?", models.RoleStudent, true, subject.Grade).
		Where("NOT EXISTS (?)", db.Model(&models.BatchAssignment{}).
			Select("1").
			Where("batch_assignments.student_id = users.id AND batch_assignments.subject_id = ?", subjectID)).
		Order("created_at ASC, id ASC").
		Pluck("id", &students).Error
	if err != nil {
		return res, errors.Wrap(err, "list unassigned students")
	}
	res.Eligible = len(students)
	if len(students) == 0 {
		res.Nothing = true
		return res, nil
	}

	next := 0
	for _, b := range batches {
		if next >= len(students) {
			break
		}
		room := b.Remaining()
		if room == 0 {
			continue
		}
		end := next + room
		if end > len(students) {
			end = len(students)
		}
		chunk := students[next:end]

		err := db.Transaction(func(tx *gorm.DB) error {
			ok, err := takeSeat(tx, b.ID, len(chunk))
			if err != nil {
				return err
			}
			if !ok {
				return ErrCapacityExceeded
			}
			rows := make([]models.BatchAssignment, len(chunk))
			for i, id := range chunk {
				rows[i] = models.BatchAssignment{StudentID: id, BatchID: b.ID, SubjectID: subjectID}
			}
			return errors.Wrap(tx.Create(&rows).Error, "create assignments")
		})
		if err != nil {
			// batch changed under us; leave these students for the next batch
			a.log.Warn("[BATCH] skipped batch during distribution", b.ID, err)
			continue
		}
		res.Slices = append(res.Slices, Slice{BatchID: b.ID, Room: room, Students: chunk})
		res.Assigned += len(chunk)
		next = end
	}
	return res, nil
}
