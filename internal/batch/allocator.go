// Package batch places students into capacity-bounded, instructor-led
// batches. Seat counters are only ever changed by guarded UPDATEs, so
// current_count never exceeds capacity even under concurrent callers.
package batch

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/database"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

var (
	ErrSubjectNotFound       = errors.New("no subject found")
	ErrNoInstructorsAssigned = errors.New("no batches exist for this subject")
	ErrNoInstructorAvailable = errors.New("no active instructor available for a new batch")
	ErrCapacityExceeded      = errors.New("batch is full")
	ErrBatchNotFound         = errors.New("batch not found")
	ErrAlreadyAssigned       = errors.New("student already has a batch for this subject")
)

// a full batch can be raced for by many callers; give up after this many
// guarded increments in a row came back empty.
const maxSeatAttempts = 8

type Allocator struct {
	db              *gorm.DB
	log             logger.Logger
	defaultCapacity int
}

func NewAllocator(db *gorm.DB, defaultCapacity int, log logger.Logger) *Allocator {
	if defaultCapacity <= 0 {
		defaultCapacity = 30
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Allocator{db: db, log: log, defaultCapacity: defaultCapacity}
}

// Allocation is the outcome for one subject.
type Allocation struct {
	SubjectID string `json:"subject_id"`
	BatchID   string `json:"batch_id,omitempty"`
	// NewBatch is set when no open batch existed and one was created.
	NewBatch bool  `json:"new_batch"`
	Existing bool  `json:"existing"`
	Err      error `json:"-"`
}

// takeSeat increments current_count only while a seat is free.
func takeSeat(tx *gorm.DB, batchID string, n int) (bool, error) {
	res := tx.Model(&models.Batch{}).
		Where("id = ? AND active = ? AND current_count + ? <= capacity", batchID, true, n).
		Update("current_count", gorm.Expr("current_count + ?", n))
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "take seat in %s", batchID)
	}
	return res.RowsAffected > 0, nil
}

func existingAssignment(tx *gorm.DB, studentID, subjectID string) (*models.BatchAssignment, error) {
	var a models.BatchAssignment
	err := tx.Where("student_id = ? AND subject_id = ?", studentID, subjectID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup assignment")
	}
	return &a, nil
}

// AllocateStudentToBatches enrolls the student in one batch for every
// subject of the grade. Subjects are handled independently; a failure is
// reported on that subject's Allocation and the rest still run.
func (a *Allocator) AllocateStudentToBatches(ctx context.Context, studentID, grade string) ([]Allocation, error) {
	var subjects []models.Subject
	err := a.db.WithContext(ctx).Where("grade = ?", grade).Order("name ASC, id ASC").Find(&subjects).Error
	if err != nil {
		return nil, errors.Wrap(err, "resolve subjects")
	}
	if len(subjects) == 0 {
		return nil, ErrSubjectNotFound
	}

	out := make([]Allocation, 0, len(subjects))
	for _, s := range subjects {
		alloc := a.allocate(ctx, studentID, s)
		if alloc.Err != nil {
			a.log.Error("[BATCH] allocation failed", studentID, s.ID, alloc.Err)
		}
		out = append(out, alloc)
	}
	return out, nil
}

func (a *Allocator) allocate(ctx context.Context, studentID string, subject models.Subject) Allocation {
	alloc := Allocation{SubjectID: subject.ID}
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ex, err := existingAssignment(tx, studentID, subject.ID); err != nil {
			return err
		} else if ex != nil {
			alloc.BatchID, alloc.Existing = ex.BatchID, true
			return nil
		}

		batchID, created, err := a.seat(tx, subject)
		if err != nil {
			return err
		}
		err = tx.Create(&models.BatchAssignment{StudentID: studentID, BatchID: batchID, SubjectID: subject.ID}).Error
		if err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAlreadyAssigned
			}
			return errors.Wrap(err, "create assignment")
		}
		alloc.BatchID, alloc.NewBatch = batchID, created
		return nil
	})
	if errors.Is(err, ErrAlreadyAssigned) {
		// another caller enrolled the student first; report its batch
		if ex, lerr := existingAssignment(a.db.WithContext(ctx), studentID, subject.ID); lerr == nil && ex != nil {
			return Allocation{SubjectID: subject.ID, BatchID: ex.BatchID, Existing: true}
		}
	}
	alloc.Err = err
	return alloc
}

// seat reserves one seat in the oldest open batch of the subject, or opens
// a new batch when every existing one is full.
func (a *Allocator) seat(tx *gorm.DB, subject models.Subject) (string, bool, error) {
	for i := 0; i < maxSeatAttempts; i++ {
		var b models.Batch
		err := tx.Where("subject_id = ? AND active = ? AND current_count < capacity", subject.ID, true).
			Order("created_at ASC, id ASC").
			First(&b).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return "", false, errors.Wrap(err, "find open batch")
		}
		ok, err := takeSeat(tx, b.ID, 1)
		if err != nil {
			return "", false, err
		}
		if ok {
			return b.ID, false, nil
		}
	}

	var instructor models.User
	err := tx.Where("role IN ? AND active = ?", []models.Role{models.RoleInstructor, models.RoleSuperInstructor}, true).
		Order("created_at ASC, id ASC").
		First(&instructor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, ErrNoInstructorAvailable
	}
	if err != nil {
		return "", false, errors.Wrap(err, "find instructor")
	}

	var n int64
	if err := tx.Model(&models.Batch{}).Where("subject_id = ?", subject.ID).Count(&n).Error; err != nil {
		return "", false, errors.Wrap(err, "count batches")
	}
	b := models.Batch{
		SubjectID:    subject.ID,
		InstructorID: instructor.ID,
		Name:         fmt.Sprintf("%s batch %d", subject.Name, n+1),
		Capacity:     a.defaultCapacity,
		CurrentCount: 1,
		Active:       true,
	}
	if err := tx.Create(&b).Error; err != nil {
		return "", false, errors.Wrap(err, "create batch")
	}
	a.log.Info("[BATCH] opened batch", b.ID, subject.ID, instructor.ID)
	return b.ID, true, nil
}

// Assign enrolls a student into a specific batch. A full batch refuses the
// student with ErrCapacityExceeded.
func (a *Allocator) Assign(ctx context.Context, studentID, batchID string) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Batch
		if err := tx.First(&b, "id = ?", batchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBatchNotFound
			}
			return errors.Wrap(err, "load batch")
		}
		if ex, err := existingAssignment(tx, studentID, b.SubjectID); err != nil {
			return err
		} else if ex != nil {
			return ErrAlreadyAssigned
		}
		ok, err := takeSeat(tx, b.ID, 1)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCapacityExceeded
		}
		err = tx.Create(&models.BatchAssignment{StudentID: studentID, BatchID: b.ID, SubjectID: b.SubjectID}).Error
		if database.IsUniqueViolation(err) {
			return ErrAlreadyAssigned
		}
		return errors.Wrap(err, "create assignment")
	})
}
