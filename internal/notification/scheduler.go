// Package notification precomputes per-recipient notification rows for
// tournaments and delivers the due ones through in-app, email and push
// channels.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

var ErrTournamentNotFound = errors.New("tournament not found")

// ScheduleResult counts what one scheduling pass did. Skipped rows already
// existed under the same (tournament, student, type) key.
type ScheduleResult struct {
	Recipients int
	Created    int
	Skipped    int
	Failed     int
}

type Scheduler struct {
	db  *gorm.DB
	log logger.Logger
	now func() time.Time
}

func NewScheduler(db *gorm.DB, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop{}
	}
	return &Scheduler{db: db, log: log, now: time.Now}
}

// SetClock replaces time.Now, for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

func (s *Scheduler) tournament(ctx context.Context, id string) (*models.Tournament, error) {
	var t models.Tournament
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, errors.Wrapf(err, "load tournament %s", id)
	}
	return &t, nil
}

// registered returns the registered students in id order.
func (s *Scheduler) registered(ctx context.Context, tournamentID string) ([]string, map[string]bool, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.TournamentRegistration{}).
		Where("tournament_id = ?", tournamentID).
		Order("student_id").
		Pluck("student_id", &ids).Error
	if err != nil {
		return nil, nil, errors.Wrap(err, "list registrations")
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return ids, set, nil
}

// recipients are the instructor's assigned students while registration has
// not opened yet, and the registered students afterwards.
func (s *Scheduler) recipients(ctx context.Context, t *models.Tournament, now time.Time, registered []string) ([]string, error) {
	if !now.Before(t.RegistrationStart) {
		return registered, nil
	}
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("assigned_instructor_id = ? AND role = ? AND active = ?", t.InstructorID, models.RoleStudent, true).
		Order("id").
		Pluck("id", &ids).Error
	return ids, errors.Wrap(err, "list assigned students")
}

type plan struct {
	typ     models.NotificationType
	at      time.Time
	title   string
	message string
}

func plans(t *models.Tournament, now time.Time, registered bool) []plan {
	startsAt := t.ExamStart.UTC().Format(time.RFC1123)
	announce := t.RegistrationStart
	if announce.Before(now) {
		announce = now
	}
	out := []plan{{
		typ:     models.NotificationAnnouncement,
		at:      announce,
		title:   "New tournament: " + t.Title,
		message: fmt.Sprintf("%s starts on %s. Registration is open until %s.", t.Title, startsAt, t.RegistrationEnd.UTC().Format(time.RFC1123)),
	}}
	if at := t.ExamStart.Add(-24 * time.Hour); at.After(now) {
		out = append(out, plan{models.NotificationReminder24h, at, t.Title + " starts tomorrow", fmt.Sprintf("%s starts on %s.", t.Title, startsAt)})
	}
	if at := t.ExamStart.Add(-time.Hour); at.After(now) {
		out = append(out, plan{models.NotificationReminder1h, at, t.Title + " starts in 1 hour", fmt.Sprintf("%s starts on %s.", t.Title, startsAt)})
	}
	if registered {
		out = append(out, plan{models.NotificationExam10Min, t.ExamStart.Add(-10 * time.Minute), t.Title + " starts in 10 minutes", "Get ready, the exam opens in 10 minutes."})
	}
	out = append(out, plan{models.NotificationExamStart, t.ExamStart, t.Title + " has started", "The exam is open now. Good luck!"})
	return out
}

func payload(t *models.Tournament, typ models.NotificationType) datatypes.JSON {
	b, _ := json.Marshal(map[string]interface{}{
		"tournamentId": t.ID,
		"type":         typ,
		"examStart":    t.ExamStart.UTC(),
		"examEnd":      t.ExamEnd.UTC(),
	})
	return datatypes.JSON(b)
}

// insert stores n unless its key already exists. It reports whether a row
// was created.
func (s *Scheduler) insert(ctx context.Context, n *models.Notification) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tournament_id"}, {Name: "student_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(n)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Plan computes and stores the notification rows of one tournament. Each
// insert is independent; failures are counted and logged.
func (s *Scheduler) Plan(ctx context.Context, tournamentID string) (ScheduleResult, error) {
	var res ScheduleResult
	t, err := s.tournament(ctx, tournamentID)
	if err != nil {
		return res, err
	}
	now := s.now().UTC()
	registeredIDs, registered, err := s.registered(ctx, t.ID)
	if err != nil {
		return res, err
	}
	recipients, err := s.recipients(ctx, t, now, registeredIDs)
	if err != nil {
		return res, err
	}
	res.Recipients = len(recipients)

	for _, studentID := range recipients {
		for _, p := range plans(t, now, registered[studentID]) {
			n := models.Notification{
				TournamentID: t.ID,
				StudentID:    studentID,
				Type:         p.typ,
				Title:        p.title,
				Message:      p.message,
				Data:         payload(t, p.typ),
				ScheduledAt:  p.at,
			}
			created, err := s.insert(ctx, &n)
			switch {
			case err != nil:
				res.Failed++
				s.log.Error("[DISPATCH] schedule notification failed", t.ID, studentID, string(p.typ), err)
			case created:
				res.Created++
			default:
				res.Skipped++
			}
		}
	}
	return res, nil
}

// ScheduleTournament is Plan with the counts logged.
func (s *Scheduler) ScheduleTournament(ctx context.Context, tournamentID string) error {
	res, err := s.Plan(ctx, tournamentID)
	if err != nil {
		return err
	}
	s.log.Info("[DISPATCH] scheduled tournament notifications", tournamentID, res)
	return nil
}

// ResultsPublished queues a RESULT_PUBLISHED notice for every registered
// student.
func (s *Scheduler) ResultsPublished(ctx context.Context, tournamentID string) (ScheduleResult, error) {
	var res ScheduleResult
	t, err := s.tournament(ctx, tournamentID)
	if err != nil {
		return res, err
	}
	ids, _, err := s.registered(ctx, t.ID)
	if err != nil {
		return res, err
	}
	now := s.now().UTC()
	res.Recipients = len(ids)
	for _, studentID := range ids {
		n := models.Notification{
			TournamentID: t.ID,
			StudentID:    studentID,
			Type:         models.NotificationResultPublished,
			Title:        "Results are out: " + t.Title,
			Message:      fmt.Sprintf("Results for %s have been published.", t.Title),
			Data:         payload(t, models.NotificationResultPublished),
			ScheduledAt:  now,
		}
		created, err := s.insert(ctx, &n)
		switch {
		case err != nil:
			res.Failed++
			s.log.Error("[DISPATCH] result notification failed", t.ID, studentID, err)
		case created:
			res.Created++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// NotifyResultsPublished is ResultsPublished with the counts logged.
func (s *Scheduler) NotifyResultsPublished(ctx context.Context, tournamentID string) error {
	res, err := s.ResultsPublished(ctx, tournamentID)
	if err != nil {
		return err
	}
	s.log.Info("[DISPATCH] queued result notifications", tournamentID, res)
	return nil
}
