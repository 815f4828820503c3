package lifecycle

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

// guarded applies status from -> to on one row and tells a missing row
// apart from one in the wrong status.
func (s *Scheduler) guarded(ctx context.Context, model interface{}, id string, from interface{}, to interface{}) error {
	db := s.db.WithContext(ctx)
	res := db.Model(model).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": s.now().UTC()})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "transition %s", id)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := db.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return errors.Wrapf(err, "lookup %s", id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrTransitionRejected
}

// PublishTournament moves a DRAFT tournament to UPCOMING and schedules its
// notifications. A scheduling failure is logged; the transition stands.
func (s *Scheduler) PublishTournament(ctx context.Context, id string) error {
	err := s.guarded(ctx, &models.Tournament{}, id,
		[]models.TournamentStatus{models.TournamentDraft}, models.TournamentUpcoming)
	if err != nil {
		return err
	}
	s.emit(EntityTournament, id)
	if s.notifier != nil {
		if err := s.notifier.ScheduleTournament(ctx, id); err != nil {
			s.log.Error("[LIFECYCLE] schedule notifications failed", id, err)
		}
	}
	return nil
}

// PublishResults moves a COMPLETED tournament to RESULT_PUBLISHED and queues
// a result notice for every registered student.
func (s *Scheduler) PublishResults(ctx context.Context, id string) error {
	err := s.guarded(ctx, &models.Tournament{}, id,
		[]models.TournamentStatus{models.TournamentCompleted}, models.TournamentResultPublished)
	if err != nil {
		return err
	}
	s.emit(EntityTournament, id)
	if s.notifier != nil {
		if err := s.notifier.NotifyResultsPublished(ctx, id); err != nil {
			s.log.Error("[LIFECYCLE] result notifications failed", id, err)
		}
	}
	return nil
}

// EndClass moves a live class to completed.
func (s *Scheduler) EndClass(ctx context.Context, id string) error {
	var c models.Class
	if err := s.db.WithContext(ctx).Select("id", "kind").Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return errors.Wrapf(err, "load class %s", id)
	}
	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Class{}).
		Where("id = ? AND status = ?", id, models.ClassLive).
		Updates(map[string]interface{}{"status": models.ClassCompleted, "end_time": now, "updated_at": now})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "end class %s", id)
	}
	if res.RowsAffected == 0 {
		return ErrTransitionRejected
	}
	s.emit(classEntity(c.Kind), id)
	return nil
}
