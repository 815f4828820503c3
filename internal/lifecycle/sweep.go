package lifecycle

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

// TickResult counts the rows moved by each transition of one sweep.
type TickResult struct {
	TournamentsLive      int64
	TournamentsCompleted int64
	ClassesLive          int64
	SuperClassesLive     int64
	Errors               []error
}

func (r TickResult) Total() int64 {
	return r.TournamentsLive + r.TournamentsCompleted + r.ClassesLive + r.SuperClassesLive
}

// Tick runs every time-driven transition once at the current clock.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	return s.TickAt(ctx, s.now().UTC())
}

// TickAt runs every time-driven transition as of now. Each transition is
// independent: a failing one is logged and the rest still run.
func (s *Scheduler) TickAt(ctx context.Context, now time.Time) TickResult {
	var res TickResult
	db := s.db.WithContext(ctx)

	step := func(name, entity string, fn func(*gorm.DB, time.Time) (int64, error), out *int64) {
		n, err := fn(db, now)
		if err != nil {
			s.log.Error("[LIFECYCLE] "+name+" failed", err)
			res.Errors = append(res.Errors, err)
			return
		}
		*out = n
		if n > 0 {
			s.log.Info("[LIFECYCLE] "+name, n)
			s.emit(entity, "")
		}
	}

	step("tournaments live", EntityTournament, promoteTournamentsLive, &res.TournamentsLive)
	step("tournaments completed", EntityTournament, completeTournaments, &res.TournamentsCompleted)
	step("classes live", EntityClass, classesLive(models.ClassRegular), &res.ClassesLive)
	step("super classes live", EntitySuperClass, classesLive(models.ClassSuper), &res.SuperClassesLive)
	return res
}

// UPCOMING -> LIVE when examStart <= now < examEnd.
func promoteTournamentsLive(db *gorm.DB, now time.Time) (int64, error) {
	res := db.Model(&models.Tournament{}).
		Where("status = ? AND exam_start <= ? AND exam_end > ?", models.TournamentUpcoming, now, now).
		Updates(map[string]interface{}{"status": models.TournamentLive, "updated_at": now})
	return res.RowsAffected, errors.Wrap(res.Error, "promote tournaments to live")
}

// {LIVE, UPCOMING} -> COMPLETED when examEnd <= now.
func completeTournaments(db *gorm.DB, now time.Time) (int64, error) {
	res := db.Model(&models.Tournament{}).
		Where("status IN ? AND exam_end <= ?", []models.TournamentStatus{models.TournamentLive, models.TournamentUpcoming}, now).
		Updates(map[string]interface{}{"status": models.TournamentCompleted, "updated_at": now})
	return res.RowsAffected, errors.Wrap(res.Error, "complete tournaments")
}

// scheduled -> live when startTime <= now.
func classesLive(kind models.ClassKind) func(*gorm.DB, time.Time) (int64, error) {
	return func(db *gorm.DB, now time.Time) (int64, error) {
		res := db.Model(&models.Class{}).
			Where("kind = ? AND status = ? AND start_time <= ?", kind, models.ClassScheduled, now).
			Updates(map[string]interface{}{"status": models.ClassLive, "updated_at": now})
		return res.RowsAffected, errors.Wrapf(res.Error, "promote %s classes to live", kind)
	}
}
