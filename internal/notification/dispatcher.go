package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

// InAppDelivery pushes a notification to the recipient's live connections.
// Delivery is best effort; a recipient with no connection still counts as
// delivered.
type InAppDelivery interface {
	Deliver(userID string, n models.Notification)
}

type PushSender interface {
	Push(ctx context.Context, userID string, n models.Notification) error
}

// DispatchResult counts one dispatch tick.
type DispatchResult struct {
	Processed    int
	InApp        int
	Email        int
	EmailFailed  int
	Push         int
	PushFailed   int
	UpdateFailed int
}

// Dispatcher delivers due notification rows. Delivery is at-least-once:
// channel flags only move from false to true and a row whose email flag is
// already set is never emailed again.
type Dispatcher struct {
	db        *gorm.DB
	log       logger.Logger
	inApp     InAppDelivery
	email     EmailSender
	push      PushSender
	batchSize int
	now       func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithPush(p PushSender) DispatcherOption {
	return func(d *Dispatcher) { d.push = p }
}

func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(db *gorm.DB, inApp InAppDelivery, email EmailSender, batchSize int, log logger.Logger, opts ...DispatcherOption) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = logger.Nop{}
	}
	d := &Dispatcher{db: db, log: log, inApp: inApp, email: email, batchSize: batchSize, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) due(ctx context.Context, now time.Time) ([]models.Notification, error) {
	var rows []models.Notification
	err := d.db.WithContext(ctx).
		Where("scheduled_at <= ? AND in_app_sent = ?", now, false).
		Order("scheduled_at ASC, id ASC").
		Limit(d.batchSize).
		Find(&rows).Error
	return rows, errors.Wrap(err, "select due notifications")
}

func (d *Dispatcher) recipients(ctx context.Context, rows []models.Notification) (map[string]models.User, error) {
	seen := make(map[string]bool, len(rows))
	ids := make([]string, 0, len(rows))
	for _, n := range rows {
		if !seen[n.StudentID] {
			seen[n.StudentID] = true
			ids = append(ids, n.StudentID)
		}
	}
	var users []models.User
	if err := d.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "load recipients")
	}
	out := make(map[string]models.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// Dispatch runs one tick at the current clock.
func (d *Dispatcher) Dispatch(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult
	now := d.now().UTC()
	rows, err := d.due(ctx, now)
	if err != nil || len(rows) == 0 {
		return res, err
	}
	users, err := d.recipients(ctx, rows)
	if err != nil {
		return res, err
	}

	for _, n := range rows {
		res.Processed++
		if d.inApp != nil {
			d.inApp.Deliver(n.StudentID, n)
		}
		res.InApp++

		emailSent := n.EmailSent
		if !emailSent && d.email != nil {
			u, ok := users[n.StudentID]
			switch {
			case !ok || u.Email == "":
				res.EmailFailed++
				d.log.Warn("[DISPATCH] recipient has no email", n.ID, n.StudentID)
			default:
				err := d.email.Send(ctx, Email{ToName: u.FullName, ToEmail: u.Email, Subject: n.Title, Text: n.Message})
				if err != nil {
					res.EmailFailed++
					d.log.Error("[DISPATCH] email failed", n.ID, err)
				} else {
					emailSent = true
					res.Email++
				}
			}
		}

		pushSent := n.PushSent
		if !pushSent && d.push != nil {
			if err := d.push.Push(ctx, n.StudentID, n); err != nil {
				res.PushFailed++
				d.log.Error("[DISPATCH] push failed", n.ID, err)
			} else {
				pushSent = true
				res.Push++
			}
		}

		upd := d.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ? AND in_app_sent = ?", n.ID, false).
			Updates(map[string]interface{}{
				"in_app_sent": true,
				"email_sent":  emailSent,
				"push_sent":   pushSent,
				"sent_at":     now,
				"updated_at":  now,
			})
		if upd.Error != nil {
			res.UpdateFailed++
			d.log.Error("[DISPATCH] mark sent failed", n.ID, upd.Error)
		}
	}
	return res, nil
}

// Start runs Dispatch every interval. A tick still running when the next
// one fires makes the next one skip.
func (d *Dispatcher) Start(interval time.Duration) (stop func() context.Context, err error) {
	l := logger.Cron(d.log)
	c := cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)))
	_, err = c.AddFunc("@every "+interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		res, err := d.Dispatch(ctx)
		if err != nil {
			d.log.Error("[DISPATCH] tick failed", err)
			return
		}
		if res.Processed > 0 {
			d.log.Info("[DISPATCH] tick", res)
		}
	})
	if err != nil {
		return nil, err
	}
	d.log.Info("[DISPATCH] dispatcher started", interval.String())
	c.Start()
	return c.Stop, nil
}
