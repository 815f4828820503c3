// Package lifecycle moves classes and tournaments through their status
// lifecycle as wall-clock time passes their boundaries.
//
// Every transition is a single conditional UPDATE whose WHERE clause
// carries both the expected prior status and the time predicate, so an
// overlapping or repeated tick matches zero rows once the first one has
// landed. No transition ever moves an entity backward.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

var (
	ErrTransitionRejected = errors.New("entity is not in the expected status")
	ErrNotFound           = errors.New("entity not found")
)

// Entity kinds carried on status-change notices.
const (
	EntityTournament = "tournament"
	EntityClass      = "class"
	EntitySuperClass = "super_class"

	ActionStatusChanged = "status_changed"
)

// Broadcaster receives dashboard refresh notices. id is empty for sweep
// transitions that may have touched several rows.
type Broadcaster interface {
	EntityStatusChanged(kind, action, id string)
}

// Notifier is the notification side effect of manual transitions.
type Notifier interface {
	ScheduleTournament(ctx context.Context, tournamentID string) error
	NotifyResultsPublished(ctx context.Context, tournamentID string) error
}

type Scheduler struct {
	db       *gorm.DB
	log      logger.Logger
	bus      Broadcaster
	notifier Notifier
	now      func() time.Time
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

func NewScheduler(db *gorm.DB, bus Broadcaster, log logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{db: db, bus: bus, log: log, now: time.Now}
	if s.log == nil {
		s.log = logger.Nop{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func classEntity(kind models.ClassKind) string {
	if kind == models.ClassSuper {
		return EntitySuperClass
	}
	return EntityClass
}

func (s *Scheduler) emit(kind, id string) {
	if s.bus != nil {
		s.bus.EntityStatusChanged(kind, ActionStatusChanged, id)
	}
}
