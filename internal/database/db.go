package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/config"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{TranslateError: true}
	if cfg.IsProduction() {
		gcfg.Logger = logger.Default.LogMode(logger.Warn)
	}
	return gorm.Open(postgres.Open(cfg.DSN()), gcfg)
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Class{},
		&models.Tournament{},
		&models.TournamentRegistration{},
		&models.AttendanceInterval{},
		&models.Notification{},
		&models.Subject{},
		&models.Batch{},
		&models.BatchAssignment{},
	)
}

// IsUniqueViolation matches both the translated gorm error and a raw
// postgres 23505.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
