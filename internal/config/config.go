package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Port       string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	JWTSecret  string

	AdminEmail    string
	AdminFullName string

	Env          string
	Build        string
	RollbarToken string

	// Schedulers
	LifecycleInterval time.Duration
	DispatchInterval  time.Duration
	DispatchBatchSize int

	// Rooms
	RoomGracePeriod   time.Duration
	RoomSweepInterval time.Duration
	WSSendBuffer      int

	AttendanceQueueSize  int
	BatchDefaultCapacity int

	// Email
	EmailBackend     string // console | sendgrid
	SendgridAPIKey   string
	DefaultFromEmail string
	DefaultFromName  string
	AppName          string

	// Conference credentials
	ConferenceAPIKey    string
	ConferenceAPISecret string
	ConferenceTokenTTL  time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "edutalks")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("ADMIN_EMAIL", "admin@example.com")
	v.SetDefault("ADMIN_FULL_NAME", "Administrator")
	v.SetDefault("ENV", "development")
	v.SetDefault("BUILD", "dev")
	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("LIFECYCLE_INTERVAL", 30*time.Second)
	v.SetDefault("DISPATCH_INTERVAL", 60*time.Second)
	v.SetDefault("DISPATCH_BATCH_SIZE", 100)
	v.SetDefault("ROOM_GRACE_PERIOD", 2*time.Minute)
	v.SetDefault("ROOM_SWEEP_INTERVAL", 30*time.Second)
	v.SetDefault("WS_SEND_BUFFER", 256)
	v.SetDefault("ATTENDANCE_QUEUE_SIZE", 1024)
	v.SetDefault("BATCH_DEFAULT_CAPACITY", 30)
	v.SetDefault("EMAIL_BACKEND", "console")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("DEFAULT_FROM_EMAIL", "noreply@localhost")
	v.SetDefault("DEFAULT_FROM_NAME", "EduTalks")
	v.SetDefault("APP_NAME", "EduTalks")
	v.SetDefault("CONFERENCE_API_KEY", "")
	v.SetDefault("CONFERENCE_API_SECRET", "")
	v.SetDefault("CONFERENCE_TOKEN_TTL", 10*time.Minute)
}

// Load reads configuration from the environment, falling back to defaults.
// Call godotenv.Load before this to pick up a local .env file.
func Load() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:       v.GetString("PORT"),
		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetString("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBSSLMode:  v.GetString("DB_SSLMODE"),
		JWTSecret:  v.GetString("JWT_SECRET"),

		AdminEmail:    v.GetString("ADMIN_EMAIL"),
		AdminFullName: v.GetString("ADMIN_FULL_NAME"),

		Env:          v.GetString("ENV"),
		Build:        v.GetString("BUILD"),
		RollbarToken: v.GetString("ROLLBAR_TOKEN"),

		LifecycleInterval: v.GetDuration("LIFECYCLE_INTERVAL"),
		DispatchInterval:  v.GetDuration("DISPATCH_INTERVAL"),
		DispatchBatchSize: v.GetInt("DISPATCH_BATCH_SIZE"),

		RoomGracePeriod:   v.GetDuration("ROOM_GRACE_PERIOD"),
		RoomSweepInterval: v.GetDuration("ROOM_SWEEP_INTERVAL"),
		WSSendBuffer:      v.GetInt("WS_SEND_BUFFER"),

		AttendanceQueueSize:  v.GetInt("ATTENDANCE_QUEUE_SIZE"),
		BatchDefaultCapacity: v.GetInt("BATCH_DEFAULT_CAPACITY"),

		EmailBackend:     strings.ToLower(v.GetString("EMAIL_BACKEND")),
		SendgridAPIKey:   v.GetString("SENDGRID_API_KEY"),
		DefaultFromEmail: v.GetString("DEFAULT_FROM_EMAIL"),
		DefaultFromName:  v.GetString("DEFAULT_FROM_NAME"),
		AppName:          v.GetString("APP_NAME"),

		ConferenceAPIKey:    v.GetString("CONFERENCE_API_KEY"),
		ConferenceAPISecret: v.GetString("CONFERENCE_API_SECRET"),
		ConferenceTokenTTL:  v.GetDuration("CONFERENCE_TOKEN_TTL"),
	}
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	e := strings.ToLower(c.Env)
	return e == "production" || e == "prod"
}

// DSN is the postgres connection string for gorm.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// Validate rejects configurations the schedulers and gateway cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT must be set")
	}
	if c.LifecycleInterval <= 0 {
		return errors.Errorf("LIFECYCLE_INTERVAL must be positive, got %s", c.LifecycleInterval)
	}
	if c.DispatchInterval <= 0 {
		return errors.Errorf("DISPATCH_INTERVAL must be positive, got %s", c.DispatchInterval)
	}
	if c.DispatchBatchSize <= 0 {
		return errors.Errorf("DISPATCH_BATCH_SIZE must be positive, got %d", c.DispatchBatchSize)
	}
	if c.RoomGracePeriod < 0 {
		return errors.Errorf("ROOM_GRACE_PERIOD must not be negative, got %s", c.RoomGracePeriod)
	}
	if c.RoomSweepInterval <= 0 {
		return errors.Errorf("ROOM_SWEEP_INTERVAL must be positive, got %s", c.RoomSweepInterval)
	}
	if c.WSSendBuffer <= 0 {
		return errors.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WSSendBuffer)
	}
	if c.AttendanceQueueSize <= 0 {
		return errors.Errorf("ATTENDANCE_QUEUE_SIZE must be positive, got %d", c.AttendanceQueueSize)
	}
	if c.BatchDefaultCapacity <= 0 {
		return errors.Errorf("BATCH_DEFAULT_CAPACITY must be positive, got %d", c.BatchDefaultCapacity)
	}
	switch c.EmailBackend {
	case "console":
	case "sendgrid":
		if c.SendgridAPIKey == "" {
			return errors.New("SENDGRID_API_KEY is required when EMAIL_BACKEND=sendgrid")
		}
	default:
		return errors.Errorf("unknown EMAIL_BACKEND %q", c.EmailBackend)
	}
	if c.IsProduction() && c.JWTSecret == "change-me" {
		return errors.New("JWT_SECRET must be changed in production")
	}
	return nil
}
