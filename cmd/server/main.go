package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/attendance"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/batch"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/conference"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/config"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/database"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/lifecycle"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/notification"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/routes"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/session"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/ws"
)

func newLogger(cfg *config.Config) (logger.Logger, func()) {
	std := log.New(os.Stdout, "", log.LstdFlags)
	if cfg.RollbarToken == "" {
		return logger.NewStdLogger(std, !cfg.IsProduction()), func() {}
	}
	host, _ := os.Hostname()
	rl := logger.NewRollbarLogger(std, logger.RollbarOptions{
		Token:       cfg.RollbarToken,
		Environment: cfg.Env,
		Host:        host,
		Build:       cfg.Build,
	})
	rl.Enable(true)
	return rl, rl.Close
}

func newEmailSender(cfg *config.Config) notification.EmailSender {
	from := notification.From{Name: cfg.DefaultFromName, Email: cfg.DefaultFromEmail, AppName: cfg.AppName}
	if cfg.EmailBackend == "sendgrid" {
		return notification.NewSendgridSender(cfg.SendgridAPIKey, from)
	}
	return notification.NewConsoleSender(from, os.Stdout)
}

func main() {
	// Load .env (non-fatal if missing in production)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	lg, flush := newLogger(cfg)
	defer flush()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	if err := database.SeedAdmin(db, cfg); err != nil {
		log.Fatalf("admin seed failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hubs := ws.NewHubs(lg)
	hubs.Run(ctx)

	rooms := session.NewRegistry(cfg.RoomGracePeriod, session.WithLogger(lg))
	go rooms.Run(ctx, cfg.RoomSweepInterval)

	ledger := attendance.NewLedger(db)
	recorder := attendance.NewRecorder(ledger, cfg.AttendanceQueueSize, lg)
	gateway := ws.NewGateway(rooms, recorder, cfg.WSSendBuffer, lg)

	notifications := notification.NewScheduler(db, lg)
	dispatcher := notification.NewDispatcher(db, hubs.Users, newEmailSender(cfg), cfg.DispatchBatchSize, lg)
	sweeper := lifecycle.NewScheduler(db, hubs.Dashboard, lg, lifecycle.WithNotifier(notifications))

	stopSweeper, err := sweeper.Start(cfg.LifecycleInterval)
	if err != nil {
		log.Fatalf("lifecycle scheduler failed: %v", err)
	}
	stopDispatcher, err := dispatcher.Start(cfg.DispatchInterval)
	if err != nil {
		log.Fatalf("notification dispatcher failed: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	routes.Register(r, routes.Deps{
		DB:            db,
		Config:        cfg,
		Rooms:         rooms,
		Gateway:       gateway,
		Hubs:          hubs,
		Attendance:    ledger,
		Lifecycle:     sweeper,
		Notifications: notifications,
		Allocator:     batch.NewAllocator(db, cfg.BatchDefaultCapacity, lg),
		Issuer:        conference.NewIssuer(cfg.ConferenceAPIKey, cfg.ConferenceAPISecret, cfg.ConferenceTokenTTL),
	})

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		lg.Info("[SERVER] listening", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("[SERVER] exited with error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	lg.Info("[SERVER] shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("[SERVER] http shutdown", err)
	}
	<-stopSweeper().Done()
	<-stopDispatcher().Done()
	if err := recorder.Close(shutdownCtx); err != nil {
		lg.Error("[ATTENDANCE] queue not drained", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
