package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/attendance"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/batch"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/conference"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/config"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/controllers"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/lifecycle"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/middleware"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/notification"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/session"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/ws"
)

// Deps are the long-lived components the HTTP surface exposes.
type Deps struct {
	DB            *gorm.DB
	Config        *config.Config
	Rooms         *session.Registry
	Gateway       *ws.Gateway
	Hubs          *ws.Hubs
	Attendance    *attendance.Ledger
	Lifecycle     *lifecycle.Scheduler
	Notifications *notification.Scheduler
	Allocator     *batch.Allocator
	Issuer        *conference.Issuer
}

func Register(r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": d.Rooms.Rooms(), "connections": d.Gateway.Connections()})
	})

	authMW := middleware.AuthMiddleware(d.DB, middleware.AuthConfig{JWTSecret: d.Config.JWTSecret})

	// Realtime. The room gateway does not require a token; when one is
	// present the join identity is checked against it.
	r.GET("/ws/rooms", optionalAuth(authMW), d.Gateway.Handler())
	r.GET("/ws/dashboard", authMW, ws.DashboardHandler(d.Hubs.Dashboard))
	r.GET("/ws/notifications", authMW, ws.UserHandler(d.Hubs.Users))

	liveCtrl := &controllers.LiveController{Rooms: d.Rooms, Attendance: d.Attendance, Issuer: d.Issuer}
	tourCtrl := &controllers.TournamentController{Lifecycle: d.Lifecycle, Notifications: d.Notifications}
	classCtrl := &controllers.ClassController{DB: d.DB, Lifecycle: d.Lifecycle}
	batchCtrl := &controllers.BatchController{DB: d.DB, Allocator: d.Allocator}

	api := r.Group("/api/v1", authMW)
	{
		rooms := api.Group("/rooms/:kind/:id")
		{
			rooms.GET("/token", liveCtrl.Token)
			rooms.GET("/state", middleware.RequireModerator(), liveCtrl.State)
			rooms.GET("/attendance", middleware.RequireModerator(), liveCtrl.AttendanceList)
		}

		tournaments := api.Group("/tournaments/:id", middleware.RequireRoles(models.RoleAdmin))
		{
			tournaments.POST("/publish", tourCtrl.Publish)
			tournaments.POST("/results", tourCtrl.PublishResults)
			tournaments.POST("/notifications", tourCtrl.Reschedule)
		}

		api.POST("/classes/:id/end", middleware.RequireModerator(), classCtrl.End)

		admin := api.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/batches/allocate", batchCtrl.Allocate)
			admin.POST("/batches/:id/students", batchCtrl.Assign)
			admin.POST("/subjects/:id/distribute", batchCtrl.Distribute)
		}
	}
}

// optionalAuth runs auth only when the request carries a token.
func optionalAuth(auth gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" && c.Query("token") == "" {
			c.Next()
			return
		}
		auth(c)
	}
}
