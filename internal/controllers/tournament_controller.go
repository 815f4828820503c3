package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/lifecycle"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/notification"
)

const timeLayout = time.RFC3339

type TournamentController struct {
	Lifecycle     *lifecycle.Scheduler
	Notifications *notification.Scheduler
}

// Publish moves a draft tournament to UPCOMING.
func (tc *TournamentController) Publish(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := tc.Lifecycle.PublishTournament(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "tournament published"})
}

// PublishResults moves a completed tournament to RESULT_PUBLISHED.
func (tc *TournamentController) PublishResults(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := tc.Lifecycle.PublishResults(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "results published"})
}

// Reschedule re-runs notification planning. Rows that already exist are
// left alone.
func (tc *TournamentController) Reschedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := tc.Notifications.Plan(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recipients": res.Recipients,
		"created":    res.Created,
		"skipped":    res.Skipped,
		"failed":     res.Failed,
	})
}
