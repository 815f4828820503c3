package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/batch"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/conference"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/lifecycle"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/notification"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/session"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{lifecycle.ErrNotFound, http.StatusNotFound},
	{lifecycle.ErrTransitionRejected, http.StatusConflict},
	{notification.ErrTournamentNotFound, http.StatusNotFound},
	{batch.ErrSubjectNotFound, http.StatusNotFound},
	{batch.ErrBatchNotFound, http.StatusNotFound},
	{batch.ErrNoInstructorsAssigned, http.StatusConflict},
	{batch.ErrNoInstructorAvailable, http.StatusConflict},
	{batch.ErrCapacityExceeded, http.StatusConflict},
	{batch.ErrAlreadyAssigned, http.StatusConflict},
	{session.ErrUnknownKind, http.StatusBadRequest},
	{session.ErrInvalidControlField, http.StatusBadRequest},
	{conference.ErrNotConfigured, http.StatusServiceUnavailable},
}

// respondError maps a domain error to its status. Anything unknown is a 500
// and is logged, not echoed.
func respondError(c *gin.Context, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			c.JSON(e.status, gin.H{"error": e.err.Error()})
			return
		}
	}
	log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// pathID reads a uuid path parameter, answering 400 when it is malformed.
func pathID(c *gin.Context, name string) (string, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return "", false
	}
	return id.String(), true
}
