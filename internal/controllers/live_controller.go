package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/attendance"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/conference"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/middleware"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/session"
)

// LiveController exposes live room state over REST for clients that are
// not connected to the gateway.
type LiveController struct {
	Rooms      *session.Registry
	Attendance *attendance.Ledger
	Issuer     *conference.Issuer
}

func roomParam(c *gin.Context) (session.RoomID, bool) {
	kind, err := session.ParseKind(c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return "", false
	}
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return "", false
	}
	return session.NewRoomID(kind, id), true
}

// State returns the room snapshot. A room nobody has joined yet reports the
// default controls and an empty roster.
func (lc *LiveController) State(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		return
	}
	snap, live := lc.Rooms.Snapshot(room)
	if !live {
		snap = session.Snapshot{Room: room, Controls: session.DefaultControls(), Members: []session.Participant{}, RaisedHands: []string{}}
	}
	c.JSON(http.StatusOK, gin.H{"data": snap, "live": live})
}

// Token mints a conferencing credential for the caller.
func (lc *LiveController) Token(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		return
	}
	user, _ := middleware.CurrentUser(c)
	cred, err := lc.Issuer.Issue(string(room), user.ID, user.FullName, user.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cred})
}

func (lc *LiveController) AttendanceList(c *gin.Context) {
	room, ok := roomParam(c)
	if !ok {
		return
	}
	rows, err := lc.Attendance.Intervals(c.Request.Context(), room.EntityID(), string(room.Kind()))
	if err != nil {
		respondError(c, err)
		return
	}
	type interval struct {
		UserID   string  `json:"user_id"`
		JoinedAt string  `json:"joined_at"`
		LeftAt   *string `json:"left_at"`
	}
	out := make([]interval, 0, len(rows))
	for _, r := range rows {
		it := interval{UserID: r.UserID, JoinedAt: r.JoinedAt.UTC().Format(timeLayout)}
		if r.LeftAt != nil {
			s := r.LeftAt.UTC().Format(timeLayout)
			it.LeftAt = &s
		}
		out = append(out, it)
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
