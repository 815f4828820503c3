package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/attendance"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/middleware"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/session"
)

// Attendance receives presence changes. Implementations must not block.
type Attendance interface {
	Join(k attendance.Key, at time.Time)
	Leave(k attendance.Key, at time.Time)
}

// Gateway terminates room connections. It is the only caller of Registry
// mutations, and it enqueues each mutation's broadcast from inside the
// mutation's commit so the two never diverge.
type Gateway struct {
	rooms      *session.Registry
	attendance Attendance
	validate   *validator.Validate
	log        logger.Logger
	sendBuffer int
	now        func() time.Time

	mu      sync.RWMutex
	clients map[string]*roomClient
}

func NewGateway(rooms *session.Registry, att Attendance, sendBuffer int, log logger.Logger) *Gateway {
	if log == nil {
		log = logger.Nop{}
	}
	return &Gateway{
		rooms:      rooms,
		attendance: att,
		validate:   validator.New(),
		log:        log,
		sendBuffer: sendBuffer,
		now:        time.Now,
		clients:    make(map[string]*roomClient),
	}
}

// roomClient is one connection. Everything but the embedded peer is owned
// by the connection's read goroutine.
type roomClient struct {
	*peer
	id   string
	gw   *Gateway
	auth *models.User

	current session.RoomID
	self    session.Participant
}

// Connections returns the number of open room connections.
func (g *Gateway) Connections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Handler upgrades the request and serves the connection until it closes.
// When auth middleware put a user on the context, join payloads must name
// that user and the stored role wins over the claimed one.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var auth *models.User
		if user, ok := middleware.CurrentUser(c); ok {
			auth = &user
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &roomClient{
			peer: newPeer(conn, g.sendBuffer),
			id:   uuid.NewString(),
			gw:   g,
			auth: auth,
		}
		g.mu.Lock()
		g.clients[client.id] = client
		g.mu.Unlock()

		go client.writePump()
		client.readPump(64*1024, client.handle)
		g.disconnect(client)
	}
}

func (g *Gateway) disconnect(c *roomClient) {
	now := g.now().UTC()
	departures := g.rooms.LeaveAll(c.id, func(p session.Participant, s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(""), encode(evMemberLeft, memberOf(p)))
	})
	for _, d := range departures {
		g.recordLeave(d.Room, d.Participant.UserID, now)
	}

	g.mu.Lock()
	delete(g.clients, c.id)
	g.mu.Unlock()
	c.close()
	if len(departures) > 0 {
		g.log.Debug("[GATEWAY] connection closed", c.id, len(departures))
	}
}

func attendanceKey(room session.RoomID, userID string) attendance.Key {
	return attendance.Key{SessionID: room.EntityID(), SessionKind: string(room.Kind()), UserID: userID}
}

func (g *Gateway) recordJoin(room session.RoomID, userID string, at time.Time) {
	if g.attendance != nil {
		g.attendance.Join(attendanceKey(room, userID), at)
	}
}

func (g *Gateway) recordLeave(room session.RoomID, userID string, at time.Time) {
	if g.attendance != nil {
		g.attendance.Leave(attendanceKey(room, userID), at)
	}
}

// sendTo enqueues frame on every listed connection. It never blocks.
func (g *Gateway) sendTo(ids []string, frame []byte) {
	if frame == nil || len(ids) == 0 {
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range ids {
		if c, ok := g.clients[id]; ok {
			if !c.enqueue(frame) {
				g.log.Warn("[GATEWAY] send buffer full, dropping connection", id)
			}
		}
	}
}

func (c *roomClient) reply(event string, data interface{}) {
	if frame := encode(event, data); frame != nil {
		c.enqueue(frame)
	}
}

func (c *roomClient) fail(code, message, event string) {
	c.reply(evError, errorPayload{Code: code, Message: message, Event: event})
}

// decode unmarshals and validates an event payload, replying with an error
// event when it is unusable.
func (c *roomClient) decode(event string, raw json.RawMessage, dst interface{}) bool {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.fail(errInvalidPayload, "malformed payload", event)
		return false
	}
	if err := c.gw.validate.Struct(dst); err != nil {
		c.fail(errInvalidPayload, err.Error(), event)
		return false
	}
	return true
}

func (c *roomClient) handle(msg []byte) {
	var in inbound
	if err := json.Unmarshal(msg, &in); err != nil || in.Event == "" {
		c.fail(errInvalidPayload, "expected {event, data}", "")
		return
	}
	if in.Event == evJoinRoom {
		c.join(in.Data)
		return
	}
	if c.current == "" {
		c.fail(errNotJoined, "join a room first", in.Event)
		return
	}
	h, ok := roomEvents[in.Event]
	if !ok {
		c.fail(errUnknownEvent, "unknown event", in.Event)
		return
	}
	if h.moderator && !c.self.Role.CanModerate() {
		c.fail(errForbidden, "moderator only", in.Event)
		return
	}
	h.fn(c, in.Event, in.Data)
}

func (c *roomClient) join(raw json.RawMessage) {
	var req joinRequest
	if !c.decode(evJoinRoom, raw, &req) {
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		c.fail(errInvalidPayload, "unknown role", evJoinRoom)
		return
	}
	room, err := session.ParseRoomID(req.RoomID)
	if err != nil {
		c.fail(errInvalidPayload, err.Error(), evJoinRoom)
		return
	}
	if c.auth != nil {
		if c.auth.ID != req.UserID {
			c.fail(errIdentity, "userId does not match the authenticated user", evJoinRoom)
			return
		}
		role = c.auth.Role
	}

	p := session.Participant{ConnectionID: c.id, UserID: req.UserID, DisplayName: req.UserName, Role: role}
	g := c.gw
	_, prev, rejoined := g.rooms.Join(room, p, func(s session.Snapshot) {
		members := make([]memberPayload, len(s.Members))
		for i, m := range s.Members {
			members[i] = memberOf(m)
		}
		c.reply(evCurrentMembers, members)
		c.reply(evRoomState, roomStatePayload{RoomID: string(s.Room), Controls: s.Controls, RaisedHands: s.RaisedHands})
		g.sendTo(s.ConnectionIDs(c.id), encode(evMemberJoined, memberOf(p)))
	})
	c.current = room
	c.self = p

	// A connection holds one interval per room. Re-joining keeps it open
	// unless the identity on the connection changed.
	now := g.now().UTC()
	if rejoined {
		if prev.UserID == p.UserID {
			return
		}
		g.recordLeave(room, prev.UserID, now)
	}
	g.recordJoin(room, p.UserID, now)
}

func (c *roomClient) leave(event string, raw json.RawMessage) {
	g := c.gw
	room := c.current
	_, ok := g.rooms.Leave(c.id, room, func(p session.Participant, s session.Snapshot) {
		g.sendTo(s.ConnectionIDs(""), encode(evMemberLeft, memberOf(p)))
	})
	if ok {
		g.recordLeave(room, c.self.UserID, g.now().UTC())
	}
	c.current = ""
}
