package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/middleware"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

// UserMessage is an in-app notification frame.
type UserMessage struct {
	ID           uint            `json:"id"`
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Message      string          `json:"message"`
	TournamentID string          `json:"tournament_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
}

type userClient struct {
	*peer
	userID string
}

type userNotification struct {
	userID  string
	payload []byte
}

// UserHub keeps every live connection of every user and pushes in-app
// notifications to all of them.
type UserHub struct {
	register   chan *userClient
	unregister chan *userClient
	notify     chan userNotification
	clients    map[string]map[*userClient]struct{}
	stopped    chan struct{}
	log        logger.Logger
}

func NewUserHub(log logger.Logger) *UserHub {
	if log == nil {
		log = logger.Nop{}
	}
	return &UserHub{
		register:   make(chan *userClient),
		unregister: make(chan *userClient),
		notify:     make(chan userNotification, 256),
		clients:    make(map[string]map[*userClient]struct{}),
		stopped:    make(chan struct{}),
		log:        log,
	}
}

func (h *UserHub) drop(client *userClient) {
	set := h.clients[client.userID]
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
	client.close()
}

func (h *UserHub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for client := range set {
					client.close()
				}
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*userClient]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client.userID][client]; ok {
				h.drop(client)
			}
		case msg := <-h.notify:
			for client := range h.clients[msg.userID] {
				if !client.enqueue(msg.payload) {
					h.drop(client)
				}
			}
		}
	}
}

// Notify queues message for every connection of userID.
func (h *UserHub) Notify(userID string, message UserMessage) {
	if h == nil {
		return
	}
	data, err := json.Marshal(envelope{Event: "notification", Data: message})
	if err != nil {
		h.log.Error("[DISPATCH] marshal in-app notification failed", err)
		return
	}
	select {
	case h.notify <- userNotification{userID: userID, payload: data}:
	default:
		h.log.Warn("[DISPATCH] user hub saturated, dropping in-app notification", userID, message.ID)
	}
}

// Deliver adapts a stored notification for the in-app channel.
func (h *UserHub) Deliver(userID string, n models.Notification) {
	h.Notify(userID, UserMessage{
		ID:           n.ID,
		Type:         string(n.Type),
		Title:        n.Title,
		Message:      n.Message,
		TournamentID: n.TournamentID,
		Data:         json.RawMessage(n.Data),
		ScheduledAt:  n.ScheduledAt,
	})
}

// UserHandler upgrades the caller to its personal notification feed.
func UserHandler(hub *UserHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hub == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not available"})
			return
		}
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &userClient{peer: newPeer(conn, 64), userID: user.ID}
		select {
		case hub.register <- client:
		case <-hub.stopped:
			client.close()
			return
		}

		go client.writePump()
		client.readPump(512, nil)
		select {
		case hub.unregister <- client:
		case <-hub.stopped:
		}
	}
}
