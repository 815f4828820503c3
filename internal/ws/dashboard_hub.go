package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/middleware"
)

// StatusEvent tells dashboards to refresh an entity list.
type StatusEvent struct {
	Kind   string `json:"kind"`
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

// DashboardHub fans entity_status_changed out to every dashboard client.
// It is not tied to any room.
type DashboardHub struct {
	register   chan *peer
	unregister chan *peer
	broadcast  chan []byte
	clients    map[*peer]struct{}
	stopped    chan struct{}
	log        logger.Logger
}

func NewDashboardHub(log logger.Logger) *DashboardHub {
	if log == nil {
		log = logger.Nop{}
	}
	return &DashboardHub{
		register:   make(chan *peer),
		unregister: make(chan *peer),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*peer]struct{}),
		stopped:    make(chan struct{}),
		log:        log,
	}
}

func (h *DashboardHub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.close()
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.enqueue(msg) {
					delete(h.clients, client)
				}
			}
		}
	}
}

// EntityStatusChanged queues a notice for every dashboard. A saturated hub
// drops the notice; dashboards re-sync on the next one.
func (h *DashboardHub) EntityStatusChanged(kind, action, id string) {
	if h == nil {
		return
	}
	data, err := json.Marshal(envelope{Event: "entity_status_changed", Data: StatusEvent{Kind: kind, Action: action, ID: id}})
	if err != nil {
		h.log.Error("[GATEWAY] marshal status event failed", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("[GATEWAY] dashboard hub saturated, dropping status event", kind, id)
	}
}

// DashboardHandler upgrades an authenticated request to a dashboard feed.
func DashboardHandler(hub *DashboardHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hub == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not available"})
			return
		}
		if _, ok := middleware.CurrentUser(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newPeer(conn, sendBufferSize)
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
