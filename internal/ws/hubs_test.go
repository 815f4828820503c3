package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/models"
)

func withUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", models.User{ID: id, Role: models.RoleStudent, Active: true})
		c.Next()
	}
}

func serveHub(t *testing.T, handler gin.HandlerFunc, userID string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", withUser(userID), handler)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// repeat calls fn until stop is closed; registration with the hub races the
// first publish.
func repeat(fn func()) (stop func()) {
	done := make(chan struct{})
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			fn()
			select {
			case <-done:
				return
			case <-tick.C:
			}
		}
	}()
	return func() { close(done) }
}

func TestDashboardHubBroadcastsStatusChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewDashboardHub(nil)
	go hub.Run(ctx)

	conn := serveHub(t, DashboardHandler(hub), "admin-1")
	stop := repeat(func() { hub.EntityStatusChanged("tournament", "status_changed", "t-1") })
	defer stop()

	f := expect(t, conn, "entity_status_changed")
	var ev StatusEvent
	if err := json.Unmarshal(f.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev != (StatusEvent{Kind: "tournament", Action: "status_changed", ID: "t-1"}) {
		t.Fatalf("event = %+v", ev)
	}
}

func TestUserHubDeliversOnlyToRecipient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewUserHub(nil)
	go hub.Run(ctx)

	mine := serveHub(t, UserHandler(hub), "u-1")
	theirs := serveHub(t, UserHandler(hub), "u-2")

	n := models.Notification{ID: 7, Type: models.NotificationReminder1h, Title: "Soon", Message: "Starts in an hour", TournamentID: "t-1"}
	stop := repeat(func() { hub.Deliver("u-1", n) })
	f := expect(t, mine, "notification")
	stop()

	var msg UserMessage
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.ID != 7 || msg.Title != "Soon" || msg.TournamentID != "t-1" {
		t.Fatalf("message = %+v", msg)
	}

	theirs.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := theirs.ReadMessage(); err == nil {
		t.Fatal("notification leaked to another user")
	}
}

func TestHandlersRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", DashboardHandler(NewDashboardHub(nil)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	if w.Code != 401 {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
