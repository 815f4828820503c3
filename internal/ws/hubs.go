package ws

import (
	"context"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
)

type Hubs struct {
	Dashboard *DashboardHub
	Users     *UserHub
}

func NewHubs(log logger.Logger) *Hubs {
	return &Hubs{
		Dashboard: NewDashboardHub(log),
		Users:     NewUserHub(log),
	}
}

// Run starts both hub loops; they stop when ctx is done.
func (h *Hubs) Run(ctx context.Context) {
	go h.Dashboard.Run(ctx)
	go h.Users.Run(ctx)
}
