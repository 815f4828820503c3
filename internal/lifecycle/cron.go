package lifecycle

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edutalksorg/edutalks-live-streaming-backend-sub000/internal/logger"
)

// Start runs Tick every interval until the returned stop function is
// called. stop waits for a running tick to finish.
func (s *Scheduler) Start(interval time.Duration) (stop func() context.Context, err error) {
	l := logger.Cron(s.log)
	c := cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l)))
	_, err = c.AddFunc("@every "+interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		s.Tick(ctx)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("[LIFECYCLE] sweeper started", interval.String())
	c.Start()
	return c.Stop, nil
}
