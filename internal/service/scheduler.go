package service

import (
	"context"
	"time"

	"smsbridge/internal/constants"

	"github.com/sirupsen/logrus"
)

// QueueDrainer re-evaluates every pending message.
type QueueDrainer interface {
	Drain(ctx context.Context)
}

// DrainScheduler triggers periodic queue drains. Membership-change events
// trigger additional drains out of band; the ticker only sets the floor on
// retry cadence.
type DrainScheduler struct {
	queue    QueueDrainer
	interval time.Duration
	logger   *logrus.Logger
	stopCh   chan struct{}
}

func NewDrainScheduler(queue QueueDrainer, interval time.Duration, logger *logrus.Logger) *DrainScheduler {
	if interval <= 0 {
		interval = constants.DefaultDrainIntervalSec * time.Second
	}
	return &DrainScheduler{
		queue:    queue,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (s *DrainScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval).Info("Starting queue drain scheduler")

	s.queue.Drain(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Drain scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Drain scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.queue.Drain(ctx)
		}
	}
}

func (s *DrainScheduler) Stop() {
	close(s.stopCh)
}
