package service

import (
	"context"
	"time"

	"wagateway/internal/constants"

	"github.com/sirupsen/logrus"
)

// ConversationMaintainer marks idle conversations inactive.
type ConversationMaintainer interface {
	DeactivateStaleConversations(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	store         ConversationMaintainer
	inactiveAfter time.Duration
	interval      time.Duration
	logger        *logrus.Logger
	now           func() time.Time
	stopCh        chan struct{}
}

func NewScheduler(store ConversationMaintainer, inactiveAfter time.Duration, intervalHours int, logger *logrus.Logger) *Scheduler {
	if intervalHours <= 0 {
		intervalHours = constants.MaintenanceIntervalHours
	}
	if inactiveAfter <= 0 {
		inactiveAfter = constants.ConversationInactiveAfter
	}
	return &Scheduler{
		store:         store,
		inactiveAfter: inactiveAfter,
		interval:      time.Duration(intervalHours) * time.Hour,
		logger:        logger,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting conversation maintenance scheduler")

	s.runMaintenance(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runMaintenance(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) runMaintenance(ctx context.Context) {
	cutoff := s.now().Add(-s.inactiveAfter)
	s.logger.WithField("cutoff", cutoff.UTC().Format(time.RFC3339)).Info("Running conversation maintenance")

	n, err := s.store.DeactivateStaleConversations(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to deactivate idle conversations")
		return
	}
	s.logger.WithField(LogFieldCount, n).Info("Completed conversation maintenance")
}
