package service

import (
	"context"
	"time"

	"wagateway/internal/metrics"

	"github.com/sirupsen/logrus"
)

const staleDeliveriesGauge = "delivery_stale_messages"

// StaleMessageCounter counts outbound messages without a delivery receipt.
type StaleMessageCounter interface {
	StaleOutboundCount(ctx context.Context, cutoff time.Time) (int, error)
}

type DeliveryMonitor struct {
	db             StaleMessageCounter
	checkInterval  time.Duration
	staleThreshold time.Duration
	logger         *logrus.Logger
	metrics        *metrics.Registry
	now            func() time.Time
	stopCh         chan struct{}
}

func NewDeliveryMonitor(db StaleMessageCounter, checkInterval, staleThreshold time.Duration, logger *logrus.Logger) *DeliveryMonitor {
	return &DeliveryMonitor{
		db:             db,
		checkInterval:  checkInterval,
		staleThreshold: staleThreshold,
		logger:         logger,
		metrics:        metrics.GetRegistry(),
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}
}

func (m *DeliveryMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.logger.WithFields(logrus.Fields{
		"check_interval":  m.checkInterval.String(),
		"stale_threshold": m.staleThreshold.String(),
	}).Info("Starting delivery monitor")

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkStaleMessages(ctx)
		}
	}
}

func (m *DeliveryMonitor) Stop() {
	close(m.stopCh)
}

func (m *DeliveryMonitor) checkStaleMessages(ctx context.Context) {
	count, err := m.db.StaleOutboundCount(ctx, m.now().Add(-m.staleThreshold))
	if err != nil {
		m.logger.WithError(err).Error("Failed to check for stale messages")
		return
	}
	m.metrics.SetGauge(staleDeliveriesGauge, float64(count), nil, "Outbound messages without a delivery receipt")
	if count > 0 {
		m.logger.WithFields(logrus.Fields{
			"stale_count": count,
			"threshold":   m.staleThreshold.String(),
		}).Warn("Outbound messages stuck in 'sent' status without delivery confirmation")
	}
}
