// Package notify is the boundary to the external critical-alert channel
// (email/push). Only the interface is owned here; the default implementation
// records the alert in the log.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

type Notifier interface {
	NotifyCritical(ctx context.Context, cfg model.DeviceConfig, alert model.DeviceAlertEvent)
}

type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyCritical(_ context.Context, cfg model.DeviceConfig, alert model.DeviceAlertEvent) {
	n.log.Error("CRITICAL ALERT",
		zap.String("device_id", alert.DeviceID),
		zap.String("owner_id", cfg.OwnerID),
		zap.String("message", alert.Message))
}
