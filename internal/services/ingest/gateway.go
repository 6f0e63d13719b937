// Package ingest subscribes to the device telemetry, status, response and
// alert channels, validates payloads at the boundary, keeps the per-device
// snapshot cache current and feeds the decision engine and session registry.
// One malformed message never halts the stream.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
	"github.com/agrosense/irrigation-coordinator/pkg/dedup"
	"github.com/agrosense/irrigation-coordinator/pkg/mqttconn"
)

// Subscriptions covers the four channel families. Alerts ride the strictest
// delivery guarantee; the rest are at-least-once and deduped here.
func Subscriptions() []mqttconn.Subscription {
	return []mqttconn.Subscription{
		{Topic: "telemetry/sensor/+/data", QoS: 1},
		{Topic: "telemetry/device/+/status", QoS: 1},
		{Topic: "control/+/response", QoS: 1},
		{Topic: "alert/+", QoS: 2},
	}
}

type Predictor interface {
	Predict(t model.TelemetrySnapshot, cfg model.DeviceConfig) model.Decision
}

type SessionStarter interface {
	StartSmart(ctx context.Context, deviceID, userID string,
		t model.TelemetrySnapshot, d model.Decision) (*model.IrrigationSession, error)
}

type DeviceDirectory interface {
	GetConfig(ctx context.Context, deviceID string) (model.DeviceConfig, error)
}

type Broadcaster interface {
	Broadcast(event string, payload interface{}, groupID string)
}

// Notifier is the external critical-alert collaborator.
type Notifier interface {
	NotifyCritical(ctx context.Context, cfg model.DeviceConfig, alert model.DeviceAlertEvent)
}

type Gateway struct {
	consumer  mqttconn.Consumer
	engine    Predictor
	sessions  SessionStarter
	directory DeviceDirectory
	events    Broadcaster
	notifier  Notifier
	cache     *SnapshotCache
	deduper   *dedup.Deduper
	metrics   *Metrics
	now       func() time.Time
	log       *zap.Logger
}

func NewGateway(consumer mqttconn.Consumer, engine Predictor, sessions SessionStarter,
	directory DeviceDirectory, events Broadcaster, notifier Notifier,
	cache *SnapshotCache, metrics *Metrics, log *zap.Logger) *Gateway {
	g := &Gateway{
		consumer:  consumer,
		engine:    engine,
		sessions:  sessions,
		directory: directory,
		events:    events,
		notifier:  notifier,
		cache:     cache,
		deduper:   dedup.New(10*time.Minute, 20000),
		metrics:   metrics,
		now:       time.Now,
		log:       log,
	}
	consumer.SetHandler(g.handle)
	return g
}

// Run blocks consuming messages until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	g.consumer.Run(ctx)
}

func (g *Gateway) handle(topic string, payload []byte) error {
	fam, deviceID, err := parseTopic(topic)
	if err != nil {
		g.metrics.DroppedUnknown.Inc()
		g.log.Warn("dropping message", zap.String("topic", topic), zap.Error(err))
		return nil
	}

	// At-least-once families can redeliver; identical payloads within the
	// window are processed once. Alerts are exactly-once at the transport.
	if fam != familyAlert {
		h := sha256.Sum256(append([]byte(topic+"|"), payload...))
		if !g.deduper.ShouldProcess(hex.EncodeToString(h[:])) {
			return nil
		}
	}

	g.metrics.MessagesTotal.WithLabelValues(string(fam)).Inc()

	ctx := context.Background()
	switch fam {
	case familySensorData:
		g.handleSensorData(ctx, deviceID, payload)
	case familyDeviceStatus:
		g.handleDeviceStatus(ctx, deviceID, payload)
	case familyControlResponse:
		g.handleControlResponse(ctx, deviceID, payload)
	case familyAlert:
		g.handleAlert(ctx, deviceID, payload)
	}
	return nil
}

func (g *Gateway) handleSensorData(ctx context.Context, deviceID string, payload []byte) {
	snap, err := parseSensorPayload(payload, g.now())
	if err != nil {
		g.dropParse(familySensorData, deviceID, err)
		return
	}

	cfg, err := g.directory.GetConfig(ctx, deviceID)
	if err != nil {
		g.metrics.DroppedUnknown.Inc()
		g.log.Warn("unknown device, message dropped",
			zap.String("device_id", deviceID), zap.Error(err))
		return
	}

	g.cache.UpdateTelemetry(deviceID, snap)

	dec := g.engine.Predict(snap, cfg)

	g.events.Broadcast(model.EventSensorUpdate, model.SensorUpdateEvent{
		DeviceID:  deviceID,
		Telemetry: snap,
		Decision:  dec,
		Timestamp: g.now(),
	}, cfg.OwnerID)

	if cfg.AutomationEnabled && dec.ShouldIrrigate && snap.SoilMoisture < cfg.MoistureThreshold {
		if _, err := g.sessions.StartSmart(ctx, deviceID, cfg.OwnerID, snap, dec); err != nil {
			if errors.Is(err, model.ErrConflict) {
				g.log.Debug("smart start skipped, session already active",
					zap.String("device_id", deviceID))
				return
			}
			g.log.Error("smart start failed",
				zap.String("device_id", deviceID), zap.Error(err))
			return
		}
		g.metrics.SmartTriggers.Inc()
		g.log.Info("smart irrigation triggered",
			zap.String("device_id", deviceID),
			zap.Float64("soil_moisture", snap.SoilMoisture),
			zap.String("reason", dec.Reason))
	}
}

func (g *Gateway) handleDeviceStatus(ctx context.Context, deviceID string, payload []byte) {
	p, err := parseStatusPayload(payload)
	if err != nil {
		g.dropParse(familyDeviceStatus, deviceID, err)
		return
	}

	g.cache.UpdateStatus(deviceID, model.DeviceStatus(p.Status), p.Battery, p.SignalStrength)

	cfg, err := g.directory.GetConfig(ctx, deviceID)
	if err != nil {
		g.metrics.DroppedUnknown.Inc()
		return
	}
	g.events.Broadcast(model.EventDeviceStatus, model.DeviceStatusEvent{
		DeviceID:       deviceID,
		Status:         model.DeviceStatus(p.Status),
		Battery:        p.Battery,
		SignalStrength: p.SignalStrength,
		Timestamp:      g.now(),
	}, cfg.OwnerID)
}

func (g *Gateway) handleControlResponse(ctx context.Context, deviceID string, payload []byte) {
	if !json.Valid(payload) {
		g.dropParse(familyControlResponse, deviceID, model.ErrParse)
		return
	}
	cfg, err := g.directory.GetConfig(ctx, deviceID)
	if err != nil {
		g.metrics.DroppedUnknown.Inc()
		return
	}
	// Pass-through: the device's response reaches the owner unchanged.
	g.events.Broadcast(model.EventControlResponse, model.ControlResponseEvent{
		DeviceID:  deviceID,
		Response:  json.RawMessage(payload),
		Timestamp: g.now(),
	}, cfg.OwnerID)
}

func (g *Gateway) handleAlert(ctx context.Context, deviceID string, payload []byte) {
	p, err := parseAlertPayload(payload)
	if err != nil {
		g.dropParse(familyAlert, deviceID, err)
		return
	}
	cfg, err := g.directory.GetConfig(ctx, deviceID)
	if err != nil {
		g.metrics.DroppedUnknown.Inc()
		return
	}

	evt := model.DeviceAlertEvent{
		DeviceID:  deviceID,
		Severity:  p.Severity,
		Message:   p.Message,
		Timestamp: g.now(),
	}
	g.events.Broadcast(model.EventDeviceAlert, evt, cfg.OwnerID)

	if p.Severity == "critical" {
		g.log.Warn("critical device alert",
			zap.String("device_id", deviceID), zap.String("message", p.Message))
		g.notifier.NotifyCritical(ctx, cfg, evt)
	}
}

func (g *Gateway) dropParse(fam family, deviceID string, err error) {
	g.metrics.ParseErrors.WithLabelValues(string(fam)).Inc()
	g.log.Warn("malformed message dropped",
		zap.String("family", string(fam)),
		zap.String("device_id", deviceID),
		zap.Error(err))
}
