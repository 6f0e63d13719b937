// Package devicesim is a stand-in field device for local development and
// end-to-end testing: it publishes telemetry at a fixed interval, executes
// start/stop commands against a simulated valve and acknowledges them on the
// response topic.
package devicesim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
	"github.com/agrosense/irrigation-coordinator/pkg/dedup"
	"github.com/agrosense/irrigation-coordinator/pkg/mqttconn"
)

const lowBatteryPct = 15

type Simulator struct {
	deviceID  string
	generator *Generator
	publisher mqttconn.Publisher
	consumer  mqttconn.Consumer
	deduper   *dedup.Deduper
	log       *zap.Logger

	mu         sync.Mutex
	valveOpen  bool
	closeTimer *time.Timer
	alerted    bool
}

// CommandSubscription is the filter a simulated device listens on.
func CommandSubscription(deviceID string) []mqttconn.Subscription {
	return []mqttconn.Subscription{
		{Topic: fmt.Sprintf("control/%s/command", deviceID), QoS: 1},
	}
}

func NewSimulator(deviceID string, gen *Generator, publisher mqttconn.Publisher,
	consumer mqttconn.Consumer, log *zap.Logger) *Simulator {
	s := &Simulator{
		deviceID:  deviceID,
		generator: gen,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000),
		log:       log,
	}
	consumer.SetHandler(s.handleCommand)
	return s
}

// Run publishes readings until ctx is cancelled. Every sixth tick also
// carries a device status report.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	go s.consumer.Run(ctx)

	tick := 0
	for {
		select {
		case <-ctx.Done():
			s.publisher.Close()
			return
		case <-time.After(interval):
			snap := s.generator.Next(s.isValveOpen())
			s.publishJSON(fmt.Sprintf("telemetry/sensor/%s/data", s.deviceID), 1, snap)

			tick++
			if tick%6 == 0 {
				s.publishStatus(snap)
			}
			s.maybeAlertLowBattery()
		}
	}
}

func (s *Simulator) handleCommand(_ string, payload []byte) error {
	var env model.CommandEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("invalid command envelope: %w", err)
	}

	// QoS1 redeliveries carry the same correlation id.
	if !s.deduper.ShouldProcess(env.CorrelationID) {
		return nil
	}

	switch env.Action {
	case model.CommandStart:
		s.openValve(time.Duration(env.Duration) * time.Minute)
	case model.CommandStop:
		s.closeValve()
	default:
		return fmt.Errorf("unknown command action %q", env.Action)
	}

	s.publishJSON(fmt.Sprintf("control/%s/response", s.deviceID), 1, map[string]any{
		"action":        env.Action,
		"result":        "ok",
		"correlationId": env.CorrelationID,
		"timestamp":     time.Now().UTC(),
	})
	return nil
}

func (s *Simulator) openValve(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
	}
	s.valveOpen = true
	s.log.Info("valve open", zap.Duration("for", d))

	if d > 0 {
		s.closeTimer = time.AfterFunc(d, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.valveOpen = false
			s.closeTimer = nil
			s.log.Info("valve closed on schedule")
		})
	}
}

func (s *Simulator) closeValve() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeTimer != nil {
		s.closeTimer.Stop()
		s.closeTimer = nil
	}
	s.valveOpen = false
	s.log.Info("valve closed")
}

func (s *Simulator) isValveOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valveOpen
}

func (s *Simulator) publishStatus(snap model.TelemetrySnapshot) {
	s.publishJSON(fmt.Sprintf("telemetry/device/%s/status", s.deviceID), 1, map[string]any{
		"status":         model.DeviceOnline,
		"battery":        snap.Battery,
		"signalStrength": snap.SignalStrength,
	})
}

func (s *Simulator) maybeAlertLowBattery() {
	s.mu.Lock()
	alerted := s.alerted
	s.mu.Unlock()
	if alerted || s.generator.Battery() >= lowBatteryPct {
		return
	}

	s.publishJSON(fmt.Sprintf("alert/%s", s.deviceID), 2, map[string]any{
		"severity": "critical",
		"message":  fmt.Sprintf("battery at %.0f%%", s.generator.Battery()),
	})
	s.mu.Lock()
	s.alerted = true
	s.mu.Unlock()
}

func (s *Simulator) publishJSON(topic string, qos byte, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("encode failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(topic, qos, data); err != nil {
		s.log.Error("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
