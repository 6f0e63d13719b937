// Package registry owns the set of in-flight irrigation sessions. It
// enforces at-most-one active session per device, drives the
// pending -> in_progress -> terminal state machine, schedules auto-completion
// timers and pushes commands and events out through its collaborators.
//
// The active-session table is process-local and in-memory; a restart loses
// in-flight sessions while devices may still be watering. Closing that gap
// means persisting transitions and reconciling against device status on
// startup.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

const (
	minDurationMinutes = 1
	maxDurationMinutes = 120
)

// CommandSender delivers control envelopes to a device. A nil error means
// accepted for send, not acknowledged by the device.
type CommandSender interface {
	Send(deviceID string, env model.CommandEnvelope) error
}

// SessionStore is the external persistence collaborator for session records.
type SessionStore interface {
	Create(ctx context.Context, s *model.IrrigationSession) error
	Update(ctx context.Context, s *model.IrrigationSession) error
	FindActiveByDevice(ctx context.Context, deviceID string) (*model.IrrigationSession, error)
}

// DeviceDirectory resolves device configuration.
type DeviceDirectory interface {
	GetConfig(ctx context.Context, deviceID string) (model.DeviceConfig, error)
}

// Broadcaster fans out events to a user's subscriber group.
type Broadcaster interface {
	Broadcast(event string, payload interface{}, groupID string)
}

type Config struct {
	FlowRateLPM float64
}

type activeEntry struct {
	sess  *model.IrrigationSession
	timer TimerHandle
}

type Service struct {
	mu     sync.Mutex
	active map[string]*activeEntry // keyed by device id

	sender    CommandSender
	store     SessionStore
	directory DeviceDirectory
	events    Broadcaster
	clock     Clock
	metrics   *Metrics
	log       *zap.Logger

	flowRateLPM float64
}

func NewService(sender CommandSender, store SessionStore, directory DeviceDirectory,
	events Broadcaster, clock Clock, metrics *Metrics, log *zap.Logger, cfg Config) *Service {
	if cfg.FlowRateLPM <= 0 {
		cfg.FlowRateLPM = defaultFlowRateLPM
	}
	return &Service{
		active:      make(map[string]*activeEntry),
		sender:      sender,
		store:       store,
		directory:   directory,
		events:      events,
		clock:       clock,
		metrics:     metrics,
		log:         log,
		flowRateLPM: cfg.FlowRateLPM,
	}
}

// Start begins a watering session for the device. It validates the duration,
// rejects devices with a non-terminal session, dispatches the start command
// and schedules the auto-completion timer.
func (s *Service) Start(ctx context.Context, deviceID string, duration int,
	typ model.SessionType, userID string) (*model.IrrigationSession, error) {
	return s.start(ctx, deviceID, duration, typ, userID, nil, nil)
}

// StartSmart begins an automatic session triggered by a decision, attaching
// the telemetry and decision snapshot that justified it. Water accounting
// for such sessions follows the decision's recommended volume.
func (s *Service) StartSmart(ctx context.Context, deviceID, userID string,
	telemetry model.TelemetrySnapshot, dec model.Decision) (*model.IrrigationSession, error) {
	t, d := telemetry, dec
	return s.start(ctx, deviceID, dec.RecommendedDuration, model.SessionSmart, userID, &t, &d)
}

func (s *Service) start(ctx context.Context, deviceID string, duration int,
	typ model.SessionType, userID string,
	telemetry *model.TelemetrySnapshot, dec *model.Decision) (*model.IrrigationSession, error) {

	if duration < minDurationMinutes || duration > maxDurationMinutes {
		return nil, fmt.Errorf("%w: duration must be between %d and %d minutes",
			model.ErrValidation, minDurationMinutes, maxDurationMinutes)
	}
	if _, err := s.directory.GetConfig(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("device %s: %w", deviceID, model.ErrNotFound)
	}

	now := s.clock.Now()
	sess := &model.IrrigationSession{
		ID:              uuid.NewString(),
		DeviceID:        deviceID,
		UserID:          userID,
		Type:            typ,
		Status:          model.StatusPending,
		PlannedDuration: duration,
		StartTime:       now,
		Telemetry:       telemetry,
		Decision:        dec,
	}

	s.mu.Lock()
	if e, ok := s.active[deviceID]; ok && !e.sess.Status.Terminal() {
		s.mu.Unlock()
		return nil, fmt.Errorf("device %s: %w", deviceID, model.ErrConflict)
	}
	s.active[deviceID] = &activeEntry{sess: sess}
	s.mu.Unlock()
	s.metrics.ActiveSessions.Inc()

	if err := s.store.Create(ctx, sess); err != nil {
		s.log.Error("session create not persisted",
			zap.String("session_id", sess.ID), zap.Error(err))
	}

	env := model.CommandEnvelope{
		Action:        model.CommandStart,
		Duration:      duration,
		CorrelationID: sess.ID,
		IssuedAt:      now.UTC(),
	}
	if err := s.sender.Send(deviceID, env); err != nil {
		s.mu.Lock()
		delete(s.active, deviceID)
		s.mu.Unlock()

		sess.Finalize(model.StatusFailed, s.clock.Now())
		s.persistAndAnnounce(ctx, sess)
		s.metrics.SessionsFinished.WithLabelValues(string(model.StatusFailed)).Inc()
		s.metrics.ActiveSessions.Dec()

		s.log.Error("start command dispatch failed",
			zap.String("device_id", deviceID), zap.String("session_id", sess.ID), zap.Error(err))
		return nil, fmt.Errorf("session %s: %w", sess.ID, model.ErrDispatch)
	}

	s.mu.Lock()
	entry, ok := s.active[deviceID]
	if !ok || entry.sess.ID != sess.ID {
		// A concurrent stop claimed the session while the command was in
		// flight; it owns the terminal transition.
		s.mu.Unlock()
		return sess, nil
	}
	sess.Status = model.StatusInProgress
	sessionID := sess.ID
	entry.timer = s.clock.AfterFunc(time.Duration(duration)*time.Minute, func() {
		s.autoComplete(deviceID, sessionID)
	})
	s.mu.Unlock()

	s.persistAndAnnounce(ctx, sess)
	s.metrics.SessionsStarted.WithLabelValues(string(typ)).Inc()

	s.log.Info("irrigation started",
		zap.String("device_id", deviceID),
		zap.String("session_id", sess.ID),
		zap.String("type", string(typ)),
		zap.Int("planned_minutes", duration))

	out := *sess
	return &out, nil
}

// Stop finishes the device's active session with the given terminal status.
// The pending timer is cancelled, elapsed minutes and water figures are
// computed, the record is persisted and the stop command is sent best
// effort: a publish failure never blocks the local terminal transition.
func (s *Service) Stop(ctx context.Context, deviceID string, status model.SessionStatus) (*model.SessionResult, error) {
	return s.stop(ctx, deviceID, status, "")
}

func (s *Service) stop(ctx context.Context, deviceID string, status model.SessionStatus, expectID string) (*model.SessionResult, error) {
	s.mu.Lock()
	entry, ok := s.active[deviceID]
	if !ok || (expectID != "" && entry.sess.ID != expectID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("no active session for device %s: %w", deviceID, model.ErrNotFound)
	}
	delete(s.active, deviceID)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	s.mu.Unlock()

	sess := entry.sess
	now := s.clock.Now()
	sess.ActualDuration = int(now.Sub(sess.StartTime).Minutes() + 0.5)

	if sess.Type == model.SessionSmart && sess.Decision != nil {
		sess.WaterUsed, sess.WaterSaved = decisionVolumeWaterPolicy(sess.Decision)
	} else {
		sess.WaterUsed, sess.WaterSaved = flowRateWaterPolicy(sess.ActualDuration, s.flowRateLPM)
	}
	sess.Finalize(status, now)

	s.persistAndAnnounce(ctx, sess)

	env := model.CommandEnvelope{
		Action:        model.CommandStop,
		CorrelationID: sess.ID,
		IssuedAt:      now.UTC(),
	}
	if err := s.sender.Send(deviceID, env); err != nil {
		// Server-side timing is the source of truth for whether the session
		// ran; the device will also stop on its own planned duration.
		s.log.Warn("stop command not delivered",
			zap.String("device_id", deviceID), zap.String("session_id", sess.ID), zap.Error(err))
	}

	s.metrics.SessionsFinished.WithLabelValues(string(status)).Inc()
	s.metrics.ActiveSessions.Dec()

	s.log.Info("irrigation stopped",
		zap.String("device_id", deviceID),
		zap.String("session_id", sess.ID),
		zap.String("status", string(status)),
		zap.Int("actual_minutes", sess.ActualDuration),
		zap.Int("water_used_l", sess.WaterUsed))

	return &model.SessionResult{
		DeviceID:       deviceID,
		SessionID:      sess.ID,
		Status:         sess.Status,
		ActualDuration: sess.ActualDuration,
		WaterUsed:      sess.WaterUsed,
		WaterSaved:     sess.WaterSaved,
		Success:        true,
	}, nil
}

// autoComplete is the timer expiry path. It re-checks that the same session
// is still active before transitioning, so a manual stop that raced ahead
// wins and the timer becomes a no-op.
func (s *Service) autoComplete(deviceID, sessionID string) {
	res, err := s.stop(context.Background(), deviceID, model.StatusCompleted, sessionID)
	if err != nil {
		s.log.Debug("auto-completion skipped",
			zap.String("device_id", deviceID), zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	s.log.Info("irrigation auto-completed",
		zap.String("device_id", deviceID), zap.String("session_id", res.SessionID))
}

// EmergencyStopAll cancels every active session owned by userID. Each device
// is stopped independently; one failure does not abort the rest.
func (s *Service) EmergencyStopAll(ctx context.Context, userID string) []model.SessionResult {
	s.mu.Lock()
	deviceIDs := make([]string, 0, len(s.active))
	for deviceID, e := range s.active {
		if e.sess.UserID == userID {
			deviceIDs = append(deviceIDs, deviceID)
		}
	}
	s.mu.Unlock()

	results := make([]model.SessionResult, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		res, err := s.Stop(ctx, deviceID, model.StatusCancelled)
		if err != nil {
			results = append(results, model.SessionResult{
				DeviceID: deviceID,
				Success:  false,
				Error:    err.Error(),
			})
			continue
		}
		results = append(results, *res)
	}

	s.log.Warn("emergency stop executed",
		zap.String("user_id", userID), zap.Int("sessions", len(results)))
	return results
}

// ListActive returns a snapshot of the active sessions.
func (s *Service) ListActive() []model.IrrigationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.IrrigationSession, 0, len(s.active))
	for _, e := range s.active {
		out = append(out, *e.sess)
	}
	return out
}

func (s *Service) persistAndAnnounce(ctx context.Context, sess *model.IrrigationSession) {
	if err := s.store.Update(ctx, sess); err != nil {
		s.log.Error("session update not persisted",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
	s.events.Broadcast(model.EventIrrigation, model.IrrigationEvent{
		DeviceID:  sess.DeviceID,
		Session:   *sess,
		Timestamp: s.clock.Now(),
	}, sess.UserID)
}
