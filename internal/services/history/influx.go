// Package history persists irrigation session records. The Influx-backed
// store writes one point per state transition and answers the read paths the
// status endpoints need; the in-memory store backs tests and single-node
// setups without an Influx instance.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

const measurement = "irrigation_session"

type InfluxStore struct {
	write  api.WriteAPI
	query  api.QueryAPI
	bucket string
	log    *zap.Logger

	mu      sync.RWMutex
	lastErr time.Time
}

func NewInfluxStore(client influxdb2.Client, org, bucket string, log *zap.Logger) *InfluxStore {
	s := &InfluxStore{
		write:  client.WriteAPI(org, bucket),
		query:  client.QueryAPI(org),
		bucket: bucket,
		log:    log,
		// Default "long ago" so readiness starts healthy.
		lastErr: time.Now().Add(-24 * time.Hour),
	}
	go func() {
		for err := range s.write.Errors() {
			if err != nil {
				s.mu.Lock()
				s.lastErr = time.Now()
				s.mu.Unlock()
				log.Error("influx write error", zap.Error(err))
			}
		}
	}()
	return s
}

func (s *InfluxStore) Create(ctx context.Context, sess *model.IrrigationSession) error {
	return s.writePoint(sess)
}

func (s *InfluxStore) Update(ctx context.Context, sess *model.IrrigationSession) error {
	return s.writePoint(sess)
}

func (s *InfluxStore) writePoint(sess *model.IrrigationSession) error {
	p := influxdb2.NewPointWithMeasurement(measurement).
		AddTag("device_id", sess.DeviceID).
		AddTag("session_id", sess.ID).
		AddTag("user_id", sess.UserID).
		AddTag("type", string(sess.Type)).
		AddTag("status", string(sess.Status)).
		AddField("planned_minutes", sess.PlannedDuration).
		AddField("actual_minutes", sess.ActualDuration).
		AddField("water_used_l", sess.WaterUsed).
		AddField("water_saved_l", sess.WaterSaved).
		AddField("efficiency_pct", sess.Efficiency).
		SetTime(time.Now())
	s.write.WritePoint(p)
	return nil
}

// FindActiveByDevice returns the latest non-terminal record for the device.
// The registry holds the live table; this read path exists for restart
// reconciliation and external callers.
func (s *InfluxStore) FindActiveByDevice(ctx context.Context, deviceID string) (*model.IrrigationSession, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -24h)
  |> filter(fn: (r) => r._measurement == %q and r.device_id == %q)
  |> filter(fn: (r) => r._field == "planned_minutes")
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:1)
`, s.bucket, measurement, deviceID)

	res, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	for res.Next() {
		rec := res.Record()
		status := model.SessionStatus(stringValue(rec.ValueByKey("status")))
		if status.Terminal() {
			break
		}
		return &model.IrrigationSession{
			ID:       stringValue(rec.ValueByKey("session_id")),
			DeviceID: deviceID,
			UserID:   stringValue(rec.ValueByKey("user_id")),
			Type:     model.SessionType(stringValue(rec.ValueByKey("type"))),
			Status:   status,
		}, nil
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("influx iterate: %w", res.Err())
	}
	return nil, fmt.Errorf("device %s: %w", deviceID, model.ErrNotFound)
}

// RecentHistory returns up to limit session records seen within the window,
// newest first. Each session appears once with its latest status.
func (s *InfluxStore) RecentHistory(ctx context.Context, limit int, window time.Duration) ([]model.IrrigationSession, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => r._field == "water_used_l")
  |> group(columns: ["session_id"])
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:1)
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n:%d)
`, s.bucket, window.String(), measurement, limit)

	res, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	var out []model.IrrigationSession
	for res.Next() {
		rec := res.Record()
		out = append(out, model.IrrigationSession{
			ID:       stringValue(rec.ValueByKey("session_id")),
			DeviceID: stringValue(rec.ValueByKey("device_id")),
			UserID:   stringValue(rec.ValueByKey("user_id")),
			Type:     model.SessionType(stringValue(rec.ValueByKey("type"))),
			Status:   model.SessionStatus(stringValue(rec.ValueByKey("status"))),
		})
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("influx iterate: %w", res.Err())
	}
	return out, nil
}

// LastErrorAge reports how long the store has gone without a write error,
// feeding the readiness probe.
func (s *InfluxStore) LastErrorAge() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastErr)
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
