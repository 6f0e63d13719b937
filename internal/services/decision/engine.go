// Package decision maps telemetry and device configuration to an irrigation
// recommendation. The rule ladder is fixed; only the confidence baseline
// drifts as training feedback cycles complete.
package decision

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

const (
	startingBaseline = 75
	maxBaseline      = 95
)

// TrainingRecord is one completed feedback cycle.
type TrainingRecord struct {
	UserID    string    `json:"userId"`
	Epochs    int       `json:"epochs"`
	Samples   int       `json:"samples"`
	Baseline  int       `json:"baseline"`
	Timestamp time.Time `json:"timestamp"`
}

type Engine struct {
	mu       sync.RWMutex
	baseline int
	history  []TrainingRecord
	version  string

	now func() time.Time
	log *zap.Logger
}

func NewEngine(log *zap.Logger) *Engine {
	return &Engine{
		baseline: startingBaseline,
		version:  "1.0.0",
		now:      time.Now,
		log:      log,
	}
}

// Predict evaluates the rule ladder in priority order, first match wins.
// Pure given the current baseline.
func (e *Engine) Predict(t model.TelemetrySnapshot, cfg model.DeviceConfig) model.Decision {
	e.mu.RLock()
	baseline := e.baseline
	version := e.version
	e.mu.RUnlock()

	d := model.Decision{
		Confidence:   baseline,
		Reason:       model.ReasonOptimal,
		ModelVersion: version,
	}

	switch {
	case t.SoilMoisture < 40:
		d.ShouldIrrigate = true
		d.Confidence = minInt(95, baseline+10)
		d.Reason = model.ReasonCriticalDryness
	case t.SoilMoisture < 60 && t.Rainfall < 5:
		d.ShouldIrrigate = true
		d.Confidence = minInt(90, baseline+5)
		d.Reason = model.ReasonLowMoisture
	case t.Temperature > 32 && t.SoilMoisture < 70:
		d.ShouldIrrigate = true
		d.Confidence = minInt(85, baseline+3)
		d.Reason = model.ReasonHeatPreventive
	case t.SoilMoisture > 80:
		d.Confidence = 90
		d.Reason = model.ReasonMoistureSufficient
	case t.Rainfall > 10:
		d.Confidence = 95
		d.Reason = model.ReasonRecentRainfall
	}

	if d.ShouldIrrigate {
		d.RecommendedDuration = recommendDuration(t.SoilMoisture, t.Temperature)
		d.RecommendedWaterVolume = recommendWaterVolume(t.SoilMoisture, cfg.CropType)
	}
	d.OptimalTime = nextOptimalTime(e.now())

	return d
}

// Baseline returns the current confidence baseline.
func (e *Engine) Baseline() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.baseline
}

// Version returns the current model version string.
func (e *Engine) Version() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// History returns a copy of the completed training cycles.
func (e *Engine) History() []TrainingRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]TrainingRecord, len(e.history))
	copy(out, e.history)
	return out
}

// RecordTraining registers one completed feedback cycle, nudging the
// baseline upward. Capped at 95.
func (e *Engine) RecordTraining(userID string, epochs, samples int) TrainingRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.baseline = minInt(maxBaseline, e.baseline+5+rand.Intn(10))
	rec := TrainingRecord{
		UserID:    userID,
		Epochs:    epochs,
		Samples:   samples,
		Baseline:  e.baseline,
		Timestamp: e.now(),
	}
	e.history = append(e.history, rec)
	e.version = fmt.Sprintf("1.%d.0", len(e.history))

	e.log.Info("training cycle recorded",
		zap.String("user_id", userID),
		zap.Int("baseline", e.baseline),
		zap.String("model_version", e.version))
	return rec
}

// Duration tiers: 40/30/20 minutes by moisture <40/<60/else, plus 10 when
// temperature exceeds 30.
func recommendDuration(moisture, temperature float64) int {
	base := 20
	if moisture < 40 {
		base = 40
	} else if moisture < 60 {
		base = 30
	}
	if temperature > 30 {
		base += 10
	}
	return base
}

// Volume tiers: 400/300/200 liters by the same moisture cut, scaled by crop
// type (corn x1.2, vegetables x0.8).
func recommendWaterVolume(moisture float64, cropType string) int {
	base := 200.0
	if moisture < 40 {
		base = 400
	} else if moisture < 60 {
		base = 300
	}
	switch cropType {
	case "corn":
		base *= 1.2
	case "vegetables":
		base *= 0.8
	}
	return int(base + 0.5)
}

// nextOptimalTime is the next local 06:00, today if not yet passed.
func nextOptimalTime(now time.Time) time.Time {
	optimal := time.Date(now.Year(), now.Month(), now.Day(), 6, 0, 0, 0, now.Location())
	if optimal.Before(now) {
		optimal = optimal.AddDate(0, 0, 1)
	}
	return optimal
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
