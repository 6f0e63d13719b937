package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(zap.NewNop())
}

func TestPredictCriticalDryness(t *testing.T) {
	e := newTestEngine(t)

	d := e.Predict(model.TelemetrySnapshot{
		SoilMoisture: 35, Temperature: 28, Humidity: 60, Rainfall: 0,
	}, model.DeviceConfig{CropType: "corn"})

	require.True(t, d.ShouldIrrigate)
	assert.Equal(t, model.ReasonCriticalDryness, d.Reason)
	assert.Equal(t, 40, d.RecommendedDuration, "base 40, no temperature bonus at 28C")
	assert.Equal(t, 480, d.RecommendedWaterVolume, "400 x 1.2 for corn")
	assert.Equal(t, 85, d.Confidence, "baseline 75 + 10")
}

func TestPredictMoistureSufficient(t *testing.T) {
	e := newTestEngine(t)

	d := e.Predict(model.TelemetrySnapshot{
		SoilMoisture: 85, Temperature: 25, Humidity: 60, Rainfall: 0,
	}, model.DeviceConfig{})

	require.False(t, d.ShouldIrrigate)
	assert.Equal(t, model.ReasonMoistureSufficient, d.Reason)
	assert.Equal(t, 90, d.Confidence)
	assert.Zero(t, d.RecommendedDuration)
	assert.Zero(t, d.RecommendedWaterVolume)
}

func TestPredictLadderPriority(t *testing.T) {
	e := newTestEngine(t)

	cases := []struct {
		name      string
		telemetry model.TelemetrySnapshot
		irrigate  bool
		reason    string
	}{
		{"low moisture dry spell", model.TelemetrySnapshot{SoilMoisture: 55, Temperature: 25, Rainfall: 2}, true, model.ReasonLowMoisture},
		{"low moisture but raining", model.TelemetrySnapshot{SoilMoisture: 55, Temperature: 25, Rainfall: 8}, false, model.ReasonOptimal},
		{"heat preventive", model.TelemetrySnapshot{SoilMoisture: 65, Temperature: 34, Rainfall: 0}, true, model.ReasonHeatPreventive},
		{"recent rainfall", model.TelemetrySnapshot{SoilMoisture: 75, Temperature: 25, Rainfall: 12}, false, model.ReasonRecentRainfall},
		{"nothing stands out", model.TelemetrySnapshot{SoilMoisture: 72, Temperature: 25, Rainfall: 0}, false, model.ReasonOptimal},
		{"critical beats heat", model.TelemetrySnapshot{SoilMoisture: 30, Temperature: 40, Rainfall: 0}, true, model.ReasonCriticalDryness},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := e.Predict(tc.telemetry, model.DeviceConfig{})
			assert.Equal(t, tc.irrigate, d.ShouldIrrigate)
			assert.Equal(t, tc.reason, d.Reason)
		})
	}
}

func TestRecommendDurationTiers(t *testing.T) {
	assert.Equal(t, 50, recommendDuration(30, 35), "40 base + 10 heat")
	assert.Equal(t, 30, recommendDuration(50, 25))
	assert.Equal(t, 20, recommendDuration(65, 25))
	assert.Equal(t, 30, recommendDuration(65, 31))
}

func TestRecommendWaterVolumeCropMultiplier(t *testing.T) {
	assert.Equal(t, 480, recommendWaterVolume(30, "corn"))
	assert.Equal(t, 240, recommendWaterVolume(50, "vegetables"))
	assert.Equal(t, 200, recommendWaterVolume(70, "wheat"))
}

func TestNextOptimalTime(t *testing.T) {
	early := time.Date(2026, 8, 30, 4, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC), nextOptimalTime(early))

	late := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC), nextOptimalTime(late))
}

func TestTrainingRaisesBaselineUpToCap(t *testing.T) {
	e := newTestEngine(t)
	require.Equal(t, 75, e.Baseline())

	for i := 0; i < 10; i++ {
		e.RecordTraining("user-1", 50, 100)
	}
	assert.Equal(t, 95, e.Baseline(), "baseline is capped")
	assert.Len(t, e.History(), 10)

	// A maxed-out baseline still respects the per-rule confidence caps.
	d := e.Predict(model.TelemetrySnapshot{SoilMoisture: 35}, model.DeviceConfig{})
	assert.Equal(t, 95, d.Confidence)
	d = e.Predict(model.TelemetrySnapshot{SoilMoisture: 55}, model.DeviceConfig{})
	assert.Equal(t, 90, d.Confidence)
}
