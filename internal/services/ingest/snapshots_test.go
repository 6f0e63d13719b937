package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

func TestSnapshotCacheKeepsLatestReading(t *testing.T) {
	c := NewSnapshotCache()

	c.UpdateTelemetry("dev-1", model.TelemetrySnapshot{SoilMoisture: 50})
	c.UpdateTelemetry("dev-1", model.TelemetrySnapshot{SoilMoisture: 55})

	snap, ok := c.Get("dev-1")
	require.True(t, ok)
	assert.Equal(t, 55.0, snap.SoilMoisture)

	_, ok = c.Get("dev-2")
	assert.False(t, ok)
}

func TestConnectivityGoesStale(t *testing.T) {
	c := NewSnapshotCache()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	assert.Equal(t, model.DeviceOffline, c.Connectivity("dev-1"), "never heard from")

	c.UpdateTelemetry("dev-1", model.TelemetrySnapshot{SoilMoisture: 50})
	assert.Equal(t, model.DeviceOnline, c.Connectivity("dev-1"))

	now = now.Add(4 * time.Minute)
	assert.Equal(t, model.DeviceOnline, c.Connectivity("dev-1"))

	now = now.Add(time.Minute)
	assert.Equal(t, model.DeviceOffline, c.Connectivity("dev-1"), "silent for five minutes")
}

func TestStatusUpdateOverridesTelemetryStatus(t *testing.T) {
	c := NewSnapshotCache()

	c.UpdateTelemetry("dev-1", model.TelemetrySnapshot{SoilMoisture: 50, Battery: 90})
	c.UpdateStatus("dev-1", model.DeviceMaintenance, 40, "weak")

	assert.Equal(t, model.DeviceMaintenance, c.Connectivity("dev-1"))
	snap, _ := c.Get("dev-1")
	assert.Equal(t, 40.0, snap.Battery)
	assert.Equal(t, "weak", snap.SignalStrength)
	assert.Equal(t, 50.0, snap.SoilMoisture, "reading survives a status update")
}
