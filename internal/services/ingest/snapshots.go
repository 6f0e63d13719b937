package ingest

import (
	"sync"
	"time"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

// A device with no update for this long is reported offline by the
// connectivity check.
const staleAfter = 5 * time.Minute

type deviceState struct {
	snap     model.TelemetrySnapshot
	status   model.DeviceStatus
	lastSeen time.Time
}

// SnapshotCache holds the last-known reading and status per device. Entries
// are overwritten on every inbound message; only the latest value is kept.
type SnapshotCache struct {
	mu      sync.RWMutex
	devices map[string]*deviceState
	now     func() time.Time
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{devices: make(map[string]*deviceState), now: time.Now}
}

func (c *SnapshotCache) UpdateTelemetry(deviceID string, snap model.TelemetrySnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.ensure(deviceID)
	st.snap = snap
	st.status = model.DeviceOnline
	st.lastSeen = c.now()
}

func (c *SnapshotCache) UpdateStatus(deviceID string, status model.DeviceStatus, battery float64, signal string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.ensure(deviceID)
	st.status = status
	st.snap.Battery = battery
	if signal != "" {
		st.snap.SignalStrength = signal
	}
	st.lastSeen = c.now()
}

func (c *SnapshotCache) Get(deviceID string) (model.TelemetrySnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.devices[deviceID]
	if !ok {
		return model.TelemetrySnapshot{}, false
	}
	return st.snap, true
}

// Connectivity reports online only when the device has been heard from
// recently; an unknown or stale device is offline.
func (c *SnapshotCache) Connectivity(deviceID string) model.DeviceStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.devices[deviceID]
	if !ok || c.now().Sub(st.lastSeen) >= staleAfter {
		return model.DeviceOffline
	}
	return st.status
}

func (c *SnapshotCache) ensure(deviceID string) *deviceState {
	st, ok := c.devices[deviceID]
	if !ok {
		st = &deviceState{status: model.DeviceOffline}
		c.devices[deviceID] = st
	}
	return st
}
