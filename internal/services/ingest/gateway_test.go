package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
	"github.com/agrosense/irrigation-coordinator/internal/services/decision"
	"github.com/agrosense/irrigation-coordinator/internal/services/directory"
	"github.com/agrosense/irrigation-coordinator/pkg/mqttconn"
)

type nopConsumer struct{}

func (nopConsumer) SetHandler(mqttconn.Handler) {}
func (nopConsumer) Run(context.Context)         {}

type broadcastRec struct {
	event   string
	payload interface{}
	groupID string
}

type fakeHub struct {
	mu   sync.Mutex
	recs []broadcastRec
}

func (f *fakeHub) Broadcast(event string, payload interface{}, groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, broadcastRec{event, payload, groupID})
}

func (f *fakeHub) events() []broadcastRec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broadcastRec, len(f.recs))
	copy(out, f.recs)
	return out
}

type smartCall struct {
	deviceID string
	userID   string
	decision model.Decision
}

type fakeStarter struct {
	mu    sync.Mutex
	calls []smartCall
	err   error
}

func (f *fakeStarter) StartSmart(_ context.Context, deviceID, userID string,
	t model.TelemetrySnapshot, d model.Decision) (*model.IrrigationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, smartCall{deviceID, userID, d})
	return &model.IrrigationSession{ID: "sess-1", DeviceID: deviceID, Type: model.SessionSmart}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []model.DeviceAlertEvent
}

func (f *fakeNotifier) NotifyCritical(_ context.Context, _ model.DeviceConfig, alert model.DeviceAlertEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
}

type gwFixture struct {
	gw       *Gateway
	hub      *fakeHub
	starter  *fakeStarter
	notifier *fakeNotifier
	cache    *SnapshotCache
	dir      *directory.Static
}

func newGwFixture(t *testing.T) *gwFixture {
	t.Helper()
	hub := &fakeHub{}
	starter := &fakeStarter{}
	notifier := &fakeNotifier{}
	cache := NewSnapshotCache()
	dir := directory.NewStatic(map[string]model.DeviceConfig{
		"dev-1": {DeviceID: "dev-1", OwnerID: "user-1", AutomationEnabled: true, MoistureThreshold: 60, CropType: "corn"},
		"dev-2": {DeviceID: "dev-2", OwnerID: "user-2", AutomationEnabled: false, MoistureThreshold: 60},
	})
	gw := NewGateway(nopConsumer{}, decision.NewEngine(zap.NewNop()), starter, dir, hub,
		notifier, cache, NewMetrics(prometheus.NewRegistry()), zap.NewNop())
	return &gwFixture{gw: gw, hub: hub, starter: starter, notifier: notifier, cache: cache, dir: dir}
}

func TestSensorDataUpdatesCacheAndBroadcasts(t *testing.T) {
	f := newGwFixture(t)

	payload := []byte(`{"soilMoisture":72,"temperature":24,"humidity":60,"rainfall":0,"battery":88}`)
	require.NoError(t, f.gw.handle("telemetry/sensor/dev-1/data", payload))

	snap, ok := f.cache.Get("dev-1")
	require.True(t, ok)
	assert.Equal(t, 72.0, snap.SoilMoisture)
	assert.Equal(t, model.DeviceOnline, f.cache.Connectivity("dev-1"))

	evs := f.hub.events()
	require.Len(t, evs, 1)
	assert.Equal(t, model.EventSensorUpdate, evs[0].event)
	assert.Equal(t, "user-1", evs[0].groupID)

	assert.Empty(t, f.starter.calls, "moisture above threshold, no smart start")
}

func TestSensorDataTriggersSmartIrrigation(t *testing.T) {
	f := newGwFixture(t)

	payload := []byte(`{"soilMoisture":35,"temperature":28,"humidity":60,"rainfall":0}`)
	require.NoError(t, f.gw.handle("telemetry/sensor/dev-1/data", payload))

	require.Len(t, f.starter.calls, 1)
	call := f.starter.calls[0]
	assert.Equal(t, "dev-1", call.deviceID)
	assert.Equal(t, "user-1", call.userID)
	assert.Equal(t, model.ReasonCriticalDryness, call.decision.Reason)
	assert.Equal(t, 40, call.decision.RecommendedDuration)
	assert.Equal(t, 480, call.decision.RecommendedWaterVolume)
}

func TestSensorDataAutomationDisabled(t *testing.T) {
	f := newGwFixture(t)

	payload := []byte(`{"soilMoisture":35,"temperature":28,"humidity":60,"rainfall":0}`)
	require.NoError(t, f.gw.handle("telemetry/sensor/dev-2/data", payload))

	assert.Empty(t, f.starter.calls)
	assert.Len(t, f.hub.events(), 1, "sensor-update still broadcast")
}

func TestSensorDataActiveSessionConflictIsQuiet(t *testing.T) {
	f := newGwFixture(t)
	f.starter.err = model.ErrConflict

	payload := []byte(`{"soilMoisture":35,"temperature":28,"humidity":60}`)
	require.NoError(t, f.gw.handle("telemetry/sensor/dev-1/data", payload))
	assert.Empty(t, f.starter.calls)
}

func TestMalformedSensorDataDropped(t *testing.T) {
	f := newGwFixture(t)

	for _, payload := range [][]byte{
		[]byte(`{not json`),
		[]byte(`{"temperature":24}`),
		[]byte(`{"soilMoisture":140,"temperature":24,"humidity":60}`),
	} {
		require.NoError(t, f.gw.handle("telemetry/sensor/dev-1/data", payload), "stream must not halt")
	}

	_, ok := f.cache.Get("dev-1")
	assert.False(t, ok)
	assert.Empty(t, f.hub.events())
}

func TestUnknownDeviceDropped(t *testing.T) {
	f := newGwFixture(t)
	payload := []byte(`{"soilMoisture":35,"temperature":28,"humidity":60}`)
	require.NoError(t, f.gw.handle("telemetry/sensor/ghost/data", payload))
	assert.Empty(t, f.hub.events())
	assert.Empty(t, f.starter.calls)
}

func TestDuplicateQoS1DeliveryProcessedOnce(t *testing.T) {
	f := newGwFixture(t)
	payload := []byte(`{"soilMoisture":72,"temperature":24,"humidity":60}`)

	require.NoError(t, f.gw.handle("telemetry/sensor/dev-1/data", payload))
	require.NoError(t, f.gw.handle("telemetry/sensor/dev-1/data", payload))

	assert.Len(t, f.hub.events(), 1, "redelivery deduped")
}

func TestDeviceStatusBroadcast(t *testing.T) {
	f := newGwFixture(t)

	payload := []byte(`{"status":"online","battery":42,"signalStrength":"good"}`)
	require.NoError(t, f.gw.handle("telemetry/device/dev-1/status", payload))

	evs := f.hub.events()
	require.Len(t, evs, 1)
	assert.Equal(t, model.EventDeviceStatus, evs[0].event)
	ev := evs[0].payload.(model.DeviceStatusEvent)
	assert.Equal(t, model.DeviceOnline, ev.Status)
	assert.Equal(t, 42.0, ev.Battery)

	snap, ok := f.cache.Get("dev-1")
	require.True(t, ok)
	assert.Equal(t, 42.0, snap.Battery)
}

func TestDeviceStatusUnknownStatusDropped(t *testing.T) {
	f := newGwFixture(t)
	payload := []byte(`{"status":"sleeping"}`)
	require.NoError(t, f.gw.handle("telemetry/device/dev-1/status", payload))
	assert.Empty(t, f.hub.events())
}

func TestControlResponsePassthrough(t *testing.T) {
	f := newGwFixture(t)

	payload := []byte(`{"action":"start","result":"ok","valve":2}`)
	require.NoError(t, f.gw.handle("control/dev-1/response", payload))

	evs := f.hub.events()
	require.Len(t, evs, 1)
	assert.Equal(t, model.EventControlResponse, evs[0].event)
	ev := evs[0].payload.(model.ControlResponseEvent)
	assert.JSONEq(t, string(payload), string(ev.Response))
}

func TestCriticalAlertNotifies(t *testing.T) {
	f := newGwFixture(t)

	require.NoError(t, f.gw.handle("alert/dev-1", []byte(`{"severity":"warning","message":"low battery"}`)))
	assert.Empty(t, f.notifier.alerts)

	require.NoError(t, f.gw.handle("alert/dev-1", []byte(`{"severity":"critical","message":"valve stuck open"}`)))
	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, "valve stuck open", f.notifier.alerts[0].Message)

	evs := f.hub.events()
	require.Len(t, evs, 2)
	for _, ev := range evs {
		assert.Equal(t, model.EventDeviceAlert, ev.event)
	}
}

func TestUnroutableTopicDropped(t *testing.T) {
	f := newGwFixture(t)
	require.NoError(t, f.gw.handle("telemetry/bogus", []byte(`{}`)))
	assert.Empty(t, f.hub.events())
}
