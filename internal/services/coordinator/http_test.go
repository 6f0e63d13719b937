package coordinator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
	"github.com/agrosense/irrigation-coordinator/internal/services/broadcast"
	"github.com/agrosense/irrigation-coordinator/internal/services/decision"
	"github.com/agrosense/irrigation-coordinator/internal/services/directory"
	"github.com/agrosense/irrigation-coordinator/internal/services/history"
	"github.com/agrosense/irrigation-coordinator/internal/services/ingest"
	"github.com/agrosense/irrigation-coordinator/internal/services/registry"
)

type acceptAllSender struct{}

func (acceptAllSender) Send(string, model.CommandEnvelope) error { return nil }

type routerFixture struct {
	mux   *http.ServeMux
	cache *ingest.SnapshotCache
	store *history.MemoryStore
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	log := zap.NewNop()
	store := history.NewMemoryStore()
	dir := directory.NewStatic(map[string]model.DeviceConfig{
		"dev-1": {DeviceID: "dev-1", OwnerID: "user-1", MoistureThreshold: 60, CropType: "corn"},
	})
	hub := broadcast.NewHub(log)
	engine := decision.NewEngine(log)
	sessions := registry.NewService(acceptAllSender{}, store, dir, hub,
		registry.NewClock(), registry.NewMetrics(prometheus.NewRegistry()), log, registry.Config{})
	cache := ingest.NewSnapshotCache()

	mux := NewRouter(sessions, engine, dir, store, cache, hub,
		prometheus.NewRegistry(), func() bool { return true }, log)
	return &routerFixture{mux: mux, cache: cache, store: store}
}

func (f *routerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestStartStopRoundTrip(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/irrigation/dev-1/start", `{"duration":30,"userId":"user-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var started struct {
		Success bool                    `json:"success"`
		Session model.IrrigationSession `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.True(t, started.Success)
	assert.Equal(t, model.StatusInProgress, started.Session.Status)
	assert.Equal(t, model.SessionManual, started.Session.Type)

	rec = f.do(t, http.MethodPost, "/irrigation/dev-1/start", `{"duration":30,"userId":"user-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "second start on a busy device")

	rec = f.do(t, http.MethodPost, "/irrigation/dev-1/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res model.SessionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, model.StatusCompleted, res.Status)

	rec = f.do(t, http.MethodPost, "/irrigation/dev-1/stop", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "stop is not idempotent")
}

func TestStartValidationAndUnknownDevice(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/irrigation/dev-1/start", `{"duration":0,"userId":"user-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/irrigation/ghost/start", `{"duration":30,"userId":"user-1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStopRejectsNonTerminalRequest(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/irrigation/dev-1/stop", `{"status":"in_progress"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmergencyStopRequiresUser(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/irrigation/emergency-stop", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/irrigation/emergency-stop", `{"userId":"user-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestActiveAndHistoryReads(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/irrigation/dev-1/start", `{"duration":30,"userId":"user-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/irrigation/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active struct {
		ActiveIrrigations []model.IrrigationSession `json:"activeIrrigations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	assert.Len(t, active.ActiveIrrigations, 1)

	rec = f.do(t, http.MethodGet, "/irrigation/history?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		Sessions []model.IrrigationSession `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Len(t, hist.Sessions, 1)
}

func TestTelemetryAndDecisionEndpoints(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/devices/dev-1/telemetry", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing cached yet")

	f.cache.UpdateTelemetry("dev-1", model.TelemetrySnapshot{
		SoilMoisture: 35, Temperature: 28, Humidity: 60,
	})

	rec = f.do(t, http.MethodGet, "/devices/dev-1/telemetry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tel struct {
		Connectivity model.DeviceStatus `json:"connectivity"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tel))
	assert.Equal(t, model.DeviceOnline, tel.Connectivity)

	rec = f.do(t, http.MethodGet, "/devices/dev-1/decision", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dec struct {
		Decision model.Decision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dec))
	assert.True(t, dec.Decision.ShouldIrrigate)
	assert.Equal(t, model.ReasonCriticalDryness, dec.Decision.Reason)
	assert.Equal(t, 480, dec.Decision.RecommendedWaterVolume)
}

func TestTrainingEndpoints(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/decision/model", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info struct {
		Version        string `json:"version"`
		Baseline       int    `json:"baseline"`
		TrainingCycles int    `json:"trainingCycles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, 75, info.Baseline)
	assert.Zero(t, info.TrainingCycles)

	rec = f.do(t, http.MethodPost, "/decision/train", `{"userId":"user-1","epochs":50,"samples":100}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/decision/model", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "1.1.0", info.Version)
	assert.GreaterOrEqual(t, info.Baseline, 80)
	assert.Equal(t, 1, info.TrainingCycles)
}
