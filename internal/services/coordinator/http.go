// Package coordinator composes the core services into one process and
// exposes the small HTTP surface through which manual session requests,
// status reads and live subscriptions enter. Authentication is enforced
// upstream of this process.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
	"github.com/agrosense/irrigation-coordinator/internal/services/broadcast"
	"github.com/agrosense/irrigation-coordinator/internal/services/decision"
	"github.com/agrosense/irrigation-coordinator/internal/services/ingest"
	"github.com/agrosense/irrigation-coordinator/internal/services/registry"
)

// HistoryReader is the optional read path over persisted session records.
type HistoryReader interface {
	RecentHistory(ctx context.Context, limit int, window time.Duration) ([]model.IrrigationSession, error)
}

type startRequest struct {
	Duration int    `json:"duration"`
	Type     string `json:"type"`
	UserID   string `json:"userId"`
}

type stopRequest struct {
	Status string `json:"status"`
}

type emergencyRequest struct {
	UserID string `json:"userId"`
}

type trainRequest struct {
	UserID  string `json:"userId"`
	Epochs  int    `json:"epochs"`
	Samples int    `json:"samples"`
}

func NewRouter(sessions *registry.Service, engine *decision.Engine,
	directory registry.DeviceDirectory, histReader HistoryReader,
	cache *ingest.SnapshotCache, hub *broadcast.Hub,
	promReg *prometheus.Registry, ready func() bool, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.Handle("/ws", broadcast.Handler(hub, log))

	mux.HandleFunc("POST /irrigation/{deviceID}/start", func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		typ := model.SessionType(req.Type)
		if typ == "" {
			typ = model.SessionManual
		}
		sess, err := sessions.Start(r.Context(), r.PathValue("deviceID"), req.Duration, typ, req.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{
			"success":      true,
			"session":      sess,
			"estimatedEnd": sess.StartTime.Add(time.Duration(sess.PlannedDuration) * time.Minute),
		})
	})

	mux.HandleFunc("POST /irrigation/{deviceID}/stop", func(w http.ResponseWriter, r *http.Request) {
		// Empty body defaults to a completed stop.
		var req stopRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		status := model.SessionStatus(req.Status)
		if status == "" {
			status = model.StatusCompleted
		}
		if status != model.StatusCompleted && status != model.StatusCancelled {
			http.Error(w, "status must be completed or cancelled", http.StatusBadRequest)
			return
		}
		res, err := sessions.Stop(r.Context(), r.PathValue("deviceID"), status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, res)
	})

	mux.HandleFunc("POST /irrigation/emergency-stop", func(w http.ResponseWriter, r *http.Request) {
		var req emergencyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}
		results := sessions.EmergencyStopAll(r.Context(), req.UserID)
		writeJSON(w, map[string]interface{}{
			"success": true,
			"message": "emergency stop executed",
			"results": results,
		})
	})

	mux.HandleFunc("GET /irrigation/active", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]interface{}{
			"activeIrrigations": sessions.ListActive(),
		})
	})

	mux.HandleFunc("GET /irrigation/history", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		recs, err := histReader.RecentHistory(r.Context(), limit, 7*24*time.Hour)
		if err != nil {
			log.Error("history read failed", zap.Error(err))
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"sessions": recs})
	})

	mux.HandleFunc("POST /decision/train", func(w http.ResponseWriter, r *http.Request) {
		var req trainRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}
		rec := engine.RecordTraining(req.UserID, req.Epochs, req.Samples)
		writeJSON(w, map[string]interface{}{
			"success":      true,
			"record":       rec,
			"modelVersion": engine.Version(),
		})
	})

	mux.HandleFunc("GET /decision/model", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]interface{}{
			"version":        engine.Version(),
			"baseline":       engine.Baseline(),
			"trainingCycles": len(engine.History()),
		})
	})

	mux.HandleFunc("GET /devices/{deviceID}/decision", func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.PathValue("deviceID")
		snap, ok := cache.Get(deviceID)
		if !ok {
			http.Error(w, "no telemetry for device", http.StatusNotFound)
			return
		}
		cfg, err := directory.GetConfig(r.Context(), deviceID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{
			"deviceId": deviceID,
			"decision": engine.Predict(snap, cfg),
		})
	})

	mux.HandleFunc("GET /devices/{deviceID}/telemetry", func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.PathValue("deviceID")
		snap, ok := cache.Get(deviceID)
		if !ok {
			http.Error(w, "no telemetry for device", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]interface{}{
			"deviceId":     deviceID,
			"telemetry":    snap,
			"connectivity": cache.Connectivity(deviceID),
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, model.ErrDispatch):
		code = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": err.Error(),
	})
}
