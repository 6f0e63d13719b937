package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
	"github.com/agrosense/irrigation-coordinator/internal/services/broadcast"
	"github.com/agrosense/irrigation-coordinator/internal/services/coordinator"
	"github.com/agrosense/irrigation-coordinator/internal/services/decision"
	"github.com/agrosense/irrigation-coordinator/internal/services/directory"
	"github.com/agrosense/irrigation-coordinator/internal/services/dispatch"
	"github.com/agrosense/irrigation-coordinator/internal/services/history"
	"github.com/agrosense/irrigation-coordinator/internal/services/ingest"
	"github.com/agrosense/irrigation-coordinator/internal/services/notify"
	"github.com/agrosense/irrigation-coordinator/internal/services/registry"
	"github.com/agrosense/irrigation-coordinator/pkg/logging"
	"github.com/agrosense/irrigation-coordinator/pkg/mqttconn"
)

func main() {
	log, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === MQTT ===
	mqttClient, err := mqttconn.Connect(ctx, cfg.MQTT, log)
	if err != nil {
		log.Fatal("mqtt connection failed", zap.Error(err))
	}
	publisher := mqttconn.NewPublisher(mqttClient)

	// === Session store ===
	var store registry.SessionStore
	var histReader coordinator.HistoryReader
	var influxStore *history.InfluxStore
	if cfg.Influx.URL != "" {
		influx := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
		defer influx.Close()
		influxStore = history.NewInfluxStore(influx, cfg.Influx.Org, cfg.Influx.Bucket, log)
		store, histReader = influxStore, influxStore
	} else {
		log.Warn("no influx configured, session history is in-memory only")
		mem := history.NewMemoryStore()
		store, histReader = mem, mem
	}

	// === Device directory ===
	var dir registry.DeviceDirectory
	if cfg.Directory.BaseURL != "" {
		dir = directory.NewHTTPDirectory(cfg.Directory, log)
	} else {
		log.Warn("no device directory configured, all devices will be unknown")
		dir = directory.NewStatic(map[string]model.DeviceConfig{})
	}

	// === Core services ===
	promReg := prometheus.NewRegistry()
	hub := broadcast.NewHub(log)
	engine := decision.NewEngine(log)
	dispatcher := dispatch.NewDispatcher(publisher, log)

	sessions := registry.NewService(dispatcher, store, dir, hub,
		registry.NewClock(), registry.NewMetrics(promReg), log,
		registry.Config{FlowRateLPM: cfg.FlowRateLPM})

	cache := ingest.NewSnapshotCache()
	consumer := mqttconn.NewConsumer(mqttClient, ingest.Subscriptions(), log)
	gateway := ingest.NewGateway(consumer, engine, sessions, dir, hub,
		notify.NewLogNotifier(log), cache, ingest.NewMetrics(promReg), log)

	go gateway.Run(ctx)

	// === HTTP ===
	ready := func() bool {
		if !mqttClient.IsConnectionOpen() {
			return false
		}
		if influxStore != nil && influxStore.LastErrorAge() < 5*time.Second {
			return false
		}
		return true
	}
	mux := coordinator.NewRouter(sessions, engine, dir, histReader, cache, hub, promReg, ready, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.Int("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	publisher.Close()
}
