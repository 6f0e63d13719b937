package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/devicesim"
	"github.com/agrosense/irrigation-coordinator/pkg/logging"
	"github.com/agrosense/irrigation-coordinator/pkg/mqttconn"
)

func main() {
	deviceID := flag.String("device-id", "dev-1", "device identifier")
	host := flag.String("mqtt-host", "localhost", "broker host")
	port := flag.Int("mqtt-port", 1883, "broker port")
	interval := flag.Duration("interval", 10*time.Second, "publish interval")
	lat := flag.Float64("lat", 41.51109, "latitude, for the soil moisture seed")
	lon := flag.Float64("lon", 12.37007, "longitude, for the soil moisture seed")
	flag.Parse()

	log, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := mqttconn.Connect(ctx, mqttconn.Config{
		Host:     *host,
		Port:     *port,
		ClientID: "devicesim-" + *deviceID,
	}, log)
	if err != nil {
		log.Fatal("mqtt connection failed", zap.Error(err))
	}

	// Idle soil loses roughly a tenth of a point per minute.
	gen := devicesim.NewGenerator(0.12)
	gen.SeedFromSoilGrids(ctx, *lat, *lon)

	sim := devicesim.NewSimulator(*deviceID, gen,
		mqttconn.NewPublisher(client),
		mqttconn.NewConsumer(client, devicesim.CommandSubscription(*deviceID), log),
		log)

	log.Info("device simulator running", zap.String("device_id", *deviceID))
	sim.Run(ctx, *interval)
}
