package main

import (
	"os"

	"github.com/agrosense/irrigation-coordinator/internal/services/directory"
	"github.com/agrosense/irrigation-coordinator/pkg/config"
	"github.com/agrosense/irrigation-coordinator/pkg/mqttconn"
)

type influxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type appConfig struct {
	HTTPPort    int              `yaml:"http_port"`
	FlowRateLPM float64          `yaml:"flow_rate_lpm"`
	MQTT        mqttconn.Config  `yaml:"mqtt"`
	Influx      influxConfig     `yaml:"influx"`
	Directory   directory.Config `yaml:"directory"`
}

func loadConfig() (appConfig, error) {
	cfg := appConfig{
		HTTPPort: 8080,
		MQTT: mqttconn.Config{
			Host:     "localhost",
			Port:     1883,
			ClientID: "irrigation-coordinator",
		},
		Influx: influxConfig{
			Org:    "agrosense",
			Bucket: "irrigation",
		},
	}
	if host, ok := os.LookupEnv("HOSTNAME"); ok && host != "" {
		cfg.MQTT.ClientID = host
	}
	err := config.Load(os.Getenv("CONFIG_FILE"), &cfg)
	return cfg, err
}
