package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

// Channel families, each bound to a device id embedded in the topic name.
type family string

const (
	familySensorData      family = "sensor-data"
	familyDeviceStatus    family = "device-status"
	familyControlResponse family = "control-response"
	familyAlert           family = "alert"
)

// parseTopic maps a concrete topic to its family and device id.
//
//	telemetry/sensor/{deviceId}/data
//	telemetry/device/{deviceId}/status
//	control/{deviceId}/response
//	alert/{deviceId}
func parseTopic(topic string) (family, string, error) {
	parts := strings.Split(topic, "/")
	switch {
	case len(parts) == 4 && parts[0] == "telemetry" && parts[1] == "sensor" && parts[3] == "data":
		return familySensorData, parts[2], nil
	case len(parts) == 4 && parts[0] == "telemetry" && parts[1] == "device" && parts[3] == "status":
		return familyDeviceStatus, parts[2], nil
	case len(parts) == 3 && parts[0] == "control" && parts[2] == "response":
		return familyControlResponse, parts[1], nil
	case len(parts) == 2 && parts[0] == "alert":
		return familyAlert, parts[1], nil
	}
	return "", "", fmt.Errorf("unroutable topic %q", topic)
}

// Explicit per-family schemas, validated at the ingestion boundary. Anything
// that fails here becomes ErrParse and the message is dropped, never retried.

type sensorPayload struct {
	SoilMoisture   *float64  `json:"soilMoisture"`
	Temperature    *float64  `json:"temperature"`
	Humidity       *float64  `json:"humidity"`
	Rainfall       float64   `json:"rainfall"`
	Evaporation    float64   `json:"evaporation"`
	Battery        float64   `json:"battery"`
	SignalStrength string    `json:"signalStrength"`
	Timestamp      time.Time `json:"timestamp"`
}

func parseSensorPayload(data []byte, now time.Time) (model.TelemetrySnapshot, error) {
	var p sensorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.TelemetrySnapshot{}, fmt.Errorf("%w: sensor-data: %v", model.ErrParse, err)
	}
	if p.SoilMoisture == nil || p.Temperature == nil || p.Humidity == nil {
		return model.TelemetrySnapshot{}, fmt.Errorf("%w: sensor-data: missing required readings", model.ErrParse)
	}
	if *p.SoilMoisture < 0 || *p.SoilMoisture > 100 {
		return model.TelemetrySnapshot{}, fmt.Errorf("%w: sensor-data: soil moisture out of range", model.ErrParse)
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return model.TelemetrySnapshot{
		SoilMoisture:   *p.SoilMoisture,
		Temperature:    *p.Temperature,
		Humidity:       *p.Humidity,
		Rainfall:       p.Rainfall,
		Evaporation:    p.Evaporation,
		Battery:        p.Battery,
		SignalStrength: p.SignalStrength,
		Timestamp:      ts,
	}, nil
}

type statusPayload struct {
	Status         string  `json:"status"`
	Battery        float64 `json:"battery"`
	BatteryStatus  string  `json:"batteryStatus"`
	SignalStrength string  `json:"signalStrength"`
}

func parseStatusPayload(data []byte) (statusPayload, error) {
	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return statusPayload{}, fmt.Errorf("%w: device-status: %v", model.ErrParse, err)
	}
	switch model.DeviceStatus(p.Status) {
	case model.DeviceOnline, model.DeviceOffline, model.DeviceMaintenance, model.DeviceError:
	default:
		return statusPayload{}, fmt.Errorf("%w: device-status: unknown status %q", model.ErrParse, p.Status)
	}
	return p, nil
}

type alertPayload struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func parseAlertPayload(data []byte) (alertPayload, error) {
	var p alertPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return alertPayload{}, fmt.Errorf("%w: alert: %v", model.ErrParse, err)
	}
	if p.Severity == "" || p.Message == "" {
		return alertPayload{}, fmt.Errorf("%w: alert: severity and message are required", model.ErrParse)
	}
	return p, nil
}
