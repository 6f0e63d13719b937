package model

import (
	"encoding/json"
	"time"
)

// Broadcast event names, one per channel family plus the registry's own
// lifecycle event.
const (
	EventSensorUpdate    = "sensor-update"
	EventDeviceStatus    = "device-status"
	EventControlResponse = "control-response"
	EventDeviceAlert     = "device-alert"
	EventIrrigation      = "irrigation-update"
)

type SensorUpdateEvent struct {
	DeviceID  string            `json:"deviceId"`
	Telemetry TelemetrySnapshot `json:"telemetry"`
	Decision  Decision          `json:"decision"`
	Timestamp time.Time         `json:"timestamp"`
}

type DeviceStatusEvent struct {
	DeviceID       string       `json:"deviceId"`
	Status         DeviceStatus `json:"status"`
	Battery        float64      `json:"battery"`
	SignalStrength string       `json:"signalStrength"`
	Timestamp      time.Time    `json:"timestamp"`
}

// ControlResponseEvent passes the device payload through unchanged.
type ControlResponseEvent struct {
	DeviceID  string          `json:"deviceId"`
	Response  json.RawMessage `json:"response"`
	Timestamp time.Time       `json:"timestamp"`
}

type DeviceAlertEvent struct {
	DeviceID  string    `json:"deviceId"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type IrrigationEvent struct {
	DeviceID  string            `json:"deviceId"`
	Session   IrrigationSession `json:"session"`
	Timestamp time.Time         `json:"timestamp"`
}
