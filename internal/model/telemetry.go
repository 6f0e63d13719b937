package model

import "time"

// TelemetrySnapshot is a device's last-known self-reported reading. It is
// overwritten on every inbound sensor message; only the latest value is kept.
type TelemetrySnapshot struct {
	SoilMoisture   float64   `json:"soilMoisture"`   // percent
	Temperature    float64   `json:"temperature"`    // celsius
	Humidity       float64   `json:"humidity"`       // percent
	Rainfall       float64   `json:"rainfall"`       // mm
	Evaporation    float64   `json:"evaporation"`    // mm
	Battery        float64   `json:"battery"`        // percent
	SignalStrength string    `json:"signalStrength"` // excellent..none
	Timestamp      time.Time `json:"timestamp"`
}

type DeviceStatus string

const (
	DeviceOnline      DeviceStatus = "online"
	DeviceOffline     DeviceStatus = "offline"
	DeviceMaintenance DeviceStatus = "maintenance"
	DeviceError       DeviceStatus = "error"
)
