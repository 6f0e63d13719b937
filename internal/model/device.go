package model

// DeviceConfig is what the external device directory knows about a device:
// who owns it and how automatic watering is tuned.
type DeviceConfig struct {
	DeviceID          string  `json:"deviceId"`
	OwnerID           string  `json:"ownerId"`
	FarmID            string  `json:"farmId,omitempty"`
	AutomationEnabled bool    `json:"automationEnabled"`
	MoistureThreshold float64 `json:"moistureThreshold"` // percent
	CropType          string  `json:"cropType"`
}
