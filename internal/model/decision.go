package model

import "time"

// Decision reason codes, in ladder priority order.
const (
	ReasonCriticalDryness    = "critical-dryness"
	ReasonLowMoisture        = "low-moisture"
	ReasonHeatPreventive     = "heat-preventive"
	ReasonMoistureSufficient = "moisture-sufficient"
	ReasonRecentRainfall     = "recent-rainfall"
	ReasonOptimal            = "optimal"
)

// Decision is an irrigation recommendation produced fresh on every engine
// invocation; it is never mutated, only superseded.
type Decision struct {
	ShouldIrrigate         bool      `json:"shouldIrrigate"`
	Confidence             int       `json:"confidence"` // 0..100
	RecommendedDuration    int       `json:"recommendedDuration"`    // minutes
	RecommendedWaterVolume int       `json:"recommendedWaterVolume"` // liters
	Reason                 string    `json:"reason"`
	OptimalTime            time.Time `json:"optimalTime"`
	ModelVersion           string    `json:"modelVersion,omitempty"`
}
