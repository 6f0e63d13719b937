package model

import "time"

type SessionType string

const (
	SessionManual    SessionType = "manual"
	SessionScheduled SessionType = "scheduled"
	SessionSmart     SessionType = "smart"
	SessionEmergency SessionType = "emergency"
)

type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
	StatusCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal statuses never
// revert.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IrrigationSession is one tracked watering operation for a device, from
// start request to terminal outcome.
type IrrigationSession struct {
	ID       string        `json:"id"`
	DeviceID string        `json:"deviceId"`
	UserID   string        `json:"userId"`
	Type     SessionType   `json:"type"`
	Status   SessionStatus `json:"status"`

	PlannedDuration int `json:"plannedDuration"` // minutes
	ActualDuration  int `json:"actualDuration"`  // minutes

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	WaterUsed  int `json:"waterUsed"`  // liters
	WaterSaved int `json:"waterSaved"` // liters vs traditional irrigation
	Efficiency int `json:"efficiency"` // percent

	// Trigger snapshot, set only for automatic sessions.
	Telemetry *TelemetrySnapshot `json:"telemetry,omitempty"`
	Decision  *Decision          `json:"decision,omitempty"`
}

// Finalize stamps the terminal status and derives efficiency from the water
// figures, mirroring how finished records are persisted.
func (s *IrrigationSession) Finalize(status SessionStatus, end time.Time) {
	s.Status = status
	s.EndTime = &end
	if s.WaterUsed > 0 && s.WaterSaved > 0 {
		s.Efficiency = int(float64(s.WaterSaved)/float64(s.WaterUsed+s.WaterSaved)*100 + 0.5)
	}
}

// SessionResult is the per-device outcome of a stop, including the
// emergency-stop fanout where individual failures must not abort the rest.
type SessionResult struct {
	DeviceID       string        `json:"deviceId"`
	SessionID      string        `json:"sessionId,omitempty"`
	Status         SessionStatus `json:"status,omitempty"`
	ActualDuration int           `json:"actualDuration"`
	WaterUsed      int           `json:"waterUsed"`
	WaterSaved     int           `json:"waterSaved"`
	Success        bool          `json:"success"`
	Error          string        `json:"error,omitempty"`
}
