package model

import "time"

type CommandAction string

const (
	CommandStart CommandAction = "start"
	CommandStop  CommandAction = "stop"
)

// CommandEnvelope is the fire-and-forget control message sent on a device's
// command topic. ServerTime is stamped by the dispatcher at send time.
type CommandEnvelope struct {
	Action        CommandAction `json:"action"`
	Duration      int           `json:"duration,omitempty"` // minutes, start only
	CorrelationID string        `json:"correlationId"`
	IssuedAt      time.Time     `json:"issuedAt"`
	ServerTime    time.Time     `json:"serverTime"`
}
