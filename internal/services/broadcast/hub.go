// Package broadcast fans out named events to the live listeners of a user or
// farm group. Delivery is at-most-once: nothing is replayed, and listeners
// that join after an event was emitted never see it.
package broadcast

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Envelope is the wire shape every listener receives.
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Listener is one live connection. Send must not block indefinitely; a
// failing listener is logged and skipped, never retried.
type Listener interface {
	ID() string
	Send(data []byte) error
}

type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[string]Listener
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{groups: make(map[string]map[string]Listener), log: log}
}

func (h *Hub) Join(groupID string, l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[groupID]
	if !ok {
		g = make(map[string]Listener)
		h.groups[groupID] = g
	}
	g[l.ID()] = l
}

func (h *Hub) Leave(groupID, listenerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.groups[groupID]; ok {
		delete(g, listenerID)
		if len(g) == 0 {
			delete(h.groups, groupID)
		}
	}
}

// Broadcast delivers the event to every listener currently in groupID.
func (h *Hub) Broadcast(event string, payload interface{}, groupID string) {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		h.log.Error("broadcast encode failed", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	listeners := make([]Listener, 0, len(h.groups[groupID]))
	for _, l := range h.groups[groupID] {
		listeners = append(listeners, l)
	}
	h.mu.RUnlock()

	for _, l := range listeners {
		if err := l.Send(data); err != nil {
			h.log.Warn("listener send failed",
				zap.String("event", event),
				zap.String("group_id", groupID),
				zap.String("listener_id", l.ID()),
				zap.Error(err))
		}
	}
}

// GroupSize reports the number of live listeners for a group.
func (h *Hub) GroupSize(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[groupID])
}
