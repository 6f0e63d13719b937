package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

// MemoryStore keeps session records in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.IrrigationSession // keyed by session id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]model.IrrigationSession)}
}

func (m *MemoryStore) Create(_ context.Context, s *model.IrrigationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) Update(_ context.Context, s *model.IrrigationSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("session %s: %w", s.ID, model.ErrNotFound)
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) FindActiveByDevice(_ context.Context, deviceID string) (*model.IrrigationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.DeviceID == deviceID && !s.Status.Terminal() {
			out := s
			return &out, nil
		}
	}
	return nil, fmt.Errorf("device %s: %w", deviceID, model.ErrNotFound)
}

// RecentHistory returns up to limit sessions started within the window,
// newest first.
func (m *MemoryStore) RecentHistory(_ context.Context, limit int, window time.Duration) ([]model.IrrigationSession, error) {
	cutoff := time.Now().Add(-window)

	m.mu.RLock()
	out := make([]model.IrrigationSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.StartTime.After(cutoff) {
			out = append(out, s)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns a session by id, for assertions and status endpoints.
func (m *MemoryStore) Get(id string) (model.IrrigationSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// All returns every stored record.
func (m *MemoryStore) All() []model.IrrigationSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.IrrigationSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
