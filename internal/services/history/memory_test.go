package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	sess := &model.IrrigationSession{
		ID:       "sess-1",
		DeviceID: "dev-1",
		UserID:   "user-1",
		Type:     model.SessionManual,
		Status:   model.StatusInProgress,
	}
	require.NoError(t, m.Create(ctx, sess))

	got, err := m.FindActiveByDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)

	end := time.Now()
	sess.Finalize(model.StatusCompleted, end)
	require.NoError(t, m.Update(ctx, sess))

	_, err = m.FindActiveByDevice(ctx, "dev-1")
	assert.ErrorIs(t, err, model.ErrNotFound, "terminal sessions are not active")

	stored, ok := m.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Len(t, m.All(), 1)
}

func TestMemoryStoreUpdateUnknownSession(t *testing.T) {
	m := NewMemoryStore()
	err := m.Update(context.Background(), &model.IrrigationSession{ID: "missing"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
