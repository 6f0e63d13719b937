package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcessOncePerWindow(t *testing.T) {
	d := New(time.Minute, 100)

	assert.True(t, d.ShouldProcess("msg-1"))
	assert.False(t, d.ShouldProcess("msg-1"))
	assert.True(t, d.ShouldProcess("msg-2"))
}

func TestExpiredEntriesProcessAgain(t *testing.T) {
	d := New(time.Minute, 100)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	assert.True(t, d.ShouldProcess("msg-1"))
	now = now.Add(2 * time.Minute)
	assert.True(t, d.ShouldProcess("msg-1"), "window has passed")
}

func TestCapEvictsBeforeGrowing(t *testing.T) {
	d := New(time.Hour, 10)
	for i := 0; i < 50; i++ {
		assert.True(t, d.ShouldProcess(fmt.Sprintf("msg-%d", i)))
	}
	assert.LessOrEqual(t, d.Len(), 10)
}
