package tracker

import (
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
)

func TestCooldown(t *testing.T) {
	mock := clock.NewMock()
	tr := New(mock, 0)

	assert.False(t, tr.WasRecentlyUpdated(42))

	tr.MarkUpdated(42)
	assert.True(t, tr.WasRecentlyUpdated(42))

	mock.Add(2*time.Minute + 59*time.Second)
	assert.True(t, tr.WasRecentlyUpdated(42))

	mock.Add(time.Second)
	assert.False(t, tr.WasRecentlyUpdated(42))
	assert.Equal(t, 0, tr.Len(), "expired entry should be evicted on read")
}

func TestMarkUpdatedRestartsCooldown(t *testing.T) {
	mock := clock.NewMock()
	tr := New(mock, time.Minute)

	tr.MarkUpdated(7)
	mock.Add(50 * time.Second)
	tr.MarkUpdated(7)
	mock.Add(50 * time.Second)

	assert.True(t, tr.WasRecentlyUpdated(7))
}

func TestCleanup(t *testing.T) {
	tr := New(clock.NewMock(), 0)
	tr.MarkUpdated(1)
	tr.MarkUpdated(2)
	tr.MarkUpdated(3)

	tr.Cleanup(map[int64]bool{2: true})

	assert.Equal(t, 1, tr.Len())
	assert.False(t, tr.WasRecentlyUpdated(1))
	assert.True(t, tr.WasRecentlyUpdated(2))
	assert.False(t, tr.WasRecentlyUpdated(3))
}
