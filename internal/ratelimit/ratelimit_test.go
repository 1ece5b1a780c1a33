package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_BurstPerKey(t *testing.T) {
	krl := New(0.001, 2)
	defer krl.Stop()

	assert.True(t, krl.Allow("10.0.0.1"))
	assert.True(t, krl.Allow("10.0.0.1"))
	assert.False(t, krl.Allow("10.0.0.1"))

	// Other keys have their own bucket.
	assert.True(t, krl.Allow("10.0.0.2"))
}

func TestWait_RespectsContext(t *testing.T) {
	krl := New(0.001, 1)
	defer krl.Stop()

	require.True(t, krl.Allow("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, krl.Wait(ctx, "k"))
}

func TestEvictIdle(t *testing.T) {
	krl := NewWithTTL(1, 1, time.Minute)
	defer krl.Stop()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	krl.now = func() time.Time { return now }

	krl.Allow("old")
	now = now.Add(50 * time.Second)
	krl.Allow("fresh")
	now = now.Add(20 * time.Second)

	krl.evictIdle()
	assert.Equal(t, 1, krl.Len())

	krl.mu.Lock()
	_, ok := krl.entries["fresh"]
	krl.mu.Unlock()
	assert.True(t, ok)
}

func TestStop_Idempotent(t *testing.T) {
	krl := New(1, 1)
	krl.Stop()
	assert.NotPanics(t, krl.Stop)
}
