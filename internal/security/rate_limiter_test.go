package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/raaihank/pii-masker/internal/config"
)

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: false})
	for i := 0; i < 1000; i++ {
		assert.True(t, rl.Allow("1.2.3.4"))
	}
	assert.Zero(t, rl.Clients())
}

func TestRateLimiterBurst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 3})
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst exhausted")

	// other clients have their own bucket
	assert.True(t, rl.Allow("b"))

	// one request per second refills
	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, Burst: 1, IdleTimeout: time.Minute})
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(2 * time.Minute)
	rl.Allow("new")

	assert.Equal(t, 1, rl.CleanupOldClients())
	assert.Equal(t, 1, rl.Clients())
}
