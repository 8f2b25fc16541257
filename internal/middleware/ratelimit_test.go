package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLimiter(capacity, rate int) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(capacity, rate)
	now := time.Now()
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowSpendsBurstThenDenies(t *testing.T) {
	rl, _ := testLimiter(3, 1)

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))

	// Another client has its own balance.
	require.True(t, rl.Allow("b"))
}

func TestBalanceRefillsWithElapsedTime(t *testing.T) {
	rl, now := testLimiter(2, 2)

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))

	// Half a second at 2 tokens/s yields one token.
	*now = now.Add(500 * time.Millisecond)
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
}

func TestRefillNeverExceedsCapacity(t *testing.T) {
	rl, now := testLimiter(2, 10)

	require.True(t, rl.Allow("a"))
	*now = now.Add(time.Hour)

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
}

func TestSweepDropsIdleClients(t *testing.T) {
	rl, now := testLimiter(1, 1)

	require.True(t, rl.Allow("idle"))
	*now = now.Add(5 * time.Minute)
	require.True(t, rl.Allow("active"))

	*now = now.Add(6 * time.Minute)
	require.Equal(t, 1, rl.Sweep())
	require.Len(t, rl.buckets, 1)
	_, kept := rl.buckets["active"]
	require.True(t, kept)
}
