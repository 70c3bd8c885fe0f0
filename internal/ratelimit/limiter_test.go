package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesBurst(t *testing.T) {
	l := NewLimiter(3600, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestClientsAreIndependent(t *testing.T) {
	l := NewLimiter(1, 1)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
	assert.Equal(t, 2, l.Clients())
}

func TestTokens(t *testing.T) {
	l := NewLimiter(1, 5)

	assert.InDelta(t, 5, l.Tokens("a"), 0.01)
	l.Allow("a")
	assert.InDelta(t, 4, l.Tokens("a"), 0.01)
	assert.Equal(t, 1, l.Limit())
}

func TestGetLimiterIsStable(t *testing.T) {
	l := NewLimiter(100, 10)
	assert.Same(t, l.GetLimiter("a"), l.GetLimiter("a"))
}
