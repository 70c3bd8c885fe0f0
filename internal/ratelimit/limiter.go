// Package ratelimit keeps one token bucket per client.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages rate limits for multiple clients
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	perHour  int
}

// NewLimiter creates a limiter allowing requestsPerHour per client with bursts up to burst
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerHour) / 3600.0),
		burst:    burst,
		perHour:  requestsPerHour,
	}
}

// Limit returns the configured requests per hour
func (l *Limiter) Limit() int {
	return l.perHour
}

// GetLimiter returns the bucket for client, creating a full one on first use
func (l *Limiter) GetLimiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[client]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[client] = limiter
	}

	return limiter
}

// Allow takes a token for client if one is available
func (l *Limiter) Allow(client string) bool {
	return l.GetLimiter(client).Allow()
}

// Tokens returns the tokens currently available to client
func (l *Limiter) Tokens(client string) float64 {
	return l.GetLimiter(client).Tokens()
}

// Clients returns how many clients are being tracked
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
