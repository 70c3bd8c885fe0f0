package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/gemini-bridge/internal/ratelimit"
)

type requestIDKey struct{}

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID returns the id assigned by RequestLogger, or ""
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the status code while staying hijackable for websockets
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	// a hijacked connection reports as switching protocols
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// RequestLogger assigns a request id and logs every request once it completes
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))

			logger.Info("HTTP request",
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// RateLimitMiddleware creates a middleware that enforces per-client rate limits
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	limit := strconv.Itoa(limiter.Limit())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientAddr(r)

			if !limiter.Allow(client) {
				w.Header().Set("X-RateLimit-Limit", limit)
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeFailure(w, http.StatusTooManyRequests,
					"Rate limit exceeded",
					fmt.Sprintf("1時間あたり%sリクエストまでです", limit),
					"")
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens(client))))

			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr keys rate limits by the remote host without its port
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// CORSMiddleware allows origins matching any of the glob patterns. A bare
// "*" answers every origin with a wildcard. Preflight requests end here with 200.
func CORSMiddleware(origins []string) (func(http.Handler) http.Handler, error) {
	wildcard := false
	var patterns []glob.Glob
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			wildcard = true
			continue
		}
		g, err := glob.Compile(origin, '.', ':')
		if err != nil {
			return nil, fmt.Errorf("invalid CORS origin pattern %q: %w", origin, err)
		}
		patterns = append(patterns, g)
	}

	allowed := func(origin string) bool {
		for _, g := range patterns {
			if g.Match(origin) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed(origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}
