package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shehryarbajwa/gemini-bridge/internal/automation"
	"github.com/shehryarbajwa/gemini-bridge/internal/proxy"
	"github.com/shehryarbajwa/gemini-bridge/internal/ratelimit"
	"github.com/shehryarbajwa/gemini-bridge/pkg/models"
)

type fakeAutomator struct {
	mu          sync.Mutex
	reply       string
	err         error
	prompts     []string
	initialized bool
	closes      int
	deadline    bool
}

func (f *fakeAutomator) Run(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		f.initialized = false
		return "", f.err
	}
	f.initialized = true
	return f.reply, nil
}

func (f *fakeAutomator) Initialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

func (f *fakeAutomator) CloseBrowser(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.initialized = false
}

func (f *fakeAutomator) Snapshot() models.SessionInfo {
	return models.SessionInfo{Initialized: f.Initialized(), Driver: "local", IdleTimeout: "5m0s"}
}

func (f *fakeAutomator) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newTestRouter(t *testing.T, automator Automator, opts RouterOptions) http.Handler {
	t.Helper()
	if opts.AllowedOrigins == nil {
		opts.AllowedOrigins = []string{"*"}
	}
	h := NewHandler(automator, time.Minute, zaptest.NewLogger(t))
	h.now = func() time.Time {
		return time.Date(2025, 3, 1, 21, 4, 5, 123_000_000, time.FixedZone("JST", 9*60*60))
	}
	router, err := h.NewRouter(opts)
	require.NoError(t, err)
	return router
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestParsePrompt(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		prompt string
		code   string
	}{
		{name: "ascii", body: `{"prompt":"hello"}`, prompt: "hello"},
		{name: "japanese", body: `{"prompt":"こんにちは"}`, prompt: "こんにちは"},
		{name: "single char", body: `{"prompt":"a"}`, prompt: "a"},
		{name: "max length", body: fmt.Sprintf(`{"prompt":%q}`, strings.Repeat("あ", 1000)), prompt: strings.Repeat("あ", 1000)},
		{name: "extra fields ignored", body: `{"prompt":"hi","model":"x"}`, prompt: "hi"},
		{name: "too long", body: fmt.Sprintf(`{"prompt":%q}`, strings.Repeat("あ", 1001)), code: CodePromptTooLong},
		{name: "astral max length", body: fmt.Sprintf(`{"prompt":%q}`, strings.Repeat("𠮷", 500)), prompt: strings.Repeat("𠮷", 500)},
		{name: "astral counts twice", body: fmt.Sprintf(`{"prompt":%q}`, strings.Repeat("𠮷", 501)), code: CodePromptTooLong},
		{name: "too long ascii", body: fmt.Sprintf(`{"prompt":%q}`, strings.Repeat("a", 1001)), code: CodePromptTooLong},
		{name: "empty", body: `{"prompt":""}`, code: CodeInvalidPrompt},
		{name: "missing", body: `{}`, code: CodeInvalidPrompt},
		{name: "number", body: `{"prompt":123}`, code: CodeInvalidPrompt},
		{name: "null", body: `{"prompt":null}`, code: CodeInvalidPrompt},
		{name: "array", body: `{"prompt":["a"]}`, code: CodeInvalidPrompt},
		{name: "object", body: `{"prompt":{"text":"a"}}`, code: CodeInvalidPrompt},
		{name: "not an object", body: `["hello"]`, code: CodeInvalidPrompt},
		{name: "json null", body: `null`, code: CodeInvalidPrompt},
		{name: "malformed", body: `{"prompt":`, code: CodeInvalidPrompt},
		{name: "no body", body: ``, code: CodeInvalidPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := ParsePrompt([]byte(tt.body))
			if tt.code == "" {
				require.Nil(t, err)
				assert.Equal(t, tt.prompt, prompt)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestAutomationSuccess(t *testing.T) {
	automator := &fakeAutomator{reply: "こんにちは！今日はどのようなご用件でしょうか？"}
	router := newTestRouter(t, automator, RouterOptions{})

	rec := do(t, router, http.MethodPost, "/api/gemini-automation", `{"prompt":"こんにちは"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "こんにちは", out["prompt"])
	assert.NotEmpty(t, out["response"])
	assert.Equal(t, "2025-03-01T12:04:05.123Z", out["timestamp"])

	_, err := time.Parse(time.RFC3339Nano, out["timestamp"].(string))
	assert.NoError(t, err)
	assert.True(t, automator.deadline, "automation runs under the request timeout")
}

func TestAutomationPromptTooLong(t *testing.T) {
	automator := &fakeAutomator{reply: "unused"}
	router := newTestRouter(t, automator, RouterOptions{})

	body := fmt.Sprintf(`{"prompt":%q}`, strings.Repeat("あ", 1001))
	rec := do(t, router, http.MethodPost, "/api/gemini-automation", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "Prompt too long", out["error"])
	assert.NotEmpty(t, out["message"])
	assert.Zero(t, automator.runs())
}

func TestAutomationInvalidPrompt(t *testing.T) {
	automator := &fakeAutomator{reply: "unused"}
	router := newTestRouter(t, automator, RouterOptions{})

	for _, body := range []string{`{"prompt":123}`, `{"prompt":""}`, `{}`, `not json`} {
		rec := do(t, router, http.MethodPost, "/api/gemini-automation", body)

		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		out := decode(t, rec)
		assert.Equal(t, "Invalid prompt", out["error"], body)
		_, hasSuccess := out["success"]
		assert.False(t, hasSuccess)
	}
	assert.Zero(t, automator.runs())
}

func TestAutomationFailure(t *testing.T) {
	cause := fmt.Errorf("%w: no new response within 1m0s", automation.ErrResponseTimeout)
	automator := &fakeAutomator{err: cause, initialized: true}
	router := newTestRouter(t, automator, RouterOptions{})

	rec := do(t, router, http.MethodPost, "/api/gemini-automation", `{"prompt":"hello"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Internal server error", out["error"])
	assert.NotEmpty(t, out["message"])
	assert.Equal(t, cause.Error(), out["details"])
}

func TestStatus(t *testing.T) {
	automator := &fakeAutomator{reply: "ok"}
	router := newTestRouter(t, automator, RouterOptions{})

	out := decode(t, do(t, router, http.MethodGet, "/", ""))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "not initialized", out["browserStatus"])
	assert.Equal(t, map[string]any{
		"automation":   "POST /api/gemini-automation",
		"closeBrowser": "POST /api/close-browser",
	}, out["endpoints"])

	do(t, router, http.MethodPost, "/api/gemini-automation", `{"prompt":"hi"}`)

	out = decode(t, do(t, router, http.MethodGet, "/", ""))
	assert.Equal(t, "initialized", out["browserStatus"])
}

func TestCloseBrowser(t *testing.T) {
	automator := &fakeAutomator{initialized: true}
	router := newTestRouter(t, automator, RouterOptions{})

	rec := do(t, router, http.MethodPost, "/api/close-browser", "")

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.NotEmpty(t, out["message"])
	assert.Equal(t, 1, automator.closes)
	assert.False(t, automator.Initialized())
}

func TestSessionSnapshot(t *testing.T) {
	router := newTestRouter(t, &fakeAutomator{}, RouterOptions{})

	out := decode(t, do(t, router, http.MethodGet, "/api/session", ""))
	assert.Equal(t, false, out["initialized"])
	assert.Equal(t, "local", out["driver"])
	assert.Equal(t, "5m0s", out["idleTimeout"])
	assert.NotContains(t, out, "launchedAt")
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, &fakeAutomator{}, RouterOptions{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/gemini-automation"},
		{http.MethodPut, "/api/gemini-automation"},
		{http.MethodDelete, "/api/close-browser"},
		{http.MethodGet, "/api/close-browser"},
		{http.MethodPost, "/api/session"},
		{http.MethodPost, "/"},
	} {
		rec := do(t, router, tc.method, tc.path, "")
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code, tc.path)
		assert.Equal(t, "Method not allowed", decode(t, rec)["error"])
	}
}

type noEndpoint struct{}

func (noEndpoint) DebugURL() string { return "" }

func TestDebugRouteRequiresProxy(t *testing.T) {
	router := newTestRouter(t, &fakeAutomator{}, RouterOptions{})
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/debug/ws", "").Code)

	router = newTestRouter(t, &fakeAutomator{}, RouterOptions{
		Proxy: proxy.NewServer(noEndpoint{}, zaptest.NewLogger(t)),
	})
	assert.Equal(t, http.StatusConflict, do(t, router, http.MethodGet, "/api/debug/ws", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, router, http.MethodPost, "/api/debug/ws", "").Code)
}

func TestNotFound(t *testing.T) {
	router := newTestRouter(t, &fakeAutomator{}, RouterOptions{})

	rec := do(t, router, http.MethodGet, "/api/unknown", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decode(t, rec)["error"])
}

func TestCORSWildcard(t *testing.T) {
	router := newTestRouter(t, &fakeAutomator{}, RouterOptions{})

	rec := do(t, router, http.MethodOptions, "/api/gemini-automation", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))

	rec = do(t, router, http.MethodGet, "/", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSOriginPatterns(t *testing.T) {
	router := newTestRouter(t, &fakeAutomator{}, RouterOptions{
		AllowedOrigins: []string{"https://*.example.com", "http://localhost:*"},
	})

	for origin, allowed := range map[string]bool{
		"https://app.example.com": true,
		"http://localhost:5173":   true,
		"https://example.org":     false,
		"https://a.b.example.com": false,
	} {
		req := httptest.NewRequest(http.MethodOptions, "/api/gemini-automation", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		if allowed {
			assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"), origin)
		} else {
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), origin)
		}
	}
}

func TestRateLimit(t *testing.T) {
	automator := &fakeAutomator{reply: "ok"}
	router := newTestRouter(t, automator, RouterOptions{Limiter: ratelimit.NewLimiter(60, 2)})

	for i := 0; i < 2; i++ {
		rec := do(t, router, http.MethodPost, "/api/gemini-automation", `{"prompt":"hi"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := do(t, router, http.MethodPost, "/api/gemini-automation", `{"prompt":"hi"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Rate limit exceeded", out["error"])
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 2, automator.runs())

	// other endpoints are not limited
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/", "").Code)
}

func TestRequestIDPropagation(t *testing.T) {
	router := newTestRouter(t, &fakeAutomator{}, RouterOptions{})

	rec := do(t, router, http.MethodGet, "/", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDInContext(t *testing.T) {
	var seen string
	handler := RequestLogger(zaptest.NewLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "abc", seen)
	assert.Empty(t, RequestID(context.Background()))
}

func TestValidationErrorMessage(t *testing.T) {
	_, err := ParsePrompt([]byte(`{"prompt":1}`))
	require.NotNil(t, err)

	var target error = err
	var verr *ValidationError
	require.True(t, errors.As(target, &verr))
	assert.True(t, strings.HasPrefix(verr.Error(), "Invalid prompt: "))
}
