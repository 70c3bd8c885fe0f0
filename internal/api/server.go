package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/gemini-bridge/internal/proxy"
	"github.com/shehryarbajwa/gemini-bridge/internal/ratelimit"
)

// RouterOptions carries the optional pieces of the router
type RouterOptions struct {
	// Proxy serves /api/debug/ws when set. Leave it nil unless browser.debug is on.
	Proxy *proxy.Server
	// Limiter rate limits the automation endpoint when set
	Limiter        *ratelimit.Limiter
	AllowedOrigins []string
}

// NewRouter configures all HTTP routes. CORS and request logging wrap the
// router so preflight requests never reach route matching.
func (h *Handler) NewRouter(opts RouterOptions) (http.Handler, error) {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(notFound)

	r.HandleFunc("/", h.Status).Methods(http.MethodGet)

	// keep routes on the root router, under a subrouter their 405s become 404s
	var automation http.Handler = http.HandlerFunc(h.RunAutomation)
	if opts.Limiter != nil {
		automation = RateLimitMiddleware(opts.Limiter)(automation)
	}
	r.Handle("/api/gemini-automation", automation).Methods(http.MethodPost)
	r.HandleFunc("/api/close-browser", h.CloseBrowser).Methods(http.MethodPost)
	r.HandleFunc("/api/session", h.Session).Methods(http.MethodGet)

	if opts.Proxy != nil {
		r.HandleFunc("/api/debug/ws", opts.Proxy.HandleDebugConnection).Methods(http.MethodGet)
	}

	cors, err := CORSMiddleware(opts.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	return cors(RequestLogger(h.logger)(r)), nil
}
