// Package api exposes the automation service over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/gemini-bridge/pkg/models"
)

// maxBodyBytes caps request bodies well above the largest valid prompt
const maxBodyBytes = 64 << 10

// Automator runs prompts against the shared browser session
type Automator interface {
	Run(ctx context.Context, prompt string) (string, error)
	Initialized() bool
	CloseBrowser(ctx context.Context)
	Snapshot() models.SessionInfo
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	automator      Automator
	requestTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// NewHandler creates a new HTTP handler. A zero requestTimeout leaves
// automation bounded only by the client connection.
func NewHandler(automator Automator, requestTimeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		automator:      automator,
		requestTimeout: requestTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// Status handles GET /
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.StatusResponse{
		Status:        "ok",
		Message:       "Gemini Automation API is running",
		BrowserStatus: models.StatusOf(h.automator.Initialized()),
		Endpoints: models.Endpoints{
			Automation:   "POST /api/gemini-automation",
			CloseBrowser: "POST /api/close-browser",
		},
	})
}

// RunAutomation handles POST /api/gemini-automation
func (h *Handler) RunAutomation(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(zap.String("request_id", RequestID(r.Context())))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.Info("Request rejected", zap.String("state", "received"), zap.Error(err))
		writeError(w, http.StatusBadRequest, errInvalidPrompt.Code, errInvalidPrompt.Message)
		return
	}

	prompt, verr := ParsePrompt(body)
	if verr != nil {
		logger.Info("Request rejected", zap.String("state", "received"), zap.String("reason", verr.Code))
		writeError(w, http.StatusBadRequest, verr.Code, verr.Message)
		return
	}

	logger.Info("Prompt received",
		zap.String("state", "validated"),
		zap.Int("chars", utf8.RuneCountInString(prompt)))

	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	logger.Debug("Running automation", zap.String("state", "executing"))
	reply, err := h.automator.Run(ctx, prompt)
	if err != nil {
		logger.Error("Automation failed", zap.String("state", "failed"), zap.Error(err))
		writeFailure(w, http.StatusInternalServerError,
			"Internal server error",
			"Geminiの自動化処理中にエラーが発生しました",
			err.Error())
		return
	}

	logger.Info("Automation succeeded", zap.String("state", "succeeded"))
	writeJSON(w, http.StatusOK, models.AutomationResponse{
		Success:   true,
		Prompt:    prompt,
		Response:  reply,
		Timestamp: h.now().UTC().Format(models.TimestampLayout),
	})
}

// CloseBrowser handles POST /api/close-browser. Closing is best effort and
// always reported as a success.
func (h *Handler) CloseBrowser(w http.ResponseWriter, r *http.Request) {
	h.automator.CloseBrowser(r.Context())
	writeJSON(w, http.StatusOK, models.CloseResponse{
		Success: true,
		Message: "ブラウザを閉じました",
	})
}

// Session handles GET /api/session
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.automator.Snapshot())
}
