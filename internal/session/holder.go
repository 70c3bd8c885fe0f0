package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/gemini-bridge/internal/automation"
)

// Browser is one launched browser with its page attached
type Browser interface {
	Page() automation.Page
	DebugURL() string
	Close(ctx context.Context) error
}

// Launcher starts browsers
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// LauncherFunc adapts a function to Launcher
type LauncherFunc func(ctx context.Context) (Browser, error)

func (f LauncherFunc) Launch(ctx context.Context) (Browser, error) {
	return f(ctx)
}

// Holder owns at most one live browser navigated to the target page
type Holder struct {
	launcher  Launcher
	targetURL string
	logger    *zap.Logger

	mu         sync.Mutex
	browser    Browser
	launchedAt time.Time
}

// NewHolder creates an empty holder. Nothing is launched until Ensure.
func NewHolder(launcher Launcher, targetURL string, logger *zap.Logger) *Holder {
	return &Holder{
		launcher:  launcher,
		targetURL: targetURL,
		logger:    logger,
	}
}

// Ensure returns the live page, launching and navigating a browser first if none is held
func (h *Holder) Ensure(ctx context.Context) (automation.Page, error) {
	h.mu.Lock()
	if h.browser != nil {
		page := h.browser.Page()
		h.mu.Unlock()
		return page, nil
	}
	h.mu.Unlock()

	start := time.Now()
	b, err := h.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: launch: %w", automation.ErrSessionInit, err)
	}

	if err := b.Page().Goto(h.targetURL); err != nil {
		if closeErr := b.Close(context.WithoutCancel(ctx)); closeErr != nil {
			h.logger.Warn("Failed to close browser after navigation error", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("%w: %w", automation.ErrSessionInit, err)
	}

	h.mu.Lock()
	h.browser = b
	h.launchedAt = time.Now()
	h.mu.Unlock()

	h.logger.Info("Browser session initialized",
		zap.String("url", h.targetURL),
		zap.Duration("took", time.Since(start)))
	return b.Page(), nil
}

// Close releases the browser if one is held. The holder is always left
// uninitialized; close errors are logged and dropped.
func (h *Holder) Close(ctx context.Context) {
	if err := h.release(ctx); err != nil {
		h.logger.Warn("Browser close failed, session reset anyway", zap.Error(err))
	}
}

// release detaches the held browser before closing it, so state is reset even when Close fails
func (h *Holder) release(ctx context.Context) error {
	h.mu.Lock()
	b := h.browser
	h.browser = nil
	h.launchedAt = time.Time{}
	h.mu.Unlock()

	if b == nil {
		return nil
	}

	if err := b.Close(ctx); err != nil {
		return err
	}
	h.logger.Info("Browser session closed")
	return nil
}

// Initialized reports whether a browser is held
func (h *Holder) Initialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.browser != nil
}

// LaunchedAt returns when the held browser was launched, or the zero time
func (h *Holder) LaunchedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.launchedAt
}

// DebugURL returns the CDP endpoint of the held browser, or "" when there is none
func (h *Holder) DebugURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.browser == nil {
		return ""
	}
	return h.browser.DebugURL()
}
