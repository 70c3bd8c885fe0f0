// Package session owns the single shared browser session and runs prompts
// against it one at a time.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/gemini-bridge/internal/automation"
	"github.com/shehryarbajwa/gemini-bridge/pkg/models"
)

// shutdownCloseTimeout bounds the final close when the shutdown context has already expired
const shutdownCloseTimeout = 10 * time.Second

// Pipeline is the sequence of page steps run for every prompt
type Pipeline struct {
	Submitter *automation.Submitter
	Waiter    automation.Waiter
	Extractor *automation.Extractor
}

// Options configures a Manager
type Options struct {
	TargetURL   string
	IdleTimeout time.Duration
	// Driver names the launcher in session snapshots
	Driver string
}

// Manager serializes automation calls against the shared session. Callers
// queue on a weight-one semaphore and are served in arrival order.
type Manager struct {
	gate     *semaphore.Weighted
	holder   *Holder
	reaper   *Reaper
	pipeline Pipeline
	driver   string
	logger   *zap.Logger
}

// NewManager creates a manager. No browser is launched until the first Run.
func NewManager(launcher Launcher, pipeline Pipeline, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		gate:     semaphore.NewWeighted(1),
		holder:   NewHolder(launcher, opts.TargetURL, logger),
		pipeline: pipeline,
		driver:   opts.Driver,
		logger:   logger,
	}
	m.reaper = NewReaper(opts.IdleTimeout, m.expire)
	return m
}

// Run submits prompt on the shared page and returns the copied reply.
// Any failure after the session was reached tears the session down.
func (m *Manager) Run(ctx context.Context, prompt string) (string, error) {
	m.reaper.Reset()

	if err := m.gate.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for browser session: %w", err)
	}
	defer m.gate.Release(1)

	start := time.Now()
	reply, err := m.run(ctx, prompt)
	if err != nil {
		m.logger.Warn("Automation failed, tearing down session",
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		m.holder.Close(context.WithoutCancel(ctx))
		return "", err
	}

	m.logger.Info("Automation completed",
		zap.Int("prompt_chars", len([]rune(prompt))),
		zap.Int("reply_chars", len([]rune(reply))),
		zap.Duration("took", time.Since(start)))
	return reply, nil
}

func (m *Manager) run(ctx context.Context, prompt string) (string, error) {
	page, err := m.holder.Ensure(ctx)
	if err != nil {
		return "", err
	}

	baseline, err := m.pipeline.Waiter.Baseline(page)
	if err != nil {
		return "", err
	}

	if err := m.pipeline.Submitter.Submit(page, prompt); err != nil {
		return "", err
	}

	count, err := m.pipeline.Waiter.Wait(ctx, page, baseline)
	if err != nil {
		return "", err
	}
	m.logger.Debug("Reply rendered", zap.Int("baseline", baseline), zap.Int("menus", count))

	// replies append, so the newest one owns the last action menu
	return m.pipeline.Extractor.Extract(page, count-1)
}

// expire runs on the reaper's timer. A busy session is left alone and the
// countdown restarted.
func (m *Manager) expire() {
	if !m.gate.TryAcquire(1) {
		m.logger.Debug("Idle timeout reached during automation, re-arming")
		m.reaper.Rearm()
		return
	}
	defer m.gate.Release(1)

	if !m.holder.Initialized() {
		return
	}

	m.logger.Info("Idle timeout reached, closing browser",
		zap.Duration("idle_timeout", m.reaper.Timeout()),
		zap.Time("last_activity", m.reaper.LastActivity()))
	m.holder.Close(context.Background())
}

// Initialized reports whether a browser session is live
func (m *Manager) Initialized() bool {
	return m.holder.Initialized()
}

// DebugURL returns the CDP endpoint of the live browser, or "" when there is none
func (m *Manager) DebugURL() string {
	return m.holder.DebugURL()
}

// CloseBrowser tears the session down after any in-flight automation finishes
func (m *Manager) CloseBrowser(ctx context.Context) {
	if err := m.gate.Acquire(ctx, 1); err != nil {
		m.logger.Warn("Close browser abandoned while waiting for automation", zap.Error(err))
		return
	}
	defer m.gate.Release(1)

	m.holder.Close(ctx)
}

// Shutdown stops the reaper and releases the browser. It waits for in-flight
// automation until ctx expires, then closes regardless.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.reaper.Stop()

	if err := m.gate.Acquire(ctx, 1); err != nil {
		m.logger.Warn("Shutdown deadline reached with automation in flight, closing anyway")
	} else {
		defer m.gate.Release(1)
	}

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownCloseTimeout)
	defer cancel()

	if err := m.holder.release(closeCtx); err != nil {
		return fmt.Errorf("%w: %w", automation.ErrShutdownCleanup, err)
	}
	return nil
}

// Snapshot describes the current session
func (m *Manager) Snapshot() models.SessionInfo {
	info := models.SessionInfo{
		Initialized: m.holder.Initialized(),
		Driver:      m.driver,
		IdleTimeout: m.reaper.Timeout().String(),
		DebugURL:    m.holder.DebugURL(),
	}
	if t := m.holder.LaunchedAt(); !t.IsZero() {
		info.LaunchedAt = &t
	}
	if t := m.reaper.LastActivity(); !t.IsZero() {
		info.LastActivity = &t
	}
	return info
}
