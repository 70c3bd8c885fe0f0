package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Waiter decides when the remote reply has finished rendering.
// Baseline is taken before the prompt is submitted; Wait returns the
// action-menu count once the reply is considered complete.
type Waiter interface {
	Baseline(page Page) (int, error)
	Wait(ctx context.Context, page Page, baseline int) (int, error)
}

// observeScript resolves with the action-menu count as soon as it exceeds
// baseline. It registers window[token] so the Go side can tear the observer
// down early.
const observeScript = `({ selector, baseline, token, timeoutMs }) => new Promise((resolve, reject) => {
	const count = () => document.querySelectorAll(selector).length;
	const initial = count();
	if (initial > baseline) {
		resolve(initial);
		return;
	}
	let observer = null;
	const finish = (settle, value) => {
		clearTimeout(timer);
		if (observer) observer.disconnect();
		delete window[token];
		settle(value);
	};
	const timer = setTimeout(() => finish(reject, new Error('response observer timed out')), timeoutMs);
	window[token] = () => finish(reject, new Error('response observer aborted'));
	observer = new MutationObserver((mutations) => {
		for (const m of mutations) {
			if (m.type === 'childList' && m.addedNodes.length === 0 && m.removedNodes.length === 0) continue;
			const current = count();
			if (current > baseline) {
				finish(resolve, current);
				return;
			}
		}
	});
	observer.observe(document.body, {
		childList: true,
		subtree: true,
		attributes: true,
		attributeFilter: ['data-test-id', 'class'],
	});
})`

const abortScript = `(token) => {
	const abort = window[token];
	if (typeof abort === 'function') abort();
	return typeof abort === 'function';
}`

// abortGrace bounds how long a cancelled wait lingers for the in-page promise to settle
const abortGrace = 2 * time.Second

// MutationWaiter watches the DOM for a new action menu and debounces it with a settle delay
type MutationWaiter struct {
	selector string
	maxWait  time.Duration
	settle   time.Duration
	logger   *zap.Logger
}

// NewMutationWaiter creates a waiter that gives up after maxWait
func NewMutationWaiter(selector string, maxWait, settle time.Duration, logger *zap.Logger) *MutationWaiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MutationWaiter{
		selector: selector,
		maxWait:  maxWait,
		settle:   settle,
		logger:   logger,
	}
}

// Baseline counts the action menus already on the page
func (w *MutationWaiter) Baseline(page Page) (int, error) {
	return countMenus(page, w.selector)
}

// Wait blocks until the action-menu count rises above baseline and is still
// above it after the settle delay. A count that falls back resumes observing.
func (w *MutationWaiter) Wait(ctx context.Context, page Page, baseline int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.maxWait)
	defer cancel()

	for {
		seen, err := w.observe(ctx, page, baseline)
		if err != nil {
			return 0, err
		}

		if err := sleep(ctx, w.settle); err != nil {
			return 0, w.timeoutError(err)
		}

		confirmed, err := countMenus(page, w.selector)
		if err != nil {
			return 0, err
		}
		if confirmed > baseline {
			return confirmed, nil
		}

		w.logger.Debug("Action menu count fell back during settle, observing again",
			zap.Int("baseline", baseline),
			zap.Int("seen", seen),
			zap.Int("confirmed", confirmed))
	}
}

type evalResult struct {
	value any
	err   error
}

func (w *MutationWaiter) observe(ctx context.Context, page Page, baseline int) (int, error) {
	token := "__bridgeObserver_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	timeoutMs := w.maxWait.Milliseconds()
	if deadline, ok := ctx.Deadline(); ok {
		timeoutMs = time.Until(deadline).Milliseconds()
	}
	// the page-side timer trails the Go deadline so the Go side reports the timeout
	timeoutMs += 1000

	done := make(chan evalResult, 1)
	go func() {
		value, err := page.Evaluate(observeScript, map[string]any{
			"selector":  w.selector,
			"baseline":  baseline,
			"token":     token,
			"timeoutMs": timeoutMs,
		})
		done <- evalResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if ctx.Err() != nil {
				return 0, w.timeoutError(ctx.Err())
			}
			return 0, fmt.Errorf("%w: response observer: %w", ErrResponseTimeout, res.err)
		}
		return toInt(res.value)

	case <-ctx.Done():
		if _, err := page.Evaluate(abortScript, token); err != nil {
			w.logger.Warn("Failed to abort response observer", zap.Error(err))
		}
		select {
		case <-done:
		case <-time.After(abortGrace):
			w.logger.Warn("Response observer did not settle after abort")
		}
		return 0, w.timeoutError(ctx.Err())
	}
}

func (w *MutationWaiter) timeoutError(cause error) error {
	return fmt.Errorf("%w: no new response within %s: %w", ErrResponseTimeout, w.maxWait, cause)
}

// FixedDelayWaiter sleeps a constant duration. It gives no completion
// guarantee and is kept as a degraded mode.
type FixedDelayWaiter struct {
	selector string
	delay    time.Duration
}

// NewFixedDelayWaiter creates a waiter that always sleeps delay
func NewFixedDelayWaiter(selector string, delay time.Duration) *FixedDelayWaiter {
	return &FixedDelayWaiter{selector: selector, delay: delay}
}

// Baseline counts the action menus already on the page
func (w *FixedDelayWaiter) Baseline(page Page) (int, error) {
	return countMenus(page, w.selector)
}

// Wait sleeps for the configured delay and returns the current count
func (w *FixedDelayWaiter) Wait(ctx context.Context, page Page, _ int) (int, error) {
	if err := sleep(ctx, w.delay); err != nil {
		return 0, fmt.Errorf("%w: fixed delay interrupted: %w", ErrResponseTimeout, err)
	}
	return countMenus(page, w.selector)
}

func countMenus(page Page, selector string) (int, error) {
	n, err := page.Count(selector)
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", ErrElementNotFound, selector, err)
	}
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: unexpected observer result %T", ErrResponseTimeout, v)
	}
}
