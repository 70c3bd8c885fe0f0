package automation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shehryarbajwa/gemini-bridge/internal/automation/automationtest"
)

const menuSelector = `[data-test-id="more-menu-button"]`

// blockingObserver returns an Evaluate hook whose observe call blocks until
// the abort script runs, like an in-page observer that never sees a change.
func blockingObserver(aborted *atomic.Bool) func(string, any) (any, error) {
	release := make(chan struct{})
	var once sync.Once
	return func(expr string, arg any) (any, error) {
		switch expr {
		case observeScript:
			<-release
			return nil, errors.New("response observer aborted")
		case abortScript:
			aborted.Store(true)
			once.Do(func() { close(release) })
			return true, nil
		}
		return nil, nil
	}
}

func TestMutationWaiterBaseline(t *testing.T) {
	page := &automationtest.Page{
		CountFunc: func(selector string) (int, error) {
			assert.Equal(t, menuSelector, selector)
			return 3, nil
		},
	}

	n, err := NewMutationWaiter(menuSelector, time.Second, 10*time.Millisecond, nil).Baseline(page)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMutationWaiterBaselineError(t *testing.T) {
	page := &automationtest.Page{
		CountFunc: func(string) (int, error) { return 0, errors.New("target closed") },
	}

	_, err := NewMutationWaiter(menuSelector, time.Second, 10*time.Millisecond, nil).Baseline(page)
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestMutationWaiterResolvesOnSettledIncrease(t *testing.T) {
	var observeArg map[string]any
	page := &automationtest.Page{
		EvaluateFunc: func(expr string, arg any) (any, error) {
			require.Equal(t, observeScript, expr)
			observeArg = arg.(map[string]any)
			return 2, nil
		},
		CountFunc: func(string) (int, error) { return 2, nil },
	}

	w := NewMutationWaiter(menuSelector, time.Second, 10*time.Millisecond, zaptest.NewLogger(t))
	n, err := w.Wait(context.Background(), page, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, menuSelector, observeArg["selector"])
	assert.Equal(t, 1, observeArg["baseline"])
	assert.Contains(t, observeArg["token"], "__bridgeObserver_")
	assert.Greater(t, observeArg["timeoutMs"], int64(1000))
}

func TestMutationWaiterAcceptsFloatCounts(t *testing.T) {
	page := &automationtest.Page{
		EvaluateFunc: func(string, any) (any, error) { return float64(1), nil },
		CountFunc:    func(string) (int, error) { return 1, nil },
	}

	n, err := NewMutationWaiter(menuSelector, time.Second, time.Millisecond, nil).Wait(context.Background(), page, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMutationWaiterIgnoresTransientIncrease(t *testing.T) {
	var observes atomic.Int32
	counts := []int{1, 3} // settle re-checks: first fell back, second held
	var checks atomic.Int32

	page := &automationtest.Page{
		EvaluateFunc: func(expr string, _ any) (any, error) {
			observes.Add(1)
			return 2, nil
		},
		CountFunc: func(string) (int, error) {
			i := checks.Add(1) - 1
			return counts[i], nil
		},
	}

	w := NewMutationWaiter(menuSelector, time.Second, 5*time.Millisecond, zaptest.NewLogger(t))
	n, err := w.Wait(context.Background(), page, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, int32(2), observes.Load())
}

func TestMutationWaiterTimesOut(t *testing.T) {
	var aborted atomic.Bool
	page := &automationtest.Page{EvaluateFunc: blockingObserver(&aborted)}

	start := time.Now()
	w := NewMutationWaiter(menuSelector, 50*time.Millisecond, 10*time.Millisecond, zaptest.NewLogger(t))
	_, err := w.Wait(context.Background(), page, 0)

	require.ErrorIs(t, err, ErrResponseTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, aborted.Load(), "observer must be torn down before rejecting")
	assert.Less(t, time.Since(start), time.Second)
}

func TestMutationWaiterCancelledByCaller(t *testing.T) {
	var aborted atomic.Bool
	page := &automationtest.Page{EvaluateFunc: blockingObserver(&aborted)}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewMutationWaiter(menuSelector, time.Minute, 10*time.Millisecond, nil).Wait(ctx, page, 0)
	require.ErrorIs(t, err, ErrResponseTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, aborted.Load())
}

func TestMutationWaiterTimesOutDuringSettle(t *testing.T) {
	page := &automationtest.Page{
		EvaluateFunc: func(string, any) (any, error) { return 1, nil },
		CountFunc:    func(string) (int, error) { return 0, nil },
	}

	_, err := NewMutationWaiter(menuSelector, 40*time.Millisecond, 15*time.Millisecond, nil).Wait(context.Background(), page, 0)
	assert.ErrorIs(t, err, ErrResponseTimeout)
}

func TestMutationWaiterObserverError(t *testing.T) {
	page := &automationtest.Page{
		EvaluateFunc: func(string, any) (any, error) { return nil, errors.New("Execution context was destroyed") },
	}

	_, err := NewMutationWaiter(menuSelector, time.Second, time.Millisecond, nil).Wait(context.Background(), page, 0)
	require.ErrorIs(t, err, ErrResponseTimeout)
	assert.Contains(t, err.Error(), "Execution context was destroyed")
}

func TestMutationWaiterUnexpectedResult(t *testing.T) {
	page := &automationtest.Page{
		EvaluateFunc: func(string, any) (any, error) { return "two", nil },
	}

	_, err := NewMutationWaiter(menuSelector, time.Second, time.Millisecond, nil).Wait(context.Background(), page, 0)
	assert.ErrorIs(t, err, ErrResponseTimeout)
}

func TestFixedDelayWaiter(t *testing.T) {
	page := &automationtest.Page{
		CountFunc: func(string) (int, error) { return 4, nil },
	}

	start := time.Now()
	n, err := NewFixedDelayWaiter(menuSelector, 20*time.Millisecond).Wait(context.Background(), page, 3)
	require.NoError(t, err)

	assert.Equal(t, 4, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFixedDelayWaiterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFixedDelayWaiter(menuSelector, time.Minute).Wait(ctx, &automationtest.Page{}, 0)
	require.ErrorIs(t, err, ErrResponseTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}
