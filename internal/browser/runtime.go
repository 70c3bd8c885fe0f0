package browser

import (
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Runtime owns the Playwright driver process. It is started on first use
// and shared by every browser launch.
type Runtime struct {
	mu           sync.Mutex
	install      bool
	skipBrowsers bool
	pw           *playwright.Playwright
}

// NewRuntime creates a Playwright runtime. When install is set the driver
// (and Chromium, unless skipBrowsers) is downloaded before first start.
func NewRuntime(install, skipBrowsers bool) *Runtime {
	return &Runtime{install: install, skipBrowsers: skipBrowsers}
}

// Chromium starts the driver if needed and returns its Chromium browser type
func (r *Runtime) Chromium() (playwright.BrowserType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pw != nil {
		return r.pw.Chromium, nil
	}

	opts := &playwright.RunOptions{
		Browsers:            []string{"chromium"},
		SkipInstallBrowsers: r.skipBrowsers,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}

	if r.install {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	r.pw = pw
	return pw.Chromium, nil
}

// Stop shuts the driver down. It is a no-op if the driver never started.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pw == nil {
		return nil
	}

	err := r.pw.Stop()
	r.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}
