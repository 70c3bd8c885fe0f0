package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/shehryarbajwa/gemini-bridge/internal/automation"
	"github.com/shehryarbajwa/gemini-bridge/internal/config"
)

// clipboardPermissions are granted to every context so replies can be copied out
var clipboardPermissions = []string{"clipboard-read", "clipboard-write"}

// Options configures launched browsers and their context
type Options struct {
	Headless          bool
	SlowMo            time.Duration
	Args              []string
	Locale            string
	Timezone          string
	AcceptLanguage    string
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
	DebugPort         int
	DockerImage       string
}

// OptionsFromConfig maps the browser section of the config to Options
func OptionsFromConfig(c config.BrowserConfig) Options {
	return Options{
		Headless:          c.Headless,
		SlowMo:            c.SlowMo,
		Args:              c.Args,
		Locale:            c.Locale,
		Timezone:          c.Timezone,
		AcceptLanguage:    c.AcceptLanguage,
		ActionTimeout:     c.ActionTimeout,
		NavigationTimeout: c.NavigationTimeout,
		DebugPort:         c.DebugPort,
		DockerImage:       c.DockerImage,
	}
}

// contextOptions builds the locale, timezone and permission setup for a context
func (o Options) contextOptions() playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{
		Permissions: clipboardPermissions,
	}
	if o.Locale != "" {
		opts.Locale = playwright.String(o.Locale)
	}
	if o.Timezone != "" {
		opts.TimezoneId = playwright.String(o.Timezone)
	}
	if o.AcceptLanguage != "" {
		opts.ExtraHttpHeaders = map[string]string{"Accept-Language": o.AcceptLanguage}
	}
	return opts
}

// launchArgs returns the Chromium flags, adding a remote debugging port when configured
func (o Options) launchArgs() []string {
	args := append([]string(nil), o.Args...)
	if o.DebugPort > 0 {
		args = append(args, fmt.Sprintf("--remote-debugging-port=%d", o.DebugPort))
	}
	return args
}

// Instance is one launched browser with a single page open in a configured context
type Instance struct {
	browser  playwright.Browser
	context  playwright.BrowserContext
	page     *Page
	debugURL string
	release  func(ctx context.Context) error
}

// Page returns the automation view of the open page
func (i *Instance) Page() automation.Page {
	return i.page
}

// DebugURL returns the CDP endpoint of the browser, or "" when none is exposed
func (i *Instance) DebugURL() string {
	return i.debugURL
}

// Close closes the context and browser, then releases any backing resource
func (i *Instance) Close(ctx context.Context) error {
	var errs []error

	if i.context != nil {
		if err := i.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
	}
	if i.browser != nil {
		if err := i.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if i.release != nil {
		if err := i.release(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// openPage creates the configured context and page on b. b is closed on failure.
func openPage(b playwright.Browser, opts Options) (*Instance, error) {
	bctx, err := b.NewContext(opts.contextOptions())
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		b.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &Instance{
		browser: b,
		context: bctx,
		page:    NewPage(page, opts.ActionTimeout, opts.NavigationTimeout),
	}, nil
}

// LocalLauncher starts Chromium on this host through Playwright
type LocalLauncher struct {
	runtime *Runtime
	opts    Options
}

// NewLocalLauncher creates a launcher for local Chromium
func NewLocalLauncher(runtime *Runtime, opts Options) *LocalLauncher {
	return &LocalLauncher{runtime: runtime, opts: opts}
}

// Launch starts a browser and opens a configured page
func (l *LocalLauncher) Launch(ctx context.Context) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chromium, err := l.runtime.Chromium()
	if err != nil {
		return nil, err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Args:     l.opts.launchArgs(),
	}
	if l.opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(float64(l.opts.SlowMo.Milliseconds()))
	}

	b, err := chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	instance, err := openPage(b, l.opts)
	if err != nil {
		return nil, err
	}

	if l.opts.DebugPort > 0 {
		instance.debugURL = fmt.Sprintf("http://127.0.0.1:%d", l.opts.DebugPort)
	}
	return instance, nil
}
