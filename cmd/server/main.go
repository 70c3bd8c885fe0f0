package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/gemini-bridge/internal/api"
	"github.com/shehryarbajwa/gemini-bridge/internal/automation"
	"github.com/shehryarbajwa/gemini-bridge/internal/browser"
	"github.com/shehryarbajwa/gemini-bridge/internal/config"
	"github.com/shehryarbajwa/gemini-bridge/internal/observability"
	"github.com/shehryarbajwa/gemini-bridge/internal/proxy"
	"github.com/shehryarbajwa/gemini-bridge/internal/ratelimit"
	"github.com/shehryarbajwa/gemini-bridge/internal/session"
)

// imagePullTimeout bounds the docker image check at startup
const imagePullTimeout = 5 * time.Minute

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load(os.Getenv(config.EnvPrefix + "_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.Setup(cfg.Logger)
	if envErr != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		observability.Sync(logger)
		os.Exit(1)
	}
	observability.Sync(logger)
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting Gemini bridge",
		zap.String("driver", cfg.Browser.Driver),
		zap.String("wait_strategy", cfg.Wait.Strategy),
		zap.String("target", cfg.Target.URL))

	// the docker driver only needs the Playwright driver, Chromium runs in the container
	runtime := browser.NewRuntime(cfg.Browser.Install, cfg.Browser.Driver == config.DriverDocker)

	launcher, closeLauncher, err := newLauncher(cfg, runtime, logger.Named("browser"))
	if err != nil {
		return err
	}

	manager := session.NewManager(launcher, newPipeline(cfg, logger), session.Options{
		TargetURL:   cfg.Target.URL,
		IdleTimeout: cfg.Session.IdleTimeout,
		Driver:      cfg.Browser.Driver,
	}, logger.Named("session"))
	logger.Info("Session manager initialized", zap.Duration("idle_timeout", cfg.Session.IdleTimeout))

	router, err := api.NewHandler(manager, cfg.Server.RequestTimeout, logger.Named("api")).NewRouter(routerOptions(cfg, manager, logger))
	if err != nil {
		closeLauncher()
		return fmt.Errorf("failed to configure routes: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server is running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server gracefully")
	case err := <-serveErr:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("Browser cleanup failed", zap.Error(err))
	}
	if err := runtime.Stop(); err != nil {
		logger.Warn("Playwright shutdown failed", zap.Error(fmt.Errorf("%w: %w", automation.ErrShutdownCleanup, err)))
	}
	closeLauncher()

	if runErr == nil {
		logger.Info("Server stopped cleanly")
	}
	return runErr
}

// newLauncher builds the configured browser driver and a func releasing what it holds
func newLauncher(cfg *config.Config, runtime *browser.Runtime, logger *zap.Logger) (session.Launcher, func(), error) {
	opts := browser.OptionsFromConfig(cfg.Browser)

	if cfg.Browser.Driver != config.DriverDocker {
		local := browser.NewLocalLauncher(runtime, opts)
		return session.LauncherFunc(func(ctx context.Context) (session.Browser, error) {
			instance, err := local.Launch(ctx)
			if err != nil {
				return nil, err
			}
			return instance, nil
		}), func() {}, nil
	}

	docker, err := browser.NewDockerLauncher(runtime, opts, logger)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), imagePullTimeout)
	defer cancel()

	logger.Info("Ensuring browser image is available", zap.String("image", opts.DockerImage))
	if err := docker.EnsureImage(ctx); err != nil {
		docker.Close()
		return nil, nil, fmt.Errorf("failed to ensure image: %w", err)
	}

	closeDocker := func() {
		if err := docker.Close(); err != nil {
			logger.Warn("Failed to close docker client", zap.Error(err))
		}
	}

	return session.LauncherFunc(func(ctx context.Context) (session.Browser, error) {
		instance, err := docker.Launch(ctx)
		if err != nil {
			return nil, err
		}
		return instance, nil
	}), closeDocker, nil
}

// newPipeline wires the page steps for the configured wait strategy and clipboard source
func newPipeline(cfg *config.Config, logger *zap.Logger) session.Pipeline {
	selectors := automation.SelectorsFromConfig(cfg.Target)

	var waiter automation.Waiter
	switch cfg.Wait.Strategy {
	case config.StrategyFixed:
		logger.Warn("Using fixed-delay wait, replies slower than the delay will be missed",
			zap.Duration("delay", cfg.Wait.FixedDelay))
		waiter = automation.NewFixedDelayWaiter(selectors.ActionMenu, cfg.Wait.FixedDelay)
	default:
		waiter = automation.NewMutationWaiter(selectors.ActionMenu, cfg.Wait.MaxWait, cfg.Wait.SettleDelay, logger.Named("wait"))
	}

	var reader automation.ClipboardReader = automation.BrowserClipboard{}
	if cfg.Clipboard.Source == config.ClipboardSystem {
		reader = automation.NewSystemClipboard()
	}

	return session.Pipeline{
		Submitter: automation.NewSubmitter(selectors),
		Waiter:    waiter,
		Extractor: automation.NewExtractor(selectors, reader),
	}
}

// routerOptions mounts the debug proxy only when browser.debug is set
func routerOptions(cfg *config.Config, source proxy.EndpointSource, logger *zap.Logger) api.RouterOptions {
	opts := api.RouterOptions{AllowedOrigins: cfg.CORS.AllowedOrigins}
	if cfg.Browser.Debug {
		opts.Proxy = proxy.NewServer(source, logger.Named("proxy"))
		logger.Warn("Debug websocket proxy enabled", zap.String("path", "/api/debug/ws"))
	}
	if cfg.RateLimit.Enabled() {
		opts.Limiter = ratelimit.NewLimiter(cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Burst)
		logger.Info("Rate limiter initialized",
			zap.Int("requests_per_hour", cfg.RateLimit.RequestsPerHour),
			zap.Int("burst", cfg.RateLimit.Burst))
	}
	return opts
}
