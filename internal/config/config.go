package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every config key read from the environment
const EnvPrefix = "GEMINI_BRIDGE"

// Browser drivers
const (
	DriverLocal  = "local"
	DriverDocker = "docker"
)

// Wait strategies
const (
	StrategyMutation = "mutation"
	StrategyFixed    = "fixed"
)

// Clipboard sources
const (
	ClipboardBrowser = "browser"
	ClipboardSystem  = "system"
)

// Config holds the whole service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Target    TargetConfig    `mapstructure:"target" yaml:"target"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Wait      WaitConfig      `mapstructure:"wait" yaml:"wait"`
	Clipboard ClipboardConfig `mapstructure:"clipboard" yaml:"clipboard"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns the listen address for the configured port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// BrowserConfig controls how the browser is launched and how its context is set up
type BrowserConfig struct {
	Driver            string        `mapstructure:"driver" yaml:"driver"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	SlowMo            time.Duration `mapstructure:"slow_mo" yaml:"slow_mo"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	Locale            string        `mapstructure:"locale" yaml:"locale"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
	AcceptLanguage    string        `mapstructure:"accept_language" yaml:"accept_language"`
	Install           bool          `mapstructure:"install" yaml:"install"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	DebugPort         int           `mapstructure:"debug_port" yaml:"debug_port"`
	// Debug mounts /api/debug/ws. Anyone who can reach the port drives the browser through it.
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
	DockerImage       string        `mapstructure:"docker_image" yaml:"docker_image"`
}

// TargetConfig holds the chat page URL and every selector used against it.
// The page is third-party markup, so these are the only values that need to
// move when it changes.
type TargetConfig struct {
	URL                string `mapstructure:"url" yaml:"url"`
	PromptRole         string `mapstructure:"prompt_role" yaml:"prompt_role"`
	PromptLabel        string `mapstructure:"prompt_label" yaml:"prompt_label"`
	SubmitRole         string `mapstructure:"submit_role" yaml:"submit_role"`
	SubmitLabel        string `mapstructure:"submit_label" yaml:"submit_label"`
	ActionMenuSelector string `mapstructure:"action_menu_selector" yaml:"action_menu_selector"`
	CopyButtonSelector string `mapstructure:"copy_button_selector" yaml:"copy_button_selector"`
}

// SessionConfig configures the lifetime of the shared browser session
type SessionConfig struct {
	// IdleTimeout closes the browser after this long without requests. Zero disables it.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// WaitConfig selects how reply completion is detected
type WaitConfig struct {
	Strategy    string        `mapstructure:"strategy" yaml:"strategy"`
	FixedDelay  time.Duration `mapstructure:"fixed_delay" yaml:"fixed_delay"`
	MaxWait     time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// ClipboardConfig selects where copied reply text is read from
type ClipboardConfig struct {
	Source string `mapstructure:"source" yaml:"source"`
}

// RateLimitConfig limits automation requests per client address
type RateLimitConfig struct {
	RequestsPerHour int `mapstructure:"requests_per_hour" yaml:"requests_per_hour"`
	Burst           int `mapstructure:"burst" yaml:"burst"`
}

// Enabled reports whether rate limiting is switched on
func (r RateLimitConfig) Enabled() bool {
	return r.RequestsPerHour > 0
}

// CORSConfig lists the origins allowed to call the API. Entries are glob patterns.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LoggerConfig configures the zap logger
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultBrowserArgs are the Chromium flags used for container-friendly headless runs
var DefaultBrowserArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--lang=ja-JP",
	"--accept-lang=ja-JP",
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "150s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "20s")

	v.SetDefault("browser.driver", DriverLocal)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", "100ms")
	v.SetDefault("browser.args", DefaultBrowserArgs)
	v.SetDefault("browser.locale", "ja-JP")
	v.SetDefault("browser.timezone", "Asia/Tokyo")
	v.SetDefault("browser.accept_language", "ja-JP,ja;q=0.9")
	v.SetDefault("browser.install", true)
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.debug_port", 0)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.docker_image", "browserless/chrome:latest")

	v.SetDefault("target.url", "https://gemini.google.com/app")
	v.SetDefault("target.prompt_role", "textbox")
	v.SetDefault("target.prompt_label", "ここにプロンプトを入力してください")
	v.SetDefault("target.submit_role", "button")
	v.SetDefault("target.submit_label", "プロンプトを送信")
	v.SetDefault("target.action_menu_selector", `[data-test-id="more-menu-button"]`)
	v.SetDefault("target.copy_button_selector", `[data-test-id="copy-button"]`)

	v.SetDefault("session.idle_timeout", "5m")

	v.SetDefault("wait.strategy", StrategyMutation)
	v.SetDefault("wait.fixed_delay", "5s")
	v.SetDefault("wait.max_wait", "60s")
	v.SetDefault("wait.settle_delay", "500ms")

	v.SetDefault("clipboard.source", ClipboardBrowser)

	v.SetDefault("ratelimit.requests_per_hour", 0)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "gemini-bridge")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
}

// NewViper returns a viper instance with defaults and environment bindings applied.
// PORT and IDLE_TIMEOUT are honoured without the prefix.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// BindEnv only errors when called without a key
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("session.idle_timeout", EnvPrefix+"_SESSION_IDLE_TIMEOUT", "IDLE_TIMEOUT")

	return v
}

// Load reads configuration from defaults, an optional YAML file and the environment.
// An empty path looks for ./config.yaml and tolerates its absence.
func Load(path string) (*Config, error) {
	v := NewViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration built from defaults alone
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate rejects values the service cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	switch c.Browser.Driver {
	case DriverLocal, DriverDocker:
	default:
		return fmt.Errorf("unknown browser driver %q", c.Browser.Driver)
	}

	switch c.Wait.Strategy {
	case StrategyMutation, StrategyFixed:
	default:
		return fmt.Errorf("unknown wait strategy %q", c.Wait.Strategy)
	}

	switch c.Clipboard.Source {
	case ClipboardBrowser, ClipboardSystem:
	default:
		return fmt.Errorf("unknown clipboard source %q", c.Clipboard.Source)
	}

	if c.Wait.MaxWait <= c.Wait.SettleDelay {
		return fmt.Errorf("wait.max_wait (%s) must exceed wait.settle_delay (%s)", c.Wait.MaxWait, c.Wait.SettleDelay)
	}

	if c.Session.IdleTimeout < 0 {
		return fmt.Errorf("session.idle_timeout must not be negative")
	}

	if c.Target.URL == "" {
		return fmt.Errorf("target.url is required")
	}

	return nil
}
