package goSession

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable read by LoadConfig.
const EnvPrefix = "BANK_"

// Config holds every Client setting. Sections are read once by Build; later
// changes to a Config value do not affect a built Client.
type Config struct {
	API         APIConfig         `envPrefix:"API_"`
	Pipeline    PipelineConfig    `envPrefix:"PIPELINE_"`
	Idempotency IdempotencyConfig `envPrefix:"IDEMPOTENCY_"`
	Session     SessionConfig     `envPrefix:"SESSION_"`
	Store       StoreConfig       `envPrefix:"STORE_"`
	Audit       AuditConfig       `envPrefix:"AUDIT_"`
	Metrics     MetricsConfig     `envPrefix:"METRICS_"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the banking API. Paths are joined onto BaseURL.
type APIConfig struct {
	BaseURL        string        `env:"BASE_URL"`
	Timeout        time.Duration `env:"TIMEOUT"`
	UserAgent      string        `env:"USER_AGENT"`
	LoginPath      string        `env:"LOGIN_PATH"`
	SignupPath     string        `env:"SIGNUP_PATH"`
	CheckEmailPath string        `env:"CHECK_EMAIL_PATH"`
	RefreshPath    string        `env:"REFRESH_PATH"`
	LogoutPath     string        `env:"LOGOUT_PATH"`
}

/*
====================================
PIPELINE CONFIG
====================================
*/

// PipelineConfig controls token attachment and refresh.
type PipelineConfig struct {
	// ExcludedPaths never carry the access token and never trigger a refresh.
	// An entry matches any request path containing it.
	ExcludedPaths []string `env:"EXCLUDED_PATHS" envSeparator:","`
	// AuthFailureStatusCodes trigger the refresh-and-replay path.
	AuthFailureStatusCodes []int `env:"AUTH_FAILURE_STATUS_CODES" envSeparator:","`
	// SingleFlightRefresh lets concurrent failures share one refresh exchange.
	SingleFlightRefresh bool `env:"SINGLE_FLIGHT_REFRESH"`
}

/*
====================================
IDEMPOTENCY CONFIG
====================================
*/

// IdempotencyConfig controls key handling for mutations.
type IdempotencyConfig struct {
	Header string `env:"HEADER"`
	// TerminalStatusCodes clear the key: the server gave a definite answer.
	// 2xx always clears; every other outcome retains the key.
	TerminalStatusCodes []int  `env:"TERMINAL_STATUS_CODES" envSeparator:","`
	DefaultUserID       string `env:"DEFAULT_USER_ID"`
	TransferScope       string `env:"TRANSFER_SCOPE"`
	AccountScope        string `env:"ACCOUNT_SCOPE"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the local session.
type SessionConfig struct {
	TickInterval time.Duration `env:"TICK_INTERVAL"`
	// PurgeStoreOnLogout clears the whole store, pending idempotency keys
	// included, on logout and forced logout.
	PurgeStoreOnLogout bool `env:"PURGE_STORE_ON_LOGOUT"`
}

/*
====================================
STORE CONFIG
====================================
*/

// Store backends accepted by StoreConfig.Backend.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
)

// StoreConfig selects the backend opened by Build when no store is injected.
type StoreConfig struct {
	Backend         string        `env:"BACKEND"`
	Namespace       string        `env:"NAMESPACE"`
	Path            string        `env:"PATH"`
	RedisURL        string        `env:"REDIS_URL"`
	RedisPrefix     string        `env:"REDIS_PREFIX"`
	ConnectAttempts uint64        `env:"CONNECT_ATTEMPTS"`
	ConnectInterval time.Duration `env:"CONNECT_INTERVAL"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`

	// CriticalEvents are never dropped; Emit waits for room instead.
	CriticalEvents []string `env:"CRITICAL_EVENTS" envSeparator:","`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"ENABLE_LATENCY_HISTOGRAMS"`
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the settings used when a Builder gets no config.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8080/api",
			Timeout:        15 * time.Second,
			UserAgent:      "goSession",
			LoginPath:      "/auth/login",
			SignupPath:     "/auth/signup",
			CheckEmailPath: "/auth/check-email",
			RefreshPath:    "/auth/refresh",
			LogoutPath:     "/auth/logout",
		},
		Pipeline: PipelineConfig{
			ExcludedPaths: []string{
				"/auth/login",
				"/auth/signup",
				"/auth/check-email",
				"/auth/refresh",
			},
			AuthFailureStatusCodes: []int{401, 403},
			SingleFlightRefresh:    true,
		},
		Idempotency: IdempotencyConfig{
			Header:              "Idempotency-Key",
			TerminalStatusCodes: []int{400, 401, 403, 404, 409, 422},
			DefaultUserID:       "me",
			TransferScope:       "transfer",
			AccountScope:        "account",
		},
		Session: SessionConfig{
			TickInterval: time.Second,
		},
		Store: StoreConfig{
			Backend:         StoreMemory,
			Namespace:       "session",
			Path:            "gosession.db",
			RedisURL:        "redis://localhost:6379/0",
			RedisPrefix:     "gs",
			ConnectAttempts: 5,
			ConnectInterval: 200 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
			CriticalEvents: []string{
				AuditForcedLogout,
				AuditSessionExpired,
				AuditIdempotencyKeyRetained,
			},
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Pipeline.ExcludedPaths = append([]string(nil), cfg.Pipeline.ExcludedPaths...)
	out.Pipeline.AuthFailureStatusCodes = append([]int(nil), cfg.Pipeline.AuthFailureStatusCodes...)
	out.Idempotency.TerminalStatusCodes = append([]int(nil), cfg.Idempotency.TerminalStatusCodes...)
	out.Audit.CriticalEvents = append([]string(nil), cfg.Audit.CriticalEvents...)
	return out
}

/*
====================================
LOADING
====================================
*/

// LoadConfig starts from DefaultConfig, loads the given dotenv files (".env"
// when none are named; missing files are skipped) and applies BANK_*
// environment variables on top. Variables already set in the process win
// over dotenv values. The result is validated.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// API
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}
	for name, p := range map[string]string{
		"LoginPath":      c.API.LoginPath,
		"SignupPath":     c.API.SignupPath,
		"CheckEmailPath": c.API.CheckEmailPath,
		"RefreshPath":    c.API.RefreshPath,
		"LogoutPath":     c.API.LogoutPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("API %s must start with /", name)
		}
	}

	// Pipeline
	if len(c.Pipeline.AuthFailureStatusCodes) == 0 {
		return errors.New("Pipeline AuthFailureStatusCodes must not be empty")
	}
	for _, code := range c.Pipeline.AuthFailureStatusCodes {
		if code < 400 || code > 499 {
			return fmt.Errorf("Pipeline AuthFailureStatusCodes: %d is not a 4xx status", code)
		}
	}
	for _, p := range c.Pipeline.ExcludedPaths {
		if strings.TrimSpace(p) == "" {
			return errors.New("Pipeline ExcludedPaths must not contain empty entries")
		}
	}
	if !c.excludes(c.API.RefreshPath) {
		return errors.New("Pipeline ExcludedPaths must cover API RefreshPath")
	}

	// Idempotency
	if c.Idempotency.Header == "" || strings.ContainsAny(c.Idempotency.Header, " \t\r\n:") {
		return errors.New("Idempotency Header must be a valid header name")
	}
	for _, code := range c.Idempotency.TerminalStatusCodes {
		if code < 400 || code > 599 {
			return fmt.Errorf("Idempotency TerminalStatusCodes: %d is not an error status", code)
		}
	}
	for name, v := range map[string]string{
		"DefaultUserID": c.Idempotency.DefaultUserID,
		"TransferScope": c.Idempotency.TransferScope,
		"AccountScope":  c.Idempotency.AccountScope,
	} {
		if v == "" || strings.Contains(v, ".") {
			return fmt.Errorf("Idempotency %s must be non-empty and contain no dots", name)
		}
	}
	if c.Idempotency.TransferScope == c.Idempotency.AccountScope {
		return errors.New("Idempotency TransferScope and AccountScope must differ")
	}

	// Session
	if c.Session.TickInterval <= 0 {
		return errors.New("Session TickInterval must be > 0")
	}

	// Store
	switch c.Store.Backend {
	case StoreMemory:
	case StoreBolt:
		if c.Store.Path == "" {
			return errors.New("Store Path is required for the bolt backend")
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			return errors.New("Store RedisURL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported Store Backend %q", c.Store.Backend)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func (c *Config) excludes(path string) bool {
	for _, p := range c.Pipeline.ExcludedPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}
