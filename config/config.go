package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Browser     BrowserConfig
	Renderer    RendererConfig
	LLM         LLMConfig
	Output      OutputConfig
	Pricing     PricingConfig
	ObjectStore ObjectStoreConfig
	Webhook     WebhookConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxRenders caps concurrent incognito contexts.
	MaxRenders int // default: 4

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// RendererConfig controls page loading and settling.
type RendererConfig struct {
	// NavigationTimeout bounds page.Navigate plus the initial load.
	NavigationTimeout time.Duration // default: 60s

	// SettleTimeout bounds the wait policy.
	SettleTimeout time.Duration // default: 30s

	// UserAgent is sent when a request does not set its own.
	UserAgent string

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// LLMConfig controls the structured-extraction backend.
type LLMConfig struct {
	// APIKey is resolved from HARVEST_LLM_API_KEY, then OPENAI_API_KEY.
	APIKey string

	Model   string // default: "gpt-4o-mini"
	BaseURL string // default: "https://api.openai.com/v1"

	// MaxRetries is handed to the client; the pipeline never retries.
	MaxRetries int // default: 0

	// RequestTimeout bounds a single backend call.
	RequestTimeout time.Duration // default: 120s

	// ResponseFormat is "json_schema" (strict structured output) or
	// "json_object" for backends without schema support.
	ResponseFormat string // default: "json_schema"

	// ContentFormat is the representation sent to the backend:
	// "markdown", "html" or "text".
	ContentFormat string // default: "markdown"

	// ExtractMode is "raw" (whole page) or "readability" (main content).
	ExtractMode string // default: "raw"

	// MaxContentTokens truncates oversized content before sending.
	MaxContentTokens int // default: 100000

	// ContentSelector and the tag lists are the default content scope for
	// runs that do not set one.
	ContentSelector string
	IncludeTags     []string
	ExcludeTags     []string
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	Dir          string // default: "outputs"
	SaveSnapshot bool   // default: false
}

// PricingConfig locates the price table.
type PricingConfig struct {
	// TablePath is a YAML or JSON price table file.
	TablePath string

	// AllowUnpriced substitutes a zero-cost estimate for unknown models.
	AllowUnpriced bool // default: false
}

// ObjectStoreConfig controls the optional S3-compatible artifact mirror.
type ObjectStoreConfig struct {
	Endpoint  string // host:port, no scheme; empty disables the mirror
	AccessKey string
	SecretKey string
	Region    string // default: "us-east-1"
	Bucket    string // default: "harvest"
	Prefix    string
	UseSSL    bool
}

// Enabled reports whether the mirror is configured.
func (c ObjectStoreConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// WebhookConfig controls run notifications.
type WebhookConfig struct {
	URL    string
	Secret string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 2
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HARVEST_HOST", "0.0.0.0"),
			Port: envIntOr("HARVEST_PORT", 8080),
			Mode: envOr("HARVEST_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("HARVEST_HEADLESS", true),
			MaxRenders:   envIntOr("HARVEST_MAX_RENDERS", 4),
			DefaultProxy: os.Getenv("HARVEST_PROXY"),
			NoSandbox:    envBoolOr("HARVEST_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("HARVEST_BROWSER_BIN"),
		},
		Renderer: RendererConfig{
			NavigationTimeout: envDurationOr("HARVEST_NAV_TIMEOUT", 60*time.Second),
			SettleTimeout:     envDurationOr("HARVEST_SETTLE_TIMEOUT", 30*time.Second),
			UserAgent:         os.Getenv("HARVEST_USER_AGENT"),
			BlockedResourceTypes: envSliceOr("HARVEST_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		LLM: LLMConfig{
			APIKey:           envOr("HARVEST_LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Model:            envOr("HARVEST_LLM_MODEL", "gpt-4o-mini"),
			BaseURL:          envOr("HARVEST_LLM_BASE_URL", "https://api.openai.com/v1"),
			MaxRetries:       envIntOr("HARVEST_LLM_MAX_RETRIES", 0),
			RequestTimeout:   envDurationOr("HARVEST_LLM_TIMEOUT", 120*time.Second),
			ResponseFormat:   envOr("HARVEST_LLM_RESPONSE_FORMAT", "json_schema"),
			ContentFormat:    envOr("HARVEST_CONTENT_FORMAT", "markdown"),
			ExtractMode:      envOr("HARVEST_EXTRACT_MODE", "raw"),
			MaxContentTokens: envIntOr("HARVEST_MAX_CONTENT_TOKENS", 100000),
			ContentSelector:  os.Getenv("HARVEST_CONTENT_SELECTOR"),
			IncludeTags:      envSliceOr("HARVEST_INCLUDE_TAGS", nil),
			ExcludeTags:      envSliceOr("HARVEST_EXCLUDE_TAGS", nil),
		},
		Output: OutputConfig{
			Dir:          envOr("HARVEST_OUTPUT_DIR", "outputs"),
			SaveSnapshot: envBoolOr("HARVEST_SAVE_SNAPSHOT", false),
		},
		Pricing: PricingConfig{
			TablePath:     os.Getenv("HARVEST_PRICES_FILE"),
			AllowUnpriced: envBoolOr("HARVEST_ALLOW_UNPRICED", false),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  os.Getenv("HARVEST_S3_ENDPOINT"),
			AccessKey: os.Getenv("HARVEST_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("HARVEST_S3_SECRET_KEY"),
			Region:    envOr("HARVEST_S3_REGION", "us-east-1"),
			Bucket:    envOr("HARVEST_S3_BUCKET", "harvest"),
			Prefix:    os.Getenv("HARVEST_S3_PREFIX"),
			UseSSL:    envBoolOr("HARVEST_S3_USE_SSL", false),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("HARVEST_WEBHOOK_URL"),
			Secret: os.Getenv("HARVEST_WEBHOOK_SECRET"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVEST_AUTH_ENABLED", true),
			APIKeys: envSliceOr("HARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVEST_RATE_RPS", 1.0),
			Burst:             envIntOr("HARVEST_RATE_BURST", 2),
		},
		Log: LogConfig{
			Level:  envOr("HARVEST_LOG_LEVEL", "info"),
			Format: envOr("HARVEST_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
