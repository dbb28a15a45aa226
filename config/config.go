package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	GitHub    GitHubConfig
	Counter   CounterConfig
	Webhook   WebhookConfig
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

	// NoSandbox disables Chrome's sandbox (needed in Docker and CI runners).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all requests.
	Proxy string
}

// ScraperConfig controls the scrape loop.
type ScraperConfig struct {
	// MaxPages is the upper bound on result pages fetched per run.
	MaxPages int // default: 5

	// PageSize is the offset stride between result pages.
	PageSize int // default: 10

	// SettleDelay is the fixed wait after navigation so client-rendered
	// content can populate. There is no "content loaded" signal.
	SettleDelay time.Duration // default: 4s

	// PageDelay is the fixed pause between result pages.
	PageDelay time.Duration // default: 2s

	// NavTimeout bounds a single page navigation.
	NavTimeout time.Duration // default: 60s

	// DataDir is where run output and diagnostic snapshots are written.
	DataDir string // default: "data"

	// FetchMode selects the renderer: "browser" or "http".
	FetchMode string // default: "browser"

	// DefaultQuery is used when no query argument is supplied.
	DefaultQuery string // default: "plombier paris"
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
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// GitHubConfig controls the remote workflow dispatcher and its counter file.
type GitHubConfig struct {
	// Token is the API token used for dispatch and counter updates.
	Token string

	// Owner and Repo identify the repository hosting the scrape workflow.
	Owner string
	Repo  string

	// WorkflowFile is the workflow file name passed to the dispatch API.
	WorkflowFile string // default: "scrape.yml"

	// CounterPath is the repo path of the JSON run-counter file.
	CounterPath string // default: "data/run_counter.json"

	// MaxRunsPerDay caps workflow dispatches per calendar day.
	MaxRunsPerDay int // default: 10

	// BaseURL overrides the API endpoint (tests point this at a stub).
	BaseURL string // default: "https://api.github.com"
}

// CounterConfig controls the read-only counter proxy.
type CounterConfig struct {
	// UpstreamURL is the remote counter endpoint to pass through.
	UpstreamURL string

	// CacheTTL is how long a fetched counter value may be served from cache.
	CacheTTL time.Duration // default: 30s
}

// WebhookConfig controls the optional run-completion webhook.
type WebhookConfig struct {
	// URL receives run.completed events. Empty disables delivery.
	URL string

	// Secret signs event payloads with HMAC-SHA256 when non-empty.
	Secret string
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("LEADGRAB_HOST", "0.0.0.0"),
			Port: envIntOr("LEADGRAB_PORT", 8080),
			Mode: envOr("LEADGRAB_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("LEADGRAB_HEADLESS", true),
			NoSandbox:  envBoolOr("LEADGRAB_NO_SANDBOX", true),
			BrowserBin: os.Getenv("LEADGRAB_BROWSER_BIN"),
			Proxy:      os.Getenv("LEADGRAB_PROXY"),
		},
		Scraper: ScraperConfig{
			MaxPages:     envIntOr("MAX_PAGES", 5),
			PageSize:     envIntOr("LEADGRAB_PAGE_SIZE", 10),
			SettleDelay:  envDurationOr("LEADGRAB_SETTLE_DELAY", 4*time.Second),
			PageDelay:    envDurationOr("LEADGRAB_PAGE_DELAY", 2*time.Second),
			NavTimeout:   envDurationOr("LEADGRAB_NAV_TIMEOUT", 60*time.Second),
			DataDir:      envOr("LEADGRAB_DATA_DIR", "data"),
			FetchMode:    envOr("LEADGRAB_FETCH_MODE", "browser"),
			DefaultQuery: envOr("LEADGRAB_DEFAULT_QUERY", "plombier paris"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("LEADGRAB_AUTH_ENABLED", true),
			APIKeys: envSliceOr("LEADGRAB_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("LEADGRAB_RATE_RPS", 5.0),
			Burst:             envIntOr("LEADGRAB_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("LEADGRAB_LOG_LEVEL", "info"),
			Format: envOr("LEADGRAB_LOG_FORMAT", "text"),
		},
		GitHub: GitHubConfig{
			Token:         os.Getenv("GITHUB_TOKEN"),
			Owner:         os.Getenv("GITHUB_OWNER"),
			Repo:          os.Getenv("GITHUB_REPO"),
			WorkflowFile:  envOr("GITHUB_WORKFLOW_FILE", "scrape.yml"),
			CounterPath:   envOr("GITHUB_COUNTER_PATH", "data/run_counter.json"),
			MaxRunsPerDay: envIntOr("LEADGRAB_MAX_RUNS_PER_DAY", 10),
			BaseURL:       envOr("GITHUB_API_URL", "https://api.github.com"),
		},
		Counter: CounterConfig{
			UpstreamURL: os.Getenv("LEADGRAB_COUNTER_URL"),
			CacheTTL:    envDurationOr("LEADGRAB_COUNTER_TTL", 30*time.Second),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("LEADGRAB_WEBHOOK_URL"),
			Secret: os.Getenv("LEADGRAB_WEBHOOK_SECRET"),
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
