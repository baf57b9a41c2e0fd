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
	Search    SearchConfig
	Walk      WalkConfig
	Report    ReportConfig
	Jobs      JobsConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the browser session handed to the walk.
type BrowserConfig struct {
	// Engine selects the navigation backend: "rod" (real browser),
	// "http" (static fetch, no JavaScript) or "auto" (static fetch first,
	// browser when a listing needs it).
	Engine string // default: "rod"

	// EngineMemoryTTL is how long "auto" remembers that a host needed the
	// browser.
	EngineMemoryTTL time.Duration // default: 24h

	// Headless controls whether the browser runs headless. The search site
	// rejects most headless sessions, so the default is a visible window
	// (run under a virtual display in containers).
	Headless bool // default: false

	// VirtualDisplay runs a visible browser under xvfb-run.
	VirtualDisplay bool // default: false

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// Stealth injects the webdriver-masking script into every session.
	Stealth bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for the browser and the HTTP engine.
	Proxy string

	// UserAgent overrides the browser user agent.
	UserAgent string

	// WindowWidth and WindowHeight set the viewport size.
	WindowWidth  int // default: 1920
	WindowHeight int // default: 1080

	// NavigationTimeout bounds a single page load.
	NavigationTimeout time.Duration // default: 30s

	// BlockedResourceTypes lists resource types the session refuses to load.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string
}

// SearchConfig describes the search site.
type SearchConfig struct {
	// BaseURL is the listing endpoint the query string is appended to.
	BaseURL string // default: "https://www.reuters.com/site-search/"
}

// WalkConfig controls the pagination walk.
type WalkConfig struct {
	// VisibleTimeout bounds the wait for the main content block.
	VisibleTimeout time.Duration // default: 20s

	// PresentTimeout bounds the wait for the results list and summary.
	PresentTimeout time.Duration // default: 10s

	// PageDelay is the pause between two listing pages.
	PageDelay time.Duration // default: 2s

	// PageSize is the offset increment per listing page.
	PageSize int // default: 20

	// MaxPages stops the walk after this many pages. 0 means unlimited.
	MaxPages int // default: 0
}

// ReportConfig controls the spreadsheet export.
type ReportConfig struct {
	// OutputDir receives the workbook and downloaded images.
	OutputDir string // default: "output"

	// DownloadImages toggles the best-effort image fetch.
	DownloadImages bool // default: true

	// ImageTimeout bounds a single image fetch.
	ImageTimeout time.Duration // default: 10s
}

// JobsConfig controls the work-item worker.
type JobsConfig struct {
	// InputFile is the YAML or JSON work-item file.
	InputFile string // default: "work-items.yaml"

	// ResultsFile receives one outcome per work item.
	ResultsFile string // default: "work-items.results.json"
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
	Burst int // default: 5
}

// CacheConfig controls the finished-walk cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached walk results.
	MaxEntries int // default: 200
}

// WebhookConfig controls job outcome notifications.
type WebhookConfig struct {
	// DefaultURL receives outcomes for jobs that do not name their own URL.
	DefaultURL string

	// Secret signs webhook bodies with HMAC-SHA256 when non-empty.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("NEWSWALK_HOST", "0.0.0.0"),
			Port: envIntOr("NEWSWALK_PORT", 8080),
			Mode: envOr("NEWSWALK_MODE", "release"),
		},
		Browser: BrowserConfig{
			Engine:            strings.ToLower(envOr("NEWSWALK_ENGINE", "rod")),
			EngineMemoryTTL:   envDurationOr("NEWSWALK_ENGINE_MEMORY_TTL", 24*time.Hour),
			Headless:          envBoolOr("NEWSWALK_HEADLESS", false),
			VirtualDisplay:    envBoolOr("NEWSWALK_XVFB", false),
			NoSandbox:         envBoolOr("NEWSWALK_NO_SANDBOX", true),
			Stealth:           envBoolOr("NEWSWALK_STEALTH", true),
			BrowserBin:        os.Getenv("NEWSWALK_BROWSER_BIN"),
			Proxy:             os.Getenv("NEWSWALK_PROXY"),
			UserAgent:         os.Getenv("NEWSWALK_USER_AGENT"),
			WindowWidth:       envIntOr("NEWSWALK_WINDOW_WIDTH", 1920),
			WindowHeight:      envIntOr("NEWSWALK_WINDOW_HEIGHT", 1080),
			NavigationTimeout: envDurationOr("NEWSWALK_NAV_TIMEOUT", 30*time.Second),
			BlockedResourceTypes: envSliceOr("NEWSWALK_BLOCKED_RESOURCES", []string{
				"Font", "Media",
			}),
		},
		Search: SearchConfig{
			BaseURL: envOr("NEWSWALK_SEARCH_BASE", "https://www.reuters.com/site-search/"),
		},
		Walk: WalkConfig{
			VisibleTimeout: envDurationOr("NEWSWALK_VISIBLE_TIMEOUT", 20*time.Second),
			PresentTimeout: envDurationOr("NEWSWALK_PRESENT_TIMEOUT", 10*time.Second),
			PageDelay:      envDurationOr("NEWSWALK_PAGE_DELAY", 2*time.Second),
			PageSize:       envIntOr("NEWSWALK_PAGE_SIZE", 20),
			MaxPages:       envIntOr("NEWSWALK_MAX_PAGES", 0),
		},
		Report: ReportConfig{
			OutputDir:      envOr("NEWSWALK_OUTPUT_DIR", "output"),
			DownloadImages: envBoolOr("NEWSWALK_DOWNLOAD_IMAGES", true),
			ImageTimeout:   envDurationOr("NEWSWALK_IMAGE_TIMEOUT", 10*time.Second),
		},
		Jobs: JobsConfig{
			InputFile:   envOr("NEWSWALK_WORKITEMS", "work-items.yaml"),
			ResultsFile: envOr("NEWSWALK_RESULTS", "work-items.results.json"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("NEWSWALK_AUTH_ENABLED", true),
			APIKeys: envSliceOr("NEWSWALK_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("NEWSWALK_RATE_RPS", 1.0),
			Burst:             envIntOr("NEWSWALK_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("NEWSWALK_CACHE_MAX_ENTRIES", 200),
		},
		Webhook: WebhookConfig{
			DefaultURL: os.Getenv("NEWSWALK_WEBHOOK_URL"),
			Secret:     os.Getenv("NEWSWALK_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("NEWSWALK_LOG_LEVEL", "info"),
			Format: envOr("NEWSWALK_LOG_FORMAT", "json"),
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
