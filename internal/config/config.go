package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultAllowedOrigins are the CORS origins accepted in production when
// ALLOWED_ORIGINS is not set: local web builds, preview deploys and Expo.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"https://*.netlify.app",
	"https://*.vercel.app",
	"exp://",
	"http://localhost:19000",
	"http://localhost:19006",
}

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port        int
	LogLevel    string
	Environment string

	// PriceLabs
	PriceLabsAPIKey  string
	PriceLabsBaseURL string
	ListingID        string
	PMS              string

	// LLM
	LLMProvider      string // openai | anthropic
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	ChatModel        string
	AnalysisModel    string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration
	RedisURL string

	// Observability
	OTLPEndpoint string

	// API surface
	ServiceAPIKey  string
	AllowedOrigins []string

	// Pricing behaviour
	DemoFallback       bool
	MaxNights          int
	FetchWindowDays    int
	OpeningsWindowDays int
	MaxToolRounds      int
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:        getEnvInt("PORT", 8000),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENVIRONMENT", "development"),

		PriceLabsAPIKey:  getEnv("PRICELABS_API_KEY", ""),
		PriceLabsBaseURL: getEnv("PRICELABS_BASE_URL", "https://api.pricelabs.co"),
		ListingID:        getEnv("LISTING_ID", ""),
		PMS:              getEnv("PMS", "yourporter"),

		LLMProvider:      strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
		ChatModel:        getEnv("CHAT_MODEL", "gpt-4"),
		AnalysisModel:    getEnv("ANALYSIS_MODEL", "gpt-4"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 2),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 200*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 5),

		CacheTTL: getEnvDuration("CACHE_TTL", 10*time.Minute),
		RedisURL: getEnv("REDIS_URL", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		ServiceAPIKey:  getEnv("SERVICE_API_KEY", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", defaultAllowedOrigins),

		DemoFallback:       getEnv("DEMO_FALLBACK", "true") == "true",
		MaxNights:          getEnvInt("MAX_NIGHTS", 5),
		FetchWindowDays:    getEnvInt("FETCH_WINDOW_DAYS", 90),
		OpeningsWindowDays: getEnvInt("OPENINGS_WINDOW_DAYS", 60),
		MaxToolRounds:      getEnvInt("AGENT_MAX_TOOL_ROUNDS", 3),
	}
}

// IsProduction reports whether ENVIRONMENT is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// IsDevelopment reports whether ENVIRONMENT is "development".
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// LLMAPIKey returns the key of the selected LLM provider.
func (c *Config) LLMAPIKey() string {
	if c.LLMProvider == "anthropic" {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// CORSOrigins returns the origins the CORS middleware should accept.
// Outside production every origin is allowed.
func (c *Config) CORSOrigins() []string {
	if !c.IsProduction() {
		return []string{"*"}
	}
	return c.AllowedOrigins
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
