package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// RootStatus is returned by GET /.
type RootStatus struct {
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	Version     string     `json:"version"`
	Environment string     `json:"environment"`
	Config      RootConfig `json:"config"`
}

// RootConfig reports which integrations are configured, never the secrets.
type RootConfig struct {
	HasPriceLabsKey bool   `json:"has_pricelabs_key"`
	HasLLMKey       bool   `json:"has_openai_key"`
	LLMProvider     string `json:"llm_provider"`
	ListingID       string `json:"listing_id"`
	PMS             string `json:"pms"`
	Cache           string `json:"cache"`
}

// HealthStatus is returned by GET /healthz and /readyz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// UsageMetrics is returned by GET /v1/metrics/usage.
type UsageMetrics struct {
	TotalRequests       int64   `json:"totalRequests"`
	ChatRequests        int64   `json:"chatRequests"`
	AnalyzedNights      int64   `json:"analyzedNights"`
	ToolCalls           int64   `json:"toolCalls"`
	ErrorRate           float64 `json:"errorRate"`
	FallbackRate        float64 `json:"fallbackRate"`
	DemoFallbacks       int64   `json:"demoFallbacks"`
	AvgTokensPerRequest float64 `json:"avgTokensPerRequest"`
	CacheHitRate        float64 `json:"cacheHitRate"`
	Period              string  `json:"period"`
}
