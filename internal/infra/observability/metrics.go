package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/sony/gobreaker"

	"github.com/mairble/mairble-backend-go/internal/domain"
)

// Fallback kinds recorded by IncrFallback.
const (
	FallbackRuleBased = "rule_based_analysis"
	FallbackDemoData  = "demo_data"
	FallbackChatError = "chat_apology"
)

// Metrics holds all Prometheus metrics for the backend.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	nightsAnalyzed  prometheus.Counter
	breakerState    *prometheus.GaugeVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mairble_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mairble_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"operation", "status"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mairble_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mairble_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mairble_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mairble_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"provider", "type"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mairble_agent_tool_calls_total",
				Help: "Tool calls executed by the chat agent.",
			},
			[]string{"tool", "status"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mairble_fallbacks_total",
				Help: "Responses served from a fallback path.",
			},
			[]string{"kind"},
		),
		nightsAnalyzed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mairble_nights_analyzed_total",
				Help: "Nights sent through pricing analysis.",
			},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mairble_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
			},
			[]string{"service"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrRequest increments the request counter for an operation.
func (m *Metrics) IncrRequest(operation, status string) {
	m.requestsTotal.WithLabelValues(operation, status).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(provider string, usage domain.TokenUsage) {
	m.tokensUsed.WithLabelValues(provider, "prompt").Add(float64(usage.PromptTokens))
	m.tokensUsed.WithLabelValues(provider, "completion").Add(float64(usage.CompletionTokens))
}

// IncrToolCall counts one agent tool execution.
func (m *Metrics) IncrToolCall(tool, status string) {
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// IncrFallback counts a response served from a fallback path.
func (m *Metrics) IncrFallback(kind string) {
	m.fallbacks.WithLabelValues(kind).Inc()
}

// AddNightsAnalyzed counts nights sent through analysis.
func (m *Metrics) AddNightsAnalyzed(n int) {
	m.nightsAnalyzed.Add(float64(n))
}

// BreakerStateChange is a gobreaker OnStateChange hook.
func (m *Metrics) BreakerStateChange(name string, _, to gobreaker.State) {
	m.breakerState.WithLabelValues(name).Set(float64(to))
}

// GetUsageSnapshot returns cumulative usage figures for GET /v1/metrics/usage.
func (m *Metrics) GetUsageSnapshot() *domain.UsageMetrics {
	families, err := m.Registry.Gather()
	if err != nil {
		return &domain.UsageMetrics{Period: "all_time"}
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	totalRequests := sumCounter(byName["mairble_requests_total"], nil)
	errorCount := sumCounter(byName["mairble_requests_total"], map[string]string{"status": "error"})
	chatRequests := sumCounter(byName["mairble_requests_total"], map[string]string{"operation": "chat"})
	totalTokens := sumCounter(byName["mairble_llm_tokens_total"], nil)
	fallbacks := sumCounter(byName["mairble_fallbacks_total"], nil)
	demo := sumCounter(byName["mairble_fallbacks_total"], map[string]string{"kind": FallbackDemoData})
	toolCalls := sumCounter(byName["mairble_agent_tool_calls_total"], nil)
	nights := sumCounter(byName["mairble_nights_analyzed_total"], nil)
	hits := sumCounter(byName["mairble_cache_hits_total"], nil)
	misses := sumCounter(byName["mairble_cache_misses_total"], nil)

	snap := &domain.UsageMetrics{
		TotalRequests:  int64(totalRequests),
		ChatRequests:   int64(chatRequests),
		AnalyzedNights: int64(nights),
		ToolCalls:      int64(toolCalls),
		DemoFallbacks:  int64(demo),
		Period:         "all_time",
	}
	if totalRequests > 0 {
		snap.ErrorRate = errorCount / totalRequests
		snap.FallbackRate = fallbacks / totalRequests
		snap.AvgTokensPerRequest = totalTokens / totalRequests
	}
	if hits+misses > 0 {
		snap.CacheHitRate = hits / (hits + misses)
	}
	return snap
}

// sumCounter adds every series of a counter family whose labels include match.
func sumCounter(f *dto.MetricFamily, match map[string]string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, metric := range f.GetMetric() {
		if !labelsMatch(metric.GetLabel(), match) {
			continue
		}
		if c := metric.GetCounter(); c != nil {
			total += c.GetValue()
		}
	}
	return total
}

func labelsMatch(labels []*dto.LabelPair, match map[string]string) bool {
	for k, v := range match {
		found := false
		for _, l := range labels {
			if l.GetName() == k && l.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
