// Package llm adapts language model providers to port.LLMClient.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/infra/resilience"
	"github.com/mairble/mairble-backend-go/internal/port"
)

var tracer = otel.Tracer("llm")

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const defaultMaxTokens = 1024

// Options configures a provider adapter.
type Options struct {
	Provider   string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Breaker    *gobreaker.CircuitBreaker
	Resilience resilience.Config
	Logger     *zap.Logger
}

// New returns the adapter for opts.Provider. An empty key yields an error
// so callers can run without a model and report ErrNotConfigured.
func New(opts Options) (port.LLMClient, error) {
	if opts.APIKey == "" {
		return nil, &domain.ErrNotConfigured{Setting: strings.ToUpper(opts.Provider) + "_API_KEY"}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker(opts.Provider, nil)
	}

	switch opts.Provider {
	case ProviderOpenAI, "":
		return NewOpenAI(opts), nil
	case ProviderAnthropic:
		return NewAnthropic(opts), nil
	default:
		return nil, &domain.ErrValidation{Field: "LLM_PROVIDER", Message: "unsupported provider " + opts.Provider}
	}
}

// guarded wraps one SDK call in a span, the circuit breaker and retries.
// classify maps SDK errors to domain.ErrUpstreamStatus so client errors
// are not retried.
func guarded(ctx context.Context, provider string, req *domain.CompletionRequest, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger, classify func(error) error, call func(ctx context.Context) (*domain.Completion, error)) (*domain.Completion, error) {
	ctx, span := tracer.Start(ctx, "LLM.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
	)

	start := time.Now()
	var out *domain.Completion
	err := resilience.Call(ctx, cb, cfg, func() error {
		c, err := call(ctx)
		if err != nil {
			return classify(err)
		}
		out = c
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("llm call failed",
			zap.String("provider", provider),
			zap.String("model", req.Model),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		var open *domain.ErrCircuitOpen
		if errors.As(err, &open) {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: provider, Err: err}
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.prompt", out.Usage.PromptTokens),
		attribute.Int("llm.tokens.completion", out.Usage.CompletionTokens),
		attribute.Int("llm.tool_calls", len(out.ToolCalls)),
	)
	logger.Debug("llm call completed",
		zap.String("provider", provider),
		zap.String("model", out.Model),
		zap.String("finish_reason", out.FinishReason),
		zap.Int("tokens", out.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)
	return out, nil
}

func maxTokens(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}
