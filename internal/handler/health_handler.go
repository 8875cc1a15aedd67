package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/config"
	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/infra/observability"
	"github.com/mairble/mairble-backend-go/internal/service"
)

const checkTimeout = 2 * time.Second

func rootHandler(cfg *config.Config, pricingSvc *service.Pricing, cacheKind string) http.HandlerFunc {
	if cacheKind == "" {
		cacheKind = "memory"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.RootStatus{
			Status:      "healthy",
			Message:     "mAIrble Backend API is running!",
			Version:     Version,
			Environment: cfg.Environment,
			Config: domain.RootConfig{
				HasPriceLabsKey: cfg.PriceLabsAPIKey != "",
				HasLLMKey:       pricingSvc != nil && pricingSvc.HasLLM(),
				LLMProvider:     cfg.LLMProvider,
				ListingID:       cfg.ListingID,
				PMS:             cfg.PMS,
				Cache:           cacheKind,
			},
		})
	}
}

// healthzHandler reports the integrations from configuration only; it
// never calls the providers.
func healthzHandler(cfg *config.Config, pricingSvc *service.Pricing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "mairble-api", Status: "healthy", LastChecked: now},
			{Name: "pricelabs", Status: configured(cfg.PriceLabsAPIKey != ""), LastChecked: now},
			{Name: "llm", Status: configured(pricingSvc != nil && pricingSvc.HasLLM()), LastChecked: now},
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func configured(ok bool) string {
	if ok {
		return "healthy"
	}
	return "degraded"
}

// readyzHandler runs the dependency checks; 503 when any fails.
func readyzHandler(checks map[string]Checker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		status := domain.HealthStatus{Status: "ready", Services: []domain.ServiceHealth{}}
		code := http.StatusOK

		for name, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			start := time.Now()
			err := check(ctx)
			cancel()

			s := domain.ServiceHealth{Name: name, Status: "healthy", LatencyMs: time.Since(start).Milliseconds(), LastChecked: now}
			if err != nil {
				logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
				s.Status = "unhealthy"
				status.Status = "not_ready"
				code = http.StatusServiceUnavailable
			}
			status.Services = append(status.Services, s)
		}

		writeJSON(w, code, status)
	}
}

func usageMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetUsageSnapshot())
	}
}
