package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	chathandler "github.com/mairble/mairble-backend-go/internal/chat/handler"
	chatservice "github.com/mairble/mairble-backend-go/internal/chat/service"
	"github.com/mairble/mairble-backend-go/internal/config"
	"github.com/mairble/mairble-backend-go/internal/infra/observability"
	"github.com/mairble/mairble-backend-go/internal/service"
)

var tracer = otel.Tracer("handler")

// Version is reported by GET /.
const Version = "1.0.0"

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

// Options carries what the operational endpoints report.
type Options struct {
	Config *config.Config
	// Cache names the listing cache backend: "memory" or "redis".
	Cache string
	// Checks are run by /readyz; any failure makes the service not ready.
	Checks map[string]Checker
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	pricingSvc *service.Pricing,
	chatSvc *chatservice.ChatService,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts Options,
) http.Handler {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TraceContextMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/", rootHandler(cfg, pricingSvc, opts.Cache))
	r.Get("/healthz", healthzHandler(cfg, pricingSvc))
	r.Get("/readyz", readyzHandler(opts.Checks, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API ---
	r.Group(func(r chi.Router) {
		r.Use(APIKeyMiddleware(cfg.ServiceAPIKey, logger))

		r.Post("/fetch-pricing-data", fetchPricingHandler(pricingSvc, logger))
		r.Post("/analyze-pricing", analyzePricingHandler(pricingSvc, logger))
		r.Post("/revenue-forecast", revenueForecastHandler(pricingSvc, logger))
		r.Get("/openings", openingsHandler(pricingSvc, logger))
		r.Get("/listings", listingsHandler(pricingSvc, logger))

		if chatSvc != nil {
			r.Post("/chat", chathandler.ChatHandler(chatSvc, logger))
		}

		r.Get("/v1/metrics/usage", usageMetricsHandler(metrics))
	})

	return r
}
