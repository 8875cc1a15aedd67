package handler

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/service"
)

// ============================================================
// POST /fetch-pricing-data
// ============================================================

func fetchPricingHandler(svc *service.Pricing, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /fetch-pricing-data")
		defer span.End()

		var req domain.FetchRequest
		if err := decodeBody(w, r, &req, true); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		nights, err := svc.FetchPricingData(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("nights", len(nights)))

		writeJSON(w, http.StatusOK, nights)
	}
}

// ============================================================
// POST /analyze-pricing
// ============================================================

func analyzePricingHandler(svc *service.Pricing, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /analyze-pricing")
		defer span.End()

		var req domain.AnalyzeRequest
		if err := decodeBody(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("nights", len(req.Nights)))

		results, err := svc.AnalyzePricing(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, results)
	}
}

// ============================================================
// POST /revenue-forecast
// ============================================================

func revenueForecastHandler(svc *service.Pricing, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /revenue-forecast")
		defer span.End()

		var req domain.ForecastRequest
		if err := decodeBody(w, r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		forecast, err := svc.RevenueForecast(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, forecast)
	}
}

// ============================================================
// GET /openings?listing_id=&pms=
// ============================================================

func openingsHandler(svc *service.Pricing, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /openings")
		defer span.End()

		q := r.URL.Query()
		openings, err := svc.Openings(ctx, providerKey(r), q.Get("listing_id"), q.Get("pms"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("ranges", len(openings.Ranges)))

		writeJSON(w, http.StatusOK, openings)
	}
}

// ============================================================
// GET /listings
// ============================================================

func listingsHandler(svc *service.Pricing, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /listings")
		defer span.End()

		listings, err := svc.Listings(ctx, providerKey(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("listings", len(listings)))

		writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
	}
}
