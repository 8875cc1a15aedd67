package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	chatservice "github.com/mairble/mairble-backend-go/internal/chat/service"
	"github.com/mairble/mairble-backend-go/internal/config"
	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/handler"
	"github.com/mairble/mairble-backend-go/internal/infra/cache"
	"github.com/mairble/mairble-backend-go/internal/infra/observability"
	"github.com/mairble/mairble-backend-go/internal/infra/resilience"
	"github.com/mairble/mairble-backend-go/internal/port"
	"github.com/mairble/mairble-backend-go/internal/prompts"
	"github.com/mairble/mairble-backend-go/internal/service"
)

// --- Mocks ---

type mockProvider struct {
	nights   []domain.Night
	err      error
	listings []domain.Listing
	lastKey  string
}

func (m *mockProvider) ListingPrices(_ context.Context, apiKey string, _ domain.PriceQuery) ([]domain.Night, error) {
	m.lastKey = apiKey
	return m.nights, m.err
}

func (m *mockProvider) NeighborhoodData(_ context.Context, _, _, _ string) (json.RawMessage, error) {
	return nil, errors.New("no market data")
}

func (m *mockProvider) Listings(_ context.Context, apiKey string) ([]domain.Listing, error) {
	m.lastKey = apiKey
	return m.listings, m.err
}

type fixedLLM struct{ content string }

func (f fixedLLM) Complete(_ context.Context, _ *domain.CompletionRequest) (*domain.Completion, error) {
	return &domain.Completion{Content: f.content}, nil
}

func (fixedLLM) Provider() string { return "openai" }

// --- Helpers ---

func price(v float64) *float64 { return &v }

type testEnv struct {
	router   http.Handler
	provider *mockProvider
}

func newEnv(t *testing.T, cfg *config.Config, llm port.LLMClient, checks map[string]handler.Checker) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{Environment: "development", ListingID: "L1", PMS: "yourporter", LLMProvider: "openai"}
	}
	catalog := prompts.MustLoad()
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	listings := cache.New[[]domain.Listing](time.Minute)
	t.Cleanup(listings.Close)

	provider := &mockProvider{
		nights: []domain.Night{
			{Date: "2099-07-01", Price: price(500)},
			{Date: "2099-07-02", Price: price(520), BookingStatus: "Booked"},
		},
		listings: []domain.Listing{{ID: "L1", Name: "Cliff House"}},
	}
	pricingSvc := service.NewPricing(provider, llm, listings, catalog, resilience.NewBulkhead(2), metrics, logger, service.PricingOptions{
		ListingID: cfg.ListingID,
		PMS:       cfg.PMS,
	})
	chatSvc := chatservice.NewChatService(llm, nil, catalog, pricingSvc, metrics, logger, chatservice.Options{ListingID: cfg.ListingID})

	return &testEnv{
		router:   handler.NewRouter(pricingSvc, chatSvc, metrics, logger, handler.Options{Config: cfg, Checks: checks}),
		provider: provider,
	}
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// --- Operational ---

func TestHealthz(t *testing.T) {
	env := newEnv(t, nil, nil, nil)

	rec := env.do(http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status domain.HealthStatus
	json.NewDecoder(rec.Body).Decode(&status)
	if status.Status != "degraded" {
		t.Errorf("expected degraded without provider keys, got %q", status.Status)
	}
}

func TestReadyz(t *testing.T) {
	env := newEnv(t, nil, nil, map[string]handler.Checker{
		"redis": func(context.Context) error { return nil },
	})

	rec := env.do(http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz_FailingCheck(t *testing.T) {
	env := newEnv(t, nil, nil, map[string]handler.Checker{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := env.do(http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	env := newEnv(t, nil, nil, nil)
	env.do(http.MethodPost, "/fetch-pricing-data", "")

	rec := env.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mairble_requests_total") {
		t.Error("expected application metrics in exposition")
	}
}

func TestPing(t *testing.T) {
	env := newEnv(t, nil, nil, nil)

	if rec := env.do(http.MethodGet, "/ping", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRoot(t *testing.T) {
	cfg := &config.Config{Environment: "development", PriceLabsAPIKey: "pl", ListingID: "L1", PMS: "yourporter", LLMProvider: "openai"}
	env := newEnv(t, cfg, fixedLLM{}, nil)

	rec := env.do(http.MethodGet, "/", "")
	var root domain.RootStatus
	if err := json.NewDecoder(rec.Body).Decode(&root); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if root.Status != "healthy" || root.Message != "mAIrble Backend API is running!" || root.Version != "1.0.0" {
		t.Errorf("unexpected root: %+v", root)
	}
	if !root.Config.HasPriceLabsKey || !root.Config.HasLLMKey || root.Config.ListingID != "L1" || root.Config.Cache != "memory" {
		t.Errorf("unexpected config flags: %+v", root.Config)
	}
	if strings.Contains(rec.Body.String(), `"pl"`) {
		t.Error("root document must not leak keys")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t, nil, nil, nil)

	rec := env.do(http.MethodOptions, "/chat", "",
		"Origin", "http://localhost:19006",
		"Access-Control-Request-Method", "POST",
	)
	got := rec.Header().Get("Access-Control-Allow-Origin")
	if got != "*" && got != "http://localhost:19006" {
		t.Errorf("expected origin to be allowed, got %q", got)
	}
}

// --- API ---

func TestAPIKeyRequired(t *testing.T) {
	cfg := &config.Config{Environment: "development", ListingID: "L1", ServiceAPIKey: "secret"}
	env := newEnv(t, cfg, nil, nil)

	if rec := env.do(http.MethodPost, "/fetch-pricing-data", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/fetch-pricing-data", "", "Authorization", "Bearer wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/fetch-pricing-data", "", "Authorization", "Bearer secret"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("health endpoints must stay open, got %d", rec.Code)
	}
}

func TestFetchPricingData(t *testing.T) {
	env := newEnv(t, nil, nil, nil)

	rec := env.do(http.MethodPost, "/fetch-pricing-data", `{"date_from": "2099-07-01", "date_to": "2099-07-10"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var nights []domain.NightData
	json.NewDecoder(rec.Body).Decode(&nights)
	if len(nights) != 1 || nights[0].Date != "2099-07-01" {
		t.Errorf("unexpected nights: %+v", nights)
	}
}

func TestFetchPricingData_BadBody(t *testing.T) {
	env := newEnv(t, nil, nil, nil)

	if rec := env.do(http.MethodPost, "/fetch-pricing-data", `{"date_from":`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/fetch-pricing-data", `{"date_from": "tomorrow"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestFetchPricingData_ProviderDown(t *testing.T) {
	env := newEnv(t, nil, nil, nil)
	env.provider.err = &domain.ErrExternalService{Service: "pricelabs", Err: errors.New("boom")}

	if rec := env.do(http.MethodPost, "/fetch-pricing-data", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestAnalyzePricing(t *testing.T) {
	env := newEnv(t, nil, fixedLLM{content: `{"suggested_price": 610, "confidence": 82, "explanation": "Soft weekday.", "insight_tag": "Weekday Dip"}`}, nil)

	rec := env.do(http.MethodPost, "/analyze-pricing", `{"nights": [{"date": "2099-07-01", "your_price": 650, "market_avg_price": 600}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var results []domain.PricingResult
	json.NewDecoder(rec.Body).Decode(&results)
	if len(results) != 1 || *results[0].SuggestedPrice != 610 || *results[0].InsightTag != "Weekday Dip" {
		t.Errorf("unexpected results: %s", rec.Body.String())
	}
}

func TestAnalyzePricing_NotConfigured(t *testing.T) {
	env := newEnv(t, nil, nil, nil)

	rec := env.do(http.MethodPost, "/analyze-pricing", `{"nights": [{"date": "2099-07-01"}]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestRevenueForecast(t *testing.T) {
	env := newEnv(t, nil, nil, nil)

	rec := env.do(http.MethodPost, "/revenue-forecast", `{"date_from": "2099-07-01", "date_to": "2099-07-02"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var f domain.Forecast
	json.NewDecoder(rec.Body).Decode(&f)
	if f.BookedNights != 1 || f.AvailableNights != 1 {
		t.Errorf("unexpected forecast: %+v", f)
	}
}

func TestOpenings(t *testing.T) {
	env := newEnv(t, nil, nil, nil)

	rec := env.do(http.MethodGet, "/openings?listing_id=L7", "", "X-API-Key", "host-key")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var o domain.Openings
	json.NewDecoder(rec.Body).Decode(&o)
	if o.ListingID != "L7" || len(o.Ranges) != 1 {
		t.Errorf("unexpected openings: %+v", o)
	}
	if env.provider.lastKey != "host-key" {
		t.Errorf("expected caller key to reach provider, got %q", env.provider.lastKey)
	}
}

func TestListings(t *testing.T) {
	env := newEnv(t, nil, nil, nil)

	rec := env.do(http.MethodGet, "/listings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Cliff House") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestChat(t *testing.T) {
	env := newEnv(t, nil, fixedLLM{content: "Hello host"}, nil)

	rec := env.do(http.MethodPost, "/chat", `{"message": "hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"response":"Hello host"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestUsageMetrics(t *testing.T) {
	env := newEnv(t, nil, fixedLLM{content: "Hello"}, nil)
	env.do(http.MethodPost, "/chat", `{"message": "hi"}`)

	rec := env.do(http.MethodGet, "/v1/metrics/usage", "")
	var usage domain.UsageMetrics
	json.NewDecoder(rec.Body).Decode(&usage)
	if usage.ChatRequests != 1 {
		t.Errorf("expected 1 chat request, got %+v", usage)
	}
}
