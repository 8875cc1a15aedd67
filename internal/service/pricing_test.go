package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/infra/cache"
	"github.com/mairble/mairble-backend-go/internal/infra/observability"
	"github.com/mairble/mairble-backend-go/internal/infra/resilience"
	"github.com/mairble/mairble-backend-go/internal/port"
	"github.com/mairble/mairble-backend-go/internal/prompts"
	"github.com/mairble/mairble-backend-go/internal/service"
)

// --- Mocks ---

type mockProvider struct {
	mu           sync.Mutex
	nights       []domain.Night
	nightsErr    error
	nb           json.RawMessage
	nbErr        error
	listings     []domain.Listing
	listingsErr  error
	listingCalls int
	queries      []domain.PriceQuery
	apiKeys      []string
}

func (m *mockProvider) ListingPrices(_ context.Context, apiKey string, q domain.PriceQuery) ([]domain.Night, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	m.apiKeys = append(m.apiKeys, apiKey)
	return m.nights, m.nightsErr
}

func (m *mockProvider) NeighborhoodData(_ context.Context, _, _, _ string) (json.RawMessage, error) {
	return m.nb, m.nbErr
}

func (m *mockProvider) Listings(_ context.Context, _ string) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listingCalls++
	return m.listings, m.listingsErr
}

type mockLLM struct {
	mu       sync.Mutex
	reply    func(req *domain.CompletionRequest) (*domain.Completion, error)
	requests []*domain.CompletionRequest
}

func (m *mockLLM) Complete(_ context.Context, req *domain.CompletionRequest) (*domain.Completion, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.reply(req)
}

func (m *mockLLM) Provider() string { return "openai" }

func textReply(content string) func(*domain.CompletionRequest) (*domain.Completion, error) {
	return func(*domain.CompletionRequest) (*domain.Completion, error) {
		return &domain.Completion{Content: content, Usage: domain.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
	}
}

// --- Helpers ---

var fixedNow = func() time.Time { return time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC) }

func f64(v float64) *float64 { return &v }

func newPricing(t *testing.T, provider *mockProvider, llm *mockLLM, opts service.PricingOptions) *service.Pricing {
	t.Helper()
	catalog, err := prompts.Load()
	if err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	if opts.ListingID == "" {
		opts.ListingID = "L1"
	}
	c := cache.New[[]domain.Listing](time.Minute)
	t.Cleanup(c.Close)

	var client port.LLMClient
	if llm != nil {
		client = llm
	}
	return service.NewPricing(provider, client, c, catalog, resilience.NewBulkhead(2), observability.NewMetrics(), zap.NewNop(), opts)
}

// --- Fetch ---

func TestFetchPricingData_FiltersAndDefaults(t *testing.T) {
	provider := &mockProvider{
		nights: []domain.Night{
			{Date: "2025-07-01", Price: f64(500), BookingStatus: "Booked"},
			{Date: "2025-07-02", Price: f64(510), Unbookable: 1},
			{Date: "2025-07-03", Price: f64(-1)},
			{Date: "2025-07-04", Price: f64(520), DemandDesc: "unavailable"},
			{Date: "2025-07-05", Price: f64(530), UserPrice: f64(540), DemandDesc: "High Demand"},
		},
		nbErr: errors.New("neighborhood down"),
	}
	svc := newPricing(t, provider, nil, service.PricingOptions{})

	nights, err := svc.FetchPricingData(context.Background(), &domain.FetchRequest{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(nights) != 1 {
		t.Fatalf("expected 1 night, got %d", len(nights))
	}
	n := nights[0]
	if n.Date != "2025-07-05" || *n.YourPrice != 540 {
		t.Errorf("unexpected night: %+v", n)
	}
	if n.MarketSource != domain.MarketSourceEstimate {
		t.Errorf("expected seasonal estimate without neighborhood data, got %q", n.MarketSource)
	}

	q := provider.queries[0]
	if q.ListingID != "L1" || q.PMS != "yourporter" {
		t.Errorf("unexpected listing in query: %+v", q)
	}
	if q.DateFrom != "2025-07-01" || q.DateTo != "2025-09-29" {
		t.Errorf("unexpected default range: %s..%s", q.DateFrom, q.DateTo)
	}
}

func TestFetchPricingData_LimitsNights(t *testing.T) {
	var nights []domain.Night
	for d := 1; d <= 9; d++ {
		nights = append(nights, domain.Night{Date: time.Date(2025, 7, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), Price: f64(400)})
	}
	svc := newPricing(t, &mockProvider{nights: nights}, nil, service.PricingOptions{MaxNights: 3})

	got, err := svc.FetchPricingData(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 nights, got %d", len(got))
	}
}

func TestFetchPricingData_DemoFallbackOnProviderError(t *testing.T) {
	provider := &mockProvider{nightsErr: errors.New("boom")}
	svc := newPricing(t, provider, nil, service.PricingOptions{DemoFallback: true})

	nights, err := svc.FetchPricingData(context.Background(), &domain.FetchRequest{})
	if err != nil {
		t.Fatalf("expected demo nights, got error %v", err)
	}
	if len(nights) != 5 {
		t.Errorf("expected 5 demo nights, got %d", len(nights))
	}
}

func TestFetchPricingData_ErrorWithoutFallback(t *testing.T) {
	provider := &mockProvider{nightsErr: errors.New("boom")}
	svc := newPricing(t, provider, nil, service.PricingOptions{})

	_, err := svc.FetchPricingData(context.Background(), &domain.FetchRequest{})
	if err == nil || !strings.Contains(err.Error(), "listing prices fetch") {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}

func TestFetchPricingData_EmptyResult(t *testing.T) {
	provider := &mockProvider{nights: []domain.Night{{Date: "2025-07-01", Price: f64(500), BookingStatus: "booked"}}}
	svc := newPricing(t, provider, nil, service.PricingOptions{})

	_, err := svc.FetchPricingData(context.Background(), &domain.FetchRequest{})
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchPricingData_InvalidDate(t *testing.T) {
	svc := newPricing(t, &mockProvider{}, nil, service.PricingOptions{})

	_, err := svc.FetchPricingData(context.Background(), &domain.FetchRequest{DateFrom: "07/01/2025"})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) || ve.Field != "date_from" {
		t.Fatalf("expected date_from validation error, got %v", err)
	}
}

func TestFetchPricingData_CancelledContext(t *testing.T) {
	svc := newPricing(t, &mockProvider{}, nil, service.PricingOptions{DemoFallback: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.FetchPricingData(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// --- Analyze ---

func TestAnalyzePricing_NotConfigured(t *testing.T) {
	svc := newPricing(t, &mockProvider{}, nil, service.PricingOptions{LLMKeySetting: "ANTHROPIC_API_KEY"})

	_, err := svc.AnalyzePricing(context.Background(), &domain.AnalyzeRequest{Nights: []domain.NightData{{Date: "2025-07-01"}}})
	var nc *domain.ErrNotConfigured
	if !errors.As(err, &nc) || nc.Setting != "ANTHROPIC_API_KEY" {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestAnalyzePricing_NoNights(t *testing.T) {
	svc := newPricing(t, &mockProvider{}, &mockLLM{reply: textReply("{}")}, service.PricingOptions{})

	_, err := svc.AnalyzePricing(context.Background(), &domain.AnalyzeRequest{})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAnalyzePricing_KeepsOrderAndLimits(t *testing.T) {
	llm := &mockLLM{reply: func(req *domain.CompletionRequest) (*domain.Completion, error) {
		prompt := req.Messages[0].Content
		// answer slower for earlier dates so completion order differs from input order
		if strings.Contains(prompt, "2025-07-01") {
			time.Sleep(20 * time.Millisecond)
		}
		date := prompt[strings.Index(prompt, "Date: ")+6 : strings.Index(prompt, "Date: ")+16]
		return &domain.Completion{Content: `{"suggested_price": 600, "confidence": 90, "explanation": "` + date + `", "insight_tag": "Hold"}`}, nil
	}}
	svc := newPricing(t, &mockProvider{}, llm, service.PricingOptions{MaxNights: 3, AnalysisModel: "gpt-4"})

	var nights []domain.NightData
	for _, d := range []string{"2025-07-01", "2025-07-02", "2025-07-03", "2025-07-04"} {
		nights = append(nights, domain.NightData{Date: d, YourPrice: f64(500)})
	}
	results, err := svc.AnalyzePricing(context.Background(), &domain.AnalyzeRequest{Nights: nights})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Date != nights[i].Date || *r.Explanation != nights[i].Date {
			t.Errorf("result %d out of order: %+v", i, r)
		}
		if *r.SuggestedPrice != 600 || *r.Confidence != 90 {
			t.Errorf("unexpected result: %+v", r)
		}
	}
	for _, req := range llm.requests {
		if req.Model != "gpt-4" || req.MaxTokens != 256 || req.Temperature != 0.7 {
			t.Errorf("unexpected request settings: %+v", req)
		}
	}
}

func TestAnalyzePricing_FallbackOnLLMError(t *testing.T) {
	llm := &mockLLM{reply: func(*domain.CompletionRequest) (*domain.Completion, error) {
		return nil, &domain.ErrExternalService{Service: "openai", Err: errors.New("down")}
	}}
	svc := newPricing(t, &mockProvider{}, llm, service.PricingOptions{})

	results, err := svc.AnalyzePricing(context.Background(), &domain.AnalyzeRequest{Nights: []domain.NightData{
		{Date: "2025-07-01", YourPrice: f64(1000), MarketAvgPrice: f64(500)},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *results[0].InsightTag != service.TagOverpriced {
		t.Errorf("expected rule-based fallback, got %+v", results[0])
	}
}

func TestAnalyzePricing_PropertyContextInPrompt(t *testing.T) {
	llm := &mockLLM{reply: textReply(`{"suggested_price": 1, "confidence": 1, "explanation": "x", "insight_tag": "y"}`)}
	svc := newPricing(t, &mockProvider{}, llm, service.PricingOptions{})

	_, err := svc.AnalyzePricing(context.Background(), &domain.AnalyzeRequest{
		Nights:          []domain.NightData{{Date: "2025-07-01", YourPrice: f64(500)}},
		PropertyContext: &domain.PropertyContext{MainGuest: "Business", PricingGoal: domain.StringList{"Max Price"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt := llm.requests[0].Messages[0].Content
	for _, want := range []string{"MAIN GUEST: Business travelers", "PRICING STRATEGY: MAX PRICE", "REQUIRED JSON FORMAT"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

// --- Forecast / openings / listings ---

func TestRevenueForecast(t *testing.T) {
	provider := &mockProvider{nights: []domain.Night{
		{Date: "2025-07-02", Price: f64(500), ADR: f64(450), BookingStatus: "Booked"},
		{Date: "2025-07-03", Price: f64(500), UserPrice: f64(550)},
	}}
	svc := newPricing(t, provider, nil, service.PricingOptions{})

	f, err := svc.RevenueForecast(context.Background(), &domain.ForecastRequest{DateFrom: "2025-07-02", DateTo: "2025-07-03"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.BookedRevenue != 450 || f.PotentialRevenue != 550 {
		t.Errorf("unexpected forecast: %+v", f)
	}
}

func TestRevenueForecast_Validation(t *testing.T) {
	svc := newPricing(t, &mockProvider{}, nil, service.PricingOptions{})

	cases := []domain.ForecastRequest{
		{},
		{DateFrom: "2025-06-01", DateTo: "2025-06-05"},
		{DateFrom: "2025-07-05", DateTo: "2025-07-01"},
	}
	for _, req := range cases {
		_, err := svc.RevenueForecast(context.Background(), &req)
		var ve *domain.ErrValidation
		if !errors.As(err, &ve) {
			t.Errorf("%+v: expected validation error, got %v", req, err)
		}
	}
}

func TestOpenings_UsesCallerKeyAndWindow(t *testing.T) {
	provider := &mockProvider{nights: []domain.Night{
		{Date: "2025-07-01", Price: f64(500)},
		{Date: "2025-07-02", Price: f64(500)},
		{Date: "2025-07-03", Price: f64(500), BookingStatus: "Booked"},
	}}
	svc := newPricing(t, provider, nil, service.PricingOptions{OpeningsWindowDays: 30})

	o, err := svc.Openings(context.Background(), "user-key", "L9", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(o.Ranges) != 1 || o.Ranges[0].Nights != 2 || o.Booked != 1 {
		t.Errorf("unexpected openings: %+v", o)
	}
	if provider.apiKeys[0] != "user-key" || provider.queries[0].ListingID != "L9" || provider.queries[0].DateTo != "2025-07-31" {
		t.Errorf("unexpected provider call: key=%q query=%+v", provider.apiKeys[0], provider.queries[0])
	}
}

func TestListings_CachedPerKey(t *testing.T) {
	provider := &mockProvider{listings: []domain.Listing{{ID: "L1", Name: "Cliff House"}}}
	svc := newPricing(t, provider, nil, service.PricingOptions{})
	ctx := context.Background()

	for range 3 {
		if _, err := svc.Listings(ctx, "key-a"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := svc.Listings(ctx, "key-b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.listingCalls != 2 {
		t.Errorf("expected 2 provider calls, got %d", provider.listingCalls)
	}

	l, err := svc.FindListing(ctx, "key-a", "L1")
	if err != nil || l.Name != "Cliff House" {
		t.Errorf("expected listing, got %+v, %v", l, err)
	}
	if _, err := svc.FindListing(ctx, "key-a", "missing"); err == nil {
		t.Error("expected not found")
	}
}

func TestAnalyzePricing_BoundedConcurrency(t *testing.T) {
	var inFlight, peak int32
	llm := &mockLLM{reply: func(*domain.CompletionRequest) (*domain.Completion, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return &domain.Completion{Content: `{}`}, nil
	}}
	svc := newPricing(t, &mockProvider{}, llm, service.PricingOptions{MaxNights: 6})

	nights := make([]domain.NightData, 6)
	for i := range nights {
		nights[i] = domain.NightData{Date: "2025-07-01"}
	}
	if _, err := svc.AnalyzePricing(context.Background(), &domain.AnalyzeRequest{Nights: nights}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", peak)
	}
}
