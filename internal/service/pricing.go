package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/infra/observability"
	"github.com/mairble/mairble-backend-go/internal/infra/resilience"
	"github.com/mairble/mairble-backend-go/internal/port"
	"github.com/mairble/mairble-backend-go/internal/pricing"
	"github.com/mairble/mairble-backend-go/internal/prompts"
)

var tracer = otel.Tracer("service/pricing")

// PricingOptions are the knobs of the pricing service. Zero values get
// the defaults used by the config package.
type PricingOptions struct {
	ListingID          string
	PMS                string
	AnalysisModel      string
	LLMKeySetting      string // env name reported when no LLM is configured
	DemoFallback       bool
	MaxNights          int
	FetchWindowDays    int
	OpeningsWindowDays int
	Now                func() time.Time
}

// Pricing serves nightly pricing data, LLM analysis, openings and forecasts.
type Pricing struct {
	provider port.PricingProvider
	llm      port.LLMClient
	listings port.Cache[[]domain.Listing]
	prompts  *prompts.Catalog
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
	opts     PricingOptions
}

// NewPricing creates the pricing service with all dependencies injected.
// llm may be nil when no provider key is configured; analysis then
// reports ErrNotConfigured.
func NewPricing(
	provider port.PricingProvider,
	llm port.LLMClient,
	listings port.Cache[[]domain.Listing],
	catalog *prompts.Catalog,
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts PricingOptions,
) *Pricing {
	if opts.MaxNights <= 0 {
		opts.MaxNights = 5
	}
	if opts.FetchWindowDays <= 0 {
		opts.FetchWindowDays = 90
	}
	if opts.OpeningsWindowDays <= 0 {
		opts.OpeningsWindowDays = 60
	}
	if opts.PMS == "" {
		opts.PMS = "yourporter"
	}
	if opts.LLMKeySetting == "" {
		opts.LLMKeySetting = "OPENAI_API_KEY"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if bulkhead == nil {
		bulkhead = resilience.NewBulkhead(5)
	}
	return &Pricing{
		provider: provider,
		llm:      llm,
		listings: listings,
		prompts:  catalog,
		bulkhead: bulkhead,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// OpeningsWindowDays is the availability window used by Openings.
func (p *Pricing) OpeningsWindowDays() int { return p.opts.OpeningsWindowDays }

// HasLLM reports whether an LLM provider is configured.
func (p *Pricing) HasLLM() bool { return p.llm != nil }

// FetchPricingData returns the next unbooked nights with market context.
// When the provider fails or nothing bookable comes back, demo nights are
// served if the demo fallback is enabled.
func (p *Pricing) FetchPricingData(ctx context.Context, req *domain.FetchRequest) (_ []domain.NightData, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Pricing.FetchPricingData")
	defer span.End()

	start := time.Now()
	defer func() {
		p.metrics.RecordRequestDuration("fetch", time.Since(start))
		p.metrics.IncrRequest("fetch", outcome(err))
	}()

	if req == nil {
		req = &domain.FetchRequest{}
	}
	today := p.opts.Now()
	from, to, err := dateRange(req.DateFrom, req.DateTo, today, p.opts.FetchWindowDays)
	if err != nil {
		return nil, err
	}

	listingID, pms := p.listing(req.ListingID, req.PMS)
	span.SetAttributes(
		attribute.String("listing.id", listingID),
		attribute.String("date.from", from),
		attribute.String("date.to", to),
	)
	if listingID == "" {
		return p.demoOr(&domain.ErrNotConfigured{Setting: "LISTING_ID"})
	}

	var (
		nights []domain.Night
		nb     json.RawMessage
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := p.provider.ListingPrices(gCtx, "", domain.PriceQuery{
			ListingID: listingID,
			PMS:       pms,
			DateFrom:  from,
			DateTo:    to,
		})
		if err != nil {
			p.logger.Error("failed to fetch listing prices",
				zap.String("listing_id", listingID),
				zap.Error(err),
			)
			p.metrics.IncrExternalError("pricelabs")
			return fmt.Errorf("listing prices fetch: %w", err)
		}
		nights = n
		return nil
	})

	g.Go(func() error {
		data, err := p.provider.NeighborhoodData(gCtx, "", listingID, pms)
		if err != nil {
			// the seasonal estimate covers missing market data
			p.logger.Warn("neighborhood data unavailable",
				zap.String("listing_id", listingID),
				zap.Error(err),
			)
			return nil
		}
		nb = data
		return nil
	})

	if err := g.Wait(); err != nil {
		return p.demoOr(err)
	}

	bedrooms := req.Bedrooms
	if bedrooms == "" {
		bedrooms = p.cachedBedrooms("", listingID)
	}

	out := pricing.AvailableNights(nights, nb, bedrooms, p.opts.MaxNights)
	if len(out) == 0 {
		p.logger.Info("no bookable nights in range",
			zap.String("listing_id", listingID),
			zap.Int("nights", len(nights)),
		)
		return p.demoOr(&domain.ErrNotFound{Resource: "bookable nights", ID: listingID})
	}
	return out, nil
}

func (p *Pricing) demoOr(err error) ([]domain.NightData, error) {
	if !p.opts.DemoFallback {
		return nil, err
	}
	p.logger.Warn("serving demo nights", zap.Error(err))
	p.metrics.IncrFallback(observability.FallbackDemoData)
	return pricing.DemoNights(), nil
}

// AnalyzePricing asks the LLM for a recommendation per night. Calls run in
// parallel under the bulkhead and results keep the input order. A failed
// call degrades to the rule-based recommendation for that night.
func (p *Pricing) AnalyzePricing(ctx context.Context, req *domain.AnalyzeRequest) (_ []domain.PricingResult, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Pricing.AnalyzePricing")
	defer span.End()

	start := time.Now()
	defer func() {
		p.metrics.RecordRequestDuration("analyze", time.Since(start))
		p.metrics.IncrRequest("analyze", outcome(err))
	}()

	if p.llm == nil {
		return nil, &domain.ErrNotConfigured{Setting: p.opts.LLMKeySetting}
	}
	if req == nil || len(req.Nights) == 0 {
		return nil, &domain.ErrValidation{Field: "nights", Message: "at least one night is required"}
	}

	nights := req.Nights
	if len(nights) > p.opts.MaxNights {
		nights = nights[:p.opts.MaxNights]
	}
	model := req.Model
	if model == "" {
		model = p.opts.AnalysisModel
	}
	span.SetAttributes(
		attribute.Int("nights", len(nights)),
		attribute.String("llm.model", model),
	)

	location := p.cachedLocation()
	results := make([]domain.PricingResult, len(nights))

	var g errgroup.Group
	for i, night := range nights {
		g.Go(func() error {
			return p.bulkhead.Do(ctx, func() error {
				results[i] = p.analyzeNight(ctx, night, model, location, req.PropertyContext)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.metrics.AddNightsAnalyzed(len(results))
	return results, nil
}

func (p *Pricing) analyzeNight(ctx context.Context, night domain.NightData, model, location string, pc *domain.PropertyContext) domain.PricingResult {
	prompt, err := p.prompts.Analysis(prompts.AnalysisData{Night: night, Location: location, Context: pc})
	if err != nil {
		p.logger.Error("render analysis prompt", zap.String("date", night.Date), zap.Error(err))
		return p.fallback(night)
	}

	completion, err := p.llm.Complete(ctx, &domain.CompletionRequest{
		Model:       model,
		Messages:    []domain.LLMMessage{{Role: domain.RoleUser, Content: prompt}},
		MaxTokens:   analysisMaxTokens,
		Temperature: analysisTemperature,
	})
	if err != nil {
		p.logger.Warn("pricing analysis failed, using rule-based fallback",
			zap.String("date", night.Date),
			zap.Error(err),
		)
		p.metrics.IncrExternalError(p.llm.Provider())
		return p.fallback(night)
	}
	p.metrics.RecordTokens(p.llm.Provider(), completion.Usage)

	return resultFromContent(night, completion.Content)
}

func (p *Pricing) fallback(night domain.NightData) domain.PricingResult {
	p.metrics.IncrFallback(observability.FallbackRuleBased)
	return RuleBasedAnalysis(night)
}

// RevenueForecast splits a date range into booked and potential revenue.
func (p *Pricing) RevenueForecast(ctx context.Context, req *domain.ForecastRequest) (_ *domain.Forecast, err error) {
	ctx, span := tracer.Start(ctx, "Pricing.RevenueForecast")
	defer span.End()

	start := time.Now()
	defer func() {
		p.metrics.RecordRequestDuration("forecast", time.Since(start))
		p.metrics.IncrRequest("forecast", outcome(err))
	}()

	if req == nil || req.DateFrom == "" || req.DateTo == "" {
		return nil, &domain.ErrValidation{Field: "date_from", Message: "date_from and date_to are required"}
	}
	from, to, err := dateRange(req.DateFrom, req.DateTo, p.opts.Now(), 0)
	if err != nil {
		return nil, err
	}
	today := p.opts.Now().Format(pricing.DateLayout)
	if from < today {
		return nil, &domain.ErrValidation{Field: "date_from", Message: "cannot forecast past dates"}
	}

	listingID, pms := p.listing(req.ListingID, req.PMS)
	if listingID == "" {
		return nil, &domain.ErrNotConfigured{Setting: "LISTING_ID"}
	}

	nights, err := p.provider.ListingPrices(ctx, "", domain.PriceQuery{
		ListingID: listingID,
		PMS:       pms,
		DateFrom:  from,
		DateTo:    to,
	})
	if err != nil {
		p.metrics.IncrExternalError("pricelabs")
		return nil, fmt.Errorf("forecast prices fetch: %w", err)
	}

	f := pricing.Forecast(nights, from, to)
	return &f, nil
}

// Openings returns the consecutive unbooked ranges of a listing over the
// next OpeningsWindowDays. apiKey may be empty to use the configured key.
func (p *Pricing) Openings(ctx context.Context, apiKey, listingID, pms string) (*domain.Openings, error) {
	ctx, span := tracer.Start(ctx, "Pricing.Openings")
	defer span.End()

	listingID, pms = p.listing(listingID, pms)
	span.SetAttributes(attribute.String("listing.id", listingID))
	if listingID == "" {
		return nil, &domain.ErrNotConfigured{Setting: "LISTING_ID"}
	}

	today := p.opts.Now()
	nights, err := p.provider.ListingPrices(ctx, apiKey, domain.PriceQuery{
		ListingID: listingID,
		PMS:       pms,
		DateFrom:  today.Format(pricing.DateLayout),
		DateTo:    today.AddDate(0, 0, p.opts.OpeningsWindowDays).Format(pricing.DateLayout),
	})
	if err != nil {
		p.metrics.IncrExternalError("pricelabs")
		return nil, fmt.Errorf("openings prices fetch: %w", err)
	}

	o := pricing.FindOpenings(listingID, nights, p.opts.OpeningsWindowDays)
	return &o, nil
}

// Listings returns the provider's listing catalog, cached per API key.
func (p *Pricing) Listings(ctx context.Context, apiKey string) ([]domain.Listing, error) {
	ctx, span := tracer.Start(ctx, "Pricing.Listings")
	defer span.End()

	key := listingsKey(apiKey)
	if cached, ok := p.listings.Get(key); ok {
		p.metrics.IncrCacheHit("listings")
		return cached, nil
	}
	p.metrics.IncrCacheMiss("listings")

	listings, err := p.provider.Listings(ctx, apiKey)
	if err != nil {
		p.metrics.IncrExternalError("pricelabs")
		return nil, fmt.Errorf("listings fetch: %w", err)
	}
	p.listings.Set(key, listings)
	return listings, nil
}

// FindListing looks a listing up in the catalog. Lookup failures are
// reported as not found; callers treat the catalog as best effort.
func (p *Pricing) FindListing(ctx context.Context, apiKey, listingID string) (*domain.Listing, error) {
	listings, err := p.Listings(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		if listings[i].ID == listingID {
			return &listings[i], nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "listing", ID: listingID}
}

func (p *Pricing) listing(id, pms string) (string, string) {
	if id == "" {
		id = p.opts.ListingID
	}
	if pms == "" {
		pms = p.opts.PMS
	}
	return id, pms
}

// cachedBedrooms reads the bedroom count from an already cached catalog.
// It never calls the provider.
func (p *Pricing) cachedBedrooms(apiKey, listingID string) string {
	if l := p.cachedListing(apiKey, listingID); l != nil && l.Bedrooms != nil {
		return (&domain.SelectedProperty{Bedrooms: l.Bedrooms}).BedroomKey()
	}
	return ""
}

func (p *Pricing) cachedLocation() string {
	if l := p.cachedListing("", p.opts.ListingID); l != nil {
		return l.Location()
	}
	return ""
}

func (p *Pricing) cachedListing(apiKey, listingID string) *domain.Listing {
	if listingID == "" {
		return nil
	}
	listings, ok := p.listings.Get(listingsKey(apiKey))
	if !ok {
		return nil
	}
	for i := range listings {
		if listings[i].ID == listingID {
			return &listings[i]
		}
	}
	return nil
}

// listingsKey keeps raw API keys out of the cache keyspace.
func listingsKey(apiKey string) string {
	if apiKey == "" {
		return "listings:default"
	}
	sum := sha256.Sum256([]byte(apiKey))
	return "listings:" + hex.EncodeToString(sum[:8])
}

// dateRange validates optional yyyy-mm-dd bounds and fills the defaults
// today and today+windowDays.
func dateRange(from, to string, today time.Time, windowDays int) (string, string, error) {
	if from == "" {
		from = today.Format(pricing.DateLayout)
	}
	if to == "" {
		to = today.AddDate(0, 0, windowDays).Format(pricing.DateLayout)
	}
	f, err := time.Parse(pricing.DateLayout, from)
	if err != nil {
		return "", "", &domain.ErrValidation{Field: "date_from", Message: "expected YYYY-MM-DD"}
	}
	t, err := time.Parse(pricing.DateLayout, to)
	if err != nil {
		return "", "", &domain.ErrValidation{Field: "date_to", Message: "expected YYYY-MM-DD"}
	}
	if t.Before(f) {
		return "", "", &domain.ErrValidation{Field: "date_to", Message: "must not be before date_from"}
	}
	return from, to, nil
}

// outcome is the status label of a request counter.
func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
