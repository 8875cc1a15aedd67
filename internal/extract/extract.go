// Package extract exports nightly records for every listing and annotates
// them with free-text model analysis. It backs the mairble-extract CLI.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/port"
	"github.com/mairble/mairble-backend-go/internal/pricing"
)

// Record is one unbooked night of one listing.
type Record struct {
	Date            string   `json:"date"`
	YourPrice       *float64 `json:"your_price"`
	MarketAvgPrice  *float64 `json:"market_avg_price"`
	MarketOccupancy *float64 `json:"market_occupancy"`
	BookingLeadTime *int     `json:"booking_lead_time"`
	Events          []string `json:"events"`
	DayOfWeek       string   `json:"day_of_week"`
	LastYearPrice   *float64 `json:"last_year_price"`
	ListingID       string   `json:"listing_id"`
	ListingName     string   `json:"listing_name"`
	Bedrooms        string   `json:"bedrooms,omitempty"`
	Location        string   `json:"location,omitempty"`
}

// AnalyzedRecord is a record with the model's answer. AIAnalysis is null
// when the call failed.
type AnalyzedRecord struct {
	Record
	AIAnalysis *string `json:"ai_analysis"`
}

// Options tunes the extractor.
type Options struct {
	// WindowDays is the span on each side of today.
	WindowDays  int
	Concurrency int
	Now         func() time.Time
}

// Extractor walks the provider's listings.
type Extractor struct {
	provider port.PricingProvider
	logger   *zap.Logger
	opts     Options
}

// NewExtractor creates an extractor. Defaults: 90 days, 3 listings at a time.
func NewExtractor(provider port.PricingProvider, logger *zap.Logger, opts Options) *Extractor {
	if opts.WindowDays <= 0 {
		opts.WindowDays = 90
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Extractor{provider: provider, logger: logger, opts: opts}
}

// Extract returns the unbooked nights of every listing from today-window
// to today+window. Listings whose prices cannot be fetched are skipped.
// Market fields come from the listing's own bedroom category only and are
// null when that category is missing.
func (e *Extractor) Extract(ctx context.Context, apiKey string) ([]Record, error) {
	listings, err := e.provider.Listings(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}

	today := e.opts.Now()
	from := today.AddDate(0, 0, -e.opts.WindowDays).Format(pricing.DateLayout)
	to := today.AddDate(0, 0, e.opts.WindowDays).Format(pricing.DateLayout)

	perListing := make([][]Record, len(listings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, l := range listings {
		g.Go(func() error {
			perListing[i] = e.listing(gctx, apiKey, l, from, to)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Record
	for _, recs := range perListing {
		out = append(out, recs...)
	}
	return out, nil
}

func (e *Extractor) listing(ctx context.Context, apiKey string, l domain.Listing, from, to string) []Record {
	logger := e.logger.With(zap.String("listing_id", l.ID), zap.String("listing_name", l.Name))
	logger.Info("processing listing")

	nights, err := e.provider.ListingPrices(ctx, apiKey, domain.PriceQuery{
		ListingID: l.ID,
		PMS:       l.PMS,
		DateFrom:  from,
		DateTo:    to,
	})
	if err != nil {
		logger.Warn("failed to fetch prices, skipping listing", zap.Error(err))
		return nil
	}

	nb, err := e.provider.NeighborhoodData(ctx, apiKey, l.ID, l.PMS)
	if err != nil {
		logger.Warn("failed to fetch market data", zap.Error(err))
		nb = nil
	}

	bedrooms := "1"
	if l.Bedrooms != nil {
		bedrooms = strconv.Itoa(*l.Bedrooms)
	}

	out := make([]Record, 0, len(nights))
	for _, n := range nights {
		if n.IsBooked() {
			continue
		}
		rec := Record{
			Date:            n.Date,
			YourPrice:       n.HostPrice(),
			BookingLeadTime: pricing.LeadTime(n.Reason),
			Events:          []string{},
			ListingID:       l.ID,
			ListingName:     l.Name,
			Bedrooms:        bedrooms,
			Location:        l.Location(),
		}
		if d, err := time.Parse(pricing.DateLayout, n.Date); err == nil {
			rec.DayOfWeek = d.Weekday().String()
		}
		if v, ok := pricing.MarketPriceExact(nb, n.Date, bedrooms); ok {
			rec.MarketAvgPrice = &v
		}
		if v, ok := pricing.OccupancyExact(nb, n.Date, bedrooms); ok {
			rec.MarketOccupancy = &v
		}
		out = append(out, rec)
	}
	logger.Info("listing processed", zap.Int("records", len(out)))
	return out
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON[T Record | AnalyzedRecord](w io.Writer, records []T) error {
	if records == nil {
		records = []T{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// ReadJSON reads a JSON array of records.
func ReadJSON(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
