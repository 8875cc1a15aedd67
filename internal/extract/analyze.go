package extract

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/port"
	"github.com/mairble/mairble-backend-go/internal/prompts"
)

// DefaultInterval spaces model calls to stay under provider rate limits.
const DefaultInterval = 1200 * time.Millisecond

// Analyzer asks the model for a free-text recommendation per record.
type Analyzer struct {
	llm      port.LLMClient
	prompts  *prompts.Catalog
	limiter  *rate.Limiter
	model    string
	location string
	logger   *zap.Logger
}

// NewAnalyzer creates an analyzer issuing at most one call per interval.
// location is used for records that carry none.
func NewAnalyzer(llm port.LLMClient, catalog *prompts.Catalog, model, location string, interval time.Duration, logger *zap.Logger) *Analyzer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Analyzer{
		llm:      llm,
		prompts:  catalog,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		model:    model,
		location: location,
		logger:   logger,
	}
}

// Analyze annotates every record, in order. A failed call leaves
// AIAnalysis null and moves on; only cancellation stops the run.
func (a *Analyzer) Analyze(ctx context.Context, records []Record) ([]AnalyzedRecord, error) {
	out := make([]AnalyzedRecord, len(records))
	for i, rec := range records {
		out[i].Record = rec
	}

	for i := range out {
		if err := a.limiter.Wait(ctx); err != nil {
			return out[:i], err
		}
		rec := &out[i]
		a.logger.Info("analyzing night", zap.String("date", rec.Date), zap.String("listing_name", rec.ListingName))

		text, err := a.analyze(ctx, &rec.Record)
		if err != nil {
			if ctx.Err() != nil {
				return out[:i], ctx.Err()
			}
			a.logger.Warn("analysis failed", zap.String("date", rec.Date), zap.Error(err))
			continue
		}
		rec.AIAnalysis = &text
	}
	return out, nil
}

func (a *Analyzer) analyze(ctx context.Context, rec *Record) (string, error) {
	location := rec.Location
	if location == "" {
		location = a.location
	}
	prompt, err := a.prompts.RecordAnalysis(prompts.RecordData{
		Date:      rec.Date,
		Bedrooms:  rec.Bedrooms,
		Location:  location,
		Price:     rec.YourPrice,
		Market:    rec.MarketAvgPrice,
		Occupancy: rec.MarketOccupancy,
		DayOfWeek: rec.DayOfWeek,
		Events:    rec.Events,
		LeadTime:  rec.BookingLeadTime,
	})
	if err != nil {
		return "", err
	}

	resp, err := a.llm.Complete(ctx, &domain.CompletionRequest{
		Model:    a.model,
		Messages: []domain.LLMMessage{{Role: domain.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
