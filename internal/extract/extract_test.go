package extract_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/extract"
	"github.com/mairble/mairble-backend-go/internal/prompts"
)

const neighborhood = `{
  "Future Percentile Prices": {
    "Labels": ["25th Percentile", "50th Percentile", "75th Percentile", "Median Booked Price"],
    "Category": {
      "3": {
        "X_values": ["2025-07-01", "2025-07-02"],
        "Y_values": [[500, 510], [650, 660], [800, 810], [700, 710]]
      }
    }
  },
  "Future Occ/New/Canc": {
    "Labels": ["Occupancy"],
    "Category": {
      "3": {
        "X_values": ["2025-07-01", "2025-07-02"],
        "Y_values": [[[0.42, 0.55]]]
      }
    }
  }
}`

type mockProvider struct {
	mu       sync.Mutex
	listings []domain.Listing
	nights   map[string][]domain.Night
	priceErr map[string]error
	nbErr    error
	queries  []domain.PriceQuery
}

func (m *mockProvider) ListingPrices(_ context.Context, _ string, q domain.PriceQuery) ([]domain.Night, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if err := m.priceErr[q.ListingID]; err != nil {
		return nil, err
	}
	return m.nights[q.ListingID], nil
}

func (m *mockProvider) NeighborhoodData(context.Context, string, string, string) (json.RawMessage, error) {
	if m.nbErr != nil {
		return nil, m.nbErr
	}
	return json.RawMessage(neighborhood), nil
}

func (m *mockProvider) Listings(context.Context, string) ([]domain.Listing, error) {
	return m.listings, nil
}

type mockLLM struct {
	prompts []string
	err     error
}

func (m *mockLLM) Complete(_ context.Context, req *domain.CompletionRequest) (*domain.Completion, error) {
	m.prompts = append(m.prompts, req.Messages[0].Content)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Completion{Content: "Raise to $700."}, nil
}

func (m *mockLLM) Provider() string { return "mock" }

func price(v float64) *float64 { return &v }

func fixedNow() time.Time { return time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC) }

func TestExtract_UnbookedNightsWithMarketData(t *testing.T) {
	three := 3
	provider := &mockProvider{
		listings: []domain.Listing{
			{ID: "L1", PMS: "yourporter", Name: "Cliff House", CityName: "Newport", State: "RI", Bedrooms: &three},
			{ID: "L2", PMS: "yourporter", Name: "Broken"},
		},
		nights: map[string][]domain.Night{
			"L1": {
				{Date: "2025-07-01", Price: price(600), BookingStatus: ""},
				{Date: "2025-07-02", Price: price(600), UserPrice: price(640)},
				{Date: "2025-07-03", Price: price(600), BookingStatus: "Booked (Check-In)"},
			},
		},
		priceErr: map[string]error{"L2": errors.New("boom")},
	}

	ex := extract.NewExtractor(provider, zap.NewNop(), extract.Options{Now: fixedNow})
	records, err := ex.Extract(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "2025-07-01", first.Date)
	assert.Equal(t, 600.0, *first.YourPrice)
	assert.Equal(t, 650.0, *first.MarketAvgPrice)
	assert.InDelta(t, 42.0, *first.MarketOccupancy, 0.001)
	assert.Equal(t, "Tuesday", first.DayOfWeek)
	assert.Equal(t, "Cliff House", first.ListingName)
	assert.Equal(t, "Newport, RI", first.Location)
	assert.Equal(t, "3", first.Bedrooms)
	assert.NotNil(t, first.Events)

	assert.Equal(t, 640.0, *records[1].YourPrice)

	for _, q := range provider.queries {
		assert.Equal(t, "2025-03-17", q.DateFrom)
		assert.Equal(t, "2025-09-13", q.DateTo)
	}
}

func TestExtract_MarketDataFailureLeavesNulls(t *testing.T) {
	provider := &mockProvider{
		listings: []domain.Listing{{ID: "L1", Name: "Cottage"}},
		nights:   map[string][]domain.Night{"L1": {{Date: "2025-07-01", Price: price(200)}}},
		nbErr:    errors.New("market down"),
	}

	records, err := extract.NewExtractor(provider, zap.NewNop(), extract.Options{Now: fixedNow}).Extract(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].MarketAvgPrice)
	assert.Nil(t, records[0].MarketOccupancy)
	assert.Equal(t, "1", records[0].Bedrooms)
}

func TestExtract_MarketDataFromOwnBedroomCategoryOnly(t *testing.T) {
	two := 2
	provider := &mockProvider{
		listings: []domain.Listing{{ID: "L1", Name: "Loft", Bedrooms: &two}},
		nights:   map[string][]domain.Night{"L1": {{Date: "2025-07-01", Price: price(300)}}},
	}

	records, err := extract.NewExtractor(provider, zap.NewNop(), extract.Options{Now: fixedNow}).Extract(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0].Bedrooms)
	assert.Nil(t, records[0].MarketAvgPrice, "no 2-bedroom series in the market data")
	assert.Nil(t, records[0].MarketOccupancy)
}

func TestWriteReadJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, extract.WriteJSON[extract.Record](&buf, nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	in := []extract.Record{{Date: "2025-07-01", YourPrice: price(250), Events: []string{}, ListingID: "L1"}}
	require.NoError(t, extract.WriteJSON(&buf, in))
	assert.Contains(t, buf.String(), `"market_avg_price": null`)
	assert.NotContains(t, buf.String(), "ai_analysis")

	out, err := extract.ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = extract.ReadJSON(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestAnalyze_AnnotatesRecords(t *testing.T) {
	llm := &mockLLM{}
	a := extract.NewAnalyzer(llm, prompts.MustLoad(), "gpt-4", prompts.DefaultLocation, time.Millisecond, zap.NewNop())

	in := []extract.Record{
		{Date: "2025-07-01", YourPrice: price(600), MarketAvgPrice: price(650), DayOfWeek: "Tuesday", Bedrooms: "3"},
		{Date: "2025-07-02", YourPrice: price(640), DayOfWeek: "Wednesday", Events: []string{"Jazz Festival"}},
	}
	out, err := a.Analyze(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].AIAnalysis)
	assert.Equal(t, "Raise to $700.", *out[0].AIAnalysis)
	assert.Equal(t, in[1], out[1].Record)

	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[0], "3-bedroom STR in Newport, RI")
	assert.Contains(t, llm.prompts[0], "Market average price: $650")
	assert.Contains(t, llm.prompts[1], "with Jazz Festival")
	assert.Contains(t, llm.prompts[1], "Occupancy: N/A%")
}

func TestAnalyze_FailureLeavesNull(t *testing.T) {
	llm := &mockLLM{err: errors.New("rate limited")}
	a := extract.NewAnalyzer(llm, prompts.MustLoad(), "gpt-4", "", time.Millisecond, zap.NewNop())

	out, err := a.Analyze(context.Background(), []extract.Record{{Date: "2025-07-01", Events: []string{}}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].AIAnalysis)

	var buf bytes.Buffer
	require.NoError(t, extract.WriteJSON(&buf, out))
	var written []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &written))
	require.Len(t, written, 1)
	v, ok := written[0]["ai_analysis"]
	assert.True(t, ok, "ai_analysis must be present")
	assert.Nil(t, v)
	assert.Equal(t, "2025-07-01", written[0]["date"])
}

func TestAnalyze_StopsOnCancel(t *testing.T) {
	a := extract.NewAnalyzer(&mockLLM{}, prompts.MustLoad(), "gpt-4", "", time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	records := []extract.Record{{Date: "2025-07-01"}, {Date: "2025-07-02"}}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	out, err := a.Analyze(ctx, records)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, out, 1)
}
