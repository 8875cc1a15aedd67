package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/infra/resilience"
)

var tracer = otel.Tracer("client")

const (
	serviceName  = "pricelabs"
	maxErrorBody = 500
)

// PriceLabsClient reads listing prices, neighborhood data and the listing
// catalog from the PriceLabs customer API.
type PriceLabsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewPriceLabsClient creates a new PriceLabsClient. apiKey is used whenever
// a call does not carry its own key.
func NewPriceLabsClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *PriceLabsClient {
	return &PriceLabsClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

type listingPricesRequest struct {
	Listings []listingPricesQuery `json:"listings"`
}

type listingPricesQuery struct {
	ID       string `json:"id"`
	PMS      string `json:"pms"`
	DateFrom string `json:"dateFrom"`
	DateTo   string `json:"dateTo"`
	Reason   bool   `json:"reason"`
}

type listingPricesEntry struct {
	ID    string         `json:"id"`
	Data  []domain.Night `json:"data"`
	Error string         `json:"error"`
}

// ListingPrices fetches nightly prices for one listing and date range.
func (c *PriceLabsClient) ListingPrices(ctx context.Context, apiKey string, q domain.PriceQuery) ([]domain.Night, error) {
	ctx, span := tracer.Start(ctx, "PriceLabsClient.ListingPrices")
	defer span.End()
	span.SetAttributes(
		attribute.String("listing.id", q.ListingID),
		attribute.String("listing.pms", q.PMS),
		attribute.String("date.from", q.DateFrom),
		attribute.String("date.to", q.DateTo),
	)

	body := listingPricesRequest{Listings: []listingPricesQuery{{
		ID:       q.ListingID,
		PMS:      q.PMS,
		DateFrom: q.DateFrom,
		DateTo:   q.DateTo,
		Reason:   true,
	}}}

	var entries []listingPricesEntry
	err := c.call(ctx, apiKey, http.MethodPost, "/v1/listing_prices", nil, body, func(raw []byte) error {
		entries = nil
		if !gjson.ParseBytes(raw).IsArray() {
			return errors.New("unexpected response format: expected an array")
		}
		return json.Unmarshal(raw, &entries)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, c.wrap(err)
	}

	if len(entries) == 0 {
		return nil, c.wrap(errors.New("unexpected response format: empty listing array"))
	}
	if entries[0].Error != "" && len(entries[0].Data) == 0 {
		return nil, c.wrap(fmt.Errorf("listing %s: %s", q.ListingID, entries[0].Error))
	}

	span.SetAttributes(attribute.Int("nights.count", len(entries[0].Data)))
	return entries[0].Data, nil
}

// NeighborhoodData fetches the market report for a listing's neighborhood.
// The payload is unwrapped from "data" (or "data.data" when doubly wrapped).
func (c *PriceLabsClient) NeighborhoodData(ctx context.Context, apiKey, listingID, pms string) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "PriceLabsClient.NeighborhoodData")
	defer span.End()
	span.SetAttributes(attribute.String("listing.id", listingID))

	query := url.Values{"listing_id": {listingID}, "pms": {pms}}

	var payload json.RawMessage
	err := c.call(ctx, apiKey, http.MethodGet, "/v1/neighborhood_data", query, nil, func(raw []byte) error {
		if !gjson.ValidBytes(raw) {
			return errors.New("invalid JSON in neighborhood response")
		}
		data := gjson.GetBytes(raw, "data")
		if inner := data.Get("data"); data.IsObject() && inner.Exists() {
			data = inner
		}
		if !data.IsObject() {
			payload = nil
			return nil
		}
		payload = json.RawMessage(data.Raw)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, c.wrap(err)
	}
	return payload, nil
}

// Listings returns the account's listing catalog.
func (c *PriceLabsClient) Listings(ctx context.Context, apiKey string) ([]domain.Listing, error) {
	ctx, span := tracer.Start(ctx, "PriceLabsClient.Listings")
	defer span.End()

	var out struct {
		Listings []domain.Listing `json:"listings"`
	}
	err := c.call(ctx, apiKey, http.MethodGet, "/v1/listings", nil, nil, func(raw []byte) error {
		out.Listings = nil
		return json.Unmarshal(raw, &out)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, c.wrap(err)
	}

	span.SetAttributes(attribute.Int("listings.count", len(out.Listings)))
	return out.Listings, nil
}

// call performs one request with retry and circuit breaker. decode receives
// the body of a 200 response and runs inside the retry loop.
func (c *PriceLabsClient) call(ctx context.Context, apiKey, method, path string, query url.Values, body any, decode func([]byte) error) error {
	key := apiKey
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return &domain.ErrNotConfigured{Setting: "PRICELABS_API_KEY"}
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return resilience.Call(ctx, c.cb, c.cfg, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return resilience.Permanent(err)
		}
		req.Header.Set("X-API-Key", key)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			c.logger.Warn("pricelabs request failed",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
			)
			return &domain.ErrUpstreamStatus{StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
		}
		if err := decode(raw); err != nil {
			return resilience.Permanent(err)
		}
		return nil
	})
}

func (c *PriceLabsClient) wrap(err error) error {
	var notConfigured *domain.ErrNotConfigured
	var open *domain.ErrCircuitOpen
	if errors.As(err, &notConfigured) || errors.As(err, &open) {
		return err
	}
	return &domain.ErrExternalService{Service: serviceName, Err: err}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
