// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"encoding/json"

	"github.com/mairble/mairble-backend-go/internal/domain"
)

// PricingProvider reads listing data from the pricing provider.
// An empty apiKey selects the configured default key.
type PricingProvider interface {
	ListingPrices(ctx context.Context, apiKey string, q domain.PriceQuery) ([]domain.Night, error)
	NeighborhoodData(ctx context.Context, apiKey, listingID, pms string) (json.RawMessage, error)
	Listings(ctx context.Context, apiKey string) ([]domain.Listing, error)
}

// LLMClient sends one completion request to a language model provider.
type LLMClient interface {
	Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.Completion, error)
	Provider() string
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
