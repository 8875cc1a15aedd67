// Package port defines what the chat agent depends on.
package port

import (
	"context"

	chatdomain "github.com/mairble/mairble-backend-go/internal/chat/domain"
	"github.com/mairble/mairble-backend-go/internal/domain"
)

// Tool is a function the model may call during a chat turn.
//
// Call receives the raw JSON arguments chosen by the model. A returned
// error is reported back to the model as text, the HTTP request still
// succeeds.
type Tool interface {
	Definition() domain.ToolDefinition
	Call(ctx context.Context, tc *chatdomain.ToolContext, args string) (string, error)
}

// OpeningsFinder returns the unbooked ranges of a listing.
type OpeningsFinder interface {
	Openings(ctx context.Context, apiKey, listingID, pms string) (*domain.Openings, error)
}

// ListingFinder looks up catalog details of a listing.
type ListingFinder interface {
	FindListing(ctx context.Context, apiKey, listingID string) (*domain.Listing, error)
}
