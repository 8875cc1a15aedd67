package infra

import (
	"context"
	"errors"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mairble/mairble-backend-go/internal/chat/domain"
	"github.com/mairble/mairble-backend-go/internal/chat/port"
	maindomain "github.com/mairble/mairble-backend-go/internal/domain"
)

var tracer = otel.Tracer("chat/infra")

// OpeningsToolName is the function name exposed to the model.
const OpeningsToolName = "get_unbooked_openings"

// ErrNoProperty is returned when the chat request resolved no listing.
var ErrNoProperty = errors.New("no property selected, please select a property first to check availability")

// OpeningsTool lets the model look up the selected property's consecutive
// unbooked date ranges.
type OpeningsTool struct {
	finder     port.OpeningsFinder
	windowDays int
}

// NewOpeningsTool creates the availability tool over the given finder.
// windowDays only feeds the description shown to the model.
func NewOpeningsTool(finder port.OpeningsFinder, windowDays int) *OpeningsTool {
	if windowDays <= 0 {
		windowDays = 60
	}
	return &OpeningsTool{finder: finder, windowDays: windowDays}
}

// Definition describes the tool. It takes no arguments: the listing comes
// from the request.
func (t *OpeningsTool) Definition() maindomain.ToolDefinition {
	return maindomain.ToolDefinition{
		Name: OpeningsToolName,
		Description: "Get available date ranges for the selected property in the next " +
			strconv.Itoa(t.windowDays) + " days. Returns consecutive unbooked periods formatted as \"start to end (X nights)\".",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

// Call fetches the openings and returns their summary line.
func (t *OpeningsTool) Call(ctx context.Context, tc *domain.ToolContext, _ string) (string, error) {
	ctx, span := tracer.Start(ctx, "OpeningsTool.Call")
	defer span.End()

	if tc == nil || tc.Property == nil || tc.Property.ID == "" {
		return "", ErrNoProperty
	}
	span.SetAttributes(attribute.String("listing.id", tc.Property.ID))

	o, err := t.finder.Openings(ctx, tc.APIKey, tc.Property.ID, tc.Property.PMS)
	if err != nil {
		return "", err
	}
	return o.Summary, nil
}
