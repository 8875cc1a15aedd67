// Package domain defines the types of the POST /chat route.
//
// The mobile client sends one message per request together with the
// credentials and the property it is looking at. Nothing is kept between
// requests; conversation_id is only echoed back so the client can group
// messages.
package domain

import maindomain "github.com/mairble/mairble-backend-go/internal/domain"

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`

	// APIKey is the host's own pricing provider key. When empty the
	// server's configured key is used.
	APIKey string `json:"api_key,omitempty"`

	ListingID string `json:"listing_id,omitempty"`
	PMS       string `json:"pms,omitempty"`

	PropertyContext  *maindomain.PropertyContext  `json:"property_context,omitempty"`
	SelectedProperty *maindomain.SelectedProperty `json:"selected_property,omitempty"`
}

// ChatResponse is what POST /chat returns.
type ChatResponse struct {
	Response       string   `json:"response"`
	ConversationID string   `json:"conversation_id"`
	ToolsUsed      []string `json:"tools_used"`
}

// ToolContext carries the per-request state a tool may need.
type ToolContext struct {
	APIKey   string
	Property *maindomain.SelectedProperty
}
