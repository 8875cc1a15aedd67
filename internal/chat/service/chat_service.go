// Package service runs the chat agent.
//
// Each message is one agent run: the model sees the system prompt and the
// user's message, may call the registered tools for a bounded number of
// rounds, and then has to answer in text.
package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/chat/domain"
	"github.com/mairble/mairble-backend-go/internal/chat/port"
	maindomain "github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/infra/observability"
	mainport "github.com/mairble/mairble-backend-go/internal/port"
	"github.com/mairble/mairble-backend-go/internal/prompts"
)

var chatTracer = otel.Tracer("chat/service")

const (
	chatMaxTokens   = 1024
	chatTemperature = 0.7
	dateLayout      = "2006-01-02"
)

// Options configures the agent.
type Options struct {
	Model              string
	MaxToolRounds      int
	ListingID          string
	PMS                string
	OpeningsWindowDays int
	LLMKeySetting      string
	Now                func() time.Time
}

// ChatService answers chat messages with an LLM and its tools.
type ChatService struct {
	llm      mainport.LLMClient
	tools    []port.Tool
	prompts  *prompts.Catalog
	listings port.ListingFinder
	metrics  *observability.Metrics
	logger   *zap.Logger
	opts     Options
}

// NewChatService creates the chat service. llm may be nil when no provider
// is configured and listings may be nil to skip catalog enrichment.
func NewChatService(
	llm mainport.LLMClient,
	tools []port.Tool,
	catalog *prompts.Catalog,
	listings port.ListingFinder,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts Options,
) *ChatService {
	if opts.MaxToolRounds < 0 {
		opts.MaxToolRounds = 0
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
	return &ChatService{
		llm:      llm,
		tools:    tools,
		prompts:  catalog,
		listings: listings,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// ProcessMessage runs the agent for one message.
//
// Model failures do not fail the request: the reply then carries an
// apology with the error text, the way the mobile client expects.
func (s *ChatService) ProcessMessage(ctx context.Context, req *domain.ChatRequest) (_ *domain.ChatResponse, err error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.ProcessMessage")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("chat", time.Since(start))
		s.metrics.IncrRequest("chat", outcome(err))
	}()

	if req == nil || strings.TrimSpace(req.Message) == "" {
		return nil, &maindomain.ErrValidation{Field: "message", Message: "message is required"}
	}
	if s.llm == nil {
		return nil, &maindomain.ErrNotConfigured{Setting: s.opts.LLMKeySetting}
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	property := s.resolveProperty(ctx, req)
	if property != nil {
		span.SetAttributes(attribute.String("listing.id", property.ID))
	}

	system, err := s.prompts.System(prompts.SystemData{
		Today:      s.opts.Now().Format(dateLayout),
		WindowDays: s.opts.OpeningsWindowDays,
		Property:   property,
		Context:    req.PropertyContext,
	})
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}

	s.logger.Info("chat message received",
		zap.String("conversation_id", conversationID),
		zap.Int("message_length", len(req.Message)),
		zap.Bool("has_property", property != nil),
		zap.Bool("has_context", !req.PropertyContext.IsEmpty()),
	)

	answer, toolsUsed := s.run(ctx, system, req.Message, &domain.ToolContext{
		APIKey:   req.APIKey,
		Property: property,
	})

	return &domain.ChatResponse{
		Response:       answer,
		ConversationID: conversationID,
		ToolsUsed:      toolsUsed,
	}, nil
}

// run is the agent loop. Tools may be called for at most MaxToolRounds
// rounds; the last call keeps the definitions but forbids calls so the
// model must answer.
func (s *ChatService) run(ctx context.Context, system, message string, tc *domain.ToolContext) (string, []string) {
	messages := []maindomain.LLMMessage{{Role: maindomain.RoleUser, Content: message}}
	toolsUsed := []string{}

	defs := make([]maindomain.ToolDefinition, 0, len(s.tools))
	for _, t := range s.tools {
		defs = append(defs, t.Definition())
	}

	for round := 0; ; round++ {
		final := round >= s.opts.MaxToolRounds
		choice := maindomain.ToolChoiceAuto
		if final {
			choice = maindomain.ToolChoiceNone
		}

		completion, err := s.llm.Complete(ctx, &maindomain.CompletionRequest{
			Model:       s.opts.Model,
			System:      system,
			Messages:    messages,
			Tools:       defs,
			ToolChoice:  choice,
			MaxTokens:   chatMaxTokens,
			Temperature: chatTemperature,
		})
		if err != nil {
			s.logger.Error("chat completion failed",
				zap.Int("round", round),
				zap.Error(err),
			)
			s.metrics.IncrExternalError(s.llm.Provider())
			s.metrics.IncrFallback(observability.FallbackChatError)
			return "I'm sorry, I encountered an error: " + err.Error(), toolsUsed
		}
		s.metrics.RecordTokens(s.llm.Provider(), completion.Usage)

		if len(completion.ToolCalls) == 0 || final {
			return completion.Content, toolsUsed
		}

		messages = append(messages, maindomain.LLMMessage{
			Role:      maindomain.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		for _, call := range completion.ToolCalls {
			messages = append(messages, maindomain.LLMMessage{
				Role:       maindomain.RoleTool,
				Content:    s.callTool(ctx, call, tc),
				ToolCallID: call.ID,
			})
			if !slices.Contains(toolsUsed, call.Name) {
				toolsUsed = append(toolsUsed, call.Name)
			}
		}
	}
}

// callTool executes one tool call and returns what the model gets to see.
func (s *ChatService) callTool(ctx context.Context, call maindomain.ToolCall, tc *domain.ToolContext) string {
	tool := s.tool(call.Name)
	if tool == nil {
		s.metrics.IncrToolCall(call.Name, "unknown")
		return fmt.Sprintf("Unknown tool %q.", call.Name)
	}

	out, err := tool.Call(ctx, tc, call.Arguments)
	if err != nil {
		s.logger.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.Error(err),
		)
		s.metrics.IncrToolCall(call.Name, "error")
		return "Failed to " + strings.ReplaceAll(call.Name, "_", " ") + ": " + err.Error()
	}
	s.metrics.IncrToolCall(call.Name, "ok")
	return out
}

func (s *ChatService) tool(name string) port.Tool {
	for _, t := range s.tools {
		if t.Definition().Name == name {
			return t
		}
	}
	return nil
}

// resolveProperty picks the listing the agent talks about: the selected
// property, else the request's listing_id, else the configured listing.
// Missing name, location or bedrooms are filled from the catalog when it
// can be reached.
func (s *ChatService) resolveProperty(ctx context.Context, req *domain.ChatRequest) *maindomain.SelectedProperty {
	var p maindomain.SelectedProperty
	switch {
	case req.SelectedProperty != nil && req.SelectedProperty.ID != "":
		p = *req.SelectedProperty
	case req.ListingID != "":
		p = maindomain.SelectedProperty{ID: req.ListingID}
	case s.opts.ListingID != "":
		p = maindomain.SelectedProperty{ID: s.opts.ListingID}
	default:
		return nil
	}
	if p.PMS == "" {
		p.PMS = req.PMS
	}
	if p.PMS == "" {
		p.PMS = s.opts.PMS
	}

	if s.listings == nil || (p.Name != "" && p.Location != "" && p.Bedrooms != nil) {
		return &p
	}
	l, err := s.listings.FindListing(ctx, req.APIKey, p.ID)
	if err != nil {
		s.logger.Debug("listing enrichment skipped", zap.String("listing_id", p.ID), zap.Error(err))
		return &p
	}
	if p.Name == "" {
		p.Name = l.Name
	}
	if p.Location == "" {
		p.Location = l.Location()
	}
	if p.Bedrooms == nil {
		p.Bedrooms = l.Bedrooms
	}
	return &p
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
