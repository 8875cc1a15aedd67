package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/infra/resilience"
)

// Anthropic talks to the Messages API.
type Anthropic struct {
	client anthropic.Client
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

// NewAnthropic creates an Anthropic adapter. SDK retries are disabled;
// the shared retry policy applies instead.
func NewAnthropic(opts Options) *Anthropic {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithHTTPClient(opts.HTTPClient),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &Anthropic{
		client: anthropic.NewClient(reqOpts...),
		cb:     opts.Breaker,
		cfg:    opts.Resilience,
		logger: opts.Logger,
	}
}

// Provider implements port.LLMClient.
func (a *Anthropic) Provider() string { return ProviderAnthropic }

// Complete implements port.LLMClient.
func (a *Anthropic) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.Completion, error) {
	return guarded(ctx, ProviderAnthropic, req, a.cb, a.cfg, a.logger, classifyAnthropic, func(ctx context.Context) (*domain.Completion, error) {
		resp, err := a.client.Messages.New(ctx, toAnthropicParams(req))
		if err != nil {
			return nil, err
		}

		out := &domain.Completion{
			Model:        string(resp.Model),
			FinishReason: string(resp.StopReason),
			Usage: domain.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		}
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				out.Content += block.Text
			case "tool_use":
				out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
					ID:        block.ID,
					Name:      block.Name,
					Arguments: string(block.Input),
				})
			}
		}
		return out, nil
	})
}

func toAnthropicParams(req *domain.CompletionRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	// Consecutive tool results must travel in one user message.
	var pendingResults []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(pendingResults) > 0 {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
			continue
		case domain.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
			continue
		}
		flush()

		switch m.Role {
		case domain.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    tc.ID,
					Name:  tc.Name,
					Input: toolInput(tc.Arguments),
				}})
			}
			if len(blocks) == 0 {
				continue
			}
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flush()

	for _, t := range req.Tools {
		schema := anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
		if props, ok := t.Parameters["properties"]; ok {
			schema.Properties = props
		}
		if required, ok := t.Parameters["required"].([]string); ok {
			schema.Required = required
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}})
	}
	if req.ToolChoice == domain.ToolChoiceNone && len(params.Tools) > 0 {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	}
	return params
}

// toolInput turns model-produced arguments back into a JSON object.
func toolInput(args string) json.RawMessage {
	if args == "" || !json.Valid([]byte(args)) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(args)
}

func classifyAnthropic(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return &domain.ErrUpstreamStatus{StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return err
}
