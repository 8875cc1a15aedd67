package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/mairble/mairble-backend-go/internal/domain"
	"github.com/mairble/mairble-backend-go/internal/infra/resilience"
)

// Reasoning models spend part of the completion budget on hidden reasoning,
// so they get a larger budget and no temperature.
var reasoningPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

const reasoningTokenMultiplier = 5

// IsReasoningModel reports whether model belongs to a reasoning family.
func IsReasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, p := range reasoningPrefixes {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

// OpenAI talks to the chat completions API.
type OpenAI struct {
	client *openai.Client
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

// NewOpenAI creates an OpenAI adapter.
func NewOpenAI(opts Options) *OpenAI {
	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	config.HTTPClient = opts.HTTPClient

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		cb:     opts.Breaker,
		cfg:    opts.Resilience,
		logger: opts.Logger,
	}
}

// Provider implements port.LLMClient.
func (o *OpenAI) Provider() string { return ProviderOpenAI }

// Complete implements port.LLMClient.
func (o *OpenAI) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.Completion, error) {
	return guarded(ctx, ProviderOpenAI, req, o.cb, o.cfg, o.logger, classifyOpenAI, func(ctx context.Context) (*domain.Completion, error) {
		resp, err := o.client.CreateChatCompletion(ctx, toOpenAIRequest(req))
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, resilience.Permanent(errors.New("openai: response has no choices"))
		}

		choice := resp.Choices[0]
		out := &domain.Completion{
			Content:      choice.Message.Content,
			Model:        resp.Model,
			FinishReason: string(choice.FinishReason),
			Usage: domain.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		for _, tc := range choice.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return out, nil
	})
}

func toOpenAIRequest(req *domain.CompletionRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{Model: req.Model}

	if IsReasoningModel(req.Model) {
		out.MaxCompletionTokens = maxTokens(req.MaxTokens) * reasoningTokenMultiplier
	} else {
		out.MaxTokens = maxTokens(req.MaxTokens)
		out.Temperature = req.Temperature
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if req.ToolChoice == domain.ToolChoiceNone && len(out.Tools) > 0 {
		out.ToolChoice = "none"
	}
	return out
}

func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &domain.ErrUpstreamStatus{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &domain.ErrUpstreamStatus{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}
