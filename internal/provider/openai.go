package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"modbot/internal/domain"
)

const (
	openaiDefaultModel   = "gpt-4o-mini"
	openaiDefaultRetries = 2
)

// OpenAI talks to the Chat Completions API, or any server compatible with it.
type OpenAI struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

type OpenAIConfig struct {
	APIKey     string
	APIBase    string // optional: proxies and compatible servers
	Model      string
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key required")
	}
	if cfg.Model == "" {
		cfg.Model = openaiDefaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = openaiDefaultRetries
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.APIBase != "" {
		opts = append(opts, option.WithBaseURL(cfg.APIBase))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: cfg.Logger,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Healthy(ctx context.Context) error {
	if _, err := o.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai not reachable: %w", err)
	}
	return nil
}

func (o *OpenAI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}

	start := time.Now()
	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai returned %d: %s", apiErr.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("openai: %w", err)
	}

	out := fromOpenAICompletion(completion)
	out.LatencyMs = time.Since(start).Milliseconds()
	return out, nil
}

func toOpenAIMessages(in []domain.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(in))
	for _, m := range in {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			for _, tc := range m.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(schemas []domain.ToolSchema) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(schemas))
	for _, s := range schemas {
		t := openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:       s.Name,
				Parameters: shared.FunctionParameters(s.JSONSchema()),
			},
		}
		if s.Description != "" {
			t.Function.Description = openai.String(s.Description)
		}
		tools = append(tools, t)
	}
	return tools
}

func fromOpenAICompletion(c *openai.ChatCompletion) *domain.ChatResponse {
	out := &domain.ChatResponse{}
	if c == nil {
		return out
	}
	out.Usage = domain.Usage{
		PromptTokens:     int(c.Usage.PromptTokens),
		CompletionTokens: int(c.Usage.CompletionTokens),
		TotalTokens:      int(c.Usage.TotalTokens),
	}
	if len(c.Choices) == 0 {
		return out
	}

	choice := c.Choices[0]
	out.Content = choice.Message.Content
	out.FinishReason = choice.FinishReason
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArguments(json.RawMessage(tc.Function.Arguments)),
		})
	}
	return out
}
