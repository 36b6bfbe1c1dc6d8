// Package openai implements provider.Client for the OpenAI Chat Completions
// API using github.com/openai/openai-go.
package openai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/provider"
)

// ChatClient is the subset of the SDK client used by this adapter.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements provider.Client on top of OpenAI Chat Completions.
type Client struct {
	chat ChatClient
}

// New builds an OpenAI-backed client.
func New(chat ChatClient) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	return &Client{chat: chat}, nil
}

// NewFromAPIKey constructs a client against the default OpenAI endpoint,
// optionally pointed at a compatible baseURL (used by the openaicompat
// presets for Gemini/Volcengine/Zai).
func NewFromAPIKey(apiKey, baseURL string) (*Client, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	sdkClient := openai.NewClient(opts...)
	return New(&sdkClient.Chat.Completions)
}

func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	params, err := toParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	return fromCompletion(resp)
}

func (c *Client) Stream(ctx context.Context, req *provider.Request) (provider.Streamer, error) {
	return nil, core.NewError(core.ErrUnsupportedCapability, "openai: streaming transport omitted from this adapter build; use Complete")
}

func toParams(req *provider.Request) (openai.ChatCompletionNewParams, error) {
	var params openai.ChatCompletionNewParams
	params.Model = shared.ChatModel(req.Model.Model)
	msgs, err := toMessages(req.Messages)
	if err != nil {
		return params, err
	}
	params.Messages = msgs
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, toTool(t))
	}
	if opts := req.Options; opts != nil && opts.OpenAI != nil {
		if opts.OpenAI.ReasoningEffort != core.ThinkingNone {
			params.ReasoningEffort = effortString(opts.OpenAI.ReasoningEffort)
		}
	}
	return params, nil
}

func effortString(e core.ThinkingEffort) shared.ReasoningEffort {
	switch e {
	case core.ThinkingMinimal:
		return shared.ReasoningEffortMinimal
	case core.ThinkingLow:
		return shared.ReasoningEffortLow
	case core.ThinkingMedium:
		return shared.ReasoningEffortMedium
	case core.ThinkingHigh, core.ThinkingXHigh:
		return shared.ReasoningEffortHigh
	default:
		return shared.ReasoningEffortMedium
	}
}

func toTool(t core.ToolDefinition) openai.ChatCompletionToolParam {
	var schema map[string]any
	_ = json.Unmarshal(t.Parameters, &schema)
	return openai.ChatCompletionToolParam{
		Function: shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  schema,
		},
	}
}

func toMessages(msgs []core.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text()
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case core.RoleUser:
			out = append(out, openai.UserMessage(text))
		case core.RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		case core.RoleTool:
			for _, c := range m.Content {
				if tr, ok := c.(core.ToolResultBlock); ok {
					out = append(out, openai.ToolMessage(tr.Content.Text, tr.CallID))
				}
			}
		}
	}
	return out, nil
}

func fromCompletion(resp *openai.ChatCompletion) (*provider.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, core.NewError(core.ErrParseError, "openai: empty choices")
	}
	choice := resp.Choices[0]
	out := &provider.Response{
		Message:      core.Message{Role: core.RoleAssistant, Content: []core.ContentBlock{core.TextBlock{Text: choice.Message.Content}}},
		FinishReason: string(choice.FinishReason),
		Usage: provider.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ToolUseBlock{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return core.WrapError(core.ErrRateLimitExceeded, "openai: rate limited", err)
		case 401, 403:
			return core.WrapError(core.ErrAuthenticationFailed, "openai: authentication failed", err)
		}
		if apiErr.StatusCode >= 500 {
			return core.WrapError(core.ErrNetworkError, "openai: server error", err)
		}
		return core.WrapError(core.ErrProviderError, "openai: request rejected", err)
	}
	return core.WrapError(core.ErrNetworkError, "openai: request failed", err)
}
