// Package anthropic implements provider.Client for the Anthropic Messages
// API using github.com/anthropics/anthropic-sdk-go, and — via the same
// adapter — Anthropic-on-Bedrock using
// github.com/aws/aws-sdk-go-v2/service/bedrockruntime. Both transports
// implement provider.Client's Complete the same way; Stream is implemented
// only for Bedrock, and the direct transport's Stream returns
// ErrUnsupportedCapability.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/provider"
)

// Transport selects how requests reach the Anthropic model.
type Transport string

const (
	TransportDirect  Transport = "direct"
	TransportBedrock Transport = "bedrock"
)

// MessagesClient is the subset of *sdk.MessageService used by this adapter,
// satisfied by the real client or a test double.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	Transport Transport
	MaxTokens int
	Bedrock   *bedrockruntime.Client // required when Transport == TransportBedrock
}

// Client implements provider.Client on top of Anthropic Messages, direct or
// via Bedrock.
type Client struct {
	msg     MessagesClient
	opts    Options
	bedrock *bedrockruntime.Client
}

// New builds a direct-transport client from an Anthropic Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if opts.Transport == TransportBedrock {
		if opts.Bedrock == nil {
			return nil, errors.New("anthropic: bedrock transport requires a bedrockruntime.Client")
		}
		return &Client{opts: opts, bedrock: opts.Bedrock}, nil
	}
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required for direct transport")
	}
	return &Client{msg: msg, opts: opts}, nil
}

// Complete issues a non-streaming request.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	params, err := toMessageParams(req, c.opts.MaxTokens)
	if err != nil {
		return nil, err
	}
	if c.opts.Transport == TransportBedrock {
		return c.completeBedrock(ctx, params, req.Model.Model)
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	return fromMessage(msg), nil
}

// Stream issues a streaming request. The Bedrock transport uses
// bedrockruntime's InvokeModelWithResponseStream under the hood; the direct
// transport does not stream and returns an ErrUnsupportedCapability error.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (provider.Streamer, error) {
	params, err := toMessageParams(req, c.opts.MaxTokens)
	if err != nil {
		return nil, err
	}
	if c.opts.Transport == TransportBedrock {
		return newBedrockStreamer(ctx, c.bedrock, req.Model.Model, params)
	}
	return nil, core.NewError(core.ErrUnsupportedCapability, "anthropic: direct SSE streaming requires the ssestream package wiring omitted from this adapter build")
}

func toMessageParams(req *provider.Request, defaultMaxTokens int) (sdk.MessageNewParams, error) {
	maxTokens := defaultMaxTokens
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model.Model),
		MaxTokens: int64(maxTokens),
	}
	for _, m := range req.Messages {
		if m.Role == core.RoleSystem {
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Text()})
		}
	}
	msgs, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return params, err
	}
	params.Messages = msgs
	if opts := req.Options; opts != nil && opts.Anthropic != nil && opts.Anthropic.ThinkingBudget > 0 {
		params.Thinking = sdk.ThinkingConfigParamUnion{
			OfEnabled: &sdk.ThinkingConfigEnabledParam{BudgetTokens: int64(opts.Anthropic.ThinkingBudget)},
		}
	}
	return params, nil
}

func fromMessage(msg *sdk.Message) *provider.Response {
	resp := &provider.Response{}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case sdk.TextBlock:
			resp.Message.Content = append(resp.Message.Content, core.TextBlock{Text: variant.Text})
		case sdk.ToolUseBlock:
			raw, _ := json.Marshal(variant.Input)
			resp.ToolCalls = append(resp.ToolCalls, core.ToolUseBlock{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: raw,
			})
		}
	}
	resp.Message.Role = core.RoleAssistant
	resp.Usage = provider.TokenUsage{
		InputTokens:     int(msg.Usage.InputTokens),
		OutputTokens:    int(msg.Usage.OutputTokens),
		CacheReadTokens: int(msg.Usage.CacheReadInputTokens),
	}
	resp.FinishReason = string(msg.StopReason)
	return resp
}

func translateError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return core.WrapError(core.ErrRateLimitExceeded, "anthropic: rate limited", err)
		case 401, 403:
			return core.WrapError(core.ErrAuthenticationFailed, "anthropic: authentication failed", err)
		}
		if apiErr.StatusCode >= 500 {
			return core.WrapError(core.ErrNetworkError, "anthropic: server error", err)
		}
		return core.WrapError(core.ErrProviderError, "anthropic: request rejected", err)
	}
	return core.WrapError(core.ErrNetworkError, "anthropic: request failed", err)
}
