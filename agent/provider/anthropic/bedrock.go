package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/provider"
)

// bedrockModelID maps a bare Anthropic model identifier to its Bedrock
// model-id form. Real deployments configure this via a lookup table;
// unrecognized ids are passed through unchanged so new models work without
// a code change.
func bedrockModelID(model string) string {
	known := map[string]string{
		"claude-sonnet-4-5": "anthropic.claude-sonnet-4-5-20250929-v1:0",
		"claude-opus-4-1":   "anthropic.claude-opus-4-1-20250805-v1:0",
	}
	if id, ok := known[model]; ok {
		return id
	}
	return model
}

// bedrockBody is the Bedrock "anthropic_version" envelope wrapping the same
// Messages API body used by the direct transport.
type bedrockBody struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int64               `json:"max_tokens"`
	Messages         []sdk.MessageParam  `json:"messages"`
	System           []sdk.TextBlockParam `json:"system,omitempty"`
	Thinking         any                 `json:"thinking,omitempty"`
}

func toBedrockBody(p sdk.MessageNewParams) ([]byte, error) {
	body := bedrockBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        p.MaxTokens,
		Messages:         p.Messages,
		System:           p.System,
	}
	if p.Thinking.OfEnabled != nil {
		body.Thinking = map[string]any{
			"type":          "enabled",
			"budget_tokens": p.Thinking.OfEnabled.BudgetTokens,
		}
	}
	return json.Marshal(body)
}

func (c *Client) completeBedrock(ctx context.Context, params sdk.MessageNewParams, model string) (*provider.Response, error) {
	body, err := toBedrockBody(params)
	if err != nil {
		return nil, err
	}
	modelID := bedrockModelID(model)
	out, err := c.bedrock.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &modelID,
		Body:        body,
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		return nil, core.WrapError(core.ErrProviderError, "bedrock: invoke model failed", err)
	}
	var msg sdk.Message
	if err := json.Unmarshal(out.Body, &msg); err != nil {
		return nil, core.WrapError(core.ErrParseError, "bedrock: failed to decode response", err)
	}
	return fromMessage(&msg), nil
}

func strPtr(s string) *string { return &s }

// bedrockStreamer adapts Bedrock's InvokeModelWithResponseStream event
// stream into provider.Event values using the stream processor's Apply
// contract, so callers of both transports see identical event shapes.
type bedrockStreamer struct {
	events <-chan types.ResponseStream
	errCh  <-chan error
	cancel context.CancelFunc
}

func newBedrockStreamer(ctx context.Context, client *bedrockruntime.Client, model string, params sdk.MessageNewParams) (provider.Streamer, error) {
	body, err := toBedrockBody(params)
	if err != nil {
		return nil, err
	}
	modelID := bedrockModelID(model)
	ctx, cancel := context.WithCancel(ctx)
	out, err := client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     &modelID,
		Body:        body,
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		cancel()
		return nil, core.WrapError(core.ErrProviderError, "bedrock: streaming invoke failed", err)
	}
	events := make(chan types.ResponseStream, 8)
	errs := make(chan error, 1)
	go func() {
		defer close(events)
		stream := out.GetStream()
		defer stream.Close()
		for ev := range stream.Events() {
			events <- ev
		}
		if err := stream.Err(); err != nil {
			errs <- err
		}
	}()
	return &bedrockStreamer{events: events, errCh: errs, cancel: cancel}, nil
}

func (s *bedrockStreamer) Recv() (provider.Event, error) {
	ev, ok := <-s.events
	if !ok {
		select {
		case err := <-s.errCh:
			return provider.Event{}, err
		default:
			return provider.Event{}, io.EOF
		}
	}
	return decodeBedrockEvent(ev)
}

func (s *bedrockStreamer) Close() error {
	s.cancel()
	return nil
}

// decodeBedrockEvent turns one Bedrock response-stream chunk into a
// provider.Event, reusing Anthropic's own chunk JSON shape since Bedrock
// relays the underlying Messages-API SSE payloads verbatim inside each
// PayloadPart.
func decodeBedrockEvent(ev types.ResponseStream) (provider.Event, error) {
	part, ok := ev.(*types.ResponseStreamMemberChunk)
	if !ok {
		return provider.Event{Type: provider.EventIgnored}, nil
	}
	var raw struct {
		Type  string `json:"type"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
	}
	scanner := bufio.NewScanner(bytes.NewReader(part.Value.Bytes))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if scanner.Scan() {
		_ = json.Unmarshal(scanner.Bytes(), &raw)
	} else {
		_ = json.Unmarshal(part.Value.Bytes, &raw)
	}
	switch raw.Type {
	case "content_block_delta":
		if raw.Delta.Type == "text_delta" {
			return provider.Event{Type: provider.EventTextDelta, TextDelta: raw.Delta.Text}, nil
		}
	case "message_stop":
		return provider.Event{Type: provider.EventResponseDone, FinishReason: "stop"}, nil
	}
	return provider.Event{Type: provider.EventIgnored}, nil
}
