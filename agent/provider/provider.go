// Package provider unifies heterogeneous model APIs behind a single
// Client/Streamer contract, with typed per-provider options, a stream
// processor state machine, a retry executor, and rate-limit accounting.
// Concrete adapters live in agent/provider/anthropic, .../openai, and
// .../openaicompat (the latter also backs Gemini/Volcengine/Zai presets).
package provider

import (
	"context"

	"github.com/coreagent/runtime/agent/core"
)

// Kind names a provider family.
type Kind string

const (
	KindOpenAI       Kind = "openai"
	KindOpenAICompat Kind = "openai_compat"
	KindAnthropic    Kind = "anthropic"
	KindGemini       Kind = "gemini"
	KindVolcengine   Kind = "volcengine"
	KindZai          Kind = "zai"
)

// ModelInfo describes a model's declared capabilities, consulted by tool
// selection (spec.md §4.1) and the thinking/request-options merge rules
// (spec.md §4.4).
type ModelInfo struct {
	Provider Kind
	Model    string

	// APIModelName resolves provider-side aliases (e.g. Volcengine endpoint
	// IDs) to the identifier actually sent on the wire.
	APIModelName string

	ApplyPatchToolType        ApplyPatchToolType
	ExperimentalSupportedTools []string
	ExcludedTools              []string

	// RequestOptions are free-form per-model option overrides merged per the
	// rule in spec.md §4.4: unset typed fields only, rest goes to Extra.
	RequestOptions map[string]any
}

// ApplyPatchToolType selects how the apply_patch tool is exposed to a model,
// per spec.md §4.1's tool-selection rule.
type ApplyPatchToolType string

const (
	ApplyPatchFunction ApplyPatchToolType = "function"
	ApplyPatchFreeform ApplyPatchToolType = "freeform"
	ApplyPatchShell    ApplyPatchToolType = "shell"
	ApplyPatchNone     ApplyPatchToolType = "none"
)

// Request captures one model invocation.
type Request struct {
	Messages []core.Message
	Tools    []core.ToolDefinition
	Model    core.ModelSpec
	Options  *Options
}

// Response is a non-streaming invocation result.
type Response struct {
	Message      core.Message
	ToolCalls    []core.ToolUseBlock
	Usage        TokenUsage
	FinishReason string
}

// TokenUsage tracks token counts for a model call.
type TokenUsage struct {
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Client is the provider-agnostic model client.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (Streamer, error)
}

// Streamer delivers incremental model output as a sequence of StreamEvent
// values terminated by io.EOF from Recv, or an Error event.
type Streamer interface {
	Recv() (Event, error)
	Close() error
}
