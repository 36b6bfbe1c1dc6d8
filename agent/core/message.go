package core

import "encoding/json"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlock is a marker interface implemented by every message content
// variant. Messages are ordered sequences of ContentBlock so structure
// (text, thinking, tool use/result, image) survives rather than being
// flattened to plain strings.
type ContentBlock interface {
	isContentBlock()
}

type (
	// TextBlock is plain, user-visible text.
	TextBlock struct {
		Text string
	}

	// ThinkingBlock carries provider-issued reasoning content. Signature, when
	// present, is an opaque provider token that must round-trip unchanged on
	// the next request for providers that verify reasoning continuity.
	ThinkingBlock struct {
		Content   string
		Signature string
	}

	// ImageBlock carries inline image bytes or a URL reference.
	ImageBlock struct {
		Bytes     []byte
		URL       string
		MediaType string
	}

	// ToolUseBlock declares a tool invocation requested by the assistant.
	ToolUseBlock struct {
		ID    string
		Name  string
		Input json.RawMessage
	}

	// ToolResultBlock carries the outcome of a previously requested tool use.
	ToolResultBlock struct {
		CallID  string
		Content ToolResultContent
		IsError bool
	}
)

func (TextBlock) isContentBlock()       {}
func (ThinkingBlock) isContentBlock()   {}
func (ImageBlock) isContentBlock()      {}
func (ToolUseBlock) isContentBlock()    {}
func (ToolResultBlock) isContentBlock() {}

// ToolResultContent is the tagged payload of a ToolResultBlock: exactly one
// of Text, Structured, or Blocks is meaningful, selected by Kind.
type ToolResultContent struct {
	Kind       ToolResultKind
	Text       string
	Structured json.RawMessage
	Blocks     []ContentBlock
}

// ToolResultKind tags the active variant of ToolResultContent.
type ToolResultKind string

const (
	ToolResultKindText       ToolResultKind = "text"
	ToolResultKindStructured ToolResultKind = "structured"
	ToolResultKindBlocks     ToolResultKind = "blocks"
)

// TextResult builds a text-kind ToolResultContent.
func TextResult(text string) ToolResultContent {
	return ToolResultContent{Kind: ToolResultKindText, Text: text}
}

// StructuredResult builds a structured-kind ToolResultContent from a
// canonical JSON payload.
func StructuredResult(payload json.RawMessage) ToolResultContent {
	return ToolResultContent{Kind: ToolResultKindStructured, Structured: payload}
}

// BlocksResult builds a blocks-kind ToolResultContent.
func BlocksResult(blocks ...ContentBlock) ToolResultContent {
	return ToolResultContent{Kind: ToolResultKindBlocks, Blocks: blocks}
}

// Message is an immutable-once-published chat message: a role plus an
// ordered sequence of content blocks.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// Text concatenates every TextBlock in the message, ignoring other block
// kinds. Useful for log previews and throttle-insensitive diagnostics.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// MessageSourceKind tags the origin of a TrackedMessage.
type MessageSourceKind string

const (
	SourceUser               MessageSourceKind = "user"
	SourceAssistant           MessageSourceKind = "assistant"
	SourceTool                MessageSourceKind = "tool"
	SourceSubagent            MessageSourceKind = "subagent"
	SourceCompactionSummary   MessageSourceKind = "compaction_summary"
	SourceSystem              MessageSourceKind = "system"
)

// MessageSource identifies why a TrackedMessage entered the history.
type MessageSource struct {
	Kind MessageSourceKind

	// RequestID is set when Kind == SourceAssistant and the provider issued a
	// request/response id usable for continuity (see provider §4.4).
	RequestID string

	// CallID is set when Kind == SourceTool, correlating to the ToolUseBlock
	// that produced this message.
	CallID string

	// SubagentID is set when Kind == SourceSubagent.
	SubagentID string
}

// TrackedMessage pairs a Message with the turn and source metadata the loop
// and reminder orchestrator need to reason about history.
type TrackedMessage struct {
	Message Message
	TurnID  TurnID
	Source  MessageSource
}
