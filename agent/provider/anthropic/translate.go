package anthropic

import (
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/coreagent/runtime/agent/core"
)

// toAnthropicMessages converts the generic message history into the SDK's
// typed content-block params, preserving block order per message.
func toAnthropicMessages(msgs []core.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			// system messages are sent via MessageNewParams.System, not here.
			continue
		}
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, c := range m.Content {
			switch b := c.(type) {
			case core.TextBlock:
				blocks = append(blocks, sdk.NewTextBlock(b.Text))
			case core.ToolUseBlock:
				var input any
				_ = json.Unmarshal(b.Input, &input)
				blocks = append(blocks, sdk.NewToolUseBlock(b.ID, input, b.Name))
			case core.ToolResultBlock:
				blocks = append(blocks, toToolResultBlock(b))
			case core.ThinkingBlock:
				blocks = append(blocks, sdk.NewThinkingBlock(b.Signature, b.Content))
			}
		}
		role := sdk.MessageParamRoleUser
		if m.Role == core.RoleAssistant {
			role = sdk.MessageParamRoleAssistant
		}
		out = append(out, sdk.MessageParam{Role: role, Content: blocks})
	}
	return out, nil
}

func toToolResultBlock(b core.ToolResultBlock) sdk.ContentBlockParamUnion {
	var text string
	switch b.Content.Kind {
	case core.ToolResultKindText:
		text = b.Content.Text
	case core.ToolResultKindStructured:
		text = string(b.Content.Structured)
	case core.ToolResultKindBlocks:
		for _, nested := range b.Content.Blocks {
			if t, ok := nested.(core.TextBlock); ok {
				text += t.Text
			}
		}
	}
	return sdk.NewToolResultBlock(b.CallID, text, b.IsError)
}
