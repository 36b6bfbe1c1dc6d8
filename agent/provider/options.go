package provider

import "github.com/coreagent/runtime/agent/core"

// Options is a type-erased, per-provider container. Exactly one of the
// typed fields is meaningful for a given provider Kind; Extra carries
// request-option keys with no typed home (spec.md §4.4's merge rule).
type Options struct {
	Kind Kind

	Anthropic  *AnthropicOptions
	OpenAI     *OpenAIOptions
	Gemini     *GeminiOptions
	Volcengine *VolcengineOptions

	Extra map[string]any
}

// AnthropicOptions configures Anthropic (and Zai, which shares the
// budget_tokens convention per spec.md §4.4).
type AnthropicOptions struct {
	ThinkingBudget int
}

// OpenAIOptions configures OpenAI-family requests.
type OpenAIOptions struct {
	ReasoningEffort         core.ThinkingEffort
	ReasoningSummary        bool
	IncludeEncryptedContent bool
}

// GeminiOptions configures Gemini requests.
type GeminiOptions struct {
	ReasoningEffort core.ThinkingEffort
	IncludeThoughts bool
}

// VolcengineOptions accepts both the Anthropic-style budget and the
// OpenAI-style effort, per spec.md §4.4 ("Volcengine accepts both").
type VolcengineOptions struct {
	ThinkingBudget  int
	ReasoningEffort core.ThinkingEffort
}

// ConvertThinking maps a ThinkingLevel into provider-specific options,
// implementing the table in spec.md §4.4. Returns nil when the level is not
// enabled.
func ConvertThinking(level *core.ThinkingLevel, kind Kind) *Options {
	if level == nil || !level.IsEnabled() {
		return nil
	}
	switch kind {
	case KindAnthropic, KindZai:
		return &Options{Kind: kind, Anthropic: &AnthropicOptions{ThinkingBudget: level.BudgetTokens}}
	case KindOpenAI, KindOpenAICompat:
		return &Options{Kind: kind, OpenAI: &OpenAIOptions{
			ReasoningEffort:         level.Effort,
			ReasoningSummary:        true,
			IncludeEncryptedContent: true,
		}}
	case KindGemini:
		return &Options{Kind: kind, Gemini: &GeminiOptions{
			ReasoningEffort: level.Effort,
			IncludeThoughts: true,
		}}
	case KindVolcengine:
		return &Options{Kind: kind, Volcengine: &VolcengineOptions{
			ThinkingBudget:  level.BudgetTokens,
			ReasoningEffort: level.Effort,
		}}
	default:
		return nil
	}
}

// knownOptionKeys enumerates ModelInfo.RequestOptions keys with a typed
// home, per provider kind. Anything else goes to Options.Extra.
var knownOptionKeys = map[Kind]map[string]bool{
	KindAnthropic:    {"thinking_budget": true},
	KindZai:          {"thinking_budget": true},
	KindOpenAI:       {"reasoning_effort": true, "reasoning_summary": true, "include_encrypted_content": true},
	KindOpenAICompat: {"reasoning_effort": true, "reasoning_summary": true, "include_encrypted_content": true},
	KindGemini:       {"reasoning_effort": true, "include_thoughts": true},
	KindVolcengine:   {"thinking_budget": true, "reasoning_effort": true},
}

// MergeRequestOptions applies spec.md §4.4's merge rule: thinking-derived
// options take priority; ModelInfo.RequestOptions fills in any field left
// unset by thinking conversion; unknown keys are preserved in Extra.
// Already-set typed fields are never overwritten.
func MergeRequestOptions(thinkingDerived *Options, info ModelInfo) *Options {
	out := thinkingDerived
	if out == nil {
		out = &Options{Kind: info.Provider}
	}
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	known := knownOptionKeys[info.Provider]
	for key, value := range info.RequestOptions {
		if !known[key] {
			out.Extra[key] = value
			continue
		}
		applyKnownOption(out, key, value)
	}
	return out
}

func applyKnownOption(out *Options, key string, value any) {
	switch out.Kind {
	case KindAnthropic, KindZai:
		if out.Anthropic == nil {
			out.Anthropic = &AnthropicOptions{}
		}
		if key == "thinking_budget" && out.Anthropic.ThinkingBudget == 0 {
			if v, ok := toInt(value); ok {
				out.Anthropic.ThinkingBudget = v
			}
		}
	case KindOpenAI, KindOpenAICompat:
		if out.OpenAI == nil {
			out.OpenAI = &OpenAIOptions{}
		}
		switch key {
		case "reasoning_summary":
			if v, ok := value.(bool); ok && !out.OpenAI.ReasoningSummary {
				out.OpenAI.ReasoningSummary = v
			}
		case "include_encrypted_content":
			if v, ok := value.(bool); ok && !out.OpenAI.IncludeEncryptedContent {
				out.OpenAI.IncludeEncryptedContent = v
			}
		}
	case KindGemini:
		if out.Gemini == nil {
			out.Gemini = &GeminiOptions{}
		}
		if key == "include_thoughts" {
			if v, ok := value.(bool); ok && !out.Gemini.IncludeThoughts {
				out.Gemini.IncludeThoughts = v
			}
		}
	case KindVolcengine:
		if out.Volcengine == nil {
			out.Volcengine = &VolcengineOptions{}
		}
		if key == "thinking_budget" && out.Volcengine.ThinkingBudget == 0 {
			if v, ok := toInt(value); ok {
				out.Volcengine.ThinkingBudget = v
			}
		}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// ResolveAPIModelName resolves a model alias (e.g. a Volcengine endpoint ID)
// to the wire-level identifier, falling back to Model when no alias is set
// (spec.md §4.4: "resolving model aliases via api_model_name").
func ResolveAPIModelName(info ModelInfo) string {
	if info.APIModelName != "" {
		return info.APIModelName
	}
	return info.Model
}
