// Package openaicompat provides a provider.Client for any OpenAI-wire
// compatible endpoint, built on top of agent/provider/openai. Gemini,
// Volcengine, and Zai are expressed as presets of this adapter rather than
// bespoke SDKs, since none of the retrieval pack's examples ship a
// dedicated client for those three (spec.md §4.4 groups them loosely with
// OpenaiCompat semantics already).
package openaicompat

import (
	"github.com/coreagent/runtime/agent/provider"
	"github.com/coreagent/runtime/agent/provider/openai"
)

// Preset names a known OpenAI-compatible endpoint family.
type Preset string

const (
	PresetGeneric    Preset = "generic"
	PresetGemini     Preset = "gemini"
	PresetVolcengine Preset = "volcengine"
	PresetZai        Preset = "zai"
)

// presetBaseURL returns the well-known OpenAI-compatible base URL for a
// preset. PresetGeneric requires an explicit BaseURL in Config.
var presetBaseURL = map[Preset]string{
	PresetGemini:     "https://generativelanguage.googleapis.com/v1beta/openai/",
	PresetVolcengine: "https://ark.cn-beijing.volces.com/api/v3/",
	PresetZai:        "https://open.bigmodel.cn/api/paas/v4/",
}

// Config configures a preset client.
type Config struct {
	Preset  Preset
	BaseURL string // overrides the preset default; required when Preset == PresetGeneric
	APIKey  string
}

// New builds a provider.Client for the configured preset/base URL.
func New(cfg Config) (provider.Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = presetBaseURL[cfg.Preset]
	}
	return openai.NewFromAPIKey(cfg.APIKey, baseURL)
}

// ResolveVolcengineModel maps a logical model name to its Volcengine
// endpoint-id alias, mirroring spec.md §4.4's "resolving model aliases ...
// via api_model_name". Callers populate provider.ModelInfo.APIModelName
// with this before invoking provider.ResolveAPIModelName.
func ResolveVolcengineModel(endpointAliases map[string]string, model string) string {
	if id, ok := endpointAliases[model]; ok {
		return id
	}
	return model
}
