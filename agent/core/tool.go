package core

import "encoding/json"

// ConcurrencySafety declares whether a tool may run concurrently with other
// Safe tools, or requires exclusive access to the dispatcher (see
// agent/dispatch for the admission rule).
type ConcurrencySafety string

const (
	Safe   ConcurrencySafety = "safe"
	Unsafe ConcurrencySafety = "unsafe"
)

// ToolDefinition is the static description of a tool exposed to the model
// and enforced by the dispatcher.
type ToolDefinition struct {
	Name string

	// Parameters is a JSON Schema object describing the tool's input.
	Parameters json.RawMessage

	// CustomFormat, when non-nil, supplies a freeform grammar (e.g. the
	// apply_patch lark grammar) instead of a JSON Schema. See §6.
	CustomFormat *CustomFormat

	ConcurrencySafety ConcurrencySafety
	ReadOnly          bool

	// FeatureGate, when non-empty, names a Feature key that must be enabled
	// for this tool to dispatch (see agent/features).
	FeatureGate string

	// MaxResultSizeChars truncates the tool's result content before it is
	// appended to history. Zero means no truncation.
	MaxResultSizeChars int

	// Description is shown to the model to decide when to call the tool.
	Description string
}

// CustomFormat describes a non-JSON-Schema tool input grammar.
type CustomFormat struct {
	Type       string // e.g. "grammar"
	Syntax     string // e.g. "lark"
	Definition string
}

// SecuritySeverity totally orders risk severities from least to most severe.
type SecuritySeverity int

const (
	SeverityLow SecuritySeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// SecurityRisk is one risk surfaced to the user alongside an ApprovalRequest.
type SecurityRisk struct {
	Severity    SecuritySeverity
	Description string
}

// ApprovalRequest is presented to the user when permission resolution (see
// agent/dispatch) yields NeedsApproval.
type ApprovalRequest struct {
	RequestID string
	ToolName  string

	// Description is a human-readable summary of what the tool call will do,
	// optionally including a smart-edit diff preview (see agent/smartedit).
	Description string

	Risks []SecurityRisk

	// AllowRemember, when true, lets the UI present a "don't ask again"
	// option that installs a Session-source permission rule.
	AllowRemember bool

	// ProposedPrefixPattern is the command-prefix pattern the UI may offer
	// to approve persistently (see PermissionDecision / ApprovalResponse).
	ProposedPrefixPattern string
}

// RuleSource totally orders the provenance of a PermissionDecision, lowest
// value wins when two rules match the same tool call (invariant 4 in
// spec.md §8: "the rule with the smaller RuleSource wins").
type RuleSource int

const (
	RuleSourceSession RuleSource = iota
	RuleSourceCommand
	RuleSourceCLI
	RuleSourceFlag
	RuleSourceLocal
	RuleSourceProject
	RuleSourcePolicy
	RuleSourceUser
)

// PermissionDecision is the resolved outcome of evaluating permission rules
// against a tool call.
type PermissionDecision struct {
	Allowed        bool
	Reason         string
	Source         RuleSource
	MatchedPattern string
}

// ModelSpec identifies a concrete model on a concrete provider.
type ModelSpec struct {
	Provider string
	Model    string
}

// ThinkingEffort is the ordered reasoning-effort scale used across providers.
type ThinkingEffort int

const (
	ThinkingNone ThinkingEffort = iota
	ThinkingMinimal
	ThinkingLow
	ThinkingMedium
	ThinkingHigh
	ThinkingXHigh
)

// ThinkingLevel configures provider reasoning behavior. IsEnabled reports
// true iff Effort is not ThinkingNone, matching spec.md's
// "is_enabled ⇔ effort ≠ None" invariant.
type ThinkingLevel struct {
	Effort          ThinkingEffort
	BudgetTokens    int
	MaxOutputTokens int
	Interleaved     bool
}

// IsEnabled reports whether this level requests any reasoning at all.
func (t ThinkingLevel) IsEnabled() bool {
	return t.Effort != ThinkingNone
}

// RoleSelection pairs a ModelSpec with the thinking configuration that
// applies to a role (e.g. "main agent", "sub-agent", "smart-edit corrector").
type RoleSelection struct {
	Model                   ModelSpec
	ThinkingLevel           *ThinkingLevel
	SupportedThinkingLevels []ThinkingEffort
}

// SupportsEffort reports whether e is in SupportedThinkingLevels. An empty
// SupportedThinkingLevels is interpreted as "no restriction".
func (r RoleSelection) SupportsEffort(e ThinkingEffort) bool {
	if len(r.SupportedThinkingLevels) == 0 {
		return true
	}
	for _, s := range r.SupportedThinkingLevels {
		if s == e {
			return true
		}
	}
	return false
}
