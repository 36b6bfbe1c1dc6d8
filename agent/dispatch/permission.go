package dispatch

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/coreagent/runtime/agent/core"
)

// Verdict is the three-way outcome of evaluating a single permission Rule,
// richer than PermissionDecision.Allowed alone so the resolver can express
// "ask the user" without conflating it with "deny".
type Verdict int

const (
	VerdictAllowed Verdict = iota
	VerdictDenied
	VerdictNeedsApproval
)

// Rule is one permission entry: if ToolPattern and (optional) ArgPattern
// match a call, Verdict applies with the given Source precedence.
type Rule struct {
	Source      core.RuleSource
	ToolPattern string // glob over tool name, "*" matches everything
	ArgPattern  string // glob over a caller-supplied argument summary (e.g. a path or command prefix); empty matches any
	Verdict     Verdict
	Reason      string
}

func (r Rule) matches(toolName, argSummary string) bool {
	if ok, _ := filepath.Match(r.ToolPattern, toolName); !ok {
		return false
	}
	if r.ArgPattern == "" {
		return true
	}
	ok, _ := filepath.Match(r.ArgPattern, argSummary)
	return ok
}

// Resolver holds the live rule set and resolves PermissionDecisions for
// tool calls, implementing spec.md §4.2 step 3 and invariant 4 ("the rule
// with the smaller RuleSource wins").
type Resolver struct {
	mu    sync.RWMutex
	rules []Rule

	// Bypass, when true, allows every call unconditionally (spec.md §4.2:
	// "Bypass mode → Allowed").
	Bypass bool

	// PlanMode, when true, blocks every write tool except edits to
	// PlanFilePath (spec.md §4.2: "Plan mode blocks every write tool except
	// edits to the plan file").
	PlanMode     bool
	PlanFilePath string
}

// NewResolver builds an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// AddRule installs a rule, e.g. a Session-source rule from a remembered
// approval (spec.md §4.2 step 5: "A prefix approval installs a
// Session-source rule").
func (r *Resolver) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

// ResolveVerdict evaluates all matching rules for a tool call and returns
// both the PermissionDecision (for display/logging) and the three-way
// Verdict the dispatcher branches on, from the lowest-precedence (smallest
// RuleSource) match. argSummary is a caller-chosen short string describing
// the call's sensitive argument (a file path for Edit, a command prefix for
// Bash, etc); it is matched against each Rule.ArgPattern.
func (r *Resolver) ResolveVerdict(def core.ToolDefinition, argSummary string) (core.PermissionDecision, Verdict) {
	if r.Bypass {
		return core.PermissionDecision{Allowed: true, Reason: "bypass mode", Source: core.RuleSourceSession}, VerdictAllowed
	}
	if r.PlanMode && !def.ReadOnly && !(def.Name == "edit" && argSummary == r.PlanFilePath) {
		return core.PermissionDecision{Allowed: false, Reason: "plan mode blocks write tools", Source: core.RuleSourceSession}, VerdictDenied
	}

	r.mu.RLock()
	matches := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.matches(def.Name, argSummary) {
			matches = append(matches, rule)
		}
	}
	r.mu.RUnlock()

	if len(matches) == 0 {
		return core.PermissionDecision{Allowed: false, Reason: "no matching rule, default deny"}, VerdictDenied
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Source < matches[j].Source })
	best := matches[0]
	decision := core.PermissionDecision{
		Allowed:        best.Verdict == VerdictAllowed,
		Reason:         best.Reason,
		Source:         best.Source,
		MatchedPattern: best.ToolPattern,
	}
	return decision, best.Verdict
}
