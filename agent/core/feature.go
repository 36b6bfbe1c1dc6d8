package core

// FeatureStage is the lifecycle stage of a Feature.
type FeatureStage string

const (
	StageExperimental FeatureStage = "experimental"
	StageBeta         FeatureStage = "beta"
	StageStable       FeatureStage = "stable"
	StageDeprecated   FeatureStage = "deprecated"
	StageRemoved      FeatureStage = "removed"
)

// BetaInfo carries the extra metadata a Beta-stage feature announces.
type BetaInfo struct {
	Name         string
	Description  string
	Announcement string
}

// Feature is one togglable capability. Beta is only meaningful when Stage ==
// StageBeta.
type Feature struct {
	Key   string
	Stage FeatureStage
	Beta  *BetaInfo
}

// Subagent is the manager-observable record of a spawned child agent.
type Subagent struct {
	ID     string
	Type   SubagentType
	Parent string // empty for top-level subagents

	Status   SubagentStatus
	Progress string

	AllowedTools []string

	// Output is populated once Status is Completed or Failed.
	Output *SubagentOutput
}

// SubagentType selects the child agent's capability profile.
type SubagentType string

const (
	SubagentExplore       SubagentType = "explore"
	SubagentPlan          SubagentType = "plan"
	SubagentBash          SubagentType = "bash"
	SubagentGeneralPurpose SubagentType = "general-purpose"
)

// SubagentStatus is the lifecycle state of a Subagent.
type SubagentStatus string

const (
	SubagentRunning     SubagentStatus = "running"
	SubagentCompleted   SubagentStatus = "completed"
	SubagentFailed      SubagentStatus = "failed"
	SubagentBackgrounded SubagentStatus = "backgrounded"
)

// SubagentOutput is the terminal payload of a Subagent, shaped by its
// declared OutputConfig.Schema when one was provided at spawn time.
type SubagentOutput struct {
	Text  string
	JSON  []byte
	Error string
}

// TrackedEvent wraps arbitrary event data with the sequencing metadata the
// retrieval indexer's LagTracker relies on (spec.md §4.7 / §8 invariant 6).
type TrackedEvent[T any] struct {
	Data      T
	BatchID   string
	Seq       int64
	TraceID   string
	Timestamp int64 // unix millis
}
