package subagent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coreagent/runtime/agent/core"
)

type stubRunner struct {
	out core.SubagentOutput
	err error

	block chan struct{}
}

func (s *stubRunner) RunChild(ctx context.Context, spec ChildSpec) (core.SubagentOutput, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return core.SubagentOutput{}, ctx.Err()
		}
	}
	return s.out, s.err
}

func TestSpawnForegroundReturnsOnCompletion(t *testing.T) {
	runner := &stubRunner{out: core.SubagentOutput{JSON: []byte(`{"output":"done"}`)}}
	mgr := NewManager(runner)

	id, err := mgr.Spawn(context.Background(), "parent-1", ChildSpec{Type: core.SubagentExplore, Prompt: "find x"}, false)
	require.NoError(t, err)

	rec, err := mgr.Output(context.Background(), id, false, 0)
	require.NoError(t, err)
	require.Equal(t, core.SubagentCompleted, rec.Status)
	require.Equal(t, []byte(`{"output":"done"}`), rec.Output.JSON)
}

func TestSpawnDefaultsToolsByType(t *testing.T) {
	runner := &stubRunner{out: core.SubagentOutput{}}
	mgr := NewManager(runner)

	id, err := mgr.Spawn(context.Background(), "", ChildSpec{Type: core.SubagentExplore}, false)
	require.NoError(t, err)

	rec, err := mgr.Output(context.Background(), id, false, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"read", "glob", "grep"}, rec.AllowedTools)
	require.NotContains(t, rec.AllowedTools, "bash")
}

func TestSpawnBackgroundThenOutputBlocks(t *testing.T) {
	block := make(chan struct{})
	runner := &stubRunner{out: core.SubagentOutput{JSON: []byte(`{"output":"later"}`)}, block: block}
	mgr := NewManager(runner)

	id, err := mgr.Spawn(context.Background(), "parent-1", ChildSpec{Type: core.SubagentBash}, true)
	require.NoError(t, err)

	rec, err := mgr.Output(context.Background(), id, false, 0)
	require.NoError(t, err)
	require.Equal(t, core.SubagentRunning, rec.Status)

	close(block)

	rec, err = mgr.Output(context.Background(), id, true, time.Second)
	require.NoError(t, err)
	require.Equal(t, core.SubagentCompleted, rec.Status)
}

func TestBackgroundAllConvertsRunningOnly(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	runner := &stubRunner{block: block}
	mgr := NewManager(runner)

	id, err := mgr.Spawn(context.Background(), "parent-1", ChildSpec{Type: core.SubagentExplore}, true)
	require.NoError(t, err)

	mgr.BackgroundAll()

	rec, err := mgr.Output(context.Background(), id, false, 0)
	require.NoError(t, err)
	require.Equal(t, core.SubagentBackgrounded, rec.Status)
}

func TestCancelStopsChildContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	runner := &stubRunner{block: block}
	mgr := NewManager(runner)

	id, err := mgr.Spawn(context.Background(), "parent-1", ChildSpec{Type: core.SubagentBash}, true)
	require.NoError(t, err)

	require.NoError(t, mgr.Cancel(id))

	rec, err := mgr.Output(context.Background(), id, true, time.Second)
	require.NoError(t, err)
	require.Equal(t, core.SubagentFailed, rec.Status)
	require.Contains(t, rec.Output.Error, "context canceled")
}

func TestOutputUnknownAgentErrors(t *testing.T) {
	mgr := NewManager(&stubRunner{})
	_, err := mgr.Output(context.Background(), "missing", false, 0)
	require.Error(t, err)
}
