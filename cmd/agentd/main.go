// Command agentd wires the runtime's packages into one running agent
// process: tool registry and dispatcher, sub-agent manager, reminder
// orchestrator, file-change watcher/indexer, and a provider client chosen by
// AGENTD_PROVIDER, then drives a single Loop from stdin/stdout.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/dispatch"
	"github.com/coreagent/runtime/agent/engine"
	"github.com/coreagent/runtime/agent/engine/inmem"
	"github.com/coreagent/runtime/agent/engine/temporal"
	"github.com/coreagent/runtime/agent/features"
	"github.com/coreagent/runtime/agent/hooks"
	"github.com/coreagent/runtime/agent/indexer"
	"github.com/coreagent/runtime/agent/loop"
	"github.com/coreagent/runtime/agent/provider"
	"github.com/coreagent/runtime/agent/provider/anthropic"
	"github.com/coreagent/runtime/agent/provider/openai"
	"github.com/coreagent/runtime/agent/reminder"
	"github.com/coreagent/runtime/agent/sandbox"
	"github.com/coreagent/runtime/agent/smartedit"
	"github.com/coreagent/runtime/agent/subagent"
	"github.com/coreagent/runtime/agent/telemetry"
)

func main() {
	log := buildLogger()

	root, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentd: getwd:", err)
		os.Exit(1)
	}

	client, modelInfo, err := buildProvider()
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentd: provider:", err)
		os.Exit(1)
	}

	readTracker := dispatch.NewReadTracker()
	registry := dispatch.NewRegistry()
	registry.Register(dispatch.ReadTool{Tracker: readTracker})
	registry.Register(dispatch.GlobTool{Root: root})
	registry.Register(dispatch.EditTool{
		Engine: &smartedit.Engine{Reads: readTracker},
	})
	registry.Register(dispatch.ApplyPatchTool{Root: root})

	fs := features.New()
	perms := dispatch.NewResolver()
	chain := hooks.NewChain(nil, log)
	invoker := hooks.NewPluginInvoker()
	broker := dispatch.NewBroker(nil)
	sb := sandbox.NewSandbox(sandbox.ModeNone, root)

	dispatcher := dispatch.New(registry, perms, chain, invoker, broker, sb, fs, log)

	changedFiles := reminder.NewChangedFilesGenerator()
	reminders := buildReminders(readTracker, changedFiles)

	idx, pool, watcher := buildIndexer(root, log)
	if watcher != nil {
		ctx := context.Background()
		if _, err := watcher.Start(ctx); err != nil {
			log.Warn(ctx, "agentd: indexer watch failed to start", "error", err)
		} else {
			go pool.Run(ctx)
		}
		defer idx.Close()
	}

	lp := buildLoop(client, modelInfo, registry, dispatcher, reminders, log, readTracker, changedFiles)

	eng, err := buildEngine(context.Background(), lp, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentd: engine:", err)
		os.Exit(1)
	}
	if wc, ok := eng.(interface{ Worker() *temporal.WorkerController }); ok {
		if err := wc.Worker().Start(); err != nil {
			fmt.Fprintln(os.Stderr, "agentd: engine worker:", err)
			os.Exit(1)
		}
		defer wc.Worker().Stop()
	}

	runStdio(lp)
}

// buildLogger picks the ambient Logger implementation. AGENTD_LOGGER=clue
// switches to goa.design/clue/log, the way the runtime's own grounding file
// wires its telemetry; the default is rs/zerolog, used the same way across
// the rest of the corpus.
func buildLogger() telemetry.Logger {
	if os.Getenv("AGENTD_LOGGER") == "clue" {
		return telemetry.NewClueLogger()
	}
	return telemetry.NewZerologLogger(zerolog.New(os.Stderr).With().Timestamp().Logger())
}

// buildProvider selects an agent/provider.Client from environment
// configuration. AGENTD_PROVIDER defaults to "anthropic".
func buildProvider() (provider.Client, provider.ModelInfo, error) {
	switch os.Getenv("AGENTD_PROVIDER") {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, provider.ModelInfo{}, fmt.Errorf("OPENAI_API_KEY is required for AGENTD_PROVIDER=openai")
		}
		cl, err := openai.NewFromAPIKey(apiKey, "")
		if err != nil {
			return nil, provider.ModelInfo{}, err
		}
		model := os.Getenv("AGENTD_MODEL")
		if model == "" {
			model = "gpt-5"
		}
		return cl, provider.ModelInfo{Provider: provider.KindOpenAI, Model: model}, nil

	default:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, provider.ModelInfo{}, fmt.Errorf("ANTHROPIC_API_KEY is required for AGENTD_PROVIDER=anthropic")
		}
		sdkClient := sdk.NewClient(option.WithAPIKey(apiKey))
		cl, err := anthropic.New(&sdkClient.Messages, anthropic.Options{Transport: anthropic.TransportDirect, MaxTokens: 8192})
		if err != nil {
			return nil, provider.ModelInfo{}, err
		}
		model := os.Getenv("AGENTD_MODEL")
		if model == "" {
			model = "claude-opus-4-6"
		}
		return cl, provider.ModelInfo{Provider: provider.KindAnthropic, Model: model}, nil
	}
}

// buildReminders registers seven generators: changed files, already-read
// files, todo, critical instruction, background task, security guidelines
// and output style. The todo, background-task and output-style callbacks
// return nothing here; a caller driving a real UI would replace these
// closures with its own state. The plan-mode, plan-file and hook-response
// generators are not registered.
func buildReminders(reads *dispatch.ReadTracker, changed *reminder.ChangedFilesGenerator) *reminder.Manager {
	m := reminder.NewManager()

	m.Register(changed)

	m.Register(&reminder.AlreadyReadFileGenerator{
		Pending: func() []reminder.AlreadyRead {
			var out []reminder.AlreadyRead
			for _, r := range reads.DrainPending() {
				out = append(out, reminder.AlreadyRead{Path: r.Path, ReadCount: r.ReadCount})
			}
			return out
		},
	})

	m.Register(&reminder.TodoReminderGenerator{Todos: func() []string { return nil }})
	m.Register(&reminder.CriticalInstructionGenerator{})
	m.Register(&reminder.BackgroundTaskGenerator{Running: func() []string { return nil }})
	m.Register(reminder.SecurityGuidelinesGenerator{})
	m.Register(&reminder.OutputStyleGenerator{Style: func() string { return "" }})

	return m
}

// buildIndexer wires the Retrieval Indexer (spec.md §4.7) over the current
// working directory, using a SQLite database under .agentd/index.db. Returns
// nil, nil, nil if the index cannot be opened, in which case the caller runs
// without retrieval indexing rather than failing to start.
func buildIndexer(root string, log telemetry.Logger) (*indexer.Index, *indexer.Pool, *indexer.Watcher) {
	if err := os.MkdirAll(root+"/.agentd", 0o755); err != nil {
		log.Warn(context.Background(), "agentd: could not create index dir", "error", err)
		return nil, nil, nil
	}
	idx, err := indexer.Open(root+"/.agentd/index.db", indexer.DefaultPolicy())
	if err != nil {
		log.Warn(context.Background(), "agentd: could not open index", "error", err)
		return nil, nil, nil
	}

	queue := indexer.NewQueue()
	lag := indexer.NewLagTracker()
	batches := indexer.NewBatchTracker()
	chunker := indexer.NewChunker("gpt-4")

	pool := &indexer.Pool{
		Queue:   queue,
		Lag:     lag,
		Batches: batches,
		Index:   idx,
		Chunker: chunker,
		Workers: 4,
		Log:     log,
	}

	watcher, err := indexer.NewWatcher(indexer.WatcherConfig{
		Root:          root,
		DebounceDelay: 300 * time.Millisecond,
		Log:           log,
		Filter: indexer.PathFilterFunc(func(path string) bool {
			return strings.Contains(path, "/.git/") || strings.Contains(path, "/.agentd/")
		}),
	}, queue, lag, batches)
	if err != nil {
		log.Warn(context.Background(), "agentd: could not start watcher", "error", err)
		return idx, pool, nil
	}

	return idx, pool, watcher
}

// turnWorkflowName identifies the workflow a durable engine registers to
// drive one Loop submission to completion (SPEC_FULL.md §4.1's Open
// Question: in-memory for local/dev, Temporal for production).
const turnWorkflowName = "agent_turn"

// buildEngine selects and configures the durable engine backend per
// AGENTD_ENGINE ("inmem", the default, or "temporal"), and registers the
// turn workflow that wraps one Loop.Submit call so a host can drive
// submissions through engine.Engine.StartWorkflow instead of calling Submit
// directly — giving the same submission a durable, replayable run history
// under the Temporal backend without changing Loop itself.
func buildEngine(ctx context.Context, lp *loop.Loop, log telemetry.Logger) (engine.Engine, error) {
	var eng engine.Engine
	switch os.Getenv("AGENTD_ENGINE") {
	case "temporal":
		taskQueue := os.Getenv("AGENTD_TEMPORAL_TASK_QUEUE")
		if taskQueue == "" {
			taskQueue = "agentd"
		}
		e, err := temporal.New(temporal.Options{
			WorkerOptions: temporal.WorkerOptions{TaskQueue: taskQueue},
			Logger:        log,
		})
		if err != nil {
			return nil, err
		}
		eng = e
	default:
		eng = inmem.New()
	}

	err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: turnWorkflowName,
		Handler: func(wctx engine.WorkflowContext, input any) (any, error) {
			prompt, _ := input.(string)
			_, events := lp.Submit(loop.UserCommand{Kind: loop.CommandSubmitInput, Text: prompt})
			var result loop.LoopResult
			for ev := range events {
				if ev.Kind == loop.EventStop && ev.Stop != nil {
					result = *ev.Stop
				}
			}
			if result.Err != nil {
				return nil, result.Err
			}
			return result, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return eng, nil
}

func buildLoop(client provider.Client, modelInfo provider.ModelInfo, registry *dispatch.Registry, dispatcher *dispatch.Dispatcher, reminders *reminder.Manager, log telemetry.Logger, reads *dispatch.ReadTracker, changed *reminder.ChangedFilesGenerator) *loop.Loop {
	var lp *loop.Loop
	subRunner := childRunnerFunc(func(ctx context.Context, spec subagent.ChildSpec) (core.SubagentOutput, error) {
		return runSubagent(ctx, client, modelInfo, registry, dispatcher, spec)
	})
	subagents := subagent.NewManager(subRunner)

	lp = loop.New(loop.Config{
		WorkerID:     "agentd",
		SystemPrompt: defaultSystemPrompt,
		ModelInfo:    modelInfo,
		Client:       client,
		Registry:     registry,
		Dispatcher:   dispatcher,
		Subagents:    subagents,
		Reminders:    reminders,
		Log:          log,
		OnContextModifiers: func(mods []dispatch.ContextModifier) {
			reads.Track(mods)
			for _, m := range mods {
				if m.Kind == dispatch.ModifierFileWrite {
					changed.Note(m.FilePath)
				}
			}
		},
	})
	return lp
}

// childRunnerFunc adapts a function literal to subagent.Runner.
type childRunnerFunc func(ctx context.Context, spec subagent.ChildSpec) (core.SubagentOutput, error)

func (f childRunnerFunc) RunChild(ctx context.Context, spec subagent.ChildSpec) (core.SubagentOutput, error) {
	return f(ctx, spec)
}

// runSubagent drives one child turn loop to completion in-process, using a
// reduced tool registry per spec.md §4.3's per-type whitelist (AllowedTools,
// already resolved by the caller onto spec.AllowedTools).
func runSubagent(ctx context.Context, client provider.Client, modelInfo provider.ModelInfo, registry *dispatch.Registry, dispatcher *dispatch.Dispatcher, spec subagent.ChildSpec) (core.SubagentOutput, error) {
	childRegistry := dispatch.NewRegistry()
	for _, name := range spec.AllowedTools {
		if t, ok := registry.Resolve(name); ok {
			childRegistry.Register(t)
		}
	}
	childRegistry.Register(subagent.NewCompleteTask(spec.OutputSchema))

	model := modelInfo
	if spec.Model != nil {
		model.Model = spec.Model.Model
	}

	child := loop.New(loop.Config{
		WorkerID:     "subagent",
		SystemPrompt: spec.Description,
		ModelInfo:    model,
		Client:       client,
		Registry:     childRegistry,
		Dispatcher:   dispatcher,
	})

	_, events := child.Submit(loop.UserCommand{Kind: loop.CommandSubmitInput, Text: spec.Prompt})

	var output core.SubagentOutput
	for ev := range events {
		switch {
		case ev.Kind == loop.EventToolEnd && ev.ToolName == subagent.CompleteTaskToolName && ev.ToolResult != nil && !ev.ToolResult.IsError:
			payload := ev.ToolResult.Content.Text
			output = core.SubagentOutput{Text: payload, JSON: []byte(payload)}
		case ev.Kind == loop.EventStop && ev.Stop != nil && ev.Stop.Err != nil:
			return output, ev.Stop.Err
		}
	}
	return output, nil
}

const defaultSystemPrompt = "You are a coding agent operating in a sandboxed workspace."

// runStdio is a minimal line-oriented driver: each stdin line becomes a
// CommandSubmitInput, and assistant text/tool events are printed to stdout
// as they stream, until EOF or SIGINT/SIGTERM.
func runStdio(lp *loop.Loop) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		lp.Submit(loop.UserCommand{Kind: loop.CommandShutdown})
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		_, events := lp.Submit(loop.UserCommand{Kind: loop.CommandSubmitInput, Text: line})
		for ev := range events {
			printEvent(ev)
		}
	}
}

func printEvent(ev loop.LoopEvent) {
	switch ev.Kind {
	case loop.EventAssistantText:
		fmt.Print(ev.TextDelta)
	case loop.EventToolStart:
		fmt.Fprintf(os.Stderr, "\n[tool] %s\n", ev.ToolName)
	case loop.EventStop:
		fmt.Println()
		if ev.Stop != nil && ev.Stop.Err != nil {
			fmt.Fprintln(os.Stderr, "agentd: turn error:", ev.Stop.Err)
		}
	}
}
