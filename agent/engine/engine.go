// Package engine defines a pluggable durable-workflow abstraction so the
// Agent Loop's turn boundary can run on an in-memory backend during local
// development and tests, or on Temporal in production, without either
// backend leaking into agent/loop.
package engine

import (
	"context"
	"time"

	"github.com/coreagent/runtime/agent/telemetry"
)

type (
	// Engine abstracts workflow registration and execution so backends
	// (Temporal, in-memory) can be swapped without touching callers.
	Engine interface {
		// RegisterWorkflow registers a workflow definition. Must be called
		// before StartWorkflow; returns an error on a name conflict.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity handler, invoked from
		// workflow code via WorkflowContext.ExecuteActivity(Async).
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow launches a new execution and returns a handle.
		// req.ID must be unique within the engine.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default task queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is a workflow entry point. It must be deterministic:
	// the same inputs and activity results must produce the same
	// execution sequence on replay.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to workflow handlers.
	// Implementations must ensure deterministic replay: direct I/O,
	// random number generation, or wall-clock access within a workflow
	// violates determinism. WorkflowContext is bound to one execution and
	// must not be shared across goroutines or cached past the workflow's
	// lifetime.
	WorkflowContext interface {
		Context() context.Context
		WorkflowID() string
		RunID() string

		// ExecuteActivity schedules an activity and blocks for its
		// result, which is written into result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error

		// ExecuteActivityAsync schedules an activity without blocking.
		// Only scheduling failures are returned directly; execution
		// errors surface from Future.Get.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the channel external callers deliver
		// signal name's payloads to.
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns replay-safe workflow time.
		Now() time.Time
	}

	// Future is a pending activity result. Get may be called more than
	// once and returns the same result/error each time.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc handles one activity invocation. Unlike workflow code,
	// activities may perform I/O freely.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout behavior for an activity.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		Memo             map[string]any
		SearchAttributes map[string]any
		RetryPolicy      RetryPolicy
	}

	// ActivityRequest describes one activity invocation from within a
	// workflow.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle interacts with a running workflow execution.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
		Status(ctx context.Context) (WorkflowStatus, error)
	}

	// WorkflowStatus is the execution state of a workflow started with
	// StartWorkflow, independent of the backend that ran it.
	WorkflowStatus int
)

const (
	WorkflowStatusUnspecified WorkflowStatus = iota
	WorkflowStatusRunning
	WorkflowStatusCompleted
	WorkflowStatusFailed
	WorkflowStatusCanceled
	WorkflowStatusTerminated
	WorkflowStatusTimedOut
)

func (s WorkflowStatus) String() string {
	switch s {
	case WorkflowStatusRunning:
		return "running"
	case WorkflowStatusCompleted:
		return "completed"
	case WorkflowStatusFailed:
		return "failed"
	case WorkflowStatusCanceled:
		return "canceled"
	case WorkflowStatusTerminated:
		return "terminated"
	case WorkflowStatusTimedOut:
		return "timed_out"
	default:
		return "unspecified"
	}
}

type (
	// RetryPolicy is shared retry configuration for workflows and
	// activities. Zero-valued fields mean "use the engine's default".
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel delivers external events into a running workflow.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)
