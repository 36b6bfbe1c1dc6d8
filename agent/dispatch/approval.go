package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"

	"github.com/coreagent/runtime/agent/core"
)

// ApprovalResponseKind is the three-way reply to an ApprovalRequest
// (spec.md §4.2 step 5).
type ApprovalResponseKind string

const (
	ApprovalApproved            ApprovalResponseKind = "approved"
	ApprovalApprovedWithPrefix  ApprovalResponseKind = "approved_with_prefix"
	ApprovalDenied              ApprovalResponseKind = "denied"
)

// ApprovalResponse answers a pending ApprovalRequest.
type ApprovalResponse struct {
	RequestID string
	Kind      ApprovalResponseKind
	Prefix    string // set when Kind == ApprovalApprovedWithPrefix
}

// pendingKey enforces the "at most one pending request per (worker_id, tool)
// pair" invariant from spec.md §4.2.
type pendingKey struct {
	workerID string
	tool     string
}

type pendingApproval struct {
	request  core.ApprovalRequest
	workerID string
	tool     string
	deadline time.Time
	reply    chan ApprovalResponse
}

// Broker implements the approval brokerage step: a mutex-guarded pending map
// (spec.md §5: "Approval queue: single mutex around the pending-requests
// map") plus a broadcast channel for UI notification. The broadcast is
// published through goa.design/pulse (backed by redis/go-redis), grounded on
// goa-ai's features/stream/pulse sink, giving the channel described in §5 a
// real multi-subscriber, multi-process transport instead of an in-process-
// only channel.
type Broker struct {
	mu      sync.Mutex
	pending map[pendingKey]*pendingApproval
	byID    map[string]*pendingApproval

	stream *streaming.Stream // nil when broadcast is disabled

	// OnRequest, when set, is invoked synchronously with every new
	// ApprovalRequest before Request blocks, so a caller (the Agent Loop)
	// can surface it as an ApprovalRequest event on its own stream (spec.md
	// §4.1's event vocabulary) in addition to the pulse broadcast above.
	OnRequest func(workerID string, req core.ApprovalRequest)
}

// NewBroker builds a Broker. stream may be nil to run purely in-process
// (e.g. in tests), in which case approval requests are still brokered
// correctly but never broadcast to external subscribers.
func NewBroker(stream *streaming.Stream) *Broker {
	return &Broker{
		pending: map[pendingKey]*pendingApproval{},
		byID:    map[string]*pendingApproval{},
		stream:  stream,
	}
}

// NewRedisBroker is a convenience constructor opening a Pulse stream named
// "approvals" over the given Redis client.
func NewRedisBroker(ctx context.Context, rdb *redis.Client) (*Broker, error) {
	s, err := streaming.NewStream("approvals", rdb)
	if err != nil {
		return nil, fmt.Errorf("dispatch: open approval pulse stream: %w", err)
	}
	return NewBroker(s), nil
}

// Request enqueues an ApprovalRequest for workerID/toolName, broadcasts it,
// and blocks until a matching ApprovalResponse arrives or timeout elapses —
// in which case the request is auto-denied (spec.md §4.2: "block (with
// timeout → default Denied)").
func (b *Broker) Request(ctx context.Context, workerID string, req core.ApprovalRequest, timeout time.Duration) (ApprovalResponse, error) {
	key := pendingKey{workerID: workerID, tool: req.ToolName}

	b.mu.Lock()
	if existing, ok := b.pending[key]; ok {
		b.mu.Unlock()
		return ApprovalResponse{}, fmt.Errorf("dispatch: approval already pending for worker %s tool %s (request %s)", workerID, req.ToolName, existing.request.RequestID)
	}
	pa := &pendingApproval{
		request:  req,
		workerID: workerID,
		tool:     req.ToolName,
		deadline: time.Now().Add(timeout),
		reply:    make(chan ApprovalResponse, 1),
	}
	b.pending[key] = pa
	b.byID[req.RequestID] = pa
	b.mu.Unlock()

	b.broadcast(ctx, "approval_request", req)
	if b.OnRequest != nil {
		b.OnRequest(workerID, req)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-pa.reply:
		b.clear(key, req.RequestID)
		return resp, nil
	case <-timer.C:
		b.clear(key, req.RequestID)
		return ApprovalResponse{RequestID: req.RequestID, Kind: ApprovalDenied}, nil
	case <-ctx.Done():
		b.clear(key, req.RequestID)
		return ApprovalResponse{}, ctx.Err()
	}
}

// Respond delivers an ApprovalResponse to its pending request. Returns false
// if the request is unknown (already answered, timed out, or cancelled).
func (b *Broker) Respond(resp ApprovalResponse) bool {
	b.mu.Lock()
	pa, ok := b.byID[resp.RequestID]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case pa.reply <- resp:
		return true
	default:
		return false
	}
}

// CancelWorker discards every pending request for workerID, auto-denying
// them — spec.md §5: "cancellation of a worker cancels its pending
// requests".
func (b *Broker) CancelWorker(workerID string) {
	b.mu.Lock()
	var toCancel []*pendingApproval
	for k, pa := range b.pending {
		if k.workerID == workerID {
			toCancel = append(toCancel, pa)
			delete(b.pending, k)
			delete(b.byID, pa.request.RequestID)
		}
	}
	b.mu.Unlock()
	for _, pa := range toCancel {
		select {
		case pa.reply <- ApprovalResponse{RequestID: pa.request.RequestID, Kind: ApprovalDenied}:
		default:
		}
	}
}

// SweepOrphans auto-denies any pending request past its deadline, for
// callers that want a background reaper instead of relying solely on each
// Request call's own timer (spec.md §4.2: "orphaned requests older than
// their timeout are auto-denied").
func (b *Broker) SweepOrphans(now time.Time) {
	b.mu.Lock()
	var expired []*pendingApproval
	for k, pa := range b.pending {
		if now.After(pa.deadline) {
			expired = append(expired, pa)
			delete(b.pending, k)
			delete(b.byID, pa.request.RequestID)
		}
	}
	b.mu.Unlock()
	for _, pa := range expired {
		select {
		case pa.reply <- ApprovalResponse{RequestID: pa.request.RequestID, Kind: ApprovalDenied}:
		default:
		}
	}
}

func (b *Broker) clear(key pendingKey, requestID string) {
	b.mu.Lock()
	delete(b.pending, key)
	delete(b.byID, requestID)
	b.mu.Unlock()
}

func (b *Broker) broadcast(ctx context.Context, eventName string, req core.ApprovalRequest) {
	if b.stream == nil {
		return
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return
	}
	_, _ = b.stream.Add(ctx, eventName, payload)
}
