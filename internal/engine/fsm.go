package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rendis/blueprint/internal/store"
	"github.com/rendis/blueprint/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the Store and EventLog; used by the FSM to emit events on transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

type hookKey struct {
	from, to schema.CompileStatus
}

// ValidCompileTransitions defines the allowed state transitions of a compile pass.
var ValidCompileTransitions = map[schema.CompileStatus][]schema.CompileStatus{
	schema.CompileStatusUnvalidated: {schema.CompileStatusValidated, schema.CompileStatusFailed, schema.CompileStatusCancelled},
	schema.CompileStatusValidated:   {schema.CompileStatusScheduled, schema.CompileStatusFailed, schema.CompileStatusCancelled},
	schema.CompileStatusScheduled:   {schema.CompileStatusExecuting, schema.CompileStatusFailed, schema.CompileStatusCancelled},
	schema.CompileStatusExecuting:   {schema.CompileStatusCompiled, schema.CompileStatusFailed, schema.CompileStatusCancelled},
	schema.CompileStatusCompiled:    {},
	schema.CompileStatusFailed:      {},
	schema.CompileStatusCancelled:   {},
}

// CompileFSM manages compile pass state transitions.
// A nil appender disables the event log.
type CompileFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewCompileFSM creates a CompileFSM that emits events via the given appender.
func NewCompileFSM(appender EventAppender) *CompileFSM {
	return &CompileFSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition. A hook error vetoes it.
func (f *CompileFSM) OnBefore(from, to schema.CompileStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition and its event.
func (f *CompileFSM) OnAfter(from, to schema.CompileStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a compile state transition and emits
// the corresponding event.
func (f *CompileFSM) Transition(ctx context.Context, compileID string, from, to schema.CompileStatus) error {
	return f.transition(ctx, compileID, "", from, to)
}

// Fail moves a pass to failed, attributing the failure to nodeID when set.
func (f *CompileFSM) Fail(ctx context.Context, compileID, nodeID string, from schema.CompileStatus) error {
	return f.transition(ctx, compileID, nodeID, from, schema.CompileStatusFailed)
}

func (f *CompileFSM) transition(ctx context.Context, compileID, nodeID string, from, to schema.CompileStatus) error {
	f.mu.Lock()
	key := hookKey{from, to}
	before := append([]TransitionHook(nil), f.before[key]...)
	after := append([]TransitionHook(nil), f.after[key]...)
	f.mu.Unlock()

	if !IsValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid compile transition: %s -> %s", from, to).
			WithDetails(map[string]any{"compile_id": compileID, "from": string(from), "to": string(to)})
	}

	for _, hook := range before {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if f.appender != nil {
		payload, _ := json.Marshal(store.TransitionPayload{From: from, To: to})
		event := &store.Event{
			CompileID: compileID,
			NodeID:    nodeID,
			Type:      compileEventType(to),
			Payload:   payload,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit compile event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range after {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}
	return nil
}

// Record appends a non-transition event such as compile_started or a cache hit.
func (f *CompileFSM) Record(ctx context.Context, compileID, eventType string) error {
	if f.appender == nil {
		return nil
	}
	if err := f.appender.AppendEvent(ctx, &store.Event{CompileID: compileID, Type: eventType}); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "emit compile event: %s", err.Error()).WithCause(err)
	}
	return nil
}

// IsValidTransition reports whether from -> to is allowed.
func IsValidTransition(from, to schema.CompileStatus) bool {
	for _, a := range ValidCompileTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func compileEventType(to schema.CompileStatus) string {
	switch to {
	case schema.CompileStatusValidated:
		return schema.EventCompileValidated
	case schema.CompileStatusScheduled:
		return schema.EventCompileScheduled
	case schema.CompileStatusExecuting:
		return schema.EventCompileExecuting
	case schema.CompileStatusCompiled:
		return schema.EventCompileCompleted
	case schema.CompileStatusFailed:
		return schema.EventCompileFailed
	default:
		return schema.EventCompileCancelled
	}
}
