// Package identity decides which trace and span ids a new span gets, so
// every invocation of a conversation lands in the same trace without any
// coordination between processes.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/spanlink/spanlink/internal/event"
	"github.com/spanlink/spanlink/internal/store"
)

// TraceIDForConversation derives the deterministic 128-bit trace id for a
// conversation: the first 16 bytes of SHA-256(conversation id), big-endian.
// Pure; any process can recompute it without stored state.
func TraceIDForConversation(conversationID string) trace.TraceID {
	sum := sha256.Sum256([]byte(conversationID))
	var tid trace.TraceID
	copy(tid[:], sum[:16])
	return tid
}

// NewSpanID returns a fresh random 64-bit span id. Uniqueness is
// probabilistic only.
func NewSpanID() trace.SpanID {
	var sid trace.SpanID
	for !sid.IsValid() {
		_, _ = rand.Read(sid[:])
	}
	return sid
}

// NewTraceID returns a fresh independent 128-bit trace id.
func NewTraceID() trace.TraceID {
	return trace.TraceID(uuid.New())
}

// Identity is the resolved identity for a new span.
type Identity struct {
	TraceID trace.TraceID
	SpanID  trace.SpanID
	// Parent is the enclosing open span, nil for roots. It references a
	// span owned by an earlier invocation, not one local to this process.
	Parent *store.SpanRef
	// Root reports that this span starts its generation's trace, which is
	// when the conversation → trace id mapping gets recorded.
	Root bool
}

// Resolver resolves new-span identity against the context store.
type Resolver struct {
	contexts *store.ContextStore
}

// NewResolver returns a resolver backed by the given context store.
func NewResolver(contexts *store.ContextStore) *Resolver {
	return &Resolver{contexts: contexts}
}

// Resolve picks the trace id, span id, and parent for a new span:
//
//  1. parent resolved → reuse the enclosing trace id (generation lookup,
//     then conversation lookup, then the parent's own trace id)
//  2. no parent, root event with a known conversation → deterministic
//     trace id; this span is the generation's root
//  3. no parent, conversation already mapped → reuse that trace id
//     (several roots may legitimately share one trace)
//  4. otherwise → fresh independent trace id
//
// The span id is always fresh.
func (r *Resolver) Resolve(ctx context.Context, genID, convID, eventName string) Identity {
	id := Identity{SpanID: NewSpanID()}

	var parent *store.SpanRef
	if genID != "" {
		parent, _ = r.contexts.GetParent(ctx, genID, eventName)
	}

	switch {
	case parent != nil:
		id.Parent = parent
		id.TraceID = parent.TraceID
		if tid, ok := r.contexts.TraceIDForGeneration(ctx, genID); ok {
			id.TraceID = tid
		} else if convID != "" {
			if tid, ok := r.contexts.TraceIDForConversation(ctx, convID); ok {
				id.TraceID = tid
			}
		}
	case event.Classify(eventName).Root && convID != "":
		id.TraceID = TraceIDForConversation(convID)
		id.Root = true
	default:
		if convID != "" {
			if tid, ok := r.contexts.TraceIDForConversation(ctx, convID); ok {
				id.TraceID = tid
				return id
			}
		}
		id.TraceID = NewTraceID()
	}
	return id
}
