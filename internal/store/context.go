package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/spanlink/spanlink/internal/event"
)

// SpanRef points at a currently-open span in another process's trace.
type SpanRef struct {
	TraceID trace.TraceID
	SpanID  trace.SpanID
}

// spanRefDoc is the persisted form of a SpanRef. Ids are fixed-width hex so
// the documents stay diffable and round-trip exactly.
type spanRefDoc struct {
	TraceID string    `json:"trace_id"`
	SpanID  string    `json:"span_id"`
	Event   string    `json:"hook_event,omitempty"`
	SavedAt time.Time `json:"saved_at,omitempty"`
}

func (d *spanRefDoc) ref() (SpanRef, error) {
	tid, err := trace.TraceIDFromHex(d.TraceID)
	if err != nil {
		return SpanRef{}, fmt.Errorf("store: parse trace id %q: %w", d.TraceID, err)
	}
	sid, err := trace.SpanIDFromHex(d.SpanID)
	if err != nil {
		return SpanRef{}, fmt.Errorf("store: parse span id %q: %w", d.SpanID, err)
	}
	return SpanRef{TraceID: tid, SpanID: sid}, nil
}

// contextState is the per-generation document: one open-span pointer per
// hierarchy level plus the trace id of the generation's root span.
type contextState struct {
	Session  *spanRefDoc `json:"current_session_span,omitempty"`
	Subagent *spanRefDoc `json:"current_subagent_span,omitempty"`
	Tool     *spanRefDoc `json:"current_tool_span,omitempty"`
	TraceID  string      `json:"generation_trace_id,omitempty"`
}

// conversationDoc maps a conversation id to its deterministic trace id. It
// outlives any single generation and is only removed by the retention sweep.
type conversationDoc struct {
	TraceID string    `json:"trace_id"`
	SavedAt time.Time `json:"saved_at"`
}

// ContextStore persists cross-process span context, one small document per
// generation and one per conversation.
type ContextStore struct {
	dir         string
	lockTimeout time.Duration
	logger      *slog.Logger
}

// NewContextStore creates the context directory if needed.
func NewContextStore(dir string, lockTimeout time.Duration, logger *slog.Logger) (*ContextStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create context directory: %w", err)
	}
	return &ContextStore{dir: dir, lockTimeout: lockTimeout, logger: logger}, nil
}

// Dir returns the store directory, for the retention sweeper.
func (c *ContextStore) Dir() string { return c.dir }

func (c *ContextStore) genPath(genID string) string {
	return filepath.Join(c.dir, fileName(genID)+".json")
}

func (c *ContextStore) convPath(convID string) string {
	return filepath.Join(c.dir, fileName(convID)+".conv.json")
}

// GetParent resolves the parent span for a new span of the given event kind.
// nil means the span is a root. A missing or unreadable context document
// degrades to "no context yet" rather than failing the invocation.
func (c *ContextStore) GetParent(ctx context.Context, genID, eventName string) (*SpanRef, error) {
	cls := event.Classify(eventName)
	if cls.Root {
		return nil, nil
	}

	state, err := c.loadState(ctx, genID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, nil
	}

	pick := func(docs ...*spanRefDoc) (*SpanRef, error) {
		for _, d := range docs {
			if d == nil {
				continue
			}
			ref, err := d.ref()
			if err != nil {
				c.logger.Warn("store: unparseable span pointer, skipping",
					"generation_id", genID, "error", err)
				continue
			}
			return &ref, nil
		}
		return nil, nil
	}

	switch {
	case cls.Level == event.LevelTool && cls.Phase == event.PhaseEnd:
		// Tool completions close the open tool span; with no tool open
		// they attach like a tool start would.
		if state.Tool != nil {
			return pick(state.Tool, state.Subagent, state.Session)
		}
		return pick(state.Subagent, state.Session)
	case cls.Level == event.LevelSubagent && cls.Phase == event.PhaseStart:
		return pick(state.Session)
	case cls.Level == event.LevelTool && cls.Phase == event.PhaseStart:
		return pick(state.Subagent, state.Session)
	default:
		return pick(state.Subagent, state.Session)
	}
}

// TraceIDForGeneration returns the trace id recorded by the generation's
// session start, if any.
func (c *ContextStore) TraceIDForGeneration(ctx context.Context, genID string) (trace.TraceID, bool) {
	state, err := c.loadState(ctx, genID)
	if err != nil || state == nil || state.TraceID == "" {
		return trace.TraceID{}, false
	}
	tid, err := trace.TraceIDFromHex(state.TraceID)
	if err != nil {
		c.logger.Warn("store: unparseable generation trace id",
			"generation_id", genID, "error", err)
		return trace.TraceID{}, false
	}
	return tid, true
}

// TraceIDForConversation returns the trace id mapped to a conversation, if any.
func (c *ContextStore) TraceIDForConversation(ctx context.Context, convID string) (trace.TraceID, bool) {
	path := c.convPath(convID)
	doc, err := readLockedJSON[conversationDoc](ctx, c, path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("store: read conversation map failed", "error", err)
		}
		return trace.TraceID{}, false
	}
	tid, err := trace.TraceIDFromHex(doc.TraceID)
	if err != nil {
		c.logger.Warn("store: unparseable conversation trace id",
			"conversation_id", convID, "error", err)
		return trace.TraceID{}, false
	}
	return tid, true
}

// Save records the new span in the generation's context so later invocations
// can parent to it. The pointer transitions are driven by the event's
// classified level and phase:
//
//	session start  → set session pointer, clear subagent and tool,
//	                 record the generation trace id
//	session end    → delete the whole document
//	subagent start → set subagent pointer, clear tool
//	subagent end   → clear subagent and tool
//	tool start     → set tool pointer
//	tool end       → clear tool pointer
//	anything else  → no pointer mutation
func (c *ContextStore) Save(ctx context.Context, genID, eventName string, traceID trace.TraceID, spanID trace.SpanID) error {
	cls := event.Classify(eventName)
	if cls.Level == event.LevelNone {
		return nil
	}

	path := c.genPath(genID)
	fl, err := acquireLock(ctx, path, c.lockTimeout, false)
	if err != nil {
		return err
	}
	defer releaseLock(fl)

	if cls.Level == event.LevelSession && cls.Phase == event.PhaseEnd {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("store: delete context document: %w", err)
		}
		return nil
	}

	var state contextState
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &state); err != nil {
			// Corrupt document: start over rather than fail the save.
			c.logger.Warn("store: resetting corrupt context document",
				"generation_id", genID, "error", err)
			state = contextState{}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: read context document: %w", err)
	}

	ref := &spanRefDoc{
		TraceID: traceID.String(),
		SpanID:  spanID.String(),
		Event:   eventName,
		SavedAt: time.Now().UTC(),
	}

	switch {
	case cls.Level == event.LevelSession && cls.Phase == event.PhaseStart:
		state.Session = ref
		state.Subagent = nil
		state.Tool = nil
		state.TraceID = traceID.String()
	case cls.Level == event.LevelSubagent && cls.Phase == event.PhaseStart:
		state.Subagent = ref
		state.Tool = nil
	case cls.Level == event.LevelSubagent && cls.Phase == event.PhaseEnd:
		state.Subagent = nil
		state.Tool = nil
	case cls.Level == event.LevelTool && cls.Phase == event.PhaseStart:
		state.Tool = ref
	case cls.Level == event.LevelTool && cls.Phase == event.PhaseEnd:
		state.Tool = nil
	}

	return writeJSONAtomic(path, state)
}

// SaveConversationTraceID records the conversation → trace id mapping.
// Last write wins; the mapping persists across generations until swept.
func (c *ContextStore) SaveConversationTraceID(ctx context.Context, convID string, traceID trace.TraceID) error {
	path := c.convPath(convID)
	fl, err := acquireLock(ctx, path, c.lockTimeout, false)
	if err != nil {
		return err
	}
	defer releaseLock(fl)

	return writeJSONAtomic(path, conversationDoc{
		TraceID: traceID.String(),
		SavedAt: time.Now().UTC(),
	})
}

// Cleanup deletes the generation's context document after its terminal flush
// completes. Idempotent. Conversation documents are left for the sweeper.
func (c *ContextStore) Cleanup(genID string) error {
	if err := os.Remove(c.genPath(genID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: cleanup context document: %w", err)
	}
	return nil
}

// loadState reads the generation document under a shared lock. A missing
// file, a lock timeout, or a corrupt document all degrade to nil state.
func (c *ContextStore) loadState(ctx context.Context, genID string) (*contextState, error) {
	path := c.genPath(genID)
	state, err := readLockedJSON[contextState](ctx, c, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		c.logger.Warn("store: read context document failed, treating as no context",
			"generation_id", genID, "error", err)
		return nil, nil
	}
	return state, nil
}

func readLockedJSON[T any](ctx context.Context, c *ContextStore, path string) (*T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	fl, err := acquireLock(ctx, path, c.lockTimeout, true)
	if err != nil {
		return nil, err
	}
	defer releaseLock(fl)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", filepath.Base(path), err)
	}
	return &v, nil
}

// writeJSONAtomic writes a document via tmp+rename so readers never observe
// a partial write even if this process dies mid-save.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
