// Package hooks turns host lifecycle events into span records and drives the
// per-invocation control flow: resolve identity, flush on terminal events,
// persist the record, update the shared context.
package hooks

import (
	"encoding/json"
	"fmt"
)

// Event is one parsed hook payload. Fields keeps the full payload for
// attribute mapping; the identity fields are lifted out for convenience.
type Event struct {
	Name           string
	GenerationID   string
	ConversationID string
	Fields         map[string]any
}

// Parse decodes a hook payload. Only malformed JSON is an error; missing
// identity fields are legal (the span is then exported unbuffered).
func Parse(data []byte) (Event, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Event{}, fmt.Errorf("hooks: parse event payload: %w", err)
	}

	ev := Event{
		Name:           getString(fields, "hook_event_name"),
		GenerationID:   getString(fields, "generation_id"),
		ConversationID: getString(fields, "conversation_id"),
		Fields:         fields,
	}
	if ev.Name == "" {
		ev.Name = "unknown"
	}
	return ev, nil
}

// Response is what the host receives on stdout. An empty response lets the
// operation proceed; permission responses explicitly allow it.
type Response struct {
	Permission string `json:"permission,omitempty"`
}

func getString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
