// Package event classifies host hook event names. The hierarchy state
// machine in the context store and the identity resolver are both driven by
// this table rather than by string comparisons scattered across callers, so
// an unhandled event name classifies to an explicit zero class instead of
// falling through silently.
package event

import (
	"github.com/spanlink/spanlink/internal/model"
)

// Level is the hierarchy level a classified event belongs to.
type Level int

const (
	LevelNone Level = iota
	LevelSession
	LevelSubagent
	LevelTool
)

// Phase says whether the event opens or closes a span at its level.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseStart
	PhaseEnd
)

// Class is the static classification of one hook event name.
type Class struct {
	// Root events never take a parent, regardless of context state.
	Root bool
	// Level and Phase drive the context-store pointer transitions.
	Level Level
	Phase Phase
	// Terminal events flush the generation's buffered batch.
	Terminal bool
	// NeedsPermission events expect an explicit permission response.
	NeedsPermission bool

	Kind model.SpanKind
	// Operation is the gen_ai.operation.name value.
	Operation string
}

var table = map[string]Class{
	"sessionStart": {Root: true, Level: LevelSession, Phase: PhaseStart, Kind: model.SpanKindServer, Operation: "session"},
	"sessionEnd":   {Level: LevelSession, Phase: PhaseEnd, Terminal: true, Kind: model.SpanKindInternal, Operation: "session"},

	"subagentStart": {Level: LevelSubagent, Phase: PhaseStart, Kind: model.SpanKindInternal, Operation: "chain"},
	"subagentStop":  {Level: LevelSubagent, Phase: PhaseEnd, Kind: model.SpanKindInternal, Operation: "chain"},

	"preToolUse":           {Level: LevelTool, Phase: PhaseStart, Kind: model.SpanKindInternal, Operation: "tool"},
	"beforeShellExecution": {Level: LevelTool, Phase: PhaseStart, NeedsPermission: true, Kind: model.SpanKindInternal, Operation: "tool"},
	"beforeMCPExecution":   {Level: LevelTool, Phase: PhaseStart, NeedsPermission: true, Kind: model.SpanKindClient, Operation: "tool"},
	"beforeReadFile":       {Level: LevelTool, Phase: PhaseStart, NeedsPermission: true, Kind: model.SpanKindInternal, Operation: "tool"},

	"postToolUse":         {Level: LevelTool, Phase: PhaseEnd, Kind: model.SpanKindInternal, Operation: "tool"},
	"postToolUseFailure":  {Level: LevelTool, Phase: PhaseEnd, Kind: model.SpanKindInternal, Operation: "tool"},
	"afterShellExecution": {Level: LevelTool, Phase: PhaseEnd, Kind: model.SpanKindInternal, Operation: "tool"},
	"afterMCPExecution":   {Level: LevelTool, Phase: PhaseEnd, Kind: model.SpanKindClient, Operation: "tool"},
	"afterFileEdit":       {Level: LevelTool, Phase: PhaseEnd, Kind: model.SpanKindInternal, Operation: "tool"},

	"beforeSubmitPrompt": {NeedsPermission: true, Kind: model.SpanKindInternal, Operation: "chat"},
	"preCompact":         {Kind: model.SpanKindInternal, Operation: "chain"},

	"stop": {Terminal: true, Kind: model.SpanKindInternal, Operation: "session"},
}

// Classify returns the class for a hook event name. Unknown names classify
// as a plain internal event with no pointer transitions.
func Classify(name string) Class {
	if c, ok := table[name]; ok {
		return c
	}
	return Class{Kind: model.SpanKindInternal, Operation: "unknown"}
}
