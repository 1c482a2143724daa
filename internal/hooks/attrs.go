package hooks

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spanlink/spanlink/internal/event"
	"github.com/spanlink/spanlink/internal/model"
)

const (
	maxToolOutputLen = 10_000
	maxPromptLen     = 5_000
)

// buildAttributes maps a hook payload to span attributes using the gen_ai
// conventions where they exist and the agent.* namespace for the rest.
// fields is the (possibly redacted) payload.
func buildAttributes(ev Event, cls event.Class, fields map[string]any) []model.KeyValue {
	b := attrBuilder{}

	b.add("agent.hook_event", ev.Name)
	b.add("gen_ai.operation.name", cls.Operation)
	b.addString(fields, "generation_id", "agent.generation_id")
	b.addString(fields, "conversation_id", "agent.conversation_id")

	if m := getString(fields, "model"); m != "" {
		b.add("gen_ai.request.model", m)
		b.add("gen_ai.response.model", m)
		b.add("gen_ai.system", inferSystem(m))
	}

	b.addString(fields, "user_email", "agent.user_email")
	b.addString(fields, "transcript_path", "agent.transcript_path")
	if roots, ok := fields["workspace_roots"]; ok {
		b.addJSON("agent.workspace_roots", roots)
	}

	switch ev.Name {
	case "sessionStart", "sessionEnd":
		b.addString(fields, "session_id", "agent.session_id")
		b.addAny(fields, "is_background_agent", "agent.is_background_agent")
		b.addString(fields, "composer_mode", "agent.composer_mode")

	case "preToolUse", "postToolUse", "postToolUseFailure":
		b.addString(fields, "tool_name", "gen_ai.tool.name")
		if in, ok := fields["tool_input"]; ok {
			b.addJSON("gen_ai.tool.arguments", in)
		}
		if out, ok := fields["tool_output"]; ok {
			b.add("agent.tool_output", truncate(fmt.Sprint(out), maxToolOutputLen))
		}
		b.addString(fields, "error", "agent.tool_error")

	case "beforeShellExecution", "afterShellExecution":
		b.add("gen_ai.tool.name", "bash")
		if cmd := getString(fields, "command"); cmd != "" {
			b.addJSON("gen_ai.tool.arguments", map[string]any{"command": cmd})
			b.add("agent.shell_command", cmd)
		}
		b.addString(fields, "cwd", "agent.shell_cwd")
		b.addAny(fields, "timeout", "agent.shell_timeout")
		b.addAny(fields, "exit_code", "agent.shell_exit_code")

	case "beforeMCPExecution", "afterMCPExecution":
		if tool := getString(fields, "mcp_tool"); tool != "" {
			if server := getString(fields, "mcp_server"); server != "" {
				tool = server + "." + tool
			}
			b.add("gen_ai.tool.name", tool)
		}
		if in, ok := fields["mcp_input"]; ok {
			b.addJSON("gen_ai.tool.arguments", in)
		}
		b.addString(fields, "mcp_server", "agent.mcp_server")

	case "beforeReadFile", "afterFileEdit":
		name := "read_file"
		if ev.Name == "afterFileEdit" {
			name = "edit_file"
		}
		b.add("gen_ai.tool.name", name)
		if p := getString(fields, "file_path"); p != "" {
			b.addJSON("gen_ai.tool.arguments", map[string]any{"file_path": p})
			b.add("agent.file_path", p)
		}
		if edits, ok := fields["edits"].([]any); ok {
			b.add("agent.edit_count", len(edits))
		}

	case "beforeSubmitPrompt":
		if prompt := getString(fields, "prompt"); prompt != "" {
			b.add("gen_ai.prompt.0.role", "user")
			b.add("gen_ai.prompt.0.content", truncate(prompt, maxPromptLen))
		}

	case "preCompact":
		b.addAny(fields, "context_size", "agent.context_size")
		b.addAny(fields, "context_limit", "agent.context_limit")

	case "stop":
		b.addString(fields, "status", "agent.completion_status")
		b.addAny(fields, "loop_count", "agent.loop_count")

	case "subagentStart", "subagentStop":
		b.addString(fields, "subagent_type", "agent.subagent_type")
		b.addString(fields, "subagent_task", "agent.subagent_task")
	}

	return b.attrs
}

// inferSystem guesses the gen_ai.system from a model name.
func inferSystem(m string) string {
	m = strings.ToLower(m)
	switch {
	case strings.Contains(m, "claude"):
		return "anthropic"
	case strings.Contains(m, "gpt"), strings.Contains(m, "o1"):
		return "openai"
	case strings.Contains(m, "gemini"):
		return "gcp.gemini"
	default:
		return "agent"
	}
}

// truncate caps s at n bytes, backing up so a multi-byte rune is never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "... (truncated)"
}

type attrBuilder struct {
	attrs []model.KeyValue
}

func (b *attrBuilder) add(key string, value any) {
	b.attrs = append(b.attrs, model.KeyValue{Key: key, Value: value})
}

func (b *attrBuilder) addString(fields map[string]any, field, key string) {
	if v := getString(fields, field); v != "" {
		b.add(key, v)
	}
}

func (b *attrBuilder) addAny(fields map[string]any, field, key string) {
	if v, ok := fields[field]; ok {
		b.add(key, v)
	}
}

func (b *attrBuilder) addJSON(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.add(key, fmt.Sprint(v))
		return
	}
	b.add(key, string(data))
}
