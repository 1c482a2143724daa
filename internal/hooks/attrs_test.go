package hooks

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanlink/spanlink/internal/event"
)

func attrsFor(t *testing.T, name string, fields map[string]any) map[string]any {
	t.Helper()
	if fields == nil {
		fields = map[string]any{}
	}
	fields["hook_event_name"] = name
	ev := Event{Name: name, Fields: fields}

	out := map[string]any{}
	for _, kv := range buildAttributes(ev, event.Classify(name), fields) {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestBuildAttributes_Common(t *testing.T) {
	attrs := attrsFor(t, "sessionStart", map[string]any{
		"generation_id":   "gen-1",
		"conversation_id": "conv-1",
		"model":           "gpt-5",
		"session_id":      "s-1",
	})

	assert.Equal(t, "sessionStart", attrs["agent.hook_event"])
	assert.Equal(t, "session", attrs["gen_ai.operation.name"])
	assert.Equal(t, "gen-1", attrs["agent.generation_id"])
	assert.Equal(t, "conv-1", attrs["agent.conversation_id"])
	assert.Equal(t, "gpt-5", attrs["gen_ai.request.model"])
	assert.Equal(t, "openai", attrs["gen_ai.system"])
	assert.Equal(t, "s-1", attrs["agent.session_id"])
}

func TestBuildAttributes_ShellEvents(t *testing.T) {
	attrs := attrsFor(t, "beforeShellExecution", map[string]any{
		"command": "go test ./...",
		"cwd":     "/work",
	})

	assert.Equal(t, "bash", attrs["gen_ai.tool.name"])
	assert.Equal(t, "go test ./...", attrs["agent.shell_command"])
	assert.Equal(t, "/work", attrs["agent.shell_cwd"])
	require.Contains(t, attrs, "gen_ai.tool.arguments")
	assert.Contains(t, attrs["gen_ai.tool.arguments"], "go test")
}

func TestBuildAttributes_MCPToolNameIncludesServer(t *testing.T) {
	attrs := attrsFor(t, "beforeMCPExecution", map[string]any{
		"mcp_server": "github",
		"mcp_tool":   "create_issue",
		"mcp_input":  map[string]any{"title": "bug"},
	})

	assert.Equal(t, "github.create_issue", attrs["gen_ai.tool.name"])
	assert.Equal(t, "github", attrs["agent.mcp_server"])
	assert.JSONEq(t, `{"title":"bug"}`, attrs["gen_ai.tool.arguments"].(string))
}

func TestBuildAttributes_FileEvents(t *testing.T) {
	read := attrsFor(t, "beforeReadFile", map[string]any{"file_path": "/src/main.go"})
	assert.Equal(t, "read_file", read["gen_ai.tool.name"])
	assert.Equal(t, "/src/main.go", read["agent.file_path"])

	edit := attrsFor(t, "afterFileEdit", map[string]any{
		"file_path": "/src/main.go",
		"edits":     []any{map[string]any{}, map[string]any{}},
	})
	assert.Equal(t, "edit_file", edit["gen_ai.tool.name"])
	assert.Equal(t, 2, edit["agent.edit_count"])
}

func TestBuildAttributes_PromptTruncation(t *testing.T) {
	long := strings.Repeat("x", maxPromptLen+100)
	attrs := attrsFor(t, "beforeSubmitPrompt", map[string]any{"prompt": long})

	assert.Equal(t, "user", attrs["gen_ai.prompt.0.role"])
	content := attrs["gen_ai.prompt.0.content"].(string)
	assert.True(t, strings.HasSuffix(content, "... (truncated)"))
	assert.Len(t, content, maxPromptLen+len("... (truncated)"))
}

func TestBuildAttributes_ToolOutputTruncation(t *testing.T) {
	long := strings.Repeat("y", maxToolOutputLen+1)
	attrs := attrsFor(t, "postToolUse", map[string]any{
		"tool_name":   "bash",
		"tool_output": long,
	})

	out := attrs["agent.tool_output"].(string)
	assert.Len(t, out, maxToolOutputLen+len("... (truncated)"))
}

func TestTruncate_NeverSplitsRunes(t *testing.T) {
	// The cap lands inside 日; truncation backs up to the rune boundary.
	s := strings.Repeat("x", 6) + "日本語"
	got := truncate(s, 7)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "xxxxxx... (truncated)", got)

	assert.Equal(t, "héllo", truncate("héllo", 10), "short strings pass through")
	assert.Equal(t, "ab... (truncated)", truncate("abcd", 2))
}

func TestBuildAttributes_TruncationKeepsValidUTF8(t *testing.T) {
	// A multi-byte rune straddles the prompt cap.
	prompt := strings.Repeat("x", maxPromptLen-1) + "日"
	attrs := attrsFor(t, "beforeSubmitPrompt", map[string]any{"prompt": prompt})

	content := attrs["gen_ai.prompt.0.content"].(string)
	assert.True(t, utf8.ValidString(content))
	assert.True(t, strings.HasSuffix(content, "... (truncated)"))
	assert.NotContains(t, content, "日")
}

func TestInferSystem(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"claude-4-sonnet", "anthropic"},
		{"gpt-4o", "openai"},
		{"o1-preview", "openai"},
		{"gemini-2.0-flash", "gcp.gemini"},
		{"llama-70b", "agent"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, inferSystem(tt.model), "model %q", tt.model)
	}
}
