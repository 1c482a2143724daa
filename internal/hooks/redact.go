package hooks

import (
	"fmt"
	"regexp"
	"strings"
)

// sensitiveFields are payload fields replaced wholesale when redaction is on.
var sensitiveFields = []string{
	"prompt",
	"user_message",
	"agent_message",
	"tool_input",
	"tool_output",
	"mcp_input",
	"command",
	"file_path",
	"edits",
	"transcript_path",
}

const masked = "[MASKED]"

var homeDirPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`/home/[^/]+`), "/home/[USER]"},
	{regexp.MustCompile(`/Users/[^/]+`), "/Users/[USER]"},
	{regexp.MustCompile(`C:\\Users\\[^\\]+`), `C:\Users\[USER]`},
	{regexp.MustCompile(`^/root\b`), "/[USER]"},
}

// redactFields returns a shallow copy of the payload with user content
// masked: sensitive fields replaced, emails masked preserving the domain,
// and workspace paths stripped of username components.
func redactFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	for _, f := range sensitiveFields {
		if _, ok := out[f]; ok {
			out[f] = masked
		}
	}

	if email, ok := out["user_email"].(string); ok {
		out["user_email"] = maskEmail(email)
	}

	if roots, ok := out["workspace_roots"].([]any); ok {
		maskedRoots := make([]any, len(roots))
		for i, r := range roots {
			maskedRoots[i] = maskPath(fmt.Sprint(r))
		}
		out["workspace_roots"] = maskedRoots
	}

	return out
}

// maskEmail keeps the domain and the first character of the local part:
// user@example.com → u***@example.com.
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return masked
	}
	if len(local) <= 1 {
		return "*@" + domain
	}
	return local[:1] + "***@" + domain
}

// maskPath replaces username-like path components while preserving the
// directory structure.
func maskPath(path string) string {
	for _, p := range homeDirPatterns {
		path = p.re.ReplaceAllString(path, p.replacement)
	}
	return path
}
