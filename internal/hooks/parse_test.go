package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	ev, err := Parse([]byte(`{
		"hook_event_name": "preToolUse",
		"generation_id": "gen-1",
		"conversation_id": "conv-1",
		"tool_name": "grep"
	}`))
	require.NoError(t, err)

	assert.Equal(t, "preToolUse", ev.Name)
	assert.Equal(t, "gen-1", ev.GenerationID)
	assert.Equal(t, "conv-1", ev.ConversationID)
	assert.Equal(t, "grep", ev.Fields["tool_name"])
}

func TestParse_MissingNameDefaultsUnknown(t *testing.T) {
	ev, err := Parse([]byte(`{"generation_id": "gen-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "unknown", ev.Name)
}

func TestParse_NonStringIdentityFieldsIgnored(t *testing.T) {
	ev, err := Parse([]byte(`{"hook_event_name": "stop", "generation_id": 42}`))
	require.NoError(t, err)
	assert.Empty(t, ev.GenerationID)
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"hook_event_name": `))
	assert.Error(t, err)
}
