package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDraftPrompt(t *testing.T) {
	system, user := buildDraftPrompt("  Login button broken  ")

	assert.Contains(t, system, "JSON object")
	assert.Contains(t, system, `"description"`)
	assert.Equal(t, "Issue title: Login button broken", user)
}

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", `{"description":"Clicking login does nothing."}`, "Clicking login does nothing."},
		{"fenced", "```json\n{\"description\": \" Clicking login does nothing. \"}\n```", "Clicking login does nothing."},
		{"bare fence", "```\n{\"description\":\"x\"}\n```", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDraft(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDraft_Errors(t *testing.T) {
	_, err := parseDraft("")
	assert.Error(t, err)

	_, err = parseDraft("```")
	assert.Error(t, err)

	_, err = parseDraft("not json")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "raw response: not json"))

	_, err = parseDraft(`{"description":"   "}`)
	assert.Error(t, err)
}

func TestNewClient_DefaultModel(t *testing.T) {
	c := NewClient("test-key", "")
	assert.Equal(t, DefaultModel, string(c.model))

	c = NewClient("", "claude-other")
	assert.Equal(t, "claude-other", string(c.model))
}
