package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testVerdict struct {
	Relevant bool   `json:"relevant"`
	Reason   string `json:"reason"`
}

func TestParse_Strategies(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"direct", `{"relevant": true, "reason": "ok"}`},
		{"json fence", "```json\n{\"relevant\": true, \"reason\": \"ok\"}\n```"},
		{"bare fence", "```{\"relevant\": true, \"reason\": \"ok\"}```"},
		{"trailing comma", `{"relevant": true, "reason": "ok",}`},
		{"unquoted keys", `{relevant: true, reason: "ok"}`},
		{"prose around", "Sure! Here is my verdict:\n{\"relevant\": true, \"reason\": \"ok\"}\nHope that helps."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[testVerdict](tt.input, "test")
			require.True(t, result.Success, result.Error)
			assert.True(t, result.Data.Relevant)
			assert.Equal(t, "ok", result.Data.Reason)
		})
	}
}

func TestParse_Failures(t *testing.T) {
	result := Parse[testVerdict]("", "judge")
	assert.False(t, result.Success)
	assert.Equal(t, "judge: empty input", result.Error)

	result = Parse[testVerdict]("the candidate looks relevant", "judge")
	assert.False(t, result.Success)
	assert.Equal(t, "the candidate looks relevant", result.OriginalText)
}

func TestParse_Array(t *testing.T) {
	result := Parse[[]string]("Queries:\n[\"firefox crash settings\", \"settings page freeze\"]", "queries")
	require.True(t, result.Success)
	assert.Equal(t, []string{"firefox crash settings", "settings page freeze"}, result.Data)
}

func TestParseOrDefault(t *testing.T) {
	fallback := testVerdict{Reason: "fallback"}
	assert.Equal(t, fallback, ParseOrDefault("nope", fallback, "test"))
	assert.Equal(t, testVerdict{Relevant: true}, ParseOrDefault(`{"relevant":true}`, fallback, "test"))
}
