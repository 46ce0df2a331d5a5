package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractUsageFromJSONLines_NestedEnvelope(t *testing.T) {
	output := "some preamble text\n" +
		`{"type":"result","message":{"usage":{"input_tokens":120,"cache_read_input_tokens":40,"output_tokens":30}}}` + "\n" +
		"trailing non-json\n"

	summary := ExtractUsageFromJSONLines(output)
	require.NotNil(t, summary)
	assert.Equal(t, 120, summary.InputTokens)
	assert.Equal(t, 40, summary.CachedInputTokens)
	assert.Equal(t, 30, summary.OutputTokens)
}

func TestExtractUsageFromJSONLines_SumsAcrossLines(t *testing.T) {
	output := `{"usage":{"input_tokens":10,"output_tokens":5}}` + "\n" +
		`{"usage":{"input_tokens":7,"output_tokens":2}}`

	summary := ExtractUsageFromJSONLines(output)
	require.NotNil(t, summary)
	assert.Equal(t, 17, summary.InputTokens)
	assert.Equal(t, 7, summary.OutputTokens)
}

func TestExtractUsageFromJSONLines_NoUsageReturnsNil(t *testing.T) {
	summary := ExtractUsageFromJSONLines("plain text\n{\"type\":\"note\",\"text\":\"hi\"}")
	assert.Nil(t, summary)
}

func TestExtractRetryDelaySeconds_FromNestedKey(t *testing.T) {
	output := `{"error":{"details":{"resets_in_seconds":42}}}`
	seconds := ExtractRetryDelaySeconds(output)
	require.NotNil(t, seconds)
	assert.Equal(t, 42, *seconds)
}

func TestExtractRetryDelaySeconds_FromNaturalLanguageSeconds(t *testing.T) {
	seconds := ExtractRetryDelaySeconds("Rate limited. Please try again in 30 seconds.")
	require.NotNil(t, seconds)
	assert.Equal(t, 30, *seconds)
}

func TestExtractRetryDelaySeconds_FromNaturalLanguageMinutes(t *testing.T) {
	seconds := ExtractRetryDelaySeconds("You can retry in 2 minutes")
	require.NotNil(t, seconds)
	assert.Equal(t, 120, *seconds)
}

func TestExtractRetryDelaySeconds_NoneReturnsNil(t *testing.T) {
	assert.Nil(t, ExtractRetryDelaySeconds("everything is fine"))
}

func TestHasStopMarker_BothSpellings(t *testing.T) {
	assert.True(t, HasStopMarker("Status: NO_TASKS_AVAILABLE"))
	assert.True(t, HasStopMarker("legacy says no_beads_available today"))
	assert.False(t, HasStopMarker("tasks remain"))
}
