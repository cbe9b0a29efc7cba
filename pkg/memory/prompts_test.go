package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/avatarmem-go/pkg/llm"
)

func TestFormatTranscript(t *testing.T) {
	got := formatTranscript([]llm.Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
		{Role: "user", Content: ""},
	})

	assert.Equal(t, "User: hello\nAI: hi there", got, "system and empty messages are skipped")
}

func TestFormatTranscriptEmpty(t *testing.T) {
	assert.Empty(t, formatTranscript(nil))
	assert.Empty(t, formatTranscript([]llm.Message{{Role: "system", Content: "persona"}}))
}

func TestParseDecision(t *testing.T) {
	cases := []struct {
		raw  string
		kind decisionKind
		rank int
	}{
		{"create_new", decideCreateNew, 0},
		{"ignore", decideIgnore, 0},
		{"merge_with:1", decideMerge, 1},
		{"merge_with:3", decideMerge, 3},
		{" merge_with:2 ", decideMerge, 2},
		{"merge_with:abc", decideCreateNew, 0},
		{"merge", decideCreateNew, 0},
		{"", decideCreateNew, 0},
		{"something else", decideCreateNew, 0},
	}

	for _, tc := range cases {
		d := parseDecision(tc.raw)
		assert.Equal(t, tc.kind, d.kind, "raw=%q", tc.raw)
		assert.Equal(t, tc.rank, d.rank, "raw=%q", tc.raw)
	}
}

func TestParseFragmentsResponse(t *testing.T) {
	fragments, err := parseFragmentsResponse(`{"fragments": ["has a dog", "", "works nights"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"has a dog", "works nights"}, fragments)
}

func TestParseFragmentsResponseCodeBlock(t *testing.T) {
	fragments, err := parseFragmentsResponse("```json\n{\"fragments\": [\"likes jazz\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, []string{"likes jazz"}, fragments)
}

func TestParseFragmentsResponseInvalid(t *testing.T) {
	_, err := parseFragmentsResponse("not json at all")
	assert.Error(t, err)
}

func TestParseDecisionResponse(t *testing.T) {
	raw, reason, err := parseDecisionResponse(`{"decision": "merge_with:2", "reason": "same topic"}`)
	require.NoError(t, err)
	assert.Equal(t, "merge_with:2", raw)
	assert.Equal(t, "same topic", reason)
}

func TestArbitrationPromptListsCandidates(t *testing.T) {
	matches := []Match{
		{Index: 0, Similarity: 0.91, Record: &Record{Text: "owns a cat"}},
		{Index: 3, Similarity: 0.74, Record: &Record{Text: "lives in Osaka"}},
	}

	prompt := arbitrationPrompt("adopted a kitten", matches)

	assert.Contains(t, prompt, "1. owns a cat (similarity: 0.910)")
	assert.Contains(t, prompt, "2. lives in Osaka (similarity: 0.740)")
	assert.Contains(t, prompt, "adopted a kitten")
}
