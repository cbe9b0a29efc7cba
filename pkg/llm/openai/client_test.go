package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(&Config{})
	require.Error(t, err)
}

func TestResolveBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, resolveBaseURL(""), "empty base URL falls back to DashScope compatible mode")
	assert.Equal(t, "https://example.com/v1", resolveBaseURL("https://example.com/v1"))
}
