package session

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionlabs/avatarmem-go/pkg/llm"
)

func TestAddMessagesCapsAtMaxMessages(t *testing.T) {
	sess := New()

	for i := 0; i < 60; i++ {
		sess.AddMessages(
			llm.Message{Role: "user", Content: fmt.Sprintf("q%d", i)},
			llm.Message{Role: "assistant", Content: fmt.Sprintf("a%d", i)},
		)
	}

	require.Len(t, sess.Messages, MaxMessages)
	assert.Equal(t, "q10", sess.Messages[0].Content, "oldest messages are dropped")
	assert.Equal(t, "a59", sess.Messages[MaxMessages-1].Content)
}

func TestUpdateSystemPromptCombines(t *testing.T) {
	sess := New()
	sess.UpdateSystemPrompt("You are Luna.", []string{"likes tea", "owns a cat"})

	assert.True(t, strings.HasPrefix(sess.CombinedPrompt, "persona is: You are Luna. "))
	assert.Contains(t, sess.CombinedPrompt, "previous conversation summary: likes tea\nowns a cat ")
	assert.True(t, strings.HasSuffix(sess.CombinedPrompt, styleInstruction))
}

func TestUpdateSystemPromptWithoutPersona(t *testing.T) {
	sess := New()
	sess.UpdateSystemPrompt("", nil)

	assert.Equal(t, styleInstruction, sess.CombinedPrompt)
	assert.NotContains(t, sess.CombinedPrompt, "persona is:")
	assert.NotContains(t, sess.CombinedPrompt, "previous conversation summary:")
}

func TestUpdateSystemPromptReplacesMemory(t *testing.T) {
	sess := New()
	sess.UpdateSystemPrompt("persona", []string{"old fact"})
	sess.UpdateSystemPrompt("persona", []string{"new fact"})

	assert.NotContains(t, sess.CombinedPrompt, "old fact")
	assert.Contains(t, sess.CombinedPrompt, "new fact")
}

func TestTouchAdvancesLastActive(t *testing.T) {
	sess := New()
	before := sess.LastActive
	sess.Touch()
	assert.False(t, sess.LastActive.Before(before))
}
