// Package session manages in-memory conversation state: per-user locks,
// per-user LRU caches of avatar sessions, the NDJSON streaming bridge to the
// LLM, and the background sweeper that hands idle sessions to memory
// consolidation.
package session

import (
	"strings"
	"time"

	"github.com/companionlabs/avatarmem-go/pkg/llm"
)

// MaxMessages caps the rolling transcript kept per session. Older messages
// are dropped from the front.
const MaxMessages = 100

// styleInstruction is appended to every combined prompt. It keeps replies
// as spoken dialogue only, with no parenthesized stage directions.
const styleInstruction = "Reply with spoken dialogue only. Never include stage directions, actions, or descriptions in parentheses or brackets."

// Session is the in-memory conversation state for one (user, avatar) pair.
type Session struct {
	// Messages is the rolling transcript, capped at MaxMessages.
	Messages []llm.Message

	// SystemPrompt is the avatar's persona text from the catalog.
	SystemPrompt string

	// MemoryPrompt holds the consolidated memory lines injected into the
	// combined prompt.
	MemoryPrompt []string

	// MemoryVersion is the durable memory version this session was loaded
	// against.
	MemoryVersion uint32

	// CombinedPrompt is the assembled system message sent to the LLM.
	CombinedPrompt string

	// LastActive is the time of the last user interaction.
	LastActive time.Time

	// ChatCount mirrors the catalog's per-role chat counter.
	ChatCount int
}

// New creates an empty session stamped active now.
func New() *Session {
	return &Session{LastActive: time.Now()}
}

// Touch marks the session active now.
func (s *Session) Touch() {
	s.LastActive = time.Now()
}

// AddMessages appends messages to the transcript and truncates to the most
// recent MaxMessages.
func (s *Session) AddMessages(msgs ...llm.Message) {
	s.Messages = append(s.Messages, msgs...)
	if len(s.Messages) > MaxMessages {
		s.Messages = s.Messages[len(s.Messages)-MaxMessages:]
	}
}

// UpdateSystemPrompt replaces the persona and memory lines and rebuilds the
// combined prompt. The style instruction is always appended last.
func (s *Session) UpdateSystemPrompt(systemPrompt string, memoryPrompt []string) {
	s.SystemPrompt = systemPrompt
	s.MemoryPrompt = memoryPrompt

	var b strings.Builder
	if s.SystemPrompt != "" {
		b.WriteString("persona is: ")
		b.WriteString(s.SystemPrompt)
		b.WriteString(" ")
	}
	if len(s.MemoryPrompt) > 0 {
		b.WriteString("previous conversation summary: ")
		b.WriteString(strings.Join(s.MemoryPrompt, "\n"))
		b.WriteString(" ")
	}
	b.WriteString(styleInstruction)

	s.CombinedPrompt = b.String()
}
