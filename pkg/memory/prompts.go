package memory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/companionlabs/avatarmem-go/pkg/llm"
)

const extractionSystemPrompt = "You are a professional memory extraction assistant that accurately extracts important information from conversations."

const arbitrationSystemPrompt = "You are a professional memory management assistant that intelligently decides how to integrate memories."

const mergeSystemPrompt = "You are good at combining related information into concise, coherent memories."

// extractionPrompt builds the fragment-extraction prompt for a chat transcript.
func extractionPrompt(transcript string) string {
	return fmt.Sprintf(`You are a memory extraction expert. Extract the important memory fragments from the conversation history below.
Each fragment should be one concise fact or piece of information.
Return JSON containing a "fragments" array where each element is one fragment text.

Conversation history:
%s

Return only JSON, nothing else.`, transcript)
}

// arbitrationPrompt builds the merge/create/ignore decision prompt for one
// fragment against its ranked similar memories.
func arbitrationPrompt(fragment string, matches []Match) string {
	candidates := make([]string, len(matches))
	for i, m := range matches {
		candidates[i] = fmt.Sprintf("%d. %s (similarity: %.3f)", i+1, m.Record.Text, m.Similarity)
	}

	return fmt.Sprintf(`You are a memory management expert. Decide how to handle the new memory fragment.

New memory fragment: "%s"

Similar existing memories:
%s

Choose exactly one of the following actions:
1. If the new fragment is closely related to an existing memory, choose "merge_with:X" (X is the memory number)
2. If the new fragment is entirely new information, choose "create_new"
3. If the new fragment is unimportant or duplicated, choose "ignore"

Return JSON with a "decision" field and an optional "reason" field.
Example: {"decision": "merge_with:1", "reason": "why"}`, fragment, strings.Join(candidates, "\n"))
}

// mergePrompt builds the prompt combining an existing memory with a new fragment.
func mergePrompt(existing, fragment string) string {
	return fmt.Sprintf(`Combine the two related memory fragments below into one coherent, concise memory.
Keep all important information and remove redundancy.

Existing memory: "%s"
New memory fragment: "%s"

Return only the merged memory text, nothing else.`, existing, fragment)
}

// formatTranscript renders a message log as a speaker-prefixed multi-line
// transcript. System messages and empty contents are skipped.
func formatTranscript(messages []llm.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(msg.Role) {
		case "user":
			lines = append(lines, "User: "+content)
		case "assistant":
			lines = append(lines, "AI: "+content)
		}
	}
	return strings.Join(lines, "\n")
}

// decisionKind is the arbitration outcome for one fragment.
type decisionKind int

const (
	// decideCreateNew appends the fragment as a new record.
	decideCreateNew decisionKind = iota

	// decideMerge folds the fragment into an existing record.
	decideMerge

	// decideIgnore drops the fragment without mutation.
	decideIgnore
)

// decision is the parsed arbitration result. rank is 1-based into the
// candidate list and only meaningful for decideMerge.
type decision struct {
	kind decisionKind
	rank int
}

// parseDecision decodes the string-encoded arbitration verdict into a
// tagged decision. Any unparseable value falls back to create_new; rank
// range checking against the candidate list is the caller's job.
func parseDecision(raw string) decision {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "create_new":
		return decision{kind: decideCreateNew}
	case raw == "ignore":
		return decision{kind: decideIgnore}
	case strings.HasPrefix(raw, "merge_with:"):
		rank, err := strconv.Atoi(strings.TrimPrefix(raw, "merge_with:"))
		if err != nil {
			return decision{kind: decideCreateNew}
		}
		return decision{kind: decideMerge, rank: rank}
	default:
		return decision{kind: decideCreateNew}
	}
}

// parseFragmentsResponse parses the extraction LLM response into fragment texts.
func parseFragmentsResponse(response string) ([]string, error) {
	var result struct {
		Fragments []string `json:"fragments"`
	}
	if err := json.Unmarshal([]byte(removeCodeBlocks(response)), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	fragments := make([]string, 0, len(result.Fragments))
	for _, f := range result.Fragments {
		if f != "" {
			fragments = append(fragments, f)
		}
	}
	return fragments, nil
}

// parseDecisionResponse parses the arbitration LLM response into the raw
// decision string and reason.
func parseDecisionResponse(response string) (string, string, error) {
	var result struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(removeCodeBlocks(response)), &result); err != nil {
		return "", "", fmt.Errorf("invalid JSON response: %w", err)
	}
	return result.Decision, result.Reason, nil
}

// removeCodeBlocks removes code blocks (```json ... ```) from a response.
func removeCodeBlocks(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}
