package assistant

import (
	"encoding/json"
	"strings"
)

// Candidate is one entry of the structured generation output.
type Candidate struct {
	Action      string   `json:"action"`
	ID          *uint    `json:"id,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Status      string   `json:"status,omitempty"`
	Message     string   `json:"message"`
}

// GenerationReply is the tagged result of parsing the generation endpoint's
// output: either a structured candidate list or plain text. Nothing else is
// ever assumed about the response shape.
type GenerationReply struct {
	Structured bool
	Candidates []Candidate
	Message    string
}

// parseCandidates strictly parses raw as a candidate array. Anything that
// does not parse degrades to a plain-text reply; a malformed response never
// fails the turn.
func parseCandidates(raw string) GenerationReply {
	trimmed := strings.TrimSpace(stripCodeFence(raw))

	var candidates []Candidate
	if err := json.Unmarshal([]byte(trimmed), &candidates); err != nil {
		return GenerationReply{Message: extractMessage(raw)}
	}
	return GenerationReply{Structured: true, Candidates: candidates}
}

// extractMessage unwraps a {"message": ...} object, falling back to the raw
// text when the response is not wrapped.
func extractMessage(raw string) string {
	trimmed := strings.TrimSpace(stripCodeFence(raw))

	var wrapped struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil && wrapped.Message != "" {
		return wrapped.Message
	}
	return strings.TrimSpace(raw)
}

// stripCodeFence removes a markdown ```json fence if the model wrapped its
// output in one.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
