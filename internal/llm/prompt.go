package llm

import "strings"

var roleTags = map[string]string{
	RoleSystem:    "System: ",
	RoleUser:      "User: ",
	RoleAssistant: "Assistant: ",
}

// FlattenPrompt renders a conversation as the single prompt string the
// Ollama-style endpoints take: the system prompt first, then one
// role-tagged entry per message, joined by newlines.
func FlattenPrompt(req CompletionRequest) string {
	parts := make([]string, 0, len(req.Messages)+1)
	if req.System != "" {
		parts = append(parts, roleTags[RoleSystem]+req.System)
	}
	for _, m := range req.Messages {
		tag, ok := roleTags[m.Role]
		if !ok {
			tag = m.Role + ": "
		}
		parts = append(parts, tag+m.Content)
	}
	if len(req.Messages) > 0 {
		parts = append(parts, roleTags[RoleAssistant])
	}
	return strings.Join(parts, "\n")
}
