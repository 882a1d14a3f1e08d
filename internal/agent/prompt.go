package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/delegent/internal/tools"
)

// StructuredInstructions steer the structured tool agent.
const StructuredInstructions = `You are a precise assistant that answers questions by using tools.
Pick the tool that fits the question, call it, and base your answer on its result.
Never guess values a tool can provide, such as the current time, arithmetic, weather or facts from the web.
When you have enough information, reply with the final answer only, in plain text, without a tool_call block.`

// ConversationalInstructions steer the central conversational agent.
const ConversationalInstructions = `You are Delegent, a friendly conversational assistant.
Answer directly when the conversation so far is enough, for example greetings, small talk or questions about what was said earlier.
When the question needs math, the current time or date, weather, the web, Wikipedia, sentiment analysis or any other structured processing, call the Helper tool with the user's full question and base your answer on its result.
Reply to the user in plain text.`

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	Instructions string
	Tools        []tools.Definition
	// Compact lists tools as one line each, for small context windows.
	Compact bool
	Now     time.Time
}

// BuildSystemPrompt constructs the system prompt for the model.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	if !cfg.Now.IsZero() {
		fmt.Fprintf(&b, "Current date: %s\n\n", cfg.Now.Format("2006-01-02"))
	}
	b.WriteString(strings.TrimSpace(cfg.Instructions))
	b.WriteString("\n")

	if len(cfg.Tools) == 0 {
		return b.String()
	}

	b.WriteString("\n## Available Tools\n\n")
	b.WriteString("Call a tool by outputting a fenced code block with the language tag `tool_call`:\n\n")
	b.WriteString("```tool_call\n{\"tool\": \"tool_name\", \"input\": {\"param\": \"value\"}}\n```\n\n")
	if !cfg.Compact {
		b.WriteString("After a tool runs, its result is provided. You may call several tools before giving your final response.\n\n")
	}

	for _, t := range cfg.Tools {
		if cfg.Compact {
			fmt.Fprintf(&b, "- %s(%s): %s\n", t.Name, compactFields(t), t.Description)
			continue
		}
		fmt.Fprintf(&b, "### %s\n%s\n", t.Name, t.Description)
		if len(t.Fields) > 0 {
			fmt.Fprintf(&b, "Input schema: %s\n", t.Schema())
		}
		b.WriteString("\n")
	}
	return b.String()
}

func compactFields(d tools.Definition) string {
	parts := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		p := f.Name + " " + string(f.Type)
		if !f.Required {
			p += "?"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}
