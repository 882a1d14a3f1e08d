package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// JSONPrettyInput is the input of json_pretty_print.
type JSONPrettyInput struct {
	JSONText string `json:"json_text"`
}

// JSONPretty re-indents JSON text.
func JSONPretty() Tool {
	return New(Definition{
		Name:        "json_pretty_print",
		Description: "Pretty-print a JSON document with two-space indentation.",
		Fields: []Field{
			{Name: "json_text", Type: String, Description: "the raw JSON text", Required: true},
		},
	}, func(_ context.Context, in JSONPrettyInput) (string, error) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(in.JSONText), "", "  "); err != nil {
			return "", fmt.Errorf("JSON parse error: %w", err)
		}
		return buf.String(), nil
	})
}
