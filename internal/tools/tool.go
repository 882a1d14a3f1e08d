// Package tools holds the utility tools the structured agent plans over.
//
// Every tool declares its fields up front and decodes planner output into
// its own input struct before the tool body runs, so a malformed call is
// rejected at the registry with a ValidationError.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FieldType is the JSON type of a tool input field.
type FieldType string

const (
	String  FieldType = "string"
	Number  FieldType = "number"
	Boolean FieldType = "boolean"
)

// Field declares one named input of a tool.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
	Default     any
}

// Definition describes a tool to the planner. It is immutable once the
// tool is registered.
type Definition struct {
	Name        string
	Description string
	Fields      []Field
}

// Schema renders the fields as a compact JSON Schema object.
func (d Definition) Schema() string {
	type prop struct {
		Type        FieldType `json:"type"`
		Description string    `json:"description,omitempty"`
		Default     any       `json:"default,omitempty"`
	}
	props := make(map[string]prop, len(d.Fields))
	required := []string{}
	for _, f := range d.Fields {
		props[f.Name] = prop{Type: f.Type, Description: f.Description, Default: f.Default}
		if f.Required {
			required = append(required, f.Name)
		}
	}
	data, _ := json.Marshal(struct {
		Type       string          `json:"type"`
		Properties map[string]prop `json:"properties"`
		Required   []string        `json:"required"`
	}{"object", props, required})
	return string(data)
}

// Field returns the field with the given name.
func (d Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Tool is a registered capability.
type Tool interface {
	Definition() Definition
	// Decode validates raw planner input and returns the tool's typed input.
	Decode(raw json.RawMessage) (any, error)
	// Call runs the tool on a value produced by Decode.
	Call(ctx context.Context, input any) (string, error)
}

// Validator is implemented by inputs with constraints beyond field types.
type Validator interface {
	Validate() error
}

// Typed binds a Definition to an input struct In and a function over it.
type Typed[In any] struct {
	def Definition
	run func(context.Context, In) (string, error)
}

// New creates a Typed tool. The json tags of In must match def.Fields.
func New[In any](def Definition, run func(context.Context, In) (string, error)) *Typed[In] {
	return &Typed[In]{def: def, run: run}
}

func (t *Typed[In]) Definition() Definition { return t.def }

func (t *Typed[In]) Decode(raw json.RawMessage) (any, error) {
	obj, err := normalize(t.def, raw)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, &ValidationError{Tool: t.def.Name, Message: err.Error()}
	}

	var in In
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, &ValidationError{Tool: t.def.Name, Message: err.Error()}
	}
	if v, ok := any(in).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, asValidation(t.def.Name, err)
		}
	}
	return in, nil
}

func (t *Typed[In]) Call(ctx context.Context, input any) (string, error) {
	in, ok := input.(In)
	if !ok {
		return "", fmt.Errorf("%s: unexpected input type %T", t.def.Name, input)
	}
	return t.run(ctx, in)
}

// normalize turns raw planner output into a field map: a bare string is
// mapped onto the single required string field, defaults are filled in and
// every present value is type-checked against its field.
func normalize(def Definition, raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	var obj map[string]any
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &ValidationError{Tool: def.Name, Message: "invalid JSON string input"}
		}
		f, ok := soleStringField(def)
		if !ok {
			return nil, &ValidationError{Tool: def.Name, Message: "expected a JSON object of named fields"}
		}
		obj = map[string]any{f.Name: s}
	} else {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil || obj == nil {
			return nil, &ValidationError{Tool: def.Name, Message: "input must be a JSON object"}
		}
	}

	for key, val := range obj {
		f, ok := def.Field(key)
		if !ok {
			return nil, &ValidationError{Tool: def.Name, Field: key, Message: "unknown field; expected one of " + fieldNames(def)}
		}
		coerced, err := checkType(f, val)
		if err != nil {
			return nil, &ValidationError{Tool: def.Name, Field: key, Message: err.Error()}
		}
		obj[key] = coerced
	}

	for _, f := range def.Fields {
		if _, ok := obj[f.Name]; ok {
			continue
		}
		if f.Required {
			return nil, &ValidationError{Tool: def.Name, Field: f.Name, Message: "required field is missing"}
		}
		if f.Default != nil {
			obj[f.Name] = f.Default
		}
	}
	return obj, nil
}

func checkType(f Field, val any) (any, error) {
	switch f.Type {
	case String:
		if s, ok := val.(string); ok {
			return s, nil
		}
		// small models often send numbers for free-text fields
		if n, ok := val.(json.Number); ok {
			return n.String(), nil
		}
	case Number:
		switch v := val.(type) {
		case json.Number:
			return v, nil
		case string:
			n := json.Number(strings.TrimSpace(v))
			if _, err := n.Float64(); err == nil {
				return n, nil
			}
		}
	case Boolean:
		if b, ok := val.(bool); ok {
			return b, nil
		}
	}
	if val == nil && !f.Required {
		return f.Default, nil
	}
	return nil, fmt.Errorf("expected %s, got %s", f.Type, jsonKind(val))
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func soleStringField(def Definition) (Field, bool) {
	var found Field
	n := 0
	for _, f := range def.Fields {
		if f.Required {
			found = f
			n++
		}
	}
	if n == 1 && found.Type == String {
		return found, true
	}
	if n == 0 && len(def.Fields) > 0 && def.Fields[0].Type == String {
		return def.Fields[0], true
	}
	return Field{}, false
}

func fieldNames(def Definition) string {
	names := make([]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
