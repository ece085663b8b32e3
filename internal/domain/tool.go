package domain

// ParamType is the semantic type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
	TypeAny     ParamType = "any"
)

// Valid reports whether t is one of the known semantic types.
func (t ParamType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject, TypeAny:
		return true
	}
	return false
}

// Param describes one declared parameter of a tool.
type Param struct {
	Name     string    `json:"name" yaml:"name"`
	Type     ParamType `json:"type" yaml:"type"`
	Purpose  string    `json:"purpose,omitempty" yaml:"description,omitempty"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Default  any       `json:"default,omitempty" yaml:"default,omitempty"`
}

// ToolSchema is the oracle-facing view of a registered tool.
// It never carries the handler or any session state.
type ToolSchema struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
	Parameters  []Param `json:"parameters"`
}

// JSONSchema renders the parameters as a JSON Schema "object" for
// providers that expect OpenAI-style function definitions.
func (s ToolSchema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Parameters))
	var required []string
	for _, p := range s.Parameters {
		prop := map[string]any{}
		if p.Type != TypeAny && p.Type != "" {
			prop["type"] = string(p.Type)
		}
		if p.Purpose != "" {
			prop["description"] = p.Purpose
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
