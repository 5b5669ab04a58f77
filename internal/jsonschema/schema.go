// Package jsonschema validates JSON values against a subset of JSON Schema.
//
// It covers what setting contributions and tool input schemas use: types,
// enum, const, numeric and string bounds, pattern, array items, object
// properties, patternProperties, additionalProperties, required, and the
// allOf/anyOf/oneOf/not combinators. Values are expected in the shape
// encoding/json produces when decoding into any.
package jsonschema

import (
	"encoding/json"
	"fmt"
)

// Type names.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeNull    = "null"
)

// Schema is a JSON Schema node.
type Schema struct {
	Title               string `json:"title,omitempty"`
	Description         string `json:"description,omitempty"`
	MarkdownDescription string `json:"markdownDescription,omitempty"`

	Type    Types `json:"type,omitempty"`
	Default any   `json:"default,omitempty"`
	Const   any   `json:"const,omitempty"`

	Enum             []any    `json:"enum,omitempty"`
	EnumDescriptions []string `json:"enumDescriptions,omitempty"`

	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64 `json:"exclusiveMaximum,omitempty"`

	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`

	// PatternErrorMessage replaces the generic message when Pattern fails.
	PatternErrorMessage string `json:"patternErrorMessage,omitempty"`

	Items       *Schema `json:"items,omitempty"`
	MinItems    *int    `json:"minItems,omitempty"`
	MaxItems    *int    `json:"maxItems,omitempty"`
	UniqueItems bool    `json:"uniqueItems,omitempty"`

	Properties           map[string]*Schema `json:"properties,omitempty"`
	PatternProperties    map[string]*Schema `json:"patternProperties,omitempty"`
	AdditionalProperties *Additional        `json:"additionalProperties,omitempty"`
	Required             []string           `json:"required,omitempty"`

	AllOf []*Schema `json:"allOf,omitempty"`
	AnyOf []*Schema `json:"anyOf,omitempty"`
	OneOf []*Schema `json:"oneOf,omitempty"`
	Not   *Schema   `json:"not,omitempty"`

	Deprecated         bool   `json:"deprecated,omitempty"`
	DeprecationMessage string `json:"deprecationMessage,omitempty"`
}

// Types is a single type name or a list of them.
type Types []string

// UnmarshalJSON accepts "string" or ["string", "null"].
func (t *Types) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = Types{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("jsonschema: type must be a string or list of strings: %w", err)
	}
	*t = many
	return nil
}

// MarshalJSON writes a single type as a bare string.
func (t Types) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// Has reports whether name is one of the types.
func (t Types) Has(name string) bool {
	for _, n := range t {
		if n == name {
			return true
		}
	}
	return false
}

func (t Types) String() string {
	if len(t) == 1 {
		return t[0]
	}
	return fmt.Sprint([]string(t))
}

// Additional is the additionalProperties keyword: either a boolean or a
// schema every unmatched property must satisfy.
type Additional struct {
	Allowed bool
	Schema  *Schema
}

// UnmarshalJSON accepts true, false or a schema object.
func (a *Additional) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*a = Additional{Allowed: b}
		return nil
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("jsonschema: additionalProperties: %w", err)
	}
	*a = Additional{Allowed: true, Schema: &s}
	return nil
}

// MarshalJSON writes the schema when present, else the boolean.
func (a Additional) MarshalJSON() ([]byte, error) {
	if a.Schema != nil {
		return json.Marshal(a.Schema)
	}
	return json.Marshal(a.Allowed)
}

// Parse decodes a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("jsonschema: parse: %w", err)
	}
	return &s, nil
}

// Property returns the schema of a direct property, consulting
// patternProperties when no named property matches.
func (s *Schema) Property(name string) *Schema {
	if s == nil {
		return nil
	}
	if p, ok := s.Properties[name]; ok {
		return p
	}
	for pattern, p := range s.PatternProperties {
		if re, err := compile(pattern); err == nil && re.MatchString(name) {
			return p
		}
	}
	if s.AdditionalProperties != nil {
		return s.AdditionalProperties.Schema
	}
	return nil
}
