package jsonschema

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func portsSchema() *Schema {
	attrs := Object().
		Property("onAutoForward", String().EnumStrings("notify", "openBrowser", "silent", "ignore").Build()).
		Property("elevateIfNeeded", Boolean().Build()).
		Property("label", String().Build()).
		Property("protocol", String().EnumStrings("http", "https").Build()).
		Closed().
		Build()
	return Object().
		PatternProperty(`^\d+(-\d+)?$`, attrs).
		PatternProperty(`^[^\d].*$`, attrs).
		Closed().
		Build()
}

func paths(err error) []string {
	var ve ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]string, len(ve))
	for i, e := range ve {
		out[i] = e.Path
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		schema    *Schema
		value     any
		wantPaths []string
	}{
		{name: "string ok", schema: String().Build(), value: "x"},
		{name: "string wrong type", schema: String().Build(), value: 3, wantPaths: []string{""}},
		{name: "integer accepts whole float", schema: Integer().Build(), value: 3.0},
		{name: "integer rejects fraction", schema: Integer().Build(), value: 3.5, wantPaths: []string{""}},
		{name: "number accepts int", schema: Number().Build(), value: 7},
		{name: "nullable", schema: New(TypeString, TypeNull).Build(), value: nil},
		{name: "enum ok", schema: String().EnumStrings("a", "b").Build(), value: "b"},
		{name: "enum bad", schema: String().EnumStrings("a", "b").Build(), value: "c", wantPaths: []string{""}},
		{name: "min", schema: Number().Min(1).Max(3).Build(), value: 0, wantPaths: []string{""}},
		{name: "max", schema: Number().Min(1).Max(3).Build(), value: 4, wantPaths: []string{""}},
		{name: "pattern", schema: String().Pattern(`^[a-z]+$`, "").Build(), value: "ABC", wantPaths: []string{""}},
		{name: "min length counts runes", schema: String().MinLength(2).Build(), value: "é", wantPaths: []string{""}},
		{
			name:      "array items",
			schema:    Array(String().Build()).Build(),
			value:     []any{"a", 1, "c", true},
			wantPaths: []string{"[1]", "[3]"},
		},
		{
			name:      "required",
			schema:    Object().Property("a", String().Build()).Required("a", "b").Build(),
			value:     map[string]any{"a": "x"},
			wantPaths: []string{"b"},
		},
		{
			name:   "pattern properties ok",
			schema: portsSchema(),
			value: map[string]any{
				"3000":      map[string]any{"onAutoForward": "silent", "label": "web"},
				"8000-8010": map[string]any{"protocol": "https"},
				".+\\.js":   map[string]any{"elevateIfNeeded": true},
			},
		},
		{
			name:   "pattern properties bad nested",
			schema: portsSchema(),
			value: map[string]any{
				"3000": map[string]any{"onAutoForward": "shout", "extra": 1},
				"9000": map[string]any{"protocol": "ftp"},
			},
			wantPaths: []string{"3000.extra", "3000.onAutoForward", "9000.protocol"},
		},
		{
			name:      "closed object",
			schema:    Object().Property("a", Boolean().Build()).Closed().Build(),
			value:     map[string]any{"a": true, "b": 1},
			wantPaths: []string{"b"},
		},
		{
			name: "additional schema",
			schema: &Schema{
				Type:                 Types{TypeObject},
				AdditionalProperties: &Additional{Allowed: true, Schema: Integer().Build()},
			},
			value:     map[string]any{"a": 1, "b": "x"},
			wantPaths: []string{"b"},
		},
		{
			name:      "oneOf",
			schema:    &Schema{OneOf: []*Schema{String().Build(), Boolean().Build()}},
			value:     1,
			wantPaths: []string{""},
		},
		{
			name:   "anyOf ok",
			schema: &Schema{AnyOf: []*Schema{String().Build(), Number().Build()}},
			value:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate(tt.value)
			if len(tt.wantPaths) == 0 {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("error = %v, want ErrInvalid", err)
			}
			if diff := cmp.Diff(tt.wantPaths, paths(err)); diff != "" {
				t.Errorf("error paths mismatch (-want +got):\n%s\n%v", diff, err)
			}
		})
	}
}

func TestParseAndValidateJSON(t *testing.T) {
	s, err := Parse([]byte(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "minLength": 1},
			"limit": {"type": ["integer", "null"], "maximum": 50}
		},
		"required": ["query"],
		"additionalProperties": false
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if err := s.ValidateJSON([]byte(`{"query":"go","limit":10}`)); err != nil {
		t.Errorf("valid input rejected: %v", err)
	}
	if err := s.ValidateJSON([]byte(`{"query":"go","limit":null}`)); err != nil {
		t.Errorf("null limit rejected: %v", err)
	}
	err = s.ValidateJSON([]byte(`{"limit":99,"other":1}`))
	if diff := cmp.Diff([]string{"query", "limit", "other"}, paths(err)); diff != "" {
		t.Errorf("error paths mismatch (-want +got):\n%s", diff)
	}
	if err := s.ValidateJSON([]byte(`{`)); !errors.Is(err, ErrInvalid) {
		t.Errorf("malformed JSON error = %v", err)
	}
}

func TestPatternErrorMessage(t *testing.T) {
	s := String().Pattern(`^\d+$`, "must be digits").Build()
	err := s.Validate("abc")
	if err == nil || err.Error() != "must be digits" {
		t.Errorf("error = %v, want custom message", err)
	}
}

func TestProperty(t *testing.T) {
	s := portsSchema()
	if s.Property("3000") == nil {
		t.Error("Property(3000) = nil, want pattern match")
	}
	if p := s.Property("3000"); p.Property("label") == nil {
		t.Error("nested label property missing")
	}
	if Object().Build().Property("x") != nil {
		t.Error("Property on empty object schema should be nil")
	}
}
