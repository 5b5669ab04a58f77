package jsonschema

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"sync"
	"unicode/utf8"
)

var patterns sync.Map // string -> *regexp.Regexp

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}

// Validate checks value against s. The error is a ValidationErrors.
func (s *Schema) Validate(value any) error {
	var errs ValidationErrors
	s.validate("", normalize(value), &errs)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateJSON decodes data and validates the result.
func (s *Schema) ValidateJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return ValidationErrors{{Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}
	return s.Validate(v)
}

func (s *Schema) validate(path string, v any, errs *ValidationErrors) {
	if s == nil {
		return
	}

	for _, sub := range s.AllOf {
		sub.validate(path, v, errs)
	}
	if len(s.AnyOf) > 0 && s.countMatches(s.AnyOf, v) == 0 {
		errs.add(path, "value does not match any allowed schema")
	}
	if len(s.OneOf) > 0 {
		if n := s.countMatches(s.OneOf, v); n != 1 {
			errs.add(path, "value matches %d schemas, want exactly one", n)
		}
	}
	if s.Not != nil && s.Not.Validate(v) == nil {
		errs.add(path, "value matches a disallowed schema")
	}

	if s.Const != nil && !equal(v, normalize(s.Const)) {
		errs.add(path, "value must be %v", s.Const)
	}
	if len(s.Enum) > 0 && !s.inEnum(v) {
		errs.add(path, "value %v is not one of %v", v, s.Enum)
	}

	if len(s.Type) > 0 && !s.typeMatches(v) {
		errs.add(path, "expected %s, got %s", s.Type, typeOf(v))
		return
	}

	switch x := v.(type) {
	case string:
		s.validateString(path, x, errs)
	case float64:
		s.validateNumber(path, x, errs)
	case []any:
		s.validateArray(path, x, errs)
	case map[string]any:
		s.validateObject(path, x, errs)
	}
}

func (s *Schema) countMatches(schemas []*Schema, v any) int {
	n := 0
	for _, sub := range schemas {
		var tmp ValidationErrors
		sub.validate("", v, &tmp)
		if len(tmp) == 0 {
			n++
		}
	}
	return n
}

func (s *Schema) inEnum(v any) bool {
	for _, e := range s.Enum {
		if equal(v, normalize(e)) {
			return true
		}
	}
	return false
}

func (s *Schema) typeMatches(v any) bool {
	got := typeOf(v)
	for _, t := range s.Type {
		if t == got {
			return true
		}
		if t == TypeNumber && got == TypeInteger {
			return true
		}
	}
	return false
}

func (s *Schema) validateString(path, v string, errs *ValidationErrors) {
	n := utf8.RuneCountInString(v)
	if s.MinLength != nil && n < *s.MinLength {
		errs.add(path, "length %d is less than %d", n, *s.MinLength)
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		errs.add(path, "length %d is greater than %d", n, *s.MaxLength)
	}
	if s.Pattern != "" {
		re, err := compile(s.Pattern)
		switch {
		case err != nil:
			errs.add(path, "schema pattern %q does not compile: %v", s.Pattern, err)
		case !re.MatchString(v):
			if s.PatternErrorMessage != "" {
				errs.add(path, "%s", s.PatternErrorMessage)
			} else {
				errs.add(path, "value %q does not match %s", v, s.Pattern)
			}
		}
	}
}

func (s *Schema) validateNumber(path string, v float64, errs *ValidationErrors) {
	if s.Minimum != nil && v < *s.Minimum {
		errs.add(path, "value %v is less than minimum %v", v, *s.Minimum)
	}
	if s.Maximum != nil && v > *s.Maximum {
		errs.add(path, "value %v is greater than maximum %v", v, *s.Maximum)
	}
	if s.ExclusiveMinimum != nil && v <= *s.ExclusiveMinimum {
		errs.add(path, "value %v must be greater than %v", v, *s.ExclusiveMinimum)
	}
	if s.ExclusiveMaximum != nil && v >= *s.ExclusiveMaximum {
		errs.add(path, "value %v must be less than %v", v, *s.ExclusiveMaximum)
	}
}

func (s *Schema) validateArray(path string, v []any, errs *ValidationErrors) {
	if s.MinItems != nil && len(v) < *s.MinItems {
		errs.add(path, "array has %d items, minimum is %d", len(v), *s.MinItems)
	}
	if s.MaxItems != nil && len(v) > *s.MaxItems {
		errs.add(path, "array has %d items, maximum is %d", len(v), *s.MaxItems)
	}
	if s.UniqueItems {
		seen := make(map[string]int, len(v))
		for i, item := range v {
			key, _ := json.Marshal(item)
			if j, dup := seen[string(key)]; dup {
				errs.add(path, "items %d and %d are equal", j, i)
				break
			}
			seen[string(key)] = i
		}
	}
	if s.Items != nil {
		for i, item := range v {
			s.Items.validate(fmt.Sprintf("%s[%d]", path, i), item, errs)
		}
	}
}

func (s *Schema) validateObject(path string, v map[string]any, errs *ValidationErrors) {
	for _, name := range s.Required {
		if _, ok := v[name]; !ok {
			errs.add(join(path, name), "required property is missing")
		}
	}

	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		child := join(path, name)
		matched := false
		if p, ok := s.Properties[name]; ok {
			p.validate(child, v[name], errs)
			matched = true
		}
		for pattern, p := range s.PatternProperties {
			re, err := compile(pattern)
			if err != nil {
				errs.add(path, "schema pattern %q does not compile: %v", pattern, err)
				continue
			}
			if re.MatchString(name) {
				p.validate(child, v[name], errs)
				matched = true
			}
		}
		if matched || s.AdditionalProperties == nil {
			continue
		}
		if s.AdditionalProperties.Schema != nil {
			s.AdditionalProperties.Schema.validate(child, v[name], errs)
		} else if !s.AdditionalProperties.Allowed {
			errs.add(child, "property is not allowed")
		}
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func typeOf(v any) string {
	switch x := v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case string:
		return TypeString
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return TypeInteger
		}
		return TypeNumber
	case []any:
		return TypeArray
	case map[string]any:
		return TypeObject
	}
	return fmt.Sprintf("%T", v)
}

func equal(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// normalize converts Go values built in code (ints, typed slices and maps)
// into the shapes encoding/json decodes to.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return v
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case uint:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return v
		}
		return f
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
