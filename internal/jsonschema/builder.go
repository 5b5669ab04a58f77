package jsonschema

// Builder assembles a Schema with chained calls.
type Builder struct {
	s *Schema
}

// New starts a schema of the given types.
func New(types ...string) *Builder {
	return &Builder{s: &Schema{Type: Types(types)}}
}

// String starts a string schema.
func String() *Builder { return New(TypeString) }

// Boolean starts a boolean schema.
func Boolean() *Builder { return New(TypeBoolean) }

// Number starts a number schema.
func Number() *Builder { return New(TypeNumber) }

// Integer starts an integer schema.
func Integer() *Builder { return New(TypeInteger) }

// Object starts an object schema.
func Object() *Builder { return New(TypeObject) }

// Array starts an array schema with the given item schema.
func Array(items *Schema) *Builder {
	b := New(TypeArray)
	b.s.Items = items
	return b
}

// Build returns the schema.
func (b *Builder) Build() *Schema { return b.s }

func (b *Builder) Description(d string) *Builder {
	b.s.Description = d
	return b
}

func (b *Builder) Default(v any) *Builder {
	b.s.Default = v
	return b
}

// Enum restricts values. descriptions, when given, pair with values by index.
func (b *Builder) Enum(values []any, descriptions ...string) *Builder {
	b.s.Enum = values
	b.s.EnumDescriptions = descriptions
	return b
}

// EnumStrings is Enum for string values.
func (b *Builder) EnumStrings(values ...string) *Builder {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	b.s.Enum = vs
	return b
}

func (b *Builder) Min(v float64) *Builder {
	b.s.Minimum = &v
	return b
}

func (b *Builder) Max(v float64) *Builder {
	b.s.Maximum = &v
	return b
}

func (b *Builder) MinLength(n int) *Builder {
	b.s.MinLength = &n
	return b
}

func (b *Builder) Pattern(p, message string) *Builder {
	b.s.Pattern = p
	b.s.PatternErrorMessage = message
	return b
}

// Property adds a named property.
func (b *Builder) Property(name string, s *Schema) *Builder {
	if b.s.Properties == nil {
		b.s.Properties = make(map[string]*Schema)
	}
	b.s.Properties[name] = s
	return b
}

// PatternProperty adds a schema for properties whose names match pattern.
func (b *Builder) PatternProperty(pattern string, s *Schema) *Builder {
	if b.s.PatternProperties == nil {
		b.s.PatternProperties = make(map[string]*Schema)
	}
	b.s.PatternProperties[pattern] = s
	return b
}

// Closed rejects properties not matched by Property or PatternProperty.
func (b *Builder) Closed() *Builder {
	b.s.AdditionalProperties = &Additional{Allowed: false}
	return b
}

func (b *Builder) Required(names ...string) *Builder {
	b.s.Required = append(b.s.Required, names...)
	return b
}

func (b *Builder) Deprecated(message string) *Builder {
	b.s.Deprecated = true
	b.s.DeprecationMessage = message
	return b
}
