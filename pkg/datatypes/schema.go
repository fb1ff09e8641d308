// Package datatypes defines the schema model for columnar tables.
//
// Fields carry Arrow logical types; a Schema is an ordered field
// sequence with unique names. Schemas are immutable once built: rename
// and projection return new schemas.
package datatypes

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/strataframe/strata/pkg/errors"
)

// Convenience aliases for the logical types the CSV decode path
// understands.
var (
	Int64     = arrow.PrimitiveTypes.Int64
	Float64   = arrow.PrimitiveTypes.Float64
	Boolean   = arrow.FixedWidthTypes.Boolean
	Utf8      = arrow.BinaryTypes.String
	Timestamp = arrow.FixedWidthTypes.Timestamp_us
)

// Field describes one column: name, logical type, nullability and
// optional metadata.
type Field struct {
	Name     string
	Type     arrow.DataType
	Nullable bool
	Metadata arrow.Metadata
}

// NewField creates a nullable field
func NewField(name string, dtype arrow.DataType) Field {
	return Field{Name: name, Type: dtype, Nullable: true}
}

// Equal reports name/type/nullability equality
func (f Field) Equal(other Field) bool {
	return f.Name == other.Name &&
		f.Nullable == other.Nullable &&
		arrow.TypeEqual(f.Type, other.Type)
}

// String renders the field as name#type
func (f Field) String() string {
	return f.Name + "#" + f.Type.String()
}

// Schema is an ordered sequence of fields with unique names
type Schema struct {
	fields []Field
	byName map[string]int
}

// NewSchema builds a schema, rejecting duplicate field names
func NewSchema(fields []Field) (*Schema, error) {
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Type == nil {
			return nil, errors.Newf(errors.TypeConfig, "field %q has no type", f.Name)
		}
		if _, ok := byName[f.Name]; ok {
			return nil, errors.Newf(errors.TypeConfig, "duplicate field name %q", f.Name)
		}
		byName[f.Name] = i
	}
	return &Schema{fields: append([]Field(nil), fields...), byName: byName}, nil
}

// MustNewSchema builds a schema and panics on invalid input. Reserved
// for static schemas in tests and examples.
func MustNewSchema(fields []Field) *Schema {
	s, err := NewSchema(fields)
	if err != nil {
		panic(err)
	}
	return s
}

// Empty returns the zero-field schema
func Empty() *Schema {
	return &Schema{byName: map[string]int{}}
}

// Len returns the number of fields
func (s *Schema) Len() int {
	return len(s.fields)
}

// Field returns the i-th field
func (s *Schema) Field(i int) Field {
	return s.fields[i]
}

// Fields returns a copy of the field sequence
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// FieldByName returns the named field
func (s *Schema) FieldByName(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// IndexOf returns the position of the named field, or -1
func (s *Schema) IndexOf(name string) int {
	i, ok := s.byName[name]
	if !ok {
		return -1
	}
	return i
}

// Names returns field names in schema order
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Equal reports field-wise schema equality
func (s *Schema) Equal(other *Schema) bool {
	if s.Len() != other.Len() {
		return false
	}
	for i := range s.fields {
		if !s.fields[i].Equal(other.fields[i]) {
			return false
		}
	}
	return true
}

// Rename returns a schema with the first len(names) fields renamed
// positionally. Types, nullability and metadata are preserved. This is
// the only schema mutation permitted before a read, and it happens
// before any parsing.
func (s *Schema) Rename(names []string) (*Schema, error) {
	if len(names) > len(s.fields) {
		return nil, errors.Newf(errors.TypeConfig,
			"%d column names supplied for %d fields", len(names), len(s.fields))
	}
	fields := s.Fields()
	for i, name := range names {
		fields[i].Name = name
	}
	return NewSchema(fields)
}

// Projection maps an include-list to source-field indices. The result
// follows the CALLER'S requested order, not the schema's natural
// order; downstream assembly depends on this.
func (s *Schema) Projection(include []string) ([]int, error) {
	if include == nil {
		indices := make([]int, len(s.fields))
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}
	indices := make([]int, 0, len(include))
	for _, name := range include {
		i, ok := s.byName[name]
		if !ok {
			return nil, errors.Newf(errors.TypeNotFound,
				"column %q not found in schema [%s]", name, strings.Join(s.Names(), ", "))
		}
		indices = append(indices, i)
	}
	return indices, nil
}

// Select returns a schema restricted and reordered to the given source
// indices.
func (s *Schema) Select(indices []int) (*Schema, error) {
	fields := make([]Field, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(s.fields) {
			return nil, errors.Newf(errors.TypeInternal, "field index %d out of range [0, %d)", i, len(s.fields))
		}
		fields = append(fields, s.fields[i])
	}
	return NewSchema(fields)
}

// String renders the schema as a compact field list
func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return "schema[" + strings.Join(parts, ", ") + "]"
}
