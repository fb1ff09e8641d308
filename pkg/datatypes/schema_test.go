package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataframe/strata/pkg/errors"
)

func threeFieldSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema([]Field{
		NewField("a", Int64),
		NewField("b", Utf8),
		NewField("c", Float64),
	})
	require.NoError(t, err)
	return s
}

func TestNewSchemaRejectsDuplicates(t *testing.T) {
	_, err := NewSchema([]Field{
		NewField("a", Int64),
		NewField("a", Utf8),
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeConfig))
}

func TestNewSchemaRejectsMissingType(t *testing.T) {
	_, err := NewSchema([]Field{{Name: "a"}})
	require.Error(t, err)
}

func TestSchemaLookup(t *testing.T) {
	s := threeFieldSchema(t)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"a", "b", "c"}, s.Names())
	assert.Equal(t, 1, s.IndexOf("b"))
	assert.Equal(t, -1, s.IndexOf("zzz"))

	f, ok := s.FieldByName("c")
	require.True(t, ok)
	assert.Equal(t, "c", f.Name)
	assert.True(t, f.Nullable)
}

func TestProjectionCallerOrder(t *testing.T) {
	s := threeFieldSchema(t)

	indices, err := s.Projection([]string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, indices, "indices follow the caller's order")

	projected, err := s.Select(indices)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, projected.Names())
}

func TestProjectionNilKeepsAll(t *testing.T) {
	s := threeFieldSchema(t)
	indices, err := s.Projection(nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, indices)
}

func TestProjectionUnknownColumn(t *testing.T) {
	s := threeFieldSchema(t)
	_, err := s.Projection([]string{"a", "zzz"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeNotFound))
}

func TestRenamePositionalPrefix(t *testing.T) {
	s := threeFieldSchema(t)

	renamed, err := s.Rename([]string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "c"}, renamed.Names())
	assert.Equal(t, []string{"a", "b", "c"}, s.Names(), "original untouched")
	assert.True(t, renamed.Field(0).Type == Int64, "types survive renaming")
}

func TestRenameTooManyNames(t *testing.T) {
	s := threeFieldSchema(t)
	_, err := s.Rename([]string{"w", "x", "y", "z"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeConfig))
}

func TestSchemaEqual(t *testing.T) {
	a := threeFieldSchema(t)
	b := threeFieldSchema(t)
	assert.True(t, a.Equal(b))

	renamed, err := b.Rename([]string{"z"})
	require.NoError(t, err)
	assert.False(t, a.Equal(renamed))
	assert.False(t, a.Equal(Empty()))
}

func TestSelectOutOfRange(t *testing.T) {
	s := threeFieldSchema(t)
	_, err := s.Select([]int{0, 5})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeInternal))
}
