package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesTypeAndStack(t *testing.T) {
	err := New(TypeParse, "bad record")
	assert.Equal(t, "parse: bad record", err.Error())
	assert.NotEmpty(t, err.Stack)
	assert.True(t, IsType(err, TypeParse))
	assert.False(t, IsType(err, TypeIO))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrapf(cause, TypeIO, "GET %s failed", "http://host/x")

	assert.Equal(t, "io: GET http://host/x failed: connection reset", err.Error())
	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, IsType(err, TypeIO))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, TypeIO, "nothing"))
}

func TestWrapOurErrorKeepsStack(t *testing.T) {
	inner := New(TypeParse, "inner")
	outer := Wrap(inner, TypeJoin, "outer")

	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, IsType(outer, TypeJoin), "outermost type wins")

	var e *Error
	require.True(t, As(outer, &e))
	assert.Equal(t, TypeJoin, e.Type)
}

func TestWithDetail(t *testing.T) {
	err := New(TypeParse, "mismatch").
		WithDetail("expected", 3).
		WithDetail("observed", 2)
	assert.Equal(t, 3, err.Details["expected"])
	assert.Equal(t, 2, err.Details["observed"])
}

func TestIsTypeNonStructured(t *testing.T) {
	assert.False(t, IsType(fmt.Errorf("plain"), TypeIO))
}
