package qdberrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCapturesStack(t *testing.T) {
	err := New(ErrorTypeInvalidArgument, "bad range")
	require.NotEmpty(t, err.Stack)
	require.Contains(t, err.Stack[0].Function, "TestNewCapturesStack")
}

func TestWrapKeepsStackAndChain(t *testing.T) {
	inner := New(ErrorTypeColumnNotFound, "missing")
	outer := Wrap(inner, ErrorTypeInternal, "resolve failed")

	require.Equal(t, inner.Stack, outer.Stack)
	require.True(t, errors.Is(outer, inner))

	var target *Error
	require.True(t, errors.As(outer, &target))
	require.Equal(t, ErrorTypeInternal, target.Type)
}

func TestWrapNil(t *testing.T) {
	require.Nil(t, Wrap(nil, ErrorTypeInternal, "nothing"))
}

func TestDetails(t *testing.T) {
	err := Newf(ErrorTypeTypeMismatch, "column %s is %s", "price", "double").
		WithDetail("column", "price")

	v, ok := err.Detail("column")
	require.True(t, ok)
	require.Equal(t, "price", v)
	_, ok = err.Detail("table")
	require.False(t, ok)
	require.Equal(t, "type_mismatch: column price is double", err.Error())
}
