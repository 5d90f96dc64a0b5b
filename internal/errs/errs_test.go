package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error_IncludesCauseWhenWrapped(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(BackendUnavailable, "dial graph store", cause)

	assert.Contains(t, err.Error(), "BACKEND_UNAVAILABLE")
	assert.Contains(t, err.Error(), "dial graph store")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestError_Error_OmitsCauseWhenAbsent(t *testing.T) {
	err := New(NotFound, "entity edge not found")

	assert.Equal(t, "NOT_FOUND: entity edge not found", err.Error())
}

func TestWithDetail_DoesNotMutateOriginal(t *testing.T) {
	base := New(InvalidArgument, "bad input")
	withDetail := base.WithDetail(map[string]any{"field": "name"})

	assert.Nil(t, base.Detail)
	assert.Equal(t, "name", withDetail.Detail["field"])
}

func TestAs_UnwrapsThroughWrapping(t *testing.T) {
	inner := New(ExtractionFailed, "schema validation failed")
	outer := errWrapper{inner}

	found, ok := As(outer)

	assert.True(t, ok)
	assert.Same(t, inner, found)
}

func TestAs_FalseForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))

	assert.False(t, ok)
}

func TestClassify_PassesThroughTypedError(t *testing.T) {
	typed := New(PermissionDenied, "restricted")

	got := Classify(typed)

	assert.Same(t, typed, got)
}

func TestClassify_WrapsUnrecognizedErrorAsInternal(t *testing.T) {
	plain := errors.New("boom")

	got := Classify(plain)

	assert.Equal(t, Internal, got.Kind)
	assert.ErrorIs(t, got, plain)
}

func TestClassify_NilIsNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

type errWrapper struct{ err error }

func (w errWrapper) Error() string { return w.err.Error() }
func (w errWrapper) Unwrap() error { return w.err }
