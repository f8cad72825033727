package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	original := New("dial tcp: connection refused")
	wrapped := Wrapf(original, "failed to upsert %s", "entity_live")

	assert.Contains(t, wrapped.Error(), "failed to upsert entity_live")
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.True(t, Is(wrapped, original))
}

func TestUnavailableMarksStoreFailures(t *testing.T) {
	err := Unavailable(New("i/o timeout"), "failed to delete %s:%d", "connection_all", 7)

	require.Error(t, err)
	assert.True(t, IsStoreUnavailable(err))
	assert.True(t, Is(err, ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "connection_all:7")
	assert.Contains(t, err.Error(), "i/o timeout")

	// Wrapping again keeps the mark
	outer := Wrap(err, "search.entity")
	assert.True(t, IsStoreUnavailable(outer))
}

func TestUnavailableNil(t *testing.T) {
	assert.Nil(t, Unavailable(nil, "context"))
}

func TestUnsupportedDataType(t *testing.T) {
	err := Unsupported("attribute %q has data type %q", "height", "polygon")

	assert.True(t, Is(err, ErrUnsupportedDataType))
	assert.False(t, IsStoreUnavailable(err))
	assert.Equal(t, `attribute "height" has data type "polygon"`, err.Error())
}

func TestNotFound(t *testing.T) {
	err := NewNotFoundError("entity %d", 42)

	assert.True(t, IsNotFoundError(err))
	assert.Equal(t, "entity 42", err.Error())
	assert.False(t, IsNotFoundError(New("entity 42")))
	assert.False(t, IsNotFoundError(nil))
}

func TestInvalidRequest(t *testing.T) {
	err := NewInvalidRequestError("unknown model %q", "widget")
	assert.True(t, Is(err, ErrInvalidRequest))
}

func TestHintsAndDetails(t *testing.T) {
	err := New("marker row missing")
	err = WithDetail(err, "Marker: reconcile")
	err = WithHint(err, "run prism db migrate")
	err = Wrap(err, "acquire failed")

	assert.Contains(t, GetAllHints(err), "run prism db migrate")
	assert.Contains(t, GetAllDetails(err), "Marker: reconcile")
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")
	assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func ExampleUnavailable() {
	err := Unavailable(New("connection refused"), "failed to upsert %s", "entity_live")
	fmt.Println(err)
	// Output: failed to upsert entity_live: connection refused
}
