package apperr

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom(t *testing.T) {
	base := NotFound("No document found for ID: %s", "42")
	wrapped := errors.Wrap(base, "get product")

	e, ok := From(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, e.Kind)
	assert.Equal(t, "No document found for ID: 42", e.Message)

	_, ok = From(errors.New("boom"))
	assert.False(t, ok)
}

func TestIs(t *testing.T) {
	sentinel := New(KindConflict, "out of stock")
	err := errors.Wrap(New(KindConflict, "out of stock"), "place order")

	assert.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, New(KindInvalid, "out of stock"))
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(Forbidden("nope"), KindForbidden))
	assert.False(t, IsKind(Forbidden("nope"), KindUnauthorized))
	assert.False(t, IsKind(nil, KindForbidden))
}
