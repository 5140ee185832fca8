package coreerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(KindInvalidInput, "bad value %d", 42)
	assert.Equal(t, "INVALID_INPUT: bad value 42", err.Error())
	assert.Equal(t, KindInvalidInput, err.Kind)
}

func TestWrap_PreservesUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := Wrap(KindDBTransient, inner, "query trees")
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIs(t *testing.T) {
	err := New(KindNoTrees, "empty inventory")
	assert.True(t, Is(err, KindNoTrees))
	assert.False(t, Is(err, KindInvalidInput))
}

func TestIs_NonCoreError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), KindInternal))
}
