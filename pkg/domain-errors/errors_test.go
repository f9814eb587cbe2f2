package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct coded error", func(t *testing.T) {
		err := New(CodeNotFound, "key not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		inner := New(CodeConflict, "duplicate request")
		err := fmt.Errorf("create request: %w", inner)
		assert.True(t, HasCode(err, CodeConflict))
	})

	t.Run("nil and uncoded errors match nothing", func(t *testing.T) {
		assert.False(t, HasCode(nil, CodeInternal))
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "storage unreachable")

	require.True(t, errors.Is(err, cause))
	assert.Equal(t, CodeUnavailable, CodeOf(err))
	assert.Contains(t, err.Error(), "storage unreachable")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOf(t *testing.T) {
	t.Run("uncoded errors classify as internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})

	t.Run("innermost code wins through wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeForbidden, "not yours"))
		assert.Equal(t, CodeForbidden, CodeOf(err))
	})
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "label too short", MessageOf(New(CodeValidation, "label too short")))
	assert.Equal(t, "", MessageOf(errors.New("plain")))
}
