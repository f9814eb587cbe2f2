package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "verikey/pkg/domain-errors"
)

func TestTitle(t *testing.T) {
	t.Run("accepts descriptive labels and trims", func(t *testing.T) {
		got, err := Title("  Work ID check  ")
		require.NoError(t, err)
		assert.Equal(t, "Work ID check", got)
	})

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"too short", "ab"},
		{"too long", strings.Repeat("ab ", 11)},
		{"single long token", "dGhpc2lzYXJhbmRvbXN0cg"},
		{"contains oversized word", "my verylongunbrokenword here"},
		{"no letters", "12 34 56"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := Title(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}

	t.Run("boundary lengths accepted", func(t *testing.T) {
		_, err := Title("abc")
		require.NoError(t, err)
		_, err = Title(strings.Repeat("abcde ", 5))
		require.NoError(t, err)
	})
}

func TestScreenName(t *testing.T) {
	t.Run("canonicalizes at-prefix and case", func(t *testing.T) {
		got, err := ScreenName("@Jane.Doe_99")
		require.NoError(t, err)
		assert.Equal(t, "jane.doe_99", got)
	})

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bare at", "@"},
		{"too short", "ab"},
		{"too long", strings.Repeat("a", 31)},
		{"spaces", "jane doe"},
		{"illegal chars", "jane-doe!"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := ScreenName(tt.input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestEmail(t *testing.T) {
	t.Run("lowercases and trims", func(t *testing.T) {
		got, err := Email("  Jane.Doe@Example.COM ")
		require.NoError(t, err)
		assert.Equal(t, "jane.doe@example.com", got)
	})

	for _, input := range []string{"", "no-at-sign", "two@@example.com", "a@b", "user@domain"} {
		t.Run("rejects "+input, func(t *testing.T) {
			_, err := Email(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestCoordinates(t *testing.T) {
	require.NoError(t, Coordinates(0, 0))
	require.NoError(t, Coordinates(-90, 180))
	require.Error(t, Coordinates(90.1, 0))
	require.Error(t, Coordinates(0, -180.5))
}
