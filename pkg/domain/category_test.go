package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "verikey/pkg/domain-errors"
)

func TestParseInformationCategory(t *testing.T) {
	t.Run("accepts every supported category", func(t *testing.T) {
		for _, s := range []string{"fullname", "firstname", "age", "location", "selfie", "photo"} {
			c, err := ParseInformationCategory(s)
			require.NoError(t, err)
			assert.Equal(t, s, c.String())
			assert.True(t, c.IsValid())
		}
	})

	t.Run("rejects empty and unknown values", func(t *testing.T) {
		for _, s := range []string{"", "address", "ssn", "FULLNAME "} {
			_, err := ParseInformationCategory(s)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})
}

func TestParseCategorySet(t *testing.T) {
	t.Run("normalizes case whitespace and duplicates preserving order", func(t *testing.T) {
		got, err := ParseCategorySet([]string{" Age ", "location", "AGE", "selfie"})
		require.NoError(t, err)
		assert.Equal(t, []InformationCategory{CategoryAge, CategoryLocation, CategorySelfie}, got)
	})

	t.Run("requires at least one category", func(t *testing.T) {
		for _, input := range [][]string{nil, {}, {"", "  "}} {
			_, err := ParseCategorySet(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		}
	})

	t.Run("rejects unknown category in the set", func(t *testing.T) {
		_, err := ParseCategorySet([]string{"age", "bank_balance"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects fullname and firstname together", func(t *testing.T) {
		_, err := ParseCategorySet([]string{"fullname", "firstname"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("either name category alone is fine", func(t *testing.T) {
		_, err := ParseCategorySet([]string{"fullname", "age"})
		require.NoError(t, err)
		_, err = ParseCategorySet([]string{"firstname"})
		require.NoError(t, err)
	})
}

func TestCategoryHelpers(t *testing.T) {
	assert.True(t, CategorySelfie.IsImage())
	assert.True(t, CategoryPhoto.IsImage())
	assert.False(t, CategoryAge.IsImage())

	assert.Equal(t, []string{"age", "photo"}, CategoryStrings([]InformationCategory{CategoryAge, CategoryPhoto}))
}
