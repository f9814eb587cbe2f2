package domain

import (
	dErrors "verikey/pkg/domain-errors"
	pstrings "verikey/pkg/platform/strings"
)

// InformationCategory is a domain value naming one kind of personal
// information a user can request or share.
// Invariant: the value must be one of the supported categories.
//
// Usage: construct via ParseInformationCategory (single value) or
// ParseCategorySet (request/key payloads) at trust boundaries; direct casting
// bypasses validation.
type InformationCategory string

// Supported information categories.
const (
	CategoryFullName  InformationCategory = "fullname"
	CategoryFirstName InformationCategory = "firstname"
	CategoryAge       InformationCategory = "age"
	CategoryLocation  InformationCategory = "location"
	CategorySelfie    InformationCategory = "selfie"
	CategoryPhoto     InformationCategory = "photo"
)

// validCategories is the single source of truth for valid categories.
var validCategories = map[InformationCategory]bool{
	CategoryFullName:  true,
	CategoryFirstName: true,
	CategoryAge:       true,
	CategoryLocation:  true,
	CategorySelfie:    true,
	CategoryPhoto:     true,
}

// ParseInformationCategory constructs an InformationCategory from external
// input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseInformationCategory(s string) (InformationCategory, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "information category cannot be empty")
	}
	c := InformationCategory(s)
	if !c.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid information category %q", s)
	}
	return c, nil
}

// IsValid checks if the category is one of the supported enum values.
func (c InformationCategory) IsValid() bool {
	return validCategories[c]
}

// String returns the string representation of the category.
func (c InformationCategory) String() string {
	return string(c)
}

// IsImage reports whether the category's captured value is an image payload.
func (c InformationCategory) IsImage() bool {
	return c == CategorySelfie || c == CategoryPhoto
}

// ParseCategorySet validates a category list from external input: trims,
// lowercases, deduplicates preserving order, requires at least one entry, and
// rejects requesting fullname and firstname together (the narrower disclosure
// must not be silently widened).
func ParseCategorySet(raw []string) ([]InformationCategory, error) {
	cleaned := pstrings.DedupeAndTrimLower(raw)
	if len(cleaned) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one information category is required")
	}

	out := make([]InformationCategory, 0, len(cleaned))
	for _, s := range cleaned {
		c, err := ParseInformationCategory(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	if containsCategory(out, CategoryFullName) && containsCategory(out, CategoryFirstName) {
		return nil, dErrors.New(dErrors.CodeValidation, "cannot request both fullname and firstname")
	}
	return out, nil
}

// CategoryStrings converts a category set back to plain strings for storage
// and wire encoding.
func CategoryStrings(categories []InformationCategory) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, string(c))
	}
	return out
}

func containsCategory(set []InformationCategory, want InformationCategory) bool {
	for _, c := range set {
		if c == want {
			return true
		}
	}
	return false
}
