// Package validate holds the shared input validators used identically by the
// request and key engines. All functions are pure; normalization helpers
// return the canonical form alongside any error so callers persist exactly
// what was validated.
package validate

import (
	"regexp"
	"strings"
	"unicode"

	dErrors "verikey/pkg/domain-errors"
)

const (
	titleMinLen = 3
	titleMaxLen = 30
	// A lone word longer than this is almost certainly a pasted token, not
	// a descriptive label.
	titleMaxSingleWordLen = 20
	titleMaxWordLen       = 15

	screenNameMinLen = 3
	screenNameMaxLen = 30
)

var (
	emailPattern      = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	screenNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]+$`)
)

// Title validates a request or key label and returns the trimmed form.
func Title(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", dErrors.New(dErrors.CodeValidation, "label is required")
	}
	if len([]rune(title)) < titleMinLen {
		return "", dErrors.Newf(dErrors.CodeValidation, "label must be at least %d characters", titleMinLen)
	}
	if len([]rune(title)) > titleMaxLen {
		return "", dErrors.Newf(dErrors.CodeValidation, "label must be %d characters or less", titleMaxLen)
	}

	words := strings.Fields(title)
	if len(words) == 1 && len([]rune(words[0])) > titleMaxSingleWordLen {
		return "", dErrors.New(dErrors.CodeValidation, "label looks like a random string, use a descriptive label")
	}
	for _, word := range words {
		if len([]rune(word)) > titleMaxWordLen {
			return "", dErrors.New(dErrors.CodeValidation, "label contains words that are too long, use a descriptive label")
		}
	}

	hasAlpha := false
	for _, r := range title {
		if unicode.IsLetter(r) {
			hasAlpha = true
			break
		}
	}
	if !hasAlpha {
		return "", dErrors.New(dErrors.CodeValidation, "label must contain at least some letters")
	}

	return title, nil
}

// ScreenName validates a screen name and returns the canonical form:
// leading @ stripped, lowercased. Uniqueness is a store concern, not checked
// here.
func ScreenName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "@")
	name = strings.ToLower(name)

	if name == "" {
		return "", dErrors.New(dErrors.CodeValidation, "screen name is required")
	}
	if l := len([]rune(name)); l < screenNameMinLen || l > screenNameMaxLen {
		return "", dErrors.Newf(dErrors.CodeValidation, "screen name must be %d-%d characters", screenNameMinLen, screenNameMaxLen)
	}
	if !screenNamePattern.MatchString(name) {
		return "", dErrors.New(dErrors.CodeValidation, "screen name can only contain letters, numbers, dots and underscores")
	}
	return name, nil
}

// Email validates an email address and returns the canonical lowercase form.
// All storage and comparison happens on the canonical form.
func Email(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if !emailPattern.MatchString(email) {
		return "", dErrors.New(dErrors.CodeValidation, "invalid email format")
	}
	return email, nil
}

// Coordinates validates an optional latitude/longitude pair supplied with a
// location capture.
func Coordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return dErrors.New(dErrors.CodeValidation, "latitude must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return dErrors.New(dErrors.CodeValidation, "longitude must be between -180 and 180")
	}
	return nil
}
