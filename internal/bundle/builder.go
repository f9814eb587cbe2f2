package bundle

import (
	"strconv"
	"time"

	identitymodels "verikey/internal/identity/models"
	id "verikey/pkg/domain"
)

// Placeholder values emitted when a requested category cannot be captured.
// A bundle must always be mintable once a request is answered, so missing
// data degrades to these rather than failing the build.
const (
	placeholderName        = "Name not available"
	placeholderFirstName   = "First name not available"
	placeholderAge         = "Age not provided"
	placeholderLocation    = "Location not captured"
	defaultLocationDisplay = "Location captured"
)

// LocationInput is a caller-supplied locality. Coordinates are accepted for
// validation upstream but deliberately never persisted; only CityDisplay
// reaches the bundle.
type LocationInput struct {
	CityDisplay string
	Latitude    *float64
	Longitude   *float64
}

// Submission carries the values the responder provided alongside their
// answer. Every field is optional; absent fields fall back to the profile
// or to a placeholder.
type Submission struct {
	Age        string
	Location   *LocationInput
	SelfieData string
	PhotoData  string
}

// Build assembles the bundle for a key from the subject's profile and the
// submission, restricted to the requested categories. Pure: no storage, no
// clock reads beyond the supplied now.
//
// Value precedence per category: explicit submission value, then the
// profile-stored value, then the category's placeholder. When the subject
// is verified a verification badge is appended.
func Build(subject *identitymodels.User, categories []id.InformationCategory, sub Submission, now time.Time) Bundle {
	entries := make(map[id.InformationCategory]Value, len(categories))
	for _, category := range categories {
		switch category {
		case id.CategoryFullName:
			entries[category] = extractName(subject.DisplayFullName(), placeholderName)
		case id.CategoryFirstName:
			entries[category] = extractName(subject.DisplayFirstName(), placeholderFirstName)
		case id.CategoryAge:
			entries[category] = extractAge(subject, sub.Age, now)
		case id.CategoryLocation:
			entries[category] = extractLocation(sub.Location)
		case id.CategorySelfie:
			entries[category] = extractImage(sub.SelfieData, now)
		case id.CategoryPhoto:
			entries[category] = extractImage(sub.PhotoData, now)
		}
	}

	b := Bundle{Entries: entries}
	if subject.IsVerified {
		b.Badge = &VerificationBadge{
			Verified:          true,
			VerifiedAt:        subject.VerifiedAt,
			VerificationLevel: subject.VerificationLevel,
			Message:           badgeMessage,
		}
	}
	return b
}

func extractName(display, placeholder string) Name {
	if display == "" {
		return Name(placeholder)
	}
	return Name(display)
}

func extractAge(subject *identitymodels.User, submitted string, now time.Time) Age {
	if submitted != "" {
		return Age(submitted)
	}
	if age, ok := subject.Age(now); ok {
		return Age(strconv.Itoa(age))
	}
	return Age(placeholderAge)
}

func extractLocation(loc *LocationInput) Location {
	if loc == nil {
		return Location{CityDisplay: placeholderLocation, Captured: false}
	}
	display := loc.CityDisplay
	if display == "" {
		display = defaultLocationDisplay
	}
	return Location{CityDisplay: display, Captured: true}
}

func extractImage(data string, now time.Time) Image {
	if data == "" {
		return Image{Status: ImageNotCaptured}
	}
	capturedAt := now
	return Image{Status: ImageCaptured, ImageData: data, CapturedAt: &capturedAt}
}
