// Package bundle builds and represents the frozen information payload
// attached to a shareable key at creation. A bundle is immutable once a key
// is minted; readers get exactly the snapshot the responder shared,
// regardless of later profile changes.
package bundle

import (
	"encoding/json"
	"fmt"
	"time"

	id "verikey/pkg/domain"
)

// ImageStatus marks whether an image entry carries data.
type ImageStatus string

const (
	ImageCaptured    ImageStatus = "captured"
	ImageNotCaptured ImageStatus = "not_captured"
)

// Value is one captured bundle entry. The concrete type is determined by the
// entry's information category, so readers switch on type rather than
// guessing at a map shape.
type Value interface {
	bundleValue()
}

// Name is the payload for the fullname and firstname categories.
type Name string

// Age is the payload for the age category, kept as a display string.
type Age string

// Location is the payload for the location category. Only the human-readable
// locality string is persisted; raw coordinates never enter a bundle.
type Location struct {
	CityDisplay string `json:"cityDisplay"`
	Captured    bool   `json:"captured"`
}

// Image is the payload for the selfie and photo categories. ImageData is an
// opaque base64 string; nothing downstream interprets it.
type Image struct {
	Status     ImageStatus `json:"status"`
	ImageData  string      `json:"image_data,omitempty"`
	CapturedAt *time.Time  `json:"captured_at,omitempty"`
}

func (Name) bundleValue()     {}
func (Age) bundleValue()      {}
func (Location) bundleValue() {}
func (Image) bundleValue()    {}

// VerificationBadge signals that the subject's identity attributes were
// verified against a government ID. Appended to the bundle payload when the
// subject is verified at snapshot time.
type VerificationBadge struct {
	Verified          bool       `json:"verified"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`
	VerificationLevel string     `json:"verification_level,omitempty"`
	Message           string     `json:"message"`
}

const badgeMessage = "This information has been verified via government ID"

// badgeKey is the payload key the badge is stored under. It is not an
// information category; categories and the badge share a namespace on the
// wire only.
const badgeKey = "verification_badge"

// Bundle is the frozen map from information category to captured value,
// plus the optional verification badge.
type Bundle struct {
	Entries map[id.InformationCategory]Value
	Badge   *VerificationBadge
}

// Get returns the entry for a category.
func (b Bundle) Get(category id.InformationCategory) (Value, bool) {
	v, ok := b.Entries[category]
	return v, ok
}

// Categories lists the categories present in the bundle.
func (b Bundle) Categories() []id.InformationCategory {
	out := make([]id.InformationCategory, 0, len(b.Entries))
	for c := range b.Entries {
		out = append(out, c)
	}
	return out
}

// IsZero reports an empty bundle, which only occurs on unpopulated structs,
// never on a built one.
func (b Bundle) IsZero() bool {
	return len(b.Entries) == 0 && b.Badge == nil
}

// MarshalJSON flattens the bundle onto the stored wire shape: one object
// keyed by category name, with the badge under its own key.
func (b Bundle) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(b.Entries)+1)
	for c, v := range b.Entries {
		flat[c.String()] = v
	}
	if b.Badge != nil {
		flat[badgeKey] = b.Badge
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reconstructs the typed entries from the stored shape. Keys
// that are neither a known category nor the badge are dropped rather than
// failing, so bundles written by older revisions still load.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("decode bundle: %w", err)
	}

	b.Entries = make(map[id.InformationCategory]Value, len(flat))
	b.Badge = nil
	for key, raw := range flat {
		if key == badgeKey {
			var badge VerificationBadge
			if err := json.Unmarshal(raw, &badge); err != nil {
				return fmt.Errorf("decode bundle badge: %w", err)
			}
			b.Badge = &badge
			continue
		}

		category := id.InformationCategory(key)
		if !category.IsValid() {
			continue
		}
		value, err := decodeValue(category, raw)
		if err != nil {
			return err
		}
		b.Entries[category] = value
	}
	return nil
}

func decodeValue(category id.InformationCategory, raw json.RawMessage) (Value, error) {
	switch category {
	case id.CategoryFullName, id.CategoryFirstName:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode bundle %s: %w", category, err)
		}
		return Name(s), nil
	case id.CategoryAge:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode bundle %s: %w", category, err)
		}
		return Age(s), nil
	case id.CategoryLocation:
		var loc Location
		if err := json.Unmarshal(raw, &loc); err != nil {
			return nil, fmt.Errorf("decode bundle %s: %w", category, err)
		}
		return loc, nil
	case id.CategorySelfie, id.CategoryPhoto:
		var img Image
		if err := json.Unmarshal(raw, &img); err != nil {
			return nil, fmt.Errorf("decode bundle %s: %w", category, err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("decode bundle: unhandled category %q", category)
	}
}
