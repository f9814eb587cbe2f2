// Package blob stores binary media: profile photos and verification
// document images. The S3 implementation talks to AWS or any S3-compatible
// endpoint; the in-memory implementation backs tests and dev mode.
package blob

import (
	"encoding/base64"
	"strings"

	dErrors "verikey/pkg/domain-errors"
)

// imageTypes lists the media types accepted from image data URLs.
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ParseImageDataURL decodes a base64 image data URL
// ("data:image/jpeg;base64,...") and enforces a decoded size cap before
// allocating the payload.
func ParseImageDataURL(dataURL string, maxBytes int) (contentType string, data []byte, err error) {
	const prefix = "data:"
	if !strings.HasPrefix(dataURL, prefix) {
		return "", nil, dErrors.New(dErrors.CodeValidation, "image must be a base64 data URL")
	}

	meta, payload, found := strings.Cut(dataURL[len(prefix):], ",")
	if !found || payload == "" {
		return "", nil, dErrors.New(dErrors.CodeValidation, "image data URL is malformed")
	}

	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, dErrors.New(dErrors.CodeValidation, "image data URL must be base64 encoded")
	}
	if _, supported := imageTypes[mediaType]; !supported {
		return "", nil, dErrors.Newf(dErrors.CodeValidation, "unsupported image type %q", mediaType)
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > maxBytes {
		return "", nil, dErrors.Newf(dErrors.CodeValidation, "image exceeds the %d byte limit", maxBytes)
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, dErrors.New(dErrors.CodeValidation, "image payload is not valid base64")
	}
	if len(decoded) == 0 {
		return "", nil, dErrors.New(dErrors.CodeValidation, "image payload is empty")
	}
	return mediaType, decoded, nil
}

// ExtensionFor returns the file extension for a supported image media type,
// or an empty string for anything else.
func ExtensionFor(contentType string) string {
	return imageTypes[contentType]
}
