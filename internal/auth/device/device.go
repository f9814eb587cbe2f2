// Package device derives human-readable device names from User-Agent
// strings. The names label refresh tokens so users can tell their sessions
// apart ("Chrome on Mac OS X", "Safari on iPhone").
package device

import (
	"fmt"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

// ParseUserAgent renders a User-Agent header as "<browser> on <platform>".
// Anything unparseable degrades to a generic name rather than failing.
func ParseUserAgent(ua string) string {
	if ua == "" {
		return unknownDevice
	}

	parsed := useragent.New(ua)

	browser, _ := parsed.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	platform := parsed.OSInfo().Name
	if parsed.Mobile() && parsed.Platform() != "" {
		platform = parsed.Platform()
	}
	if platform == "" {
		platform = parsed.Platform()
	}
	if platform == "" {
		platform = "Unknown OS"
	}

	return fmt.Sprintf("%s on %s", browser, platform)
}
