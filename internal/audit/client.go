package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// DescribeClient summarizes a User-Agent header as "Browser version on OS" for audit values.
// Returns "" for an empty header.
func DescribeClient(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot " + name
	}
	name, version := ua.Browser()
	desc := strings.TrimSpace(name + " " + version)
	if os := ua.OS(); os != "" {
		if desc == "" {
			return os
		}
		desc += " on " + os
	}
	if desc == "" {
		return "unknown"
	}
	return desc
}
