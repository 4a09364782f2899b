package utils

import "strings"

// botMarkers are lowercase substrings that identify automated traffic in a
// User-Agent header. The list favors recall over precision: a bot view is
// still stored, it is only excluded from public counters.
var botMarkers = []string{
	"bot", "crawl", "spider", "slurp", "scrape",
	"curl/", "wget/", "python-requests", "python-urllib", "go-http-client",
	"httpclient", "okhttp", "java/", "libwww", "phantomjs", "headless",
	"lighthouse", "pingdom", "uptimerobot", "facebookexternalhit",
	"whatsapp", "telegrambot", "preview",
}

// IsBotUserAgent classifies a User-Agent string. Empty agents count as
// bots: every real browser sends one.
func IsBotUserAgent(ua string) bool {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return true
	}
	for _, m := range botMarkers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}

// DeviceFromUserAgent returns a coarse device class: mobile, tablet or
// desktop. Used only for analytics rollups, so coarse is fine.
func DeviceFromUserAgent(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		return "mobile"
	default:
		return "desktop"
	}
}
